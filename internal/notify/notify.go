// Package notify sends job change alerts by email.
package notify

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobcheck/internal/config"
	"github.com/sells-group/jobcheck/internal/model"
	"github.com/sells-group/jobcheck/internal/resilience"
	"github.com/sells-group/jobcheck/pkg/resend"
)

// Recipient resolution failures. Delivery is not attempted for either.
var (
	ErrNoValidRecipients = eris.New("No valid email addresses for this contact (check format).")
	ErrNoRecipients      = eris.New("No recipients configured for this contact, and no EMAIL_RECIPIENTS fallback set.")
)

// Notifier delivers change alerts through Resend, one message per recipient.
type Notifier struct {
	client   resend.Client
	from     string
	fallback []string
	retry    resilience.RetryConfig
	breaker  *resilience.CircuitBreaker
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithRetry sets the retry policy for batch sends.
func WithRetry(rc resilience.RetryConfig) Option {
	return func(n *Notifier) {
		n.retry = rc
	}
}

// WithBreaker guards batch sends with cb.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(n *Notifier) {
		n.breaker = cb
	}
}

// New creates a Notifier. cfg.Recipients is the global fallback list.
func New(client resend.Client, cfg config.EmailConfig, opts ...Option) *Notifier {
	n := &Notifier{
		client:   client,
		from:     cfg.From,
		fallback: ValidRecipients(cfg.Recipients),
		retry:    resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// NewFromConfig builds the Resend client and wires retries and the
// "resend" breaker from breakers.
func NewFromConfig(cfg *config.Config, breakers *resilience.ServiceBreakers) *Notifier {
	client := resend.NewClient(cfg.Resend.Key, resend.WithBaseURL(cfg.Resend.BaseURL))
	retry := resilience.RetryFromConfig(cfg.Resilience)
	retry.OnRetry = resilience.RetryLogger("resend", "send_batch")
	opts := []Option{WithRetry(retry)}
	if breakers != nil {
		opts = append(opts, WithBreaker(breakers.Get("resend")))
	}
	return New(client, cfg.Email, opts...)
}

// ValidRecipients returns the syntactically valid, trimmed addresses in list.
func ValidRecipients(list []string) []string {
	var out []string
	for _, r := range list {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, err := mail.ParseAddress(r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Resolve picks the recipients for an alert: the person's valid addresses,
// else the global fallback list.
func (n *Notifier) Resolve(personRecipients []string) ([]string, error) {
	if valid := ValidRecipients(personRecipients); len(valid) > 0 {
		return valid, nil
	}
	if len(n.fallback) > 0 {
		return n.fallback, nil
	}
	if len(personRecipients) > 0 {
		return nil, ErrNoValidRecipients
	}
	return nil, ErrNoRecipients
}

// SendChangeAlert renders and sends alert, returning the provider's email ids.
func (n *Notifier) SendChangeAlert(ctx context.Context, alert model.ChangeAlert) ([]string, error) {
	log := zap.L().With(zap.String("component", "notify"), zap.String("person", alert.PersonName))

	recipients, err := n.Resolve(alert.Recipients)
	if err != nil {
		log.Warn("change alert has no recipients", zap.Error(err))
		return nil, err
	}

	html, text, err := Render(alert)
	if err != nil {
		return nil, err
	}

	subject := Subject(alert)
	batch := make([]resend.Email, 0, len(recipients))
	for _, r := range recipients {
		batch = append(batch, resend.Email{From: n.from, To: []string{r}, Subject: subject, HTML: html, Text: text})
	}

	resp, err := resilience.DoVal(ctx, n.retry, func(ctx context.Context) (*resend.BatchResponse, error) {
		return n.send(ctx, batch)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "notify: send alert for %s", alert.PersonName)
	}

	log.Info("change alert delivered", zap.Int("recipients", len(recipients)))
	return resp.IDs(), nil
}

func (n *Notifier) send(ctx context.Context, batch []resend.Email) (*resend.BatchResponse, error) {
	call := func(ctx context.Context) (*resend.BatchResponse, error) {
		resp, err := n.client.SendBatch(ctx, batch)
		var apiErr *resend.APIError
		if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
			return nil, resilience.NewTransientError(err, apiErr.StatusCode)
		}
		return resp, err
	}
	if n.breaker == nil {
		return call(ctx)
	}
	return resilience.ExecuteVal(ctx, n.breaker, call)
}
