// Package checker runs one person's search, analysis, update and notify cycle.
package checker

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobcheck/internal/detect"
	"github.com/sells-group/jobcheck/internal/model"
)

// DefaultEvidenceLimit is how many evidence items an outcome keeps.
const DefaultEvidenceLimit = 3

// Searcher looks a person up with the search provider.
type Searcher interface {
	Search(ctx context.Context, name, company string) ([]model.SearchResult, error)
}

// PersonUpdater applies partial updates to stored persons. Implementations
// roll the displaced current position into history themselves.
type PersonUpdater interface {
	UpdatePerson(ctx context.Context, id string, u model.PersonUpdate) (*model.Person, error)
}

// Notifier delivers change alerts and returns the provider's message ids.
type Notifier interface {
	SendChangeAlert(ctx context.Context, alert model.ChangeAlert) ([]string, error)
}

// Checker checks a single person for a job change.
type Checker struct {
	search        Searcher
	store         PersonUpdater
	notifier      Notifier
	analyzer      *detect.Analyzer
	evidenceLimit int
	now           func() time.Time
}

// Option configures a Checker.
type Option func(*Checker)

// WithEvidenceLimit sets how many evidence items are kept per outcome.
func WithEvidenceLimit(n int) Option {
	return func(c *Checker) {
		if n > 0 {
			c.evidenceLimit = n
		}
	}
}

// WithClock overrides the time source used for start and last-checked markers.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) { c.now = now }
}

// New creates a Checker. notifier may be nil, in which case detected
// changes are recorded without sending alerts.
func New(search Searcher, store PersonUpdater, notifier Notifier, analyzer *detect.Analyzer, opts ...Option) *Checker {
	c := &Checker{
		search:        search,
		store:         store,
		notifier:      notifier,
		analyzer:      analyzer,
		evidenceLimit: DefaultEvidenceLimit,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check runs one person's cycle. Failures are recorded on the returned
// outcome rather than returned, so one person never aborts a run.
func (c *Checker) Check(ctx context.Context, p model.Person) (out model.CheckOutcome) {
	log := zap.L().With(
		zap.String("component", "checker"),
		zap.String("person_id", p.ID),
		zap.String("person", p.Name),
	)

	out = model.CheckOutcome{
		PersonID:   p.ID,
		PersonName: p.Name,
		Previous:   p.Current,
	}

	defer func() {
		if r := recover(); r != nil {
			err := model.NewCheckError(model.ErrorInternal, eris.Errorf("checker: panic: %v", r))
			out.SetError(err)
			log.Error("check panicked", zap.Any("panic", r))
		}
	}()

	results, err := c.search.Search(ctx, p.Name, p.Current.Company)
	if err != nil {
		if model.KindOf(err) == model.ErrorInternal {
			err = model.NewCheckError(model.ErrorSearchProvider, err)
		}
		out.SetError(eris.Wrap(err, "checker: search"))
		log.Warn("search failed", zap.Error(err))
		return out
	}

	h := c.analyzer.Analyze(results, p.Current, p.Name)
	out.Confidence = h.Confidence
	out.Evidence = h.Evidence[:min(len(h.Evidence), c.evidenceLimit)]

	now := c.now()
	if !h.Detected {
		if _, err := c.store.UpdatePerson(ctx, p.ID, model.PersonUpdate{LastChecked: &now}); err != nil {
			out.SetError(eris.Wrap(model.NewCheckError(model.ErrorPersistence, err), "checker: refresh last checked"))
			log.Warn("refresh last checked failed", zap.Error(err))
			return out
		}
		log.Debug("no change detected", zap.Int("confidence", h.Confidence))
		return out
	}

	proposed := model.Position{Company: h.Company, Role: h.Role, StartDate: &now}
	out.Proposed = &proposed
	if _, err := c.store.UpdatePerson(ctx, p.ID, model.PersonUpdate{Current: &proposed, LastChecked: &now}); err != nil {
		out.SetError(eris.Wrap(model.NewCheckError(model.ErrorPersistence, err), "checker: record change"))
		log.Warn("record change failed", zap.Error(err))
		return out
	}
	out.Changed = true

	log.Info("job change detected",
		zap.Int("confidence", h.Confidence),
		zap.String("previous_role", p.Current.Role),
		zap.String("previous_company", p.Current.Company),
		zap.String("new_role", proposed.Role),
		zap.String("new_company", proposed.Company),
	)

	if c.notifier == nil {
		return out
	}
	ids, err := c.notifier.SendChangeAlert(ctx, model.ChangeAlert{
		PersonName: p.Name,
		Previous:   p.Current,
		Proposed:   proposed,
		Confidence: h.Confidence,
		Evidence:   out.Evidence,
		Recipients: p.Recipients,
	})
	if err != nil {
		out.NotifyError = model.NewCheckError(model.ErrorNotification, err).Error()
		log.Warn("change alert not sent", zap.Error(err))
		return out
	}
	out.EmailIDs = ids
	log.Info("change alert sent", zap.Int("emails", len(ids)))
	return out
}
