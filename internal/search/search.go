// Package search adapts the Serper client to the checker's Searcher contract.
package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobcheck/internal/config"
	"github.com/sells-group/jobcheck/internal/model"
	"github.com/sells-group/jobcheck/internal/resilience"
	"github.com/sells-group/jobcheck/pkg/serper"
)

// Service looks people up via Serper.
type Service struct {
	client     serper.Client
	numResults int
	limit      int
	breaker    *resilience.CircuitBreaker
}

// Option configures a Service.
type Option func(*Service)

// WithBreaker guards provider calls with cb. Build cb with ShouldTrip set
// to Trips so a missing API key does not open the circuit.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(s *Service) {
		s.breaker = cb
	}
}

// Trips reports whether a client error counts against the breaker.
func Trips(err error) bool {
	return !errors.Is(err, serper.ErrNoAPIKey)
}

// New creates a Service around an existing client.
func New(client serper.Client, cfg config.SerperConfig, opts ...Option) *Service {
	s := &Service{client: client, numResults: 10, limit: 5}
	for _, o := range opts {
		o(s)
	}
	if cfg.NumResults > 0 {
		s.numResults = cfg.NumResults
	}
	if cfg.ResultLimit > 0 {
		s.limit = cfg.ResultLimit
	}
	return s
}

// NewFromConfig builds the Serper client and wraps it.
func NewFromConfig(cfg config.SerperConfig, opts ...Option) *Service {
	clientOpts := []serper.Option{
		serper.WithBaseURL(cfg.BaseURL),
		serper.WithRateLimit(cfg.RateLimit),
	}
	if cfg.TimeoutSecs > 0 {
		clientOpts = append(clientOpts, serper.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second}))
	}
	return New(serper.NewClient(cfg.Key, clientOpts...), cfg, opts...)
}

// Query builds the quoted search query for a person.
func Query(name, company string) string {
	if company == "" {
		return fmt.Sprintf("%q", name)
	}
	return fmt.Sprintf("%q %q", name, company)
}

// Search returns up to the configured number of organic results. Errors
// carry model.ErrorSearchUnavailable when no API key is configured and
// model.ErrorSearchProvider otherwise, including when the breaker is open.
func (s *Service) Search(ctx context.Context, name, company string) ([]model.SearchResult, error) {
	req := serper.SearchRequest{Query: Query(name, company), Num: s.numResults}
	call := func(ctx context.Context) (*serper.SearchResponse, error) {
		return s.client.Search(ctx, req)
	}

	var (
		resp *serper.SearchResponse
		err  error
	)
	if s.breaker != nil {
		resp, err = resilience.ExecuteVal(ctx, s.breaker, call)
	} else {
		resp, err = call(ctx)
	}
	if err != nil {
		if errors.Is(err, serper.ErrNoAPIKey) {
			return nil, model.NewCheckError(model.ErrorSearchUnavailable, err)
		}
		return nil, model.NewCheckError(model.ErrorSearchProvider, eris.Wrapf(err, "search: %s", name))
	}

	organic := resp.Organic[:min(len(resp.Organic), s.limit)]
	results := make([]model.SearchResult, 0, len(organic))
	for _, o := range organic {
		results = append(results, model.SearchResult{Title: o.Title, Snippet: o.Snippet, Link: o.Link})
	}
	return results, nil
}
