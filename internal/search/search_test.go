package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobcheck/internal/config"
	"github.com/sells-group/jobcheck/internal/model"
	"github.com/sells-group/jobcheck/internal/resilience"
	"github.com/sells-group/jobcheck/pkg/serper"
)

type fakeClient struct {
	got  serper.SearchRequest
	resp *serper.SearchResponse
	err  error
}

func (f *fakeClient) Search(_ context.Context, req serper.SearchRequest) (*serper.SearchResponse, error) {
	f.got = req
	return f.resp, f.err
}

func TestQuery(t *testing.T) {
	assert.Equal(t, `"Jane Doe" "Meta"`, Query("Jane Doe", "Meta"))
	assert.Equal(t, `"Jane Doe"`, Query("Jane Doe", ""))
}

func TestSearch_KeepsFirstFiveOrganic(t *testing.T) {
	var organic []serper.OrganicResult
	for i := range 8 {
		organic = append(organic, serper.OrganicResult{Title: string(rune('a' + i)), Snippet: "s", Link: "l"})
	}
	fc := &fakeClient{resp: &serper.SearchResponse{Organic: organic}}

	svc := New(fc, config.SerperConfig{})
	results, err := svc.Search(context.Background(), "Jane Doe", "Meta")

	require.NoError(t, err)
	require.Len(t, results, 5)
	assert.Equal(t, "a", results[0].Title)
	assert.Equal(t, "e", results[4].Title)
	assert.Equal(t, `"Jane Doe" "Meta"`, fc.got.Query)
	assert.Equal(t, 10, fc.got.Num)
}

func TestSearch_ConfiguredLimits(t *testing.T) {
	fc := &fakeClient{resp: &serper.SearchResponse{Organic: []serper.OrganicResult{{Title: "a"}, {Title: "b"}, {Title: "c"}}}}

	svc := New(fc, config.SerperConfig{NumResults: 20, ResultLimit: 2})
	results, err := svc.Search(context.Background(), "Jane", "")

	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 20, fc.got.Num)
}

func TestSearch_EmptyOrganic(t *testing.T) {
	svc := New(&fakeClient{resp: &serper.SearchResponse{}}, config.SerperConfig{})
	results, err := svc.Search(context.Background(), "Jane", "Meta")

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_NoAPIKeyIsUnavailable(t *testing.T) {
	svc := NewFromConfig(config.SerperConfig{})
	_, err := svc.Search(context.Background(), "Jane", "Meta")

	require.Error(t, err)
	assert.Equal(t, model.ErrorSearchUnavailable, model.KindOf(err))
}

func TestSearch_UpstreamErrorIsProvider(t *testing.T) {
	svc := New(&fakeClient{err: &serper.APIError{StatusCode: 500, Body: "oops"}}, config.SerperConfig{})
	_, err := svc.Search(context.Background(), "Jane", "Meta")

	require.Error(t, err)
	assert.Equal(t, model.ErrorSearchProvider, model.KindOf(err))
	var apiErr *serper.APIError
	assert.True(t, errors.As(err, &apiErr))
}

func TestNewFromConfig_EndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "live-key", r.Header.Get("X-API-KEY"))
		_ = json.NewEncoder(w).Encode(serper.SearchResponse{Organic: []serper.OrganicResult{
			{Title: "Jane Doe - CTO at Meta", Snippet: "Jane joined", Link: "https://x"},
		}})
	}))
	defer srv.Close()

	svc := NewFromConfig(config.SerperConfig{Key: "live-key", BaseURL: srv.URL, TimeoutSecs: 5})
	results, err := svc.Search(context.Background(), "Jane Doe", "Meta")

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.SearchResult{Title: "Jane Doe - CTO at Meta", Snippet: "Jane joined", Link: "https://x"}, results[0])
}

func TestSearch_OpenBreakerIsProvider(t *testing.T) {
	cfg := resilience.DefaultCircuitBreakerConfig()
	cfg.FailureThreshold = 2
	cfg.ShouldTrip = Trips
	cb := resilience.NewCircuitBreaker(cfg)

	fc := &fakeClient{err: &serper.APIError{StatusCode: 503}}
	svc := New(fc, config.SerperConfig{}, WithBreaker(cb))
	for range 2 {
		_, err := svc.Search(context.Background(), "Jane", "Meta")
		require.Error(t, err)
	}
	require.Equal(t, resilience.CircuitOpen, cb.State())

	fc.err = nil
	fc.resp = &serper.SearchResponse{}
	_, err := svc.Search(context.Background(), "Jane", "Meta")

	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, model.ErrorSearchProvider, model.KindOf(err))
}

func TestSearch_MissingKeyDoesNotTrip(t *testing.T) {
	cfg := resilience.DefaultCircuitBreakerConfig()
	cfg.FailureThreshold = 1
	cfg.ShouldTrip = Trips
	cb := resilience.NewCircuitBreaker(cfg)

	svc := New(&fakeClient{err: serper.ErrNoAPIKey}, config.SerperConfig{}, WithBreaker(cb))
	_, err := svc.Search(context.Background(), "Jane", "Meta")

	require.Error(t, err)
	assert.Equal(t, model.ErrorSearchUnavailable, model.KindOf(err))
	assert.Equal(t, resilience.CircuitClosed, cb.State())
}
