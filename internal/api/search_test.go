package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/jobcheck/internal/model"
)

type fakeSearch struct {
	results []model.SearchResult
	err     error
}

func (f fakeSearch) Search(context.Context, string, string) ([]model.SearchResult, error) {
	return f.results, f.err
}

func TestSearch(t *testing.T) {
	srv := newTestServer(t, Deps{Search: fakeSearch{results: []model.SearchResult{{Title: "Jane Doe - CTO at Meta"}}}})

	resp, _ := do(t, srv, http.MethodPost, "/api/search", `{"name":"Jane Doe","company":"Meta"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSearch_Errors(t *testing.T) {
	unavailable := newTestServer(t, Deps{Search: fakeSearch{err: model.NewCheckError(model.ErrorSearchUnavailable, errors.New("no key"))}})
	resp, body := do(t, unavailable, http.MethodPost, "/api/search", `{"name":"Jane","company":"Meta"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "search is not configured", body["error"])

	provider := newTestServer(t, Deps{Search: fakeSearch{err: model.NewCheckError(model.ErrorSearchProvider, errors.New("503"))}})
	resp, _ = do(t, provider, http.MethodPost, "/api/search", `{"name":"Jane","company":"Meta"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp, _ = do(t, provider, http.MethodPost, "/api/search", `{"name":"Jane"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearch_NotMountedWithoutSearcher(t *testing.T) {
	srv := newTestServer(t, Deps{})
	resp, _ := do(t, srv, http.MethodPost, "/api/search", `{"name":"Jane","company":"Meta"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
