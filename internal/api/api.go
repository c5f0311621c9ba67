// Package api serves the HTTP surface: health, manual job check runs,
// run status, people management and ad-hoc search.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/jobcheck/internal/model"
	"github.com/sells-group/jobcheck/internal/runner"
)

const maxBodySize = 1 << 20

// People is the person store used by the people routes.
type People interface {
	GetPerson(ctx context.Context, id string) (*model.Person, error)
	ListPeople(ctx context.Context) ([]model.Person, error)
	CreatePerson(ctx context.Context, p model.Person) (*model.Person, error)
	UpdatePerson(ctx context.Context, id string, u model.PersonUpdate) (*model.Person, error)
	DeletePerson(ctx context.Context, id string) error
}

// RunHistory supplies the last persisted run when this process has not
// finished one yet.
type RunHistory interface {
	LatestRun(ctx context.Context) (*model.RunSummary, error)
}

// Jobs starts manual runs and reports the next scheduled one.
type Jobs interface {
	Trigger(ctx context.Context) (*model.RunSummary, error)
	Next() time.Time
}

// StatusSource reports whether a run is active and the last finished run.
type StatusSource interface {
	Status() runner.Status
}

// Searcher runs an ad-hoc search for a person.
type Searcher interface {
	Search(ctx context.Context, name, company string) ([]model.SearchResult, error)
}

// Deps holds the collaborators behind the router. Runs, Search and
// Scheduled are optional.
type Deps struct {
	People      People
	Runs        RunHistory
	Jobs        Jobs
	Status      StatusSource
	Search      Searcher
	Scheduled   bool
	CORSOrigins []string
	Now         func() time.Time
}

// NewRouter builds the chi router for the API.
func NewRouter(d Deps) http.Handler {
	if d.Now == nil {
		d.Now = time.Now
	}
	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handleHealth)

		r.Route("/job-check", func(r chi.Router) {
			r.Post("/run", handleRun(d))
			r.Get("/status", handleStatus(d))
		})

		r.Route("/people", func(r chi.Router) {
			r.Get("/", handleListPeople(d))
			r.Post("/", handleCreatePerson(d))
			r.Get("/{id}", handleGetPerson(d))
			r.Put("/{id}", handleUpdatePerson(d))
			r.Delete("/{id}", handleDeletePerson(d))
		})

		if d.Search != nil {
			r.Post("/search", handleSearch(d))
		}
	})
	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]string{"error": fmt.Sprintf(format, args...)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close() //nolint:errcheck
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return false
	}
	return true
}
