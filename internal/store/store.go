// Package store persists tracked people and check run history.
package store

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"

	"github.com/sells-group/jobcheck/internal/config"
	"github.com/sells-group/jobcheck/internal/model"
)

// Sentinel errors shared by all backends.
var (
	ErrNotFound  = eris.New("store: not found")
	ErrDuplicate = eris.New("store: person with this name is already tracked")
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status  model.RunStatus `json:"status,omitempty"`
	Trigger model.Trigger   `json:"trigger,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}

// Store is the persistence interface for people and runs.
type Store interface {
	// People
	GetPerson(ctx context.Context, id string) (*model.Person, error)
	ListPeople(ctx context.Context) ([]model.Person, error)
	CreatePerson(ctx context.Context, p model.Person) (*model.Person, error)
	UpdatePerson(ctx context.Context, id string, u model.PersonUpdate) (*model.Person, error)
	DeletePerson(ctx context.Context, id string) error
	ImportPeople(ctx context.Context, people []model.Person) (int64, error)

	// Runs
	SaveRun(ctx context.Context, run *model.RunSummary) error
	LatestRun(ctx context.Context) (*model.RunSummary, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.RunSummary, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// DefaultSQLitePath is used when the sqlite driver has no database_url.
const DefaultSQLitePath = "jobcheck.db"

// Open connects to the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	case "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = DefaultSQLitePath
		}
		return NewSQLite(dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

var fold = cases.Fold()

// nameKey is the case-folded form of a name used for uniqueness.
func nameKey(name string) string {
	return fold.String(strings.TrimSpace(name))
}

// dedupeByName keeps the first person for each name key.
func dedupeByName(people []model.Person) []model.Person {
	seen := make(map[string]bool, len(people))
	out := make([]model.Person, 0, len(people))
	for _, p := range people {
		k := nameKey(p.Name)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return out
}

// personJSON holds the JSON-encoded columns of a person row.
type personJSON struct {
	current    []byte
	history    []byte
	recipients []byte
}

func encodePerson(p model.Person) (personJSON, error) {
	var pj personJSON
	var err error
	if pj.current, err = json.Marshal(p.Current); err != nil {
		return pj, eris.Wrap(err, "store: marshal current position")
	}
	history := p.History
	if history == nil {
		history = []model.Position{}
	}
	if pj.history, err = json.Marshal(history); err != nil {
		return pj, eris.Wrap(err, "store: marshal position history")
	}
	recipients := p.Recipients
	if recipients == nil {
		recipients = []string{}
	}
	if pj.recipients, err = json.Marshal(recipients); err != nil {
		return pj, eris.Wrap(err, "store: marshal recipients")
	}
	return pj, nil
}

func (pj personJSON) decode(p *model.Person) error {
	if err := json.Unmarshal(pj.current, &p.Current); err != nil {
		return eris.Wrap(err, "store: unmarshal current position")
	}
	if err := json.Unmarshal(pj.history, &p.History); err != nil {
		return eris.Wrap(err, "store: unmarshal position history")
	}
	if err := json.Unmarshal(pj.recipients, &p.Recipients); err != nil {
		return eris.Wrap(err, "store: unmarshal recipients")
	}
	if p.History == nil {
		p.History = []model.Position{}
	}
	return nil
}

func runLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}
