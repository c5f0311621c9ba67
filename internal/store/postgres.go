package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobcheck/internal/db"
	"github.com/sells-group/jobcheck/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationLockID guards concurrent Migrate calls across processes.
const migrationLockID = 5318008

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
	now  func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

const personColumns = `id, name, current_position, position_history, recipients, last_checked, created_at, updated_at`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(5)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresStore(pool), nil
}

func newPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// Pool returns the underlying pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

// Migrate applies the embedded migrations that have not been recorded yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.migrate"))

	if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return eris.Wrap(err, "postgres: acquire migration lock")
	}
	defer func() {
		if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			log.Warn("release migration lock failed", zap.Error(err))
		}
	}()

	if _, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename   TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return eris.Wrap(err, "postgres: ensure migration table")
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return eris.Wrap(err, "postgres: read migration dir")
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		name := entry.Name()
		if applied[name] {
			continue
		}
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return eris.Wrapf(err, "postgres: read migration %s", name)
		}
		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "postgres: apply migration %s", name)
		}
		if _, err := s.pool.Exec(ctx, "INSERT INTO schema_migrations (filename) VALUES ($1)", name); err != nil {
			return eris.Wrapf(err, "postgres: record migration %s", name)
		}
		log.Info("migration applied", zap.String("file", name))
	}
	return nil
}

func (s *PostgresStore) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan migration row")
		}
		applied[name] = true
	}
	return applied, eris.Wrap(rows.Err(), "postgres: iterate migrations")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- People ---

func (s *PostgresStore) GetPerson(ctx context.Context, id string) (*model.Person, error) {
	p, err := scanPgPerson(s.pool.QueryRow(ctx, `SELECT `+personColumns+` FROM people WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get person %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get person %s", id)
	}
	return p, nil
}

func (s *PostgresStore) ListPeople(ctx context.Context) ([]model.Person, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+personColumns+` FROM people ORDER BY created_at, name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list people")
	}
	defer rows.Close()

	people := []model.Person{}
	for rows.Next() {
		p, err := scanPgPerson(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan person")
		}
		people = append(people, *p)
	}
	return people, eris.Wrap(rows.Err(), "postgres: list people iterate")
}

func (s *PostgresStore) CreatePerson(ctx context.Context, p model.Person) (*model.Person, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	pj, err := encodePerson(p)
	if err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO people (id, name, name_key, current_position, position_history, recipients, last_checked, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.Name, nameKey(p.Name), pj.current, pj.history, pj.recipients, p.LastChecked, p.CreatedAt, p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return nil, eris.Wrapf(ErrDuplicate, "postgres: create person %q", p.Name)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert person")
	}
	return &p, nil
}

// UpdatePerson locks the row, merges u (rolling the displaced position into
// history) and writes it back in one transaction.
func (s *PostgresStore) UpdatePerson(ctx context.Context, id string, u model.PersonUpdate) (*model.Person, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: update person: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p, err := scanPgPerson(tx.QueryRow(ctx, `SELECT `+personColumns+` FROM people WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: update person %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load person %s", id)
	}

	p.Apply(u, s.now())
	pj, err := encodePerson(*p)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE people SET name = $1, name_key = $2, current_position = $3, position_history = $4, recipients = $5, last_checked = $6, updated_at = $7 WHERE id = $8`,
		p.Name, nameKey(p.Name), pj.current, pj.history, pj.recipients, p.LastChecked, p.UpdatedAt, id,
	)
	if isUniqueViolation(err) {
		return nil, eris.Wrapf(ErrDuplicate, "postgres: rename person %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update person %s", id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: update person: commit tx")
	}
	return p, nil
}

func (s *PostgresStore) DeletePerson(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM people WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete person %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: delete person %s", id)
	}
	return nil
}

// ImportPeople bulk-inserts people, skipping names that are already tracked.
// It returns the number of people inserted.
func (s *PostgresStore) ImportPeople(ctx context.Context, people []model.Person) (int64, error) {
	people = dedupeByName(people)
	rows := make([][]any, 0, len(people))
	for _, p := range people {
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		pj, err := encodePerson(p)
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{p.ID, p.Name, nameKey(p.Name), pj.current, pj.history, pj.recipients, p.CreatedAt, p.UpdatedAt})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "people",
		Columns:      []string{"id", "name", "name_key", "current_position", "position_history", "recipients", "created_at", "updated_at"},
		ConflictKeys: []string{"name_key"},
		UpdateCols:   []string{},
	}, rows)
	return n, eris.Wrap(err, "postgres: import people")
}

// --- Runs ---

const runColumns = `id, run_trigger, status, started_at, finished_at, duration_seconds, total_checked, changes_detected, error_count, notification_failures, error`

// SaveRun writes the run and its outcomes in one transaction. Outcomes go
// through COPY.
func (s *PostgresStore) SaveRun(ctx context.Context, run *model.RunSummary) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	rows := make([][]any, 0, len(run.Outcomes))
	for i, o := range run.Outcomes {
		data, err := json.Marshal(o)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal outcome")
		}
		rows = append(rows, []any{run.ID, i, o.PersonID, o.PersonName, o.Changed, o.Confidence, string(o.ErrorKind), data})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: save run: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO check_runs (`+runColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID, string(run.Trigger), string(run.Status), run.StartedAt, run.FinishedAt, run.DurationSeconds,
		run.TotalChecked, run.ChangesDetected, run.ErrorCount, run.NotificationFailures, run.Error,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert run %s", run.ID)
	}

	if _, err := db.CopyFrom(ctx, tx, "run_outcomes",
		[]string{"run_id", "ordinal", "person_id", "person_name", "changed", "confidence", "error_kind", "outcome"},
		rows,
	); err != nil {
		return eris.Wrapf(err, "postgres: save outcomes for run %s", run.ID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: save run: commit tx")
}

// LatestRun returns the most recent run with its outcomes, or nil when no
// run has been recorded.
func (s *PostgresStore) LatestRun(ctx context.Context) (*model.RunSummary, error) {
	run, err := scanPgRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM check_runs ORDER BY started_at DESC LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest run")
	}

	rows, err := s.pool.Query(ctx, `SELECT outcome FROM run_outcomes WHERE run_id = $1 ORDER BY ordinal`, run.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load outcomes for run %s", run.ID)
	}
	defer rows.Close()

	run.Outcomes = []model.CheckOutcome{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan outcome")
		}
		var o model.CheckOutcome
		if err := json.Unmarshal(data, &o); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal outcome")
		}
		run.Outcomes = append(run.Outcomes, o)
	}
	return run, eris.Wrap(rows.Err(), "postgres: iterate outcomes")
}

// ListRuns returns run summaries newest first, without outcomes.
func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunSummary, error) {
	query := `SELECT ` + runColumns + ` FROM check_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Trigger != "" {
		query += fmt.Sprintf(` AND run_trigger = $%d`, argIdx)
		args = append(args, string(filter.Trigger))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, argIdx)
	args = append(args, runLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	runs := []model.RunSummary{}
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// --- helpers ---

func scanPgPerson(row pgx.Row) (*model.Person, error) {
	var p model.Person
	var pj personJSON
	if err := row.Scan(&p.ID, &p.Name, &pj.current, &pj.history, &pj.recipients, &p.LastChecked, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if err := pj.decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPgRun(row pgx.Row) (*model.RunSummary, error) {
	var r model.RunSummary
	var trigger, status string
	if err := row.Scan(&r.ID, &trigger, &status, &r.StartedAt, &r.FinishedAt, &r.DurationSeconds,
		&r.TotalChecked, &r.ChangesDetected, &r.ErrorCount, &r.NotificationFailures, &r.Error); err != nil {
		return nil, err
	}
	r.Trigger = model.Trigger(trigger)
	r.Status = model.RunStatus(status)
	return &r, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
