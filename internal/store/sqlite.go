package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/jobcheck/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS people (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	name_key         TEXT NOT NULL UNIQUE,
	current_position TEXT NOT NULL,
	position_history TEXT NOT NULL DEFAULT '[]',
	recipients       TEXT NOT NULL DEFAULT '[]',
	last_checked     DATETIME,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS check_runs (
	id                    TEXT PRIMARY KEY,
	run_trigger           TEXT NOT NULL,
	status                TEXT NOT NULL,
	started_at            DATETIME NOT NULL,
	finished_at           DATETIME NOT NULL,
	duration_seconds      REAL NOT NULL DEFAULT 0,
	total_checked         INTEGER NOT NULL DEFAULT 0,
	changes_detected      INTEGER NOT NULL DEFAULT 0,
	error_count           INTEGER NOT NULL DEFAULT 0,
	notification_failures INTEGER NOT NULL DEFAULT 0,
	error                 TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS run_outcomes (
	run_id      TEXT NOT NULL REFERENCES check_runs(id) ON DELETE CASCADE,
	ordinal     INTEGER NOT NULL,
	person_id   TEXT NOT NULL,
	person_name TEXT NOT NULL,
	changed     INTEGER NOT NULL,
	confidence  INTEGER NOT NULL,
	error_kind  TEXT NOT NULL DEFAULT '',
	outcome     TEXT NOT NULL,
	PRIMARY KEY (run_id, ordinal)
);

CREATE INDEX IF NOT EXISTS idx_check_runs_started_at ON check_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- People ---

func (s *SQLiteStore) GetPerson(ctx context.Context, id string) (*model.Person, error) {
	p, err := scanSQLitePerson(s.db.QueryRowContext(ctx, `SELECT `+personColumns+` FROM people WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get person %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get person %s", id)
	}
	return p, nil
}

func (s *SQLiteStore) ListPeople(ctx context.Context) ([]model.Person, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+personColumns+` FROM people ORDER BY created_at, name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list people")
	}
	defer rows.Close() //nolint:errcheck

	people := []model.Person{}
	for rows.Next() {
		p, err := scanSQLitePerson(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan person")
		}
		people = append(people, *p)
	}
	return people, eris.Wrap(rows.Err(), "sqlite: list people iterate")
}

func (s *SQLiteStore) CreatePerson(ctx context.Context, p model.Person) (*model.Person, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if err := s.insertPerson(ctx, s.db, p, false); err != nil {
		return nil, err
	}
	return &p, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertPerson inserts p. With skipExisting a name clash leaves the stored
// row alone and returns a bare ErrDuplicate.
func (s *SQLiteStore) insertPerson(ctx context.Context, ex execer, p model.Person, skipExisting bool) error {
	pj, err := encodePerson(p)
	if err != nil {
		return err
	}

	query := `INSERT INTO people (id, name, name_key, current_position, position_history, recipients, last_checked, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if skipExisting {
		query += ` ON CONFLICT(name_key) DO NOTHING`
	}
	res, err := ex.ExecContext(ctx, query,
		p.ID, p.Name, nameKey(p.Name), string(pj.current), string(pj.history), string(pj.recipients),
		nullTime(p.LastChecked), p.CreatedAt, p.UpdatedAt,
	)
	if isSQLiteUnique(err) {
		return eris.Wrapf(ErrDuplicate, "sqlite: create person %q", p.Name)
	}
	if err != nil {
		return eris.Wrap(err, "sqlite: insert person")
	}
	if skipExisting {
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrDuplicate
		}
	}
	return nil
}

func (s *SQLiteStore) UpdatePerson(ctx context.Context, id string, u model.PersonUpdate) (*model.Person, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: update person: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	p, err := scanSQLitePerson(tx.QueryRowContext(ctx, `SELECT `+personColumns+` FROM people WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: update person %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load person %s", id)
	}

	p.Apply(u, s.now())
	pj, err := encodePerson(*p)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE people SET name = ?, name_key = ?, current_position = ?, position_history = ?, recipients = ?, last_checked = ?, updated_at = ? WHERE id = ?`,
		p.Name, nameKey(p.Name), string(pj.current), string(pj.history), string(pj.recipients), nullTime(p.LastChecked), p.UpdatedAt, id,
	)
	if isSQLiteUnique(err) {
		return nil, eris.Wrapf(ErrDuplicate, "sqlite: rename person %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update person %s", id)
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: update person: commit tx")
	}
	return p, nil
}

func (s *SQLiteStore) DeletePerson(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM people WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete person %s", id)
	}
	return checkRowsAffected(res, "person", id)
}

// ImportPeople inserts people in one transaction, skipping names that are
// already tracked. It returns the number of people inserted.
func (s *SQLiteStore) ImportPeople(ctx context.Context, people []model.Person) (int64, error) {
	people = dedupeByName(people)
	if len(people) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import people: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	var inserted int64
	for _, p := range people {
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		err := s.insertPerson(ctx, tx, p, true)
		if errors.Is(err, ErrDuplicate) {
			continue
		}
		if err != nil {
			return 0, err
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: import people: commit tx")
	}
	return inserted, nil
}

// --- Runs ---

func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.RunSummary) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: save run: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO check_runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Trigger), string(run.Status), run.StartedAt, run.FinishedAt, run.DurationSeconds,
		run.TotalChecked, run.ChangesDetected, run.ErrorCount, run.NotificationFailures, run.Error,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
	}

	for i, o := range run.Outcomes {
		data, err := json.Marshal(o)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal outcome")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_outcomes (run_id, ordinal, person_id, person_name, changed, confidence, error_kind, outcome)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, o.PersonID, o.PersonName, o.Changed, o.Confidence, string(o.ErrorKind), string(data),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert outcome %d for run %s", i, run.ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: save run: commit tx")
}

func (s *SQLiteStore) LatestRun(ctx context.Context) (*model.RunSummary, error) {
	run, err := scanSQLiteRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM check_runs ORDER BY started_at DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest run")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT outcome FROM run_outcomes WHERE run_id = ? ORDER BY ordinal`, run.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load outcomes for run %s", run.ID)
	}
	defer rows.Close() //nolint:errcheck

	run.Outcomes = []model.CheckOutcome{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan outcome")
		}
		var o model.CheckOutcome
		if err := json.Unmarshal([]byte(data), &o); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal outcome")
		}
		run.Outcomes = append(run.Outcomes, o)
	}
	return run, eris.Wrap(rows.Err(), "sqlite: iterate outcomes")
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunSummary, error) {
	query := `SELECT ` + runColumns + ` FROM check_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Trigger != "" {
		query += ` AND run_trigger = ?`
		args = append(args, string(filter.Trigger))
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, runLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	runs := []model.RunSummary{}
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLitePerson(row scannable) (*model.Person, error) {
	var p model.Person
	var current, history, recipients string
	var lastChecked sql.NullTime
	if err := row.Scan(&p.ID, &p.Name, &current, &history, &recipients, &lastChecked, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if lastChecked.Valid {
		t := lastChecked.Time.UTC()
		p.LastChecked = &t
	}
	pj := personJSON{current: []byte(current), history: []byte(history), recipients: []byte(recipients)}
	if err := pj.decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanSQLiteRun(row scannable) (*model.RunSummary, error) {
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

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func isSQLiteUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
