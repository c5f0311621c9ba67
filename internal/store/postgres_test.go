package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobcheck/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := newPostgresStore(mock)
	s.now = func() time.Time { return t0.Add(24 * time.Hour) }
	return s, mock
}

var personCols = []string{"id", "name", "current_position", "position_history", "recipients", "last_checked", "created_at", "updated_at"}

func personRow(rows *pgxmock.Rows, id, name, current, history string) *pgxmock.Rows {
	return rows.AddRow(id, name, []byte(current), []byte(history), []byte(`["owner@example.com"]`), nil, t0, t0)
}

// --- Migrate ---

func TestPostgresStore_Migrate_AppliesPending(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT pg_advisory_lock\(\$1\)`).WithArgs(migrationLockID).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery(`SELECT filename FROM schema_migrations`).
		WillReturnRows(pgxmock.NewRows([]string{"filename"}).AddRow("001_people.sql"))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS check_runs`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).WithArgs("002_check_runs.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`SELECT pg_advisory_unlock\(\$1\)`).WithArgs(migrationLockID).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// --- People ---

func TestPostgresStore_GetPerson(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, name, current_position, .* FROM people WHERE id = \$1`).
		WithArgs("p1").
		WillReturnRows(personRow(pgxmock.NewRows(personCols), "p1", "Jane Doe",
			`{"company":"Meta","role":"CTO"}`,
			`[{"company":"Google","role":"VP","end_date":"2026-01-01T00:00:00Z"}]`))

	p, err := s.GetPerson(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", p.Name)
	assert.Equal(t, "Meta", p.Current.Company)
	require.Len(t, p.History, 1)
	assert.Equal(t, "Google", p.History[0].Company)
	assert.NotNil(t, p.History[0].EndDate)
	assert.Equal(t, []string{"owner@example.com"}, p.Recipients)
	assert.Nil(t, p.LastChecked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetPerson_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM people WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetPerson(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListPeople(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows(personCols)
	personRow(rows, "p1", "Jane", `{"company":"Meta","role":"CTO"}`, `[]`)
	personRow(rows, "p2", "Jim", `{"company":"Acme","role":"CFO"}`, `[]`)
	mock.ExpectQuery(`FROM people ORDER BY created_at, name`).WillReturnRows(rows)

	people, err := s.ListPeople(context.Background())
	require.NoError(t, err)
	require.Len(t, people, 2)
	assert.Equal(t, "Jim", people[1].Name)
	assert.Equal(t, "CFO", people[1].Current.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreatePerson(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO people \(id, name, name_key, `).
		WithArgs(pgxmock.AnyArg(), "Jane Doe", "jane doe", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), t0, t0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	p, err := s.CreatePerson(context.Background(), model.NewPerson("", "Jane Doe", "Meta", "CTO", nil, t0))
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreatePerson_Duplicate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO people`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := s.CreatePerson(context.Background(), model.NewPerson("p1", "Jane Doe", "Meta", "", nil, t0))
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdatePerson_RollsHistory(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM people WHERE id = \$1 FOR UPDATE`).
		WithArgs("p1").
		WillReturnRows(personRow(pgxmock.NewRows(personCols), "p1", "Jim Hanson",
			`{"company":"Jackknife, Inc","role":"VP of HR"}`, `[]`))
	mock.ExpectExec(`UPDATE people SET name = \$1`).
		WithArgs("Jim Hanson", "jim hanson", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "p1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	next := model.Position{Company: "Realknife, LLC", Role: "Talent Business Partner"}
	p, err := s.UpdatePerson(ctx, "p1", model.PersonUpdate{Current: &next})
	require.NoError(t, err)
	assert.Equal(t, "Realknife, LLC", p.Current.Company)
	require.Len(t, p.History, 1)
	assert.Equal(t, "Jackknife, Inc", p.History[0].Company)
	require.NotNil(t, p.History[0].EndDate)
	assert.True(t, p.History[0].EndDate.Equal(t0.Add(24*time.Hour)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdatePerson_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("missing").WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	now := t0
	_, err := s.UpdatePerson(context.Background(), "missing", model.PersonUpdate{LastChecked: &now})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeletePerson(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM people WHERE id = \$1`).WithArgs("p1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM people WHERE id = \$1`).WithArgs("p1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, s.DeletePerson(context.Background(), "p1"))
	assert.ErrorIs(t, s.DeletePerson(context.Background(), "p1"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ImportPeople_SkipsExisting(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_people"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_people"},
		[]string{"id", "name", "name_key", "current_position", "position_history", "recipients", "created_at", "updated_at"}).
		WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("name_key"\) DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := s.ImportPeople(context.Background(), []model.Person{
		model.NewPerson("", "Jane Doe", "Meta", "CTO", nil, t0),
		model.NewPerson("", "JANE DOE", "Meta", "CTO", nil, t0),
		model.NewPerson("", "Jim Hanson", "Jackknife, Inc", "", nil, t0),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// --- Runs ---

var runCols = []string{"id", "run_trigger", "status", "started_at", "finished_at", "duration_seconds",
	"total_checked", "changes_detected", "error_count", "notification_failures", "error"}

func TestPostgresStore_SaveRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	run := testRun(t0, model.TriggerManual)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO check_runs \(id, run_trigger, status`).
		WithArgs(pgxmock.AnyArg(), "manual", "complete", run.StartedAt, run.FinishedAt, 5.0, 2, 1, 1, 0, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"run_outcomes"},
		[]string{"run_id", "ordinal", "person_id", "person_name", "changed", "confidence", "error_kind", "outcome"}).
		WillReturnResult(2)
	mock.ExpectCommit()

	require.NoError(t, s.SaveRun(context.Background(), run))
	assert.NotEmpty(t, run.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRun_InsertFails(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO check_runs`).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := s.SaveRun(context.Background(), testRun(t0, model.TriggerScheduled))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM check_runs ORDER BY started_at DESC LIMIT 1`).
		WillReturnRows(pgxmock.NewRows(runCols).
			AddRow("r1", "scheduled", "complete", t0, t0.Add(5*time.Second), 5.0, 1, 1, 0, 0, ""))
	mock.ExpectQuery(`SELECT outcome FROM run_outcomes WHERE run_id = \$1 ORDER BY ordinal`).
		WithArgs("r1").
		WillReturnRows(pgxmock.NewRows([]string{"outcome"}).
			AddRow([]byte(`{"person_id":"p1","person_name":"Jane","changed":true,"confidence":60}`)))

	run, err := s.LatestRun(context.Background())
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, model.TriggerScheduled, run.Trigger)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.Len(t, run.Outcomes, 1)
	assert.True(t, run.Outcomes[0].Changed)
	assert.Equal(t, 60, run.Outcomes[0].Confidence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestRun_None(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM check_runs ORDER BY started_at DESC LIMIT 1`).WillReturnError(pgx.ErrNoRows)

	run, err := s.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Nil(t, run)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM check_runs WHERE true AND status = \$1 AND run_trigger = \$2 ORDER BY started_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("failed", "manual", 5, 10).
		WillReturnRows(pgxmock.NewRows(runCols).
			AddRow("r9", "manual", "failed", t0, t0, 0.0, 0, 0, 0, 0, "roster unavailable"))

	runs, err := s.ListRuns(context.Background(), RunFilter{
		Status:  model.RunStatusFailed,
		Trigger: model.TriggerManual,
		Limit:   5,
		Offset:  10,
	})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "roster unavailable", runs[0].Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM check_runs WHERE true ORDER BY started_at DESC LIMIT \$1$`).
		WithArgs(20).
		WillReturnRows(pgxmock.NewRows(runCols))

	runs, err := s.ListRuns(context.Background(), RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
