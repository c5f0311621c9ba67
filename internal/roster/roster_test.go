package roster

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobcheck/internal/model"
)

var importedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeImporter struct {
	got      []model.Person
	inserted int64
	err      error
}

func (f *fakeImporter) ImportPeople(_ context.Context, people []model.Person) (int64, error) {
	f.got = people
	return f.inserted, f.err
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFromRows_HeaderAliases(t *testing.T) {
	b, err := FromRows("test", []string{"Full Name", "Job Title", "Current_Company", "Notification Recipients"}, [][]string{
		{"Jane Doe", "CTO", "Meta", "a@example.com; b@example.com"},
	})
	require.NoError(t, err)
	require.Len(t, b.Entries, 1)
	e := b.Entries[0]
	assert.Equal(t, "Jane Doe", e.Name)
	assert.Equal(t, "Meta", e.Company)
	assert.Equal(t, "CTO", e.Role)
	assert.Equal(t, Recipients{"a@example.com", "b@example.com"}, e.Recipients)
}

func TestFromRows_MissingColumns(t *testing.T) {
	_, err := FromRows("test", []string{"Company"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no name column")

	_, err = FromRows("test", []string{"Name", "Role"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no company column")
}

func TestFromRows_RowProblems(t *testing.T) {
	b, err := FromRows("test", []string{"name", "company", "role"}, [][]string{
		{"Jane Doe", "Meta", ""},
		{"", "Acme", "CFO"},
		{"Jim", "", ""},
		{"", "", ""},
		{"Short"},
	})
	require.NoError(t, err)

	require.Len(t, b.Entries, 1)
	assert.Equal(t, "Jane Doe", b.Entries[0].Name)
	assert.Equal(t, []Problem{
		{Row: 3, Reason: "name is required"},
		{Row: 4, Reason: `company is required for "Jim"`},
		{Row: 6, Reason: `company is required for "Short"`},
	}, b.Problems)
}

func TestBatch_People(t *testing.T) {
	b := &Batch{Entries: []Entry{
		{Name: "Jane", Company: "Meta"},
		{Name: "Jim", Company: "Acme", Role: "CFO", Recipients: Recipients{"jim@example.com"}},
	}}

	people := b.People(importedAt)
	require.Len(t, people, 2)
	assert.Equal(t, model.DefaultRole, people[0].Current.Role)
	assert.Equal(t, "CFO", people[1].Current.Role)
	assert.Equal(t, []string{"jim@example.com"}, people[1].Recipients)
	require.NotNil(t, people[1].Current.StartDate)
	assert.True(t, people[1].Current.StartDate.Equal(importedAt))
	assert.Empty(t, people[0].ID)
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		name string
		want Format
	}{
		{"roster.csv", FormatCSV},
		{"ROSTER.XLSX", FormatXLSX},
		{"people.yaml", FormatYAML},
		{"people.yml", FormatYAML},
		{"/exports/roster.csv?token=abc", FormatCSV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatOf(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := FormatOf("roster.json")
	assert.Error(t, err)
}

func TestLoadFile_Unsupported(t *testing.T) {
	_, err := LoadFile(context.Background(), writeTemp(t, "roster.txt", "name"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(context.Background(), filepath.Join(t.TempDir(), "absent.csv"))
	assert.Error(t, err)
}

func TestImport_Counts(t *testing.T) {
	imp := &fakeImporter{inserted: 1}
	b := &Batch{
		Source:   "roster.csv",
		Entries:  []Entry{{Name: "Jane", Company: "Meta"}, {Name: "Jim", Company: "Acme"}},
		Problems: []Problem{{Row: 4, Reason: "name is required"}},
	}

	rep, err := Import(context.Background(), imp, b, importedAt)
	require.NoError(t, err)
	assert.Equal(t, Report{
		Source:   "roster.csv",
		Read:     3,
		Invalid:  1,
		Inserted: 1,
		Existing: 1,
		Problems: b.Problems,
	}, rep)
	assert.Len(t, imp.got, 2)
}

func TestImport_NothingUsable(t *testing.T) {
	imp := &fakeImporter{}
	rep, err := Import(context.Background(), imp, &Batch{Problems: []Problem{{Row: 2, Reason: "name is required"}}}, importedAt)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Invalid)
	assert.Nil(t, imp.got)
}

func TestImport_StoreError(t *testing.T) {
	imp := &fakeImporter{err: errors.New("db down")}
	_, err := Import(context.Background(), imp, &Batch{Source: "x", Entries: []Entry{{Name: "Jane", Company: "Meta"}}}, importedAt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}
