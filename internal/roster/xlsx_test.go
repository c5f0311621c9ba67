package roster

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) []byte {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestParseXLSX(t *testing.T) {
	data := createTestXLSX(t, map[string][][]string{
		"People": {
			{"Name", "Company", "Title"},
			{"Jane Doe", "Meta", "CTO"},
			{"Jim Hanson", "Jackknife, Inc", "VP of HR"},
		},
	})

	b, err := ParseXLSX("roster.xlsx", data, "")
	require.NoError(t, err)
	require.Len(t, b.Entries, 2)
	assert.Equal(t, "CTO", b.Entries[0].Role)
	assert.Equal(t, "Jackknife, Inc", b.Entries[1].Company)
}

func TestParseXLSX_NamedSheet(t *testing.T) {
	data := createTestXLSX(t, map[string][][]string{
		"Roster": {{"Name", "Company"}, {"Jane", "Meta"}},
	})

	b, err := ParseXLSX("roster.xlsx", data, "Roster")
	require.NoError(t, err)
	assert.Len(t, b.Entries, 1)

	_, err = ParseXLSX("roster.xlsx", data, "Missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "Missing" not found`)
}

func TestParseXLSX_NotAWorkbook(t *testing.T) {
	_, err := ParseXLSX("bad.xlsx", []byte("not a zip"), "")
	assert.Error(t, err)
}

func TestLoadFile_XLSX(t *testing.T) {
	data := createTestXLSX(t, map[string][][]string{
		"Sheet1": {{"name", "company", "recipients"}, {"Jane", "Meta", "ops@example.com"}},
	})
	path := filepath.Join(t.TempDir(), "roster.xlsx")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	b, err := LoadFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, b.Entries, 1)
	assert.Equal(t, Recipients{"ops@example.com"}, b.Entries[0].Recipients)
}
