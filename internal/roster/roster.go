// Package roster reads tracked-person rosters from CSV, XLSX, YAML, remote
// files and Notion, and imports them into the store.
package roster

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobcheck/internal/model"
)

// Entry is one roster row.
type Entry struct {
	Name       string     `yaml:"name"`
	Company    string     `yaml:"company"`
	Role       string     `yaml:"role"`
	Recipients Recipients `yaml:"recipients"`
}

// Recipients is a list of notification addresses.
type Recipients []string

// Problem describes a row that could not be used.
type Problem struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// Batch holds the usable entries of one source and the rows rejected from it.
type Batch struct {
	Source   string
	Entries  []Entry
	Problems []Problem
}

// add validates e and appends it, or records why it was rejected.
func (b *Batch) add(row int, e Entry) {
	e.Name = strings.TrimSpace(e.Name)
	e.Company = strings.TrimSpace(e.Company)
	e.Role = strings.TrimSpace(e.Role)
	e.Recipients = splitRecipients(e.Recipients)

	switch {
	case e.Name == "" && e.Company == "" && e.Role == "":
		return
	case e.Name == "":
		b.Problems = append(b.Problems, Problem{Row: row, Reason: "name is required"})
	case e.Company == "":
		b.Problems = append(b.Problems, Problem{Row: row, Reason: fmt.Sprintf("company is required for %q", e.Name)})
	default:
		b.Entries = append(b.Entries, e)
	}
}

// People converts the entries into new persons starting at now.
func (b *Batch) People(now time.Time) []model.Person {
	people := make([]model.Person, 0, len(b.Entries))
	for _, e := range b.Entries {
		people = append(people, model.NewPerson("", e.Name, e.Company, e.Role, e.Recipients, now))
	}
	return people
}

// column aliases, compared after normalizeHeader.
var columnAliases = map[string][]string{
	"name":       {"name", "full name", "person", "person name"},
	"company":    {"company", "current company", "organization", "employer"},
	"role":       {"role", "title", "job title", "position", "current role"},
	"recipients": {"recipients", "notification recipients", "notify", "emails", "email recipients"},
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer("_", " ", "-", " ").Replace(h)
	return strings.Join(strings.Fields(h), " ")
}

// columnIndex maps each known field to its column in header.
func columnIndex(header []string) map[string]int {
	idx := make(map[string]int)
	for i, h := range header {
		norm := normalizeHeader(h)
		for field, aliases := range columnAliases {
			if _, seen := idx[field]; seen {
				continue
			}
			for _, a := range aliases {
				if norm == a {
					idx[field] = i
				}
			}
		}
	}
	return idx
}

// FromRows builds a batch from a header row and data rows. Row numbers in
// problems are 1-based and count the header.
func FromRows(source string, header []string, rows [][]string) (*Batch, error) {
	idx := columnIndex(header)
	if _, ok := idx["name"]; !ok {
		return nil, eris.Errorf("roster: %s: no name column in header %v", source, header)
	}
	if _, ok := idx["company"]; !ok {
		return nil, eris.Errorf("roster: %s: no company column in header %v", source, header)
	}

	cell := func(row []string, field string) string {
		i, ok := idx[field]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	b := &Batch{Source: source}
	for i, row := range rows {
		b.add(i+2, Entry{
			Name:       cell(row, "name"),
			Company:    cell(row, "company"),
			Role:       cell(row, "role"),
			Recipients: Recipients{cell(row, "recipients")},
		})
	}
	return b, nil
}

// splitRecipients flattens comma, semicolon and whitespace separated lists.
func splitRecipients(in []string) Recipients {
	var out Recipients
	for _, entry := range in {
		for _, addr := range strings.FieldsFunc(entry, func(r rune) bool {
			return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n'
		}) {
			out = append(out, addr)
		}
	}
	return out
}

// Format identifies a roster file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatYAML Format = "yaml"
)

// FormatOf infers the format from a file name or URL path.
func FormatOf(name string) (Format, error) {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", eris.Errorf("roster: unsupported file type %q (want .csv, .xlsx, .yaml)", filepath.Ext(name))
	}
}

// Parse reads data in the given format.
func Parse(ctx context.Context, source string, format Format, data []byte) (*Batch, error) {
	switch format {
	case FormatCSV:
		return ParseCSV(ctx, source, strings.NewReader(string(data)))
	case FormatXLSX:
		return ParseXLSX(source, data, "")
	case FormatYAML:
		return ParseYAML(source, data)
	default:
		return nil, eris.Errorf("roster: unknown format %q", format)
	}
}

// LoadFile reads a local roster file.
func LoadFile(ctx context.Context, path string) (*Batch, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "roster: read %s", path)
	}
	return Parse(ctx, path, format, data)
}

// Importer bulk-inserts people, skipping names already tracked.
type Importer interface {
	ImportPeople(ctx context.Context, people []model.Person) (int64, error)
}

// Report summarizes one import.
type Report struct {
	Source   string    `json:"source"`
	Read     int       `json:"read"`
	Invalid  int       `json:"invalid"`
	Inserted int       `json:"inserted"`
	Existing int       `json:"existing"`
	Problems []Problem `json:"problems,omitempty"`
}

// Import inserts the batch's entries. Entries whose name is already tracked
// are counted as existing and left untouched.
func Import(ctx context.Context, imp Importer, b *Batch, now time.Time) (Report, error) {
	rep := Report{
		Source:   b.Source,
		Read:     len(b.Entries) + len(b.Problems),
		Invalid:  len(b.Problems),
		Problems: b.Problems,
	}
	if len(b.Entries) == 0 {
		return rep, nil
	}

	n, err := imp.ImportPeople(ctx, b.People(now))
	if err != nil {
		return rep, eris.Wrapf(err, "roster: import %s", b.Source)
	}
	rep.Inserted = int(n)
	rep.Existing = len(b.Entries) - rep.Inserted

	zap.L().Info("roster imported",
		zap.String("component", "roster"),
		zap.String("source", b.Source),
		zap.Int("read", rep.Read),
		zap.Int("inserted", rep.Inserted),
		zap.Int("existing", rep.Existing),
		zap.Int("invalid", rep.Invalid),
	)
	return rep, nil
}
