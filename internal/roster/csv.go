package roster

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// ParseCSV reads a roster CSV with a header row. Lines starting with # are
// comments; rows may have fewer fields than the header.
func ParseCSV(ctx context.Context, source string, r io.Reader) (*Batch, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var header []string
	var rows [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "roster: csv: context cancelled")
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "roster: csv: read %s", source)
		}
		for i, field := range record {
			record[i] = strings.TrimSpace(field)
		}

		if header == nil {
			header = stripBOM(record)
			continue
		}
		rows = append(rows, record)
	}

	if header == nil {
		return &Batch{Source: source}, nil
	}
	return FromRows(source, header, rows)
}

// stripBOM removes a UTF-8 byte order mark left on the first header cell by
// spreadsheet exports.
func stripBOM(header []string) []string {
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return header
}
