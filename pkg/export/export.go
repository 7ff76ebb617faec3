package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrNoRows reports a file with no csv rows at all, not even a header.
var ErrNoRows = errors.New("csv is empty")

// Table holds one parsed QuFirewall export: the header row plus every data
// row, all fields as raw strings.
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadFile parses the export at path. A leading UTF-8 byte order mark is
// stripped when present. Records must all have the header's field count.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path) //nolint:gosec // G304: Potential file inclusion via variable.
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(transform.NewReader(f, unicode.UTF8BOM.NewDecoder()))

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	if len(records) == 0 {
		return nil, ErrNoRows
	}

	return &Table{Header: records[0], Rows: records[1:]}, nil
}

// WriteFile serializes the table to path with a UTF-8 byte order mark and
// CRLF record terminators, the convention QuFirewall uses for its own
// exports.
func (t *Table) WriteFile(path string) (err error) {
	f, err := os.Create(path) //nolint:gosec // G304: Potential file inclusion via variable.
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}

	defer func() {
		cerr := f.Close()
		if cerr != nil && err == nil {
			err = fmt.Errorf("close csv: %w", cerr)
		}
	}()

	tw := transform.NewWriter(f, unicode.UTF8BOM.NewEncoder())

	w := csv.NewWriter(tw)
	w.UseCRLF = true

	err = w.Write(t.Header)
	if err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, row := range t.Rows {
		err = w.Write(row)
		if err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	w.Flush()

	err = w.Error()
	if err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}

	err = tw.Close()
	if err != nil {
		return fmt.Errorf("close encoder: %w", err)
	}

	return nil
}

// ColumnIndex returns the position of name in the header.
func (t *Table) ColumnIndex(name string) (int, bool) {
	for i, col := range t.Header {
		if col == name {
			return i, true
		}
	}

	return 0, false
}
