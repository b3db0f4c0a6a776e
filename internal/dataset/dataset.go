// Package dataset holds the in-memory table assembled from the parts of a report.
package dataset

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"
)

// maxLineSize bounds a single TSV row; visit rows with long parsed-params columns can
// exceed bufio's 64 KiB default.
const maxLineSize = 16 << 20

// Dataset is a table of string cells with named columns. Rows keep the order they were
// appended in; duplicates are kept.
type Dataset struct {
	Columns []string
	Rows    [][]string
}

// New creates an empty Dataset with the given columns.
func New(columns []string) *Dataset {
	return &Dataset{Columns: slices.Clone(columns)}
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// Append adds the rows of other after the rows of d. Both must have identical columns.
func (d *Dataset) Append(other *Dataset) error {
	if other == nil {
		return nil
	}
	if !slices.Equal(d.Columns, other.Columns) {
		return fmt.Errorf("column mismatch: have %v, appending %v", d.Columns, other.Columns)
	}
	d.Rows = append(d.Rows, other.Rows...)
	return nil
}

// Concat joins datasets in order. All must share the columns given.
func Concat(columns []string, parts ...*Dataset) (*Dataset, error) {
	out := New(columns)
	for i, p := range parts {
		if err := out.Append(p); err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}
	}
	return out, nil
}

// ReadTSV parses a Logs API part: a header row followed by tab separated rows. Tabs and
// newlines inside values arrive backslash-escaped, so every physical line is one row.
// When columns is non-empty the header must match it exactly.
func ReadTSV(r io.Reader, columns []string) (*Dataset, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var ds *Dataset
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSuffix(sc.Text(), "\r")
		if ds == nil {
			header := strings.Split(text, "\t")
			if len(columns) > 0 && !slices.Equal(header, columns) {
				return nil, fmt.Errorf("unexpected header %v, requested %v", header, columns)
			}
			ds = New(header)
			continue
		}
		if text == "" {
			continue
		}
		row := strings.Split(text, "\t")
		if len(row) != len(ds.Columns) {
			return nil, fmt.Errorf("line %d: %d values for %d columns", line, len(row), len(ds.Columns))
		}
		ds.Rows = append(ds.Rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if ds == nil {
		return New(columns), nil
	}
	return ds, nil
}

// WriteTSV writes d in the same format ReadTSV accepts.
func (d *Dataset) WriteTSV(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(d.Columns, "\t") + "\n"); err != nil {
		return err
	}
	for _, row := range d.Rows {
		if _, err := bw.WriteString(strings.Join(row, "\t") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
