package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrMissingColumns reports a pre-existing file lacking required columns.
// The file is assumed hand-authored and must not be silently reshaped.
var ErrMissingColumns = errors.New("player table is missing required columns")

// ErrNoHeader reports a file that exists but has no header line
var ErrNoHeader = errors.New("player table has no header")

// Table is the in-memory player table: an insertion-ordered list of records
// with a uuid index over the keyable rows. Row order from the backing file is
// preserved; new players are appended.
type Table struct {
	headers     []string
	rows        []*Record
	index       map[string]*Record
	missingUUID int
}

// NewTable returns an empty table with the baseline header set
func NewTable() *Table {
	return &Table{
		headers: append([]string(nil), BaselineHeaders...),
		index:   make(map[string]*Record),
	}
}

// Load reads the player table from path. A missing file is created with the
// baseline header and an empty table is returned. Missing required columns
// are fatal; missing optional columns upgrade the header in memory.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			t := NewTable()
			if err := t.Save(path); err != nil {
				return nil, fmt.Errorf("failed to create player table %s: %w", path, err)
			}
			return t, nil
		}
		return nil, fmt.Errorf("failed to open player table %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // tolerate ragged rows, backfill below

	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: %s", ErrNoHeader, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var missing []string
	for _, col := range RequiredColumns {
		if !contains(header, col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	headers := append([]string(nil), header...)
	for _, col := range OptionalColumns {
		if !contains(headers, col) {
			headers = append(headers, col)
		}
	}

	t := &Table{
		headers: headers,
		index:   make(map[string]*Record),
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row of %s: %w", path, err)
		}

		rec := newRecord()
		for i, col := range header {
			if i < len(row) {
				rec.fields[col] = row[i]
			}
		}
		// Every record carries every current column
		for _, col := range t.headers {
			if _, ok := rec.fields[col]; !ok {
				rec.fields[col] = ""
			}
		}

		t.rows = append(t.rows, rec)
		if uuid := rec.UUID(); uuid != "" {
			t.index[uuid] = rec
		} else {
			rec.SetStatus(StatusSkippedMissingUUID)
			t.missingUUID++
		}
	}

	return t, nil
}

// Save overwrites path with the full table: header line first, then one line
// per record in insertion order. Record fields not in the header are dropped.
func (t *Table) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create player table %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(t.headers); err != nil {
		f.Close()
		return fmt.Errorf("failed to write header of %s: %w", path, err)
	}

	line := make([]string, len(t.headers))
	for _, rec := range t.rows {
		for i, col := range t.headers {
			line[i] = rec.fields[col]
		}
		if err := w.Write(line); err != nil {
			f.Close()
			return fmt.Errorf("failed to write row of %s: %w", path, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("failed to flush player table %s: %w", path, err)
	}
	return f.Close()
}

// Get returns the record for a uuid, if present
func (t *Table) Get(uuid string) (*Record, bool) {
	rec, ok := t.index[uuid]
	return rec, ok
}

// Append creates a new record for uuid with every current column empty and
// adds it at the end of the table.
func (t *Table) Append(uuid string) *Record {
	rec := newRecord()
	for _, col := range t.headers {
		rec.fields[col] = ""
	}
	rec.fields[ColUUID] = uuid
	t.rows = append(t.rows, rec)
	t.index[uuid] = rec
	return rec
}

// Headers returns the current ordered column list
func (t *Table) Headers() []string {
	return t.headers
}

// Records returns all rows in insertion order, including unkeyed ones
func (t *Table) Records() []*Record {
	return t.rows
}

// Len returns the total row count, including rows without a uuid
func (t *Table) Len() int {
	return len(t.rows)
}

// ValidCount returns the number of rows keyed by uuid
func (t *Table) ValidCount() int {
	return len(t.index)
}

// MissingUUIDCount returns the number of rows retained without a uuid
func (t *Table) MissingUUIDCount() int {
	return t.missingUUID
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
