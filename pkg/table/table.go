// Package table provides the in-memory tables produced by aggregation and
// consumed by attachment formats.
//
// A [Table] has an ordered list of uniquely named columns and rows of
// [value.Value]. Missing cells are null. Tables only ever grow columns;
// [Concat] merges tables by the union of their columns.
package table

import (
	"errors"
	"fmt"
	"slices"

	"github.com/calvinalkan/shelf/pkg/value"
)

var (
	// ErrDuplicateColumn reports a column name used twice.
	ErrDuplicateColumn = errors.New("duplicate column")
	// ErrRowWidth reports a positional row whose width differs from the table.
	ErrRowWidth = errors.New("row width mismatch")
	// ErrNoColumn reports a lookup of a column the table does not have.
	ErrNoColumn = errors.New("no such column")
)

// Table is a column-ordered set of rows. The zero value is an empty table.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]value.Value
}

// New returns an empty table with the given columns.
// Panics if a column name repeats; use [NewChecked] for untrusted input.
func New(columns ...string) *Table {
	t, err := NewChecked(columns...)
	if err != nil {
		panic(err)
	}

	return t
}

// NewChecked is like [New] but returns [ErrDuplicateColumn] instead of panicking.
func NewChecked(columns ...string) (*Table, error) {
	t := &Table{}

	for _, c := range columns {
		if _, ok := t.index[c]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, c)
		}

		t.addColumn(c)
	}

	return t, nil
}

// FromRecords builds a table from maps. Columns named in order come first,
// then any remaining keys in the order they are first seen (sorted within
// one record for determinism).
func FromRecords(order []string, records ...map[string]value.Value) *Table {
	t := &Table{}
	for _, c := range order {
		t.AddColumn(c)
	}

	for _, rec := range records {
		t.AppendRecord(rec)
	}

	return t
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	return slices.Clone(t.columns)
}

// HasColumn reports whether the table has the named column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]

	return ok
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Width returns the number of columns.
func (t *Table) Width() int {
	return len(t.columns)
}

// AddColumn appends a column filled with nulls and returns its position.
// If the column exists, its existing position is returned.
func (t *Table) AddColumn(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}

	return t.addColumn(name)
}

func (t *Table) addColumn(name string) int {
	if t.index == nil {
		t.index = make(map[string]int)
	}

	t.columns = append(t.columns, name)
	t.index[name] = len(t.columns) - 1

	for i := range t.rows {
		t.rows[i] = append(t.rows[i], value.Null())
	}

	return len(t.columns) - 1
}

// AppendRow appends a positional row. The row must have one value per column.
func (t *Table) AppendRow(row ...value.Value) error {
	if len(row) != len(t.columns) {
		return fmt.Errorf("%w: got %d values for %d columns", ErrRowWidth, len(row), len(t.columns))
	}

	t.rows = append(t.rows, slices.Clone(row))

	return nil
}

// AppendRecord appends a row from a map, adding unseen columns (sorted by
// name) as needed. Columns absent from rec are null.
func (t *Table) AppendRecord(rec map[string]value.Value) {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		if _, ok := t.index[k]; !ok {
			keys = append(keys, k)
		}
	}

	slices.Sort(keys)

	for _, k := range keys {
		t.addColumn(k)
	}

	row := make([]value.Value, len(t.columns))
	for k, v := range rec {
		row[t.index[k]] = v
	}

	t.rows = append(t.rows, row)
}

// Row returns a copy of row i. Panics if i is out of range.
func (t *Table) Row(i int) []value.Value {
	return slices.Clone(t.rows[i])
}

// Record returns row i as a map. Null cells are included.
func (t *Table) Record(i int) map[string]value.Value {
	out := make(map[string]value.Value, len(t.columns))
	for j, c := range t.columns {
		out[c] = t.rows[i][j]
	}

	return out
}

// Get returns the cell at row i in the named column.
func (t *Table) Get(i int, column string) (value.Value, bool) {
	j, ok := t.index[column]
	if !ok || i < 0 || i >= len(t.rows) {
		return value.Value{}, false
	}

	return t.rows[i][j], true
}

// Column returns a copy of all values in the named column.
func (t *Table) Column(name string) ([]value.Value, error) {
	j, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoColumn, name)
	}

	out := make([]value.Value, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[j]
	}

	return out, nil
}

// RenameColumn renames a column in place.
func (t *Table) RenameColumn(from, to string) error {
	j, ok := t.index[from]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoColumn, from)
	}

	if from == to {
		return nil
	}

	if _, exists := t.index[to]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateColumn, to)
	}

	delete(t.index, from)
	t.columns[j] = to
	t.index[to] = j

	return nil
}

// WithPrefix returns a new table whose first columns hold the given
// constant values on every row, followed by the columns of t.
// Fails with [ErrDuplicateColumn] if a prefix column already exists in t.
func (t *Table) WithPrefix(columns []string, values []value.Value) (*Table, error) {
	if len(columns) != len(values) {
		return nil, fmt.Errorf("%w: %d prefix columns, %d values", ErrRowWidth, len(columns), len(values))
	}

	out, err := NewChecked(append(slices.Clone(columns), t.columns...)...)
	if err != nil {
		return nil, err
	}

	out.rows = make([][]value.Value, len(t.rows))
	for i, row := range t.rows {
		merged := make([]value.Value, 0, len(columns)+len(row))
		merged = append(merged, values...)
		merged = append(merged, row...)
		out.rows[i] = merged
	}

	return out, nil
}

// Equal reports whether both tables have the same columns in the same
// order and equal rows.
func (t *Table) Equal(o *Table) bool {
	if t == nil || o == nil {
		return t == o
	}

	if !slices.Equal(t.columns, o.columns) {
		return false
	}

	return slices.EqualFunc(t.rows, o.rows, func(a, b []value.Value) bool {
		return slices.EqualFunc(a, b, value.Value.Equal)
	})
}

// Concat merges tables row-wise in argument order. The result has the union
// of all columns in first-seen order; cells a source table lacks are null.
// Nil tables are skipped.
func Concat(tables ...*Table) *Table {
	out := &Table{}

	for _, src := range tables {
		if src == nil {
			continue
		}

		positions := make([]int, len(src.columns))
		for j, c := range src.columns {
			positions[j] = out.AddColumn(c)
		}

		for _, row := range src.rows {
			merged := make([]value.Value, len(out.columns))
			for j, v := range row {
				merged[positions[j]] = v
			}

			out.rows = append(out.rows, merged)
		}
	}

	return out
}
