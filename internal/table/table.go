// Package table holds ColumnTable, a column-oriented in-memory copy of a
// query result.
//
// Every column sequence has exactly Len() entries and index i of every
// sequence belongs to row i. AppendRow is the only way to grow a table, which
// keeps the sequences aligned.
package table

import (
	"fmt"
	"strconv"
)

// ColumnTable maps column names to per-row values, remembering column order.
type ColumnTable struct {
	columns []string
	data    map[string][]any
	rows    int
}

// New creates an empty table with the given columns. Duplicate names are
// made unique by suffixing _2, _3, ... so no column shadows another.
func New(columns []string) *ColumnTable {
	names := uniqueNames(columns)
	t := &ColumnTable{
		columns: names,
		data:    make(map[string][]any, len(names)),
	}
	for _, name := range names {
		t.data[name] = make([]any, 0)
	}
	return t
}

// AppendRow adds one row. values must be in column order.
func (t *ColumnTable) AppendRow(values []any) error {
	if len(values) != len(t.columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.columns))
	}
	for i, name := range t.columns {
		t.data[name] = append(t.data[name], values[i])
	}
	t.rows++
	return nil
}

// Columns returns the column names in result order.
func (t *ColumnTable) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Len returns the number of rows.
func (t *ColumnTable) Len() int { return t.rows }

// Column returns the values of the named column, or false if there is no
// such column. The slice is shared with the table; do not modify it.
func (t *ColumnTable) Column(name string) ([]any, bool) {
	v, ok := t.data[name]
	return v, ok
}

// Value returns the value of column name in row i.
func (t *ColumnTable) Value(name string, i int) (any, bool) {
	col, ok := t.data[name]
	if !ok || i < 0 || i >= len(col) {
		return nil, false
	}
	return col[i], true
}

// Map returns a copy of the name -> values mapping.
func (t *ColumnTable) Map() map[string][]any {
	out := make(map[string][]any, len(t.data))
	for k, v := range t.data {
		cp := make([]any, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// Rows rebuilds the row-major form of the table.
func (t *ColumnTable) Rows() [][]any {
	out := make([][]any, t.rows)
	for i := range out {
		row := make([]any, len(t.columns))
		for j, name := range t.columns {
			row[j] = t.data[name][i]
		}
		out[i] = row
	}
	return out
}

func uniqueNames(columns []string) []string {
	seen := make(map[string]bool, len(columns))
	out := make([]string, len(columns))
	for i, name := range columns {
		candidate := name
		for n := 2; seen[candidate]; n++ {
			candidate = name + "_" + strconv.Itoa(n)
		}
		seen[candidate] = true
		out[i] = candidate
	}
	return out
}
