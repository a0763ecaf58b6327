// Package rowset holds tabular query results with a stable column order.
package rowset

import (
	"sort"
)

// Row is a single result row keyed by column name.
type Row map[string]any

// Set is an ordered result set. Columns fixes the display order of every row.
type Set struct {
	Columns []string
	Rows    []Row
}

// Field is one column/value pair of a row, in column order.
type Field struct {
	Column string
	Value  any
}

// New builds a set from rows. When columns is empty they are taken from the first row in
// lexical order.
func New(columns []string, rows []Row) *Set {
	if len(columns) == 0 && len(rows) > 0 {
		columns = sortedKeys(rows[0])
	}
	if rows == nil {
		rows = []Row{}
	}
	return &Set{Columns: columns, Rows: rows}
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Rows)
}

// FirstRow returns the first row as ordered fields, or nil when the set is empty.
func (s *Set) FirstRow() []Field {
	if s.Len() == 0 {
		return nil
	}
	row := s.Rows[0]
	fields := make([]Field, 0, len(s.Columns))
	for _, col := range s.Columns {
		fields = append(fields, Field{Column: col, Value: row[col]})
	}
	return fields
}

// Scalars returns the first row's values keyed by column, or nil when the set is empty.
func (s *Set) Scalars() map[string]any {
	if s.Len() == 0 {
		return nil
	}
	out := make(map[string]any, len(s.Columns))
	for _, f := range s.FirstRow() {
		out[f.Column] = f.Value
	}
	return out
}

// Normalize makes every value in the set JSON-safe in place and returns the set.
func (s *Set) Normalize() *Set {
	if s == nil {
		return nil
	}
	for i, row := range s.Rows {
		out := make(Row, len(row))
		for k, v := range row {
			out[k] = Normalize(v)
		}
		s.Rows[i] = out
	}
	return s
}

// IsPlaceholder reports whether the set carries no real data: no rows, or only rows whose
// every cell is empty, null, "None" or "nan".
func (s *Set) IsPlaceholder() bool {
	if s.Len() == 0 {
		return true
	}
	for _, row := range s.Rows {
		for _, col := range s.Columns {
			if !isPlaceholderCell(FormatValue(row[col])) {
				return false
			}
		}
	}
	return true
}

func sortedKeys(row Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
