// Package table implements a small in-memory relation of nullable cells
// keyed by one or more identifier columns, with outer joins, grouping,
// grouped forward/backward fill and per-row derived columns.
//
// Every row owns its own value slice. Operations that touch disjoint row
// sets may therefore run concurrently; operations that change the column
// set or the row list may not.
package table

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

var (
	ErrMissingColumn   = errors.New("missing column")
	ErrDuplicateColumn = errors.New("duplicate column")
	ErrRowWidth        = errors.New("row width does not match columns")
)

type Table struct {
	columns []string
	index   map[string]int
	keys    []string
	rows    [][]Value
}

// New creates an empty table. It panics on duplicate column names; use
// NewChecked when the names come from input data.
func New(columns ...string) *Table {
	t, err := NewChecked(columns...)
	if err != nil {
		panic(err)
	}
	return t
}

func NewChecked(columns ...string) (*Table, error) {
	t := &Table{index: make(map[string]int, len(columns))}
	for _, c := range columns {
		if _, dup := t.index[c]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateColumn, c)
		}
		t.index[c] = len(t.columns)
		t.columns = append(t.columns, c)
	}
	return t, nil
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string { return slices.Clone(t.columns) }

// Keys returns the identifier columns, if any were set.
func (t *Table) Keys() []string { return slices.Clone(t.keys) }

// SetKeys declares the identifier columns.
func (t *Table) SetKeys(cols ...string) error {
	if err := t.Require(cols...); err != nil {
		return err
	}
	t.keys = slices.Clone(cols)
	return nil
}

func (t *Table) Len() int { return len(t.rows) }

func (t *Table) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Require returns ErrMissingColumn naming the first absent column.
func (t *Table) Require(cols ...string) error {
	for _, c := range cols {
		if !t.Has(c) {
			return fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}
	return nil
}

// Append adds a row given values in column order.
func (t *Table) Append(vals ...Value) error {
	if len(vals) != len(t.columns) {
		return fmt.Errorf("%w: got %d values for %d columns", ErrRowWidth, len(vals), len(t.columns))
	}
	t.rows = append(t.rows, slices.Clone(vals))
	return nil
}

// AppendMap adds a row from a column→value map. Columns not mentioned are
// null; unknown columns are an error.
func (t *Table) AppendMap(m map[string]Value) error {
	row := make([]Value, len(t.columns))
	for c, v := range m {
		i, ok := t.index[c]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
		row[i] = v
	}
	t.rows = append(t.rows, row)
	return nil
}

// Get returns the cell at row i, column col; absent columns read as null.
func (t *Table) Get(i int, col string) Value {
	j, ok := t.index[col]
	if !ok {
		return Null()
	}
	return t.rows[i][j]
}

func (t *Table) Set(i int, col string, v Value) error {
	j, ok := t.index[col]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingColumn, col)
	}
	t.rows[i][j] = v
	return nil
}

// Row returns a read view of row i.
func (t *Table) Row(i int) Row { return Row{t: t, i: i} }

// Record returns row i as a column→value map.
func (t *Table) Record(i int) map[string]Value {
	rec := make(map[string]Value, len(t.columns))
	for j, c := range t.columns {
		rec[c] = t.rows[i][j]
	}
	return rec
}

// AddColumn appends an all-null column. It reports false when the column
// already exists.
func (t *Table) AddColumn(col string) bool {
	if t.Has(col) {
		return false
	}
	t.index[col] = len(t.columns)
	t.columns = append(t.columns, col)
	for i := range t.rows {
		t.rows[i] = append(t.rows[i], Null())
	}
	return true
}

// Derive sets col on every row to fn(row), adding the column if needed.
// Rows are evaluated in order and may read columns derived earlier.
func (t *Table) Derive(col string, fn func(Row) Value) {
	t.AddColumn(col)
	j := t.index[col]
	for i := range t.rows {
		t.rows[i][j] = fn(Row{t: t, i: i})
	}
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	c := &Table{
		columns: slices.Clone(t.columns),
		index:   make(map[string]int, len(t.index)),
		keys:    slices.Clone(t.keys),
		rows:    make([][]Value, len(t.rows)),
	}
	for k, v := range t.index {
		c.index[k] = v
	}
	for i, r := range t.rows {
		c.rows[i] = slices.Clone(r)
	}
	return c
}

// emptyLike returns a table with t's columns and keys and no rows.
func (t *Table) emptyLike() *Table {
	c := New(t.columns...)
	c.keys = slices.Clone(t.keys)
	return c
}

// Subset copies the given rows, in the given order, into a new table.
func (t *Table) Subset(rows []int) *Table {
	c := t.emptyLike()
	c.rows = make([][]Value, 0, len(rows))
	for _, i := range rows {
		c.rows = append(c.rows, slices.Clone(t.rows[i]))
	}
	return c
}

// Filter copies the rows for which keep returns true.
func (t *Table) Filter(keep func(Row) bool) *Table {
	var rows []int
	for i := range t.rows {
		if keep(Row{t: t, i: i}) {
			rows = append(rows, i)
		}
	}
	return t.Subset(rows)
}

// Select projects the table onto cols, in that order.
func (t *Table) Select(cols ...string) (*Table, error) {
	if err := t.Require(cols...); err != nil {
		return nil, err
	}
	out, err := NewChecked(cols...)
	if err != nil {
		return nil, err
	}
	for _, k := range t.keys {
		if !out.Has(k) {
			out.keys = nil
			break
		}
		out.keys = append(out.keys, k)
	}
	out.rows = make([][]Value, len(t.rows))
	for i, r := range t.rows {
		row := make([]Value, len(cols))
		for j, c := range cols {
			row[j] = r[t.index[c]]
		}
		out.rows[i] = row
	}
	return out, nil
}

// SortBy stable-sorts rows by cols; nulls sort last.
func (t *Table) SortBy(cols ...string) error {
	if err := t.Require(cols...); err != nil {
		return err
	}
	idx := make([]int, len(cols))
	for i, c := range cols {
		idx[i] = t.index[c]
	}
	sort.SliceStable(t.rows, func(a, b int) bool {
		for _, j := range idx {
			if c := t.rows[a][j].Compare(t.rows[b][j]); c != 0 {
				return c < 0
			}
		}
		return false
	})
	return nil
}

// DropNull removes, in place, every row with a null in any of cols and
// returns how many were removed.
func (t *Table) DropNull(cols ...string) (int, error) {
	if err := t.Require(cols...); err != nil {
		return 0, err
	}
	before := len(t.rows)
	t.rows = slices.DeleteFunc(t.rows, func(r []Value) bool {
		for _, c := range cols {
			if r[t.index[c]].IsNull() {
				return true
			}
		}
		return false
	})
	return before - len(t.rows), nil
}

// DropDuplicates removes, in place, every row whose values in cols repeat
// an earlier row, keeping the first occurrence.
func (t *Table) DropDuplicates(cols ...string) (int, error) {
	if err := t.Require(cols...); err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(t.rows))
	before := len(t.rows)
	t.rows = slices.DeleteFunc(t.rows, func(r []Value) bool {
		k := t.rowKey(r, cols)
		if _, dup := seen[k]; dup {
			return true
		}
		seen[k] = struct{}{}
		return false
	})
	return before - len(t.rows), nil
}

// Concat stacks tables that share the same columns in the same order.
func Concat(tables ...*Table) (*Table, error) {
	if len(tables) == 0 {
		return New(), nil
	}
	out := tables[0].emptyLike()
	for n, tb := range tables {
		if !slices.Equal(tb.columns, out.columns) {
			return nil, fmt.Errorf("concat table %d: columns %v do not match %v", n, tb.columns, out.columns)
		}
		for _, r := range tb.rows {
			out.rows = append(out.rows, slices.Clone(r))
		}
	}
	return out, nil
}

func (t *Table) rowKey(r []Value, cols []string) string {
	var b []byte
	for _, c := range cols {
		b = append(b, r[t.index[c]].key()...)
		b = append(b, 0x1f)
	}
	return string(b)
}

// Row is a read view of one table row.
type Row struct {
	t *Table
	i int
}

func (r Row) Get(col string) Value { return r.t.Get(r.i, col) }

// Index is the row's position in its table.
func (r Row) Index() int { return r.i }

// Kinds reports the kind of the first non-null value of each column.
// All-null columns report KindNull.
func (t *Table) Kinds() map[string]Kind {
	kinds := make(map[string]Kind, len(t.columns))
	for j, c := range t.columns {
		kinds[c] = KindNull
		for _, r := range t.rows {
			if !r[j].IsNull() {
				kinds[c] = r[j].kind
				break
			}
		}
	}
	return kinds
}
