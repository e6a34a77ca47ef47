package frame

import (
	"fmt"

	"github.com/ecmwf/odc-go/errs"
)

// Table is the columnar input to the encoder: an ordered set of named,
// equally-long columns. Integer columns use format.MissingInteger for
// missing entries, float columns use NaN (or the canonical missing double),
// string columns use the empty string.
type Table struct {
	columns []tableColumn
	byName  map[string]int
	rows    int
}

type tableColumn struct {
	name    string
	ints    []int64
	reals   []float64
	strings []string
}

func (c *tableColumn) length() int {
	switch {
	case c.ints != nil:
		return len(c.ints)
	case c.reals != nil:
		return len(c.reals)
	default:
		return len(c.strings)
	}
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{byName: make(map[string]int)}
}

// NumRows returns the shared length of the table's columns.
func (t *Table) NumRows() int { return t.rows }

// NumColumns returns the number of columns added so far.
func (t *Table) NumColumns() int { return len(t.columns) }

// ColumnNames returns the column names in insertion order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.name
	}

	return names
}

func (t *Table) add(col tableColumn) error {
	if _, dup := t.byName[col.name]; dup {
		return fmt.Errorf("%w: %q", errs.ErrDuplicateColumn, col.name)
	}
	if len(t.columns) > 0 && col.length() != t.rows {
		return fmt.Errorf("%w: column %q has %d rows, table has %d",
			errs.ErrColumnLengthMismatch, col.name, col.length(), t.rows)
	}

	t.byName[col.name] = len(t.columns)
	t.columns = append(t.columns, col)
	t.rows = col.length()

	return nil
}

// AddInts appends a 64-bit integer column.
func (t *Table) AddInts(name string, values []int64) error {
	if values == nil {
		values = []int64{}
	}

	return t.add(tableColumn{name: name, ints: values})
}

// AddReals appends a 64-bit float column.
func (t *Table) AddReals(name string, values []float64) error {
	if values == nil {
		values = []float64{}
	}

	return t.add(tableColumn{name: name, reals: values})
}

// AddStrings appends a string column.
func (t *Table) AddStrings(name string, values []string) error {
	if values == nil {
		values = []string{}
	}

	return t.add(tableColumn{name: name, strings: values})
}

// slice returns a view of the table restricted to rows [from, to).
func (t *Table) slice(from, to int) *Table {
	out := &Table{byName: t.byName, rows: to - from}
	out.columns = make([]tableColumn, len(t.columns))
	for i, c := range t.columns {
		sub := tableColumn{name: c.name}
		switch {
		case c.ints != nil:
			sub.ints = c.ints[from:to]
		case c.reals != nil:
			sub.reals = c.reals[from:to]
		default:
			sub.strings = c.strings[from:to]
		}
		out.columns[i] = sub
	}

	return out
}
