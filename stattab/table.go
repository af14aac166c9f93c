// Package stattab provides the tabular data model exchanged between
// the parser, the shaper pipeline and the render sink.
//
// A Table has ordered columns and insertion-ordered rows. Statistic
// columns hold numeric values, categorical columns hold strings, and
// every row covers every column, using an explicit missing marker
// where a source file did not provide a value. Tables serialize to CSV
// (see csv.go), which is the sole interchange format between pipeline
// stages.
package stattab

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// SDSuffix is appended to a statistic column name to form the name of
// its uncertainty companion column.
const SDSuffix = ".sd"

// SDName returns the name of the uncertainty companion of col.
func SDName(col string) string { return col + SDSuffix }

// IsSD reports whether col is an uncertainty companion column.
func IsSD(col string) bool { return strings.HasSuffix(col, SDSuffix) }

// BaseName returns the statistic column col accompanies, or col
// itself when col is not a companion column.
func BaseName(col string) string { return strings.TrimSuffix(col, SDSuffix) }

type valueKind uint8

const (
	missingValue valueKind = iota
	numValue
	strValue
)

// A Value is one table cell: numeric, categorical or missing.
// The zero Value is missing.
type Value struct {
	num  float64
	str  string
	kind valueKind
}

// Num returns a numeric Value.
func Num(v float64) Value { return Value{num: v, kind: numValue} }

// Str returns a categorical Value.
func Str(s string) Value { return Value{str: s, kind: strValue} }

// Missing returns the explicit missing marker.
func Missing() Value { return Value{} }

// IsMissing reports whether v is the missing marker.
func (v Value) IsMissing() bool { return v.kind == missingValue }

// Float returns the numeric value of v and whether v is numeric.
func (v Value) Float() (float64, bool) { return v.num, v.kind == numValue }

// Text returns the canonical string form of v. Numeric values format
// with the shortest representation that round-trips; missing values
// format as "NaN", matching the CSV encoding.
func (v Value) Text() string {
	switch v.kind {
	case numValue:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case strValue:
		return v.str
	}
	return "NaN"
}

// A Table is an ordered-column, insertion-ordered-row dataset.
//
// Rows are stored column-aligned: row i holds exactly len(Cols())
// cells in column order. Mutating operations preserve the invariant
// that every row covers every column.
type Table struct {
	cols   []string
	colPos map[string]int
	rows   [][]Value

	// order records a fixed categorical ordering per column,
	// carried through copies and merges for the render sink.
	order map[string][]string
}

// New constructs an empty table with the given columns.
func New(cols ...string) *Table {
	t := &Table{colPos: make(map[string]int)}
	for _, c := range cols {
		t.mustAddCol(c)
	}
	return t
}

func (t *Table) mustAddCol(c string) {
	if _, dup := t.colPos[c]; dup {
		panic(fmt.Sprintf("stattab: duplicate column %q", c))
	}
	t.colPos[c] = len(t.cols)
	t.cols = append(t.cols, c)
}

// Cols returns the column names in order. The caller must not modify
// the returned slice.
func (t *Table) Cols() []string { return t.cols }

// HasCol reports whether the table declares column c.
func (t *Table) HasCol(c string) bool {
	_, ok := t.colPos[c]
	return ok
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return len(t.rows) }

// Value returns the cell at row i, column col. Unknown columns return
// the missing marker and false.
func (t *Table) Value(i int, col string) (Value, bool) {
	pos, ok := t.colPos[col]
	if !ok {
		return Missing(), false
	}
	return t.rows[i][pos], true
}

// AddCols extends the column set. Existing rows receive the missing
// marker for the new columns. Columns already present are ignored.
func (t *Table) AddCols(cols ...string) {
	for _, c := range cols {
		if t.HasCol(c) {
			continue
		}
		t.mustAddCol(c)
		for i := range t.rows {
			t.rows[i] = append(t.rows[i], Missing())
		}
	}
}

// AppendRow appends one row from a column-to-value mapping. Columns
// absent from cells get the missing marker; keys naming columns the
// table does not declare extend the column set first.
func (t *Table) AppendRow(cells map[string]Value) {
	for _, c := range sortedKeys(cells) {
		if !t.HasCol(c) {
			t.AddCols(c)
		}
	}
	row := make([]Value, len(t.cols))
	for c, v := range cells {
		row[t.colPos[c]] = v
	}
	t.rows = append(t.rows, row)
}

// appendAligned appends a pre-aligned row. The caller guarantees
// len(row) == len(t.cols).
func (t *Table) appendAligned(row []Value) {
	t.rows = append(t.rows, row)
}

// Row returns row i as a column-to-value mapping.
func (t *Table) Row(i int) map[string]Value {
	m := make(map[string]Value, len(t.cols))
	for pos, c := range t.cols {
		m[c] = t.rows[i][pos]
	}
	return m
}

// SetValue replaces the cell at row i, column col. It panics on an
// unknown column; shapers check preconditions before touching data.
func (t *Table) SetValue(i int, col string, v Value) {
	pos, ok := t.colPos[col]
	if !ok {
		panic(fmt.Sprintf("stattab: unknown column %q", col))
	}
	t.rows[i][pos] = v
}

// Clone returns a deep copy of t.
func (t *Table) Clone() *Table {
	t2 := New(t.cols...)
	t2.rows = make([][]Value, len(t.rows))
	for i, r := range t.rows {
		t2.rows[i] = append([]Value(nil), r...)
	}
	for c, ord := range t.order {
		t2.SetCategoryOrder(c, ord)
	}
	return t2
}

// Project returns a new table with exactly the named columns, in the
// given order, preserving row order. All named columns must exist.
func (t *Table) Project(cols []string) (*Table, error) {
	pos := make([]int, len(cols))
	for i, c := range cols {
		p, ok := t.colPos[c]
		if !ok {
			return nil, fmt.Errorf("stattab: project: unknown column %q", c)
		}
		pos[i] = p
	}
	t2 := New(cols...)
	for _, r := range t.rows {
		row := make([]Value, len(cols))
		for i, p := range pos {
			row[i] = r[p]
		}
		t2.appendAligned(row)
	}
	for _, c := range cols {
		if ord, ok := t.CategoryOrder(c); ok {
			t2.SetCategoryOrder(c, ord)
		}
	}
	return t2, nil
}

// Key returns the row key of row i over the key columns: the "\x1f"
// joined canonical text of the key cells. Key columns the table does
// not declare contribute the missing marker, so keys remain comparable
// across tables with differing column sets.
func (t *Table) Key(i int, keyCols []string) string {
	parts := make([]string, len(keyCols))
	for j, c := range keyCols {
		v, _ := t.Value(i, c)
		parts[j] = v.Text()
	}
	return strings.Join(parts, "\x1f")
}

// SortByKey stable-sorts rows by their key over keyCols. Categorical
// key columns with a declared category order sort by that order;
// everything else sorts by canonical text with numeric-aware
// comparison per segment.
func (t *Table) SortByKey(keyCols []string) {
	sort.SliceStable(t.rows, func(a, b int) bool {
		for _, c := range keyCols {
			va, _ := t.Value(a, c)
			vb, _ := t.Value(b, c)
			if cmp := t.compareCell(c, va, vb); cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
}

func (t *Table) compareCell(col string, a, b Value) int {
	if ord, ok := t.CategoryOrder(col); ok {
		ia, ib := indexOf(ord, a.Text()), indexOf(ord, b.Text())
		if ia >= 0 && ib >= 0 {
			return ia - ib
		}
	}
	fa, aNum := a.Float()
	fb, bNum := b.Float()
	if aNum && bNum {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(a.Text(), b.Text())
}

// SetCategoryOrder declares a fixed ordering for a categorical column.
func (t *Table) SetCategoryOrder(col string, order []string) {
	if t.order == nil {
		t.order = make(map[string][]string)
	}
	t.order[col] = append([]string(nil), order...)
}

// CategoryOrder returns the declared ordering for col, if any.
func (t *Table) CategoryOrder(col string) ([]string, bool) {
	ord, ok := t.order[col]
	return ord, ok
}

// Merge returns the column union of t and u, with rows aligned by
// their key over keyCols. Cells present in both inputs for the same
// key and column take u's value; keys present in only one input keep
// missing markers for the other side's columns. Row order is the key
// order of t followed by u's unmatched keys, which keeps merges
// deterministic regardless of the order the inputs were produced in.
func Merge(t, u *Table, keyCols []string) *Table {
	out := New(t.cols...)
	out.AddCols(u.cols...)

	rowIx := make(map[string]int)
	for i := range t.rows {
		cells := t.Row(i)
		key := t.Key(i, keyCols)
		row := make([]Value, len(out.cols))
		for pos, c := range out.cols {
			if v, ok := cells[c]; ok {
				row[pos] = v
			}
		}
		rowIx[key] = len(out.rows)
		out.appendAligned(row)
	}
	for i := range u.rows {
		cells := u.Row(i)
		key := u.Key(i, keyCols)
		if at, ok := rowIx[key]; ok {
			for c, v := range cells {
				if !v.IsMissing() {
					out.rows[at][out.colPos[c]] = v
				}
			}
			continue
		}
		row := make([]Value, len(out.cols))
		for pos, c := range out.cols {
			if v, ok := cells[c]; ok {
				row[pos] = v
			}
		}
		rowIx[key] = len(out.rows)
		out.appendAligned(row)
	}

	for c, ord := range t.order {
		out.SetCategoryOrder(c, ord)
	}
	for c, ord := range u.order {
		out.SetCategoryOrder(c, ord)
	}
	return out
}

// Equals reports whether t and u have the same columns, the same
// number of rows, and cell-wise equal values. Numeric cells compare
// within tol; a numeric cell and a categorical cell compare equal when
// their canonical texts match, so a table survives a CSV round trip
// even though the CSV carries no type information.
func (t *Table) Equals(u *Table, tol float64) bool {
	if len(t.cols) != len(u.cols) || len(t.rows) != len(u.rows) {
		return false
	}
	for i, c := range t.cols {
		if u.cols[i] != c {
			return false
		}
	}
	for i := range t.rows {
		for pos := range t.cols {
			a, b := t.rows[i][pos], u.rows[i][pos]
			if a.IsMissing() != b.IsMissing() {
				return false
			}
			fa, aNum := a.Float()
			fb, bNum := b.Float()
			if aNum && bNum {
				d := fa - fb
				if d < -tol || d > tol {
					return false
				}
				continue
			}
			if a.Text() != b.Text() {
				return false
			}
		}
	}
	return true
}

func sortedKeys(m map[string]Value) []string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}

func indexOf(ss []string, s string) int {
	for i, have := range ss {
		if have == s {
			return i
		}
	}
	return -1
}
