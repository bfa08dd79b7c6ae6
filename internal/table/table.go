// Package table implements the small in-memory data frame the feature
// engine works on: ordered columns over schema-agnostic rows.
package table

import (
	"fmt"
	"sort"
	"strings"

	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/model"
	"go-forecast-pipeline/pkg/utils"
)

// Table is an ordered set of columns over rows. Missing cells are nil.
type Table struct {
	columns []string
	rows    []model.GenericRecord
}

// New builds a table. Rows are used as given; cells for columns a row does
// not hold read as nil.
func New(columns []string, rows ...model.GenericRecord) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{columns: cols, rows: rows}
}

// FromColumn builds a single-column table.
func FromColumn(name string, values ...interface{}) *Table {
	t := New([]string{name})
	for _, v := range values {
		t.rows = append(t.rows, model.GenericRecord{name: v})
	}
	return t
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Len is the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Shape returns rows and columns.
func (t *Table) Shape() (int, int) { return len(t.rows), len(t.columns) }

// Rows exposes the underlying rows.
func (t *Table) Rows() []model.GenericRecord { return t.rows }

// Value returns the cell at row i, column col.
func (t *Table) Value(i int, col string) interface{} { return t.rows[i][col] }

// HasColumn reports whether col is part of the table.
func (t *Table) HasColumn(col string) bool {
	for _, c := range t.columns {
		if c == col {
			return true
		}
	}
	return false
}

// Column returns the values of col in row order.
func (t *Table) Column(col string) []interface{} {
	out := make([]interface{}, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[col]
	}
	return out
}

// Floats returns the numeric values of col; non-numeric cells read as 0.
func (t *Table) Floats(col string) []float64 {
	out := make([]float64, len(t.rows))
	for i, r := range t.rows {
		out[i] = utils.Numeric(r[col])
	}
	return out
}

// Append adds a row.
func (t *Table) Append(r model.GenericRecord) { t.rows = append(t.rows, r) }

// Clone deep-copies the rows.
func (t *Table) Clone() *Table {
	out := New(t.columns)
	out.rows = make([]model.GenericRecord, len(t.rows))
	for i, r := range t.rows {
		c := make(model.GenericRecord, len(r))
		for k, v := range r {
			c[k] = v
		}
		out.rows[i] = c
	}
	return out
}

// Select keeps the named columns, in the given order.
func (t *Table) Select(cols ...string) (*Table, error) {
	for _, c := range cols {
		if !t.HasColumn(c) {
			return nil, errors.Newf("column %q not in table %v", c, t.columns)
		}
	}
	out := New(cols)
	out.rows = make([]model.GenericRecord, len(t.rows))
	for i, r := range t.rows {
		nr := make(model.GenericRecord, len(cols))
		for _, c := range cols {
			nr[c] = r[c]
		}
		out.rows[i] = nr
	}
	return out, nil
}

// Drop removes the named columns. Unknown names are ignored.
func (t *Table) Drop(cols ...string) *Table {
	drop := toSet(cols)
	keep := make([]string, 0, len(t.columns))
	for _, c := range t.columns {
		if _, ok := drop[c]; !ok {
			keep = append(keep, c)
		}
	}
	out, _ := t.Select(keep...)
	return out
}

// Rename renames columns according to mapping.
func (t *Table) Rename(mapping map[string]string) *Table {
	cols := make([]string, len(t.columns))
	for i, c := range t.columns {
		if n, ok := mapping[c]; ok {
			cols[i] = n
		} else {
			cols[i] = c
		}
	}
	out := New(cols)
	out.rows = make([]model.GenericRecord, len(t.rows))
	for i, r := range t.rows {
		nr := make(model.GenericRecord, len(r))
		for k, v := range r {
			if n, ok := mapping[k]; ok {
				nr[n] = v
			} else {
				nr[k] = v
			}
		}
		out.rows[i] = nr
	}
	return out
}

// SetColumn adds or replaces a column with one value per row.
func (t *Table) SetColumn(col string, values []interface{}) error {
	if len(values) != len(t.rows) {
		return errors.Wrapf(errors.ErrShapeMismatch,
			"column %q has %d values for %d rows", col, len(values), len(t.rows))
	}
	if !t.HasColumn(col) {
		t.columns = append(t.columns, col)
	}
	for i, r := range t.rows {
		r[col] = values[i]
	}
	return nil
}

// Filter keeps the rows for which keep returns true.
func (t *Table) Filter(keep func(model.GenericRecord) bool) *Table {
	out := New(t.columns)
	for _, r := range t.rows {
		if keep(r) {
			out.rows = append(out.rows, r)
		}
	}
	return out
}

// Distinct removes duplicate rows, keeping the first occurrence.
func (t *Table) Distinct() *Table {
	out := New(t.columns)
	seen := make(map[string]struct{}, len(t.rows))
	for _, r := range t.rows {
		k := rowKey(r, t.columns)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out.rows = append(out.rows, r)
	}
	return out
}

// DistinctValues returns the set of rendered values of col.
func (t *Table) DistinctValues(col string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, r := range t.rows {
		out[cellKey(r[col])] = struct{}{}
	}
	return out
}

// Sort orders rows by the given columns, numerically where both cells are
// numbers.
func (t *Table) Sort(cols ...string) {
	sort.SliceStable(t.rows, func(i, j int) bool {
		for _, c := range cols {
			if cmp := compareCells(t.rows[i][c], t.rows[j][c]); cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
}

// HasMissing reports the first column holding a nil cell.
func (t *Table) HasMissing() (string, bool) {
	for _, c := range t.columns {
		for _, r := range t.rows {
			if r[c] == nil {
				return c, true
			}
		}
	}
	return "", false
}

func (t *Table) String() string {
	return fmt.Sprintf("table[%d x %d](%s)", len(t.rows), len(t.columns), strings.Join(t.columns, ","))
}

// Intersect returns the members of a also present in every other list,
// in the order of a.
func Intersect(a []string, others ...[]string) []string {
	sets := make([]map[string]struct{}, len(others))
	for i, o := range others {
		sets[i] = toSet(o)
	}
	out := make([]string, 0, len(a))
	for _, x := range a {
		ok := true
		for _, s := range sets {
			if _, found := s[x]; !found {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, x)
		}
	}
	return out
}

// Difference returns the members of a absent from b, in the order of a.
func Difference(a, b []string) []string {
	bs := toSet(b)
	out := make([]string, 0, len(a))
	for _, x := range a {
		if _, ok := bs[x]; !ok {
			out = append(out, x)
		}
	}
	return out
}

func toSet(xs []string) map[string]struct{} {
	s := make(map[string]struct{}, len(xs))
	for _, x := range xs {
		s[x] = struct{}{}
	}
	return s
}

// cellKey renders a cell so that equal numbers of different Go types map to
// the same key.
func cellKey(v interface{}) string {
	if v == nil {
		return "\x00"
	}
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprint(int64(f))
	}
	return fmt.Sprint(v)
}

func rowKey(r model.GenericRecord, cols []string) string {
	var b strings.Builder
	for i, c := range cols {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(cellKey(r[c]))
	}
	return b.String()
}

func compareCells(a, b interface{}) int {
	fa, okA := utils.ToFloat(a)
	fb, okB := utils.ToFloat(b)
	if okA && okB {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(cellKey(a), cellKey(b))
}
