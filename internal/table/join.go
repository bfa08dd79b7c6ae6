package table

import (
	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/model"
)

// JoinHow selects the join semantics.
type JoinHow string

const (
	Inner JoinHow = "inner"
	Left  JoinHow = "left"
)

// suffix appended to right-hand columns that collide with left-hand ones.
const rightSuffix = "_y"

// Join merges right into left on the key columns. Output rows keep the
// order of left; right columns follow left columns. With Left, unmatched
// left rows are kept with nil right cells.
func Join(left, right *Table, on []string, how JoinHow) (*Table, error) {
	if len(on) == 0 {
		return nil, errors.Wrapf(errors.ErrShapeMismatch,
			"join of %s and %s has no key columns", left, right)
	}
	for _, k := range on {
		if !left.HasColumn(k) || !right.HasColumn(k) {
			return nil, errors.Wrapf(errors.ErrShapeMismatch,
				"join key %q missing: left %s, right %s", k, left, right)
		}
	}
	if how == "" {
		how = Inner
	}
	if how != Inner && how != Left {
		return nil, errors.Newf("unsupported join %q", how)
	}

	keys := toSet(on)
	cols := left.Columns()
	rename := make(map[string]string)
	for _, c := range right.columns {
		if _, isKey := keys[c]; isKey {
			continue
		}
		name := c
		if left.HasColumn(c) {
			name = c + rightSuffix
		}
		rename[c] = name
		cols = append(cols, name)
	}

	index := make(map[string][]model.GenericRecord, len(right.rows))
	for _, r := range right.rows {
		k := rowKey(r, on)
		index[k] = append(index[k], r)
	}

	out := New(cols)
	for _, l := range left.rows {
		matches := index[rowKey(l, on)]
		if len(matches) == 0 {
			if how == Left {
				out.rows = append(out.rows, merge(l, nil, rename))
			}
			continue
		}
		for _, r := range matches {
			out.rows = append(out.rows, merge(l, r, rename))
		}
	}
	return out, nil
}

func merge(l, r model.GenericRecord, rename map[string]string) model.GenericRecord {
	row := make(model.GenericRecord, len(l)+len(rename))
	for k, v := range l {
		row[k] = v
	}
	for src, dst := range rename {
		if r == nil {
			row[dst] = nil
			continue
		}
		row[dst] = r[src]
	}
	return row
}

// CrossJoin returns the cartesian product of the tables, columns in
// argument order.
func CrossJoin(tables ...*Table) (*Table, error) {
	if len(tables) == 0 {
		return New(nil), nil
	}
	out := tables[0].Clone()
	for _, t := range tables[1:] {
		for _, c := range t.columns {
			if out.HasColumn(c) {
				return nil, errors.Newf("cross join: column %q appears twice", c)
			}
		}
		next := New(append(out.Columns(), t.columns...))
		for _, l := range out.rows {
			for _, r := range t.rows {
				row := make(model.GenericRecord, len(l)+len(r))
				for k, v := range l {
					row[k] = v
				}
				for _, c := range t.columns {
					row[c] = r[c]
				}
				next.rows = append(next.rows, row)
			}
		}
		out = next
	}
	return out, nil
}

// Concat stacks tables with identical column sets.
func Concat(tables ...*Table) (*Table, error) {
	if len(tables) == 0 {
		return New(nil), nil
	}
	out := New(tables[0].columns)
	want := toSet(tables[0].columns)
	for _, t := range tables {
		if len(t.columns) != len(want) || len(Intersect(t.columns, tables[0].columns)) != len(want) {
			return nil, errors.Wrapf(errors.ErrShapeMismatch,
				"concat of %s and %s", tables[0], t)
		}
		out.rows = append(out.rows, t.rows...)
	}
	return out, nil
}
