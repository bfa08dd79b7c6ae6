package table

import (
	"math"
	"strings"

	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/model"
	"go-forecast-pipeline/pkg/utils"
)

// Aggregation operators understood by GroupBy.
const (
	OpSum   = "sum"
	OpMean  = "mean"
	OpMin   = "min"
	OpMax   = "max"
	OpCount = "count"
	OpFirst = "first"
	OpLast  = "last"
)

// ValidOp reports whether op is a known aggregation operator.
func ValidOp(op string) bool {
	switch normalizeOp(op) {
	case OpSum, OpMean, OpMin, OpMax, OpCount, OpFirst, OpLast:
		return true
	}
	return false
}

func normalizeOp(op string) string {
	op = strings.ToLower(strings.TrimSpace(op))
	if op == "avg" || op == "average" {
		return OpMean
	}
	return op
}

type accumulator struct {
	sum      float64
	allInt   bool
	count    int64
	min, max float64
	first    interface{}
	last     interface{}
	seen     bool
}

func (a *accumulator) add(v interface{}) {
	if !a.seen {
		a.first = v
		a.allInt = true
	}
	a.seen = true
	a.last = v
	if v == nil {
		return
	}
	num, ok := utils.ToFloat(v)
	if !ok {
		return
	}
	if !utils.IsInteger(v) {
		a.allInt = false
	}
	if a.count == 0 || num < a.min {
		a.min = num
	}
	if a.count == 0 || num > a.max {
		a.max = num
	}
	a.sum += num
	a.count++
}

func (a *accumulator) result(op string) interface{} {
	switch op {
	case OpSum:
		if a.allInt {
			return int64(a.sum)
		}
		return a.sum
	case OpMean:
		if a.count == 0 {
			return nil
		}
		return a.sum / float64(a.count)
	case OpMin:
		if a.count == 0 {
			return nil
		}
		return a.min
	case OpMax:
		if a.count == 0 {
			return nil
		}
		return a.max
	case OpCount:
		return a.count
	case OpFirst:
		return a.first
	case OpLast:
		return a.last
	}
	return math.NaN()
}

// GroupBy groups rows on keys and reduces each value column with op.
// Columns outside keys and values are dropped. Groups keep the order of
// their first row.
func (t *Table) GroupBy(keys []string, values []string, op string) (*Table, error) {
	op = normalizeOp(op)
	if !ValidOp(op) {
		return nil, errors.Newf("unknown aggregation %q", op)
	}
	for _, c := range append(append([]string{}, keys...), values...) {
		if !t.HasColumn(c) {
			return nil, errors.Newf("group by: column %q not in %s", c, t)
		}
	}

	type group struct {
		key  model.GenericRecord
		accs []*accumulator
	}
	var order []string
	groups := make(map[string]*group)
	for _, r := range t.rows {
		k := rowKey(r, keys)
		g, ok := groups[k]
		if !ok {
			g = &group{key: make(model.GenericRecord, len(keys)), accs: make([]*accumulator, len(values))}
			for _, c := range keys {
				g.key[c] = r[c]
			}
			for i := range values {
				g.accs[i] = &accumulator{}
			}
			groups[k] = g
			order = append(order, k)
		}
		for i, c := range values {
			g.accs[i].add(r[c])
		}
	}

	out := New(append(append([]string{}, keys...), values...))
	for _, k := range order {
		g := groups[k]
		row := make(model.GenericRecord, len(keys)+len(values))
		for c, v := range g.key {
			row[c] = v
		}
		for i, c := range values {
			row[c] = g.accs[i].result(op)
		}
		out.rows = append(out.rows, row)
	}
	return out, nil
}

// Pivot groups rows on index plus the pivot column, reduces value with op,
// then spreads the pivot column into one column per distinct value named
// "<value>_<pivot value>". Missing combinations are filled with fill.
func (t *Table) Pivot(index []string, pivot, value, op string, fill interface{}) (*Table, error) {
	grouped, err := t.GroupBy(append(append([]string{}, index...), pivot), []string{value}, op)
	if err != nil {
		return nil, err
	}
	grouped.Sort(pivot)

	var pivotCols []string
	colFor := make(map[string]string)
	for _, r := range grouped.rows {
		k := cellKey(r[pivot])
		if _, ok := colFor[k]; !ok {
			name := value + "_" + utils.FormatValue(r[pivot])
			colFor[k] = name
			pivotCols = append(pivotCols, name)
		}
	}

	base := grouped.Drop(pivot, value)
	out := New(append(append([]string{}, index...), pivotCols...))
	rows := make(map[string]model.GenericRecord)
	var order []string
	for i, r := range grouped.rows {
		k := rowKey(base.rows[i], index)
		row, ok := rows[k]
		if !ok {
			row = make(model.GenericRecord, len(out.columns))
			for _, c := range index {
				row[c] = r[c]
			}
			for _, c := range pivotCols {
				row[c] = fill
			}
			rows[k] = row
			order = append(order, k)
		}
		row[colFor[cellKey(r[pivot])]] = r[value]
	}
	for _, k := range order {
		out.rows = append(out.rows, rows[k])
	}
	out.Sort(index...)
	return out, nil
}
