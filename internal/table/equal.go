package table

import (
	"sort"
	"strings"

	"go-forecast-pipeline/internal/errors"
)

// SetEqual compares two tables as sets of rows: column sets must match and
// the symmetric difference of their distinct rows must be empty. Row order
// and duplicates are ignored.
func SetEqual(a, b *Table) error {
	ca, cb := a.Columns(), b.Columns()
	sort.Strings(ca)
	sort.Strings(cb)
	if strings.Join(ca, ",") != strings.Join(cb, ",") {
		return errors.Newf("columns differ: %v vs %v", ca, cb)
	}

	left := make(map[string]struct{}, a.Len())
	for _, r := range a.rows {
		left[rowKey(r, ca)] = struct{}{}
	}
	right := make(map[string]struct{}, b.Len())
	for _, r := range b.rows {
		right[rowKey(r, ca)] = struct{}{}
	}

	diff := 0
	for k := range left {
		if _, ok := right[k]; !ok {
			diff++
		}
	}
	for k := range right {
		if _, ok := left[k]; !ok {
			diff++
		}
	}
	if diff > 0 {
		return errors.Newf("%d rows differ", diff)
	}
	return nil
}
