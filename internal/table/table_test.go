package table

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/model"
)

func rows(cols []string, values ...[]interface{}) *Table {
	t := New(cols)
	for _, v := range values {
		r := make(model.GenericRecord, len(cols))
		for i, c := range cols {
			r[c] = v[i]
		}
		t.Append(r)
	}
	return t
}

func TestJoinInner(t *testing.T) {
	left := rows([]string{"id", "l"}, []interface{}{int64(1), "a"}, []interface{}{int64(2), "b"})
	right := rows([]string{"id", "r"}, []interface{}{int64(2), "x"}, []interface{}{int64(3), "y"})

	out, err := Join(left, right, []string{"id"}, Inner)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "l", "r"}, out.Columns())
	require.Equal(t, 1, out.Len())
	assert.Equal(t, model.GenericRecord{"id": int64(2), "l": "b", "r": "x"}, out.Rows()[0])
}

func TestJoinLeftKeepsUnmatched(t *testing.T) {
	left := rows([]string{"id", "l"}, []interface{}{int64(1), "a"}, []interface{}{int64(2), "b"})
	right := rows([]string{"id", "r"}, []interface{}{int64(2), "x"})

	out, err := Join(left, right, []string{"id"}, Left)
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
	assert.Nil(t, out.Value(0, "r"))
	assert.Equal(t, "x", out.Value(1, "r"))
}

func TestJoinMixedNumericKeys(t *testing.T) {
	left := rows([]string{"id"}, []interface{}{int64(1)})
	right := rows([]string{"id", "v"}, []interface{}{float64(1), "z"})

	out, err := Join(left, right, []string{"id"}, Inner)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Len())
}

func TestJoinCollidingColumns(t *testing.T) {
	left := rows([]string{"id", "v"}, []interface{}{int64(1), "l"})
	right := rows([]string{"id", "v"}, []interface{}{int64(1), "r"})

	out, err := Join(left, right, []string{"id"}, Inner)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "v", "v_y"}, out.Columns())
}

func TestJoinMissingKey(t *testing.T) {
	left := rows([]string{"id"})
	right := rows([]string{"other"})
	_, err := Join(left, right, []string{"id"}, Inner)
	assert.True(t, errors.Is(err, errors.ErrShapeMismatch))

	_, err = Join(left, left, nil, Inner)
	assert.True(t, errors.Is(err, errors.ErrShapeMismatch))
}

func TestCrossJoin(t *testing.T) {
	products := FromColumn("product_id", int64(1), int64(2))
	stores := FromColumn("store_id", int64(10))
	weeks := FromColumn("week_id", int64(1), int64(2), int64(3))

	out, err := CrossJoin(products, stores, weeks)
	require.NoError(t, err)
	assert.Equal(t, []string{"product_id", "store_id", "week_id"}, out.Columns())
	assert.Equal(t, 6, out.Len())
	assert.Equal(t, out.Len(), out.Distinct().Len())

	_, err = CrossJoin(products, products)
	assert.Error(t, err)
}

func TestGroupBySum(t *testing.T) {
	in := rows([]string{"product_id", "week_id", "qty", "label"},
		[]interface{}{int64(1), int64(1), int64(3), "a"},
		[]interface{}{int64(1), int64(1), int64(2), "b"},
		[]interface{}{int64(1), int64(2), int64(5), "c"},
	)
	out, err := in.GroupBy([]string{"product_id", "week_id"}, []string{"qty"}, OpSum)
	require.NoError(t, err)
	assert.Equal(t, []string{"product_id", "week_id", "qty"}, out.Columns())
	require.Equal(t, 2, out.Len())
	assert.Equal(t, int64(5), out.Value(0, "qty"))
	assert.Equal(t, int64(5), out.Value(1, "qty"))

	mean, err := in.GroupBy([]string{"product_id"}, []string{"qty"}, "avg")
	require.NoError(t, err)
	assert.InDelta(t, 10.0/3, mean.Value(0, "qty"), 1e-9)

	_, err = in.GroupBy([]string{"product_id"}, []string{"qty"}, "median")
	assert.Error(t, err)
}

func TestPivot(t *testing.T) {
	in := rows([]string{"product_id", "week_id", "qty"},
		[]interface{}{int64(2), int64(1), int64(4)},
		[]interface{}{int64(1), int64(2), int64(5)},
		[]interface{}{int64(1), int64(1), int64(3)},
	)
	out, err := in.Pivot([]string{"product_id"}, "week_id", "qty", OpSum, int64(0))
	require.NoError(t, err)
	assert.Equal(t, []string{"product_id", "qty_1", "qty_2"}, out.Columns())
	require.Equal(t, 2, out.Len())
	assert.Equal(t, model.GenericRecord{"product_id": int64(1), "qty_1": int64(3), "qty_2": int64(5)}, out.Rows()[0])
	assert.Equal(t, model.GenericRecord{"product_id": int64(2), "qty_1": int64(4), "qty_2": int64(0)}, out.Rows()[1])
}

func TestSetEqual(t *testing.T) {
	a := rows([]string{"x", "y"}, []interface{}{int64(1), "a"}, []interface{}{int64(2), "b"})
	b := rows([]string{"y", "x"}, []interface{}{"b", int64(2)}, []interface{}{"a", int64(1)}, []interface{}{"a", int64(1)})
	assert.NoError(t, SetEqual(a, b))

	c := rows([]string{"x", "y"}, []interface{}{int64(1), "a"}, []interface{}{int64(3), "b"})
	assert.Error(t, SetEqual(a, c))

	d := rows([]string{"x"}, []interface{}{int64(1)})
	assert.Error(t, SetEqual(a, d))
}

func TestCSVRoundTrip(t *testing.T) {
	in := rows([]string{"product_id", "category", "price", "missing"},
		[]interface{}{int64(1), "shoes", 9.5, nil},
		[]interface{}{int64(2), "hats", 12.0, nil},
	)
	path := filepath.Join(t.TempDir(), "nested", "products.csv")
	require.NoError(t, in.WriteCSV(path))

	out, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, in.Columns(), out.Columns())
	assert.NoError(t, SetEqual(in, out))
	assert.Equal(t, int64(12), out.Value(1, "price"))
}

func TestDecodeEmpty(t *testing.T) {
	out, err := Decode(bytes.NewBufferString(""))
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
}

func TestSelectDropRename(t *testing.T) {
	in := rows([]string{"a", "b", "c"}, []interface{}{1, 2, 3})

	sel, err := in.Select("c", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, sel.Columns())

	_, err = in.Select("z")
	assert.Error(t, err)

	assert.Equal(t, []string{"a", "c"}, in.Drop("b", "zz").Columns())

	ren := in.Rename(map[string]string{"b": "bb"})
	assert.Equal(t, []string{"a", "bb", "c"}, ren.Columns())
	assert.Equal(t, 2, ren.Value(0, "bb"))
}

func TestIntersectDifference(t *testing.T) {
	assert.Equal(t, []string{"b", "c"}, Intersect([]string{"a", "b", "c"}, []string{"c", "b"}))
	assert.Equal(t, []string{"b"}, Intersect([]string{"a", "b", "c"}, []string{"c", "b"}, []string{"b"}))
	assert.Equal(t, []string{"a"}, Difference([]string{"a", "b"}, []string{"b"}))
}
