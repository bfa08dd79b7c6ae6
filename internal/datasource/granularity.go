package datasource

import (
	"time"

	"go-forecast-pipeline/internal/config"
	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/scope"
	"go-forecast-pipeline/pkg/utils"
)

// Reducer derives the values of an index column from a raw column.
type Reducer func(values []interface{}, sctx scope.Context, level string) ([]interface{}, error)

// IndexSpec describes one granularity level of a data source. A plain
// mapping exposes Column as is; an aggregating level computes Column from
// InitColumn with Reducer and regroups the table with Op.
type IndexSpec struct {
	Column     string
	InitColumn string
	Reducer    Reducer
	Op         string
}

// Map is a level read directly from column.
func Map(column string) IndexSpec {
	return IndexSpec{Column: column}
}

// Agg is a level computed from initColumn and regrouped with op.
func Agg(reducer Reducer, op, initColumn, column string) IndexSpec {
	return IndexSpec{Column: column, InitColumn: initColumn, Reducer: reducer, Op: op}
}

// IsAgg reports whether the level requires aggregation.
func (s IndexSpec) IsAgg() bool { return s.Reducer != nil }

// RawColumn is the column the level is read from in fetched data.
func (s IndexSpec) RawColumn() string {
	if s.IsAgg() {
		return s.InitColumn
	}
	return s.Column
}

// Dimension lists the levels a data source implements for one granularity
// dimension.
type Dimension struct {
	Name   string
	Levels map[string]IndexSpec
}

// PeriodIndex maps calendar dates onto 1-based periods counted from the
// context's information horizon: days since the horizon plus one at day
// level, whole weeks since the horizon plus one at week level.
func PeriodIndex(values []interface{}, sctx scope.Context, level string) ([]interface{}, error) {
	horizon := sctx.InformationHorizon()
	out := make([]interface{}, len(values))
	for i, v := range values {
		d, err := AsDate(v)
		if err != nil {
			return nil, err
		}
		delta := int64(d.Sub(horizon).Hours() / 24)
		switch level {
		case "day":
			out[i] = delta + 1
		case "week":
			out[i] = floorDiv(delta, 7) + 1
		default:
			return nil, errors.Wrapf(errors.ErrNotImplemented, "time granularity %q", level)
		}
	}
	return out, nil
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// AsDate reads a date cell.
func AsDate(v interface{}) (time.Time, error) {
	switch d := v.(type) {
	case time.Time:
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), nil
	case string:
		if len(d) > len(config.DateLayout) {
			d = d[:len(config.DateLayout)]
		}
		t, err := time.Parse(config.DateLayout, d)
		if err != nil {
			return time.Time{}, errors.Wrapf(err, "invalid date %q", d)
		}
		return t, nil
	}
	return time.Time{}, errors.Newf("invalid date %q", utils.FormatValue(v))
}
