// Package datasource implements named data sources: where a table comes
// from, how it is cached in a scenario, and how it is reduced to the
// pipeline's granularity.
package datasource

import (
	"bytes"
	"context"
	"os"
	"strconv"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"go-forecast-pipeline/internal/config"
	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/logger"
	"go-forecast-pipeline/internal/model"
	"go-forecast-pipeline/internal/scenario"
	"go-forecast-pipeline/internal/scope"
	"go-forecast-pipeline/internal/table"
)

// Origin runs queries against the store raw data is fetched from.
type Origin interface {
	Query(ctx context.Context, query string) (*table.Table, error)
}

// Spec declares a data source.
type Spec struct {
	Name       string
	Dimensions []Dimension
	// Query is a text/template SQL statement rendered with QueryArgs. A
	// source without query can only be read from the scenario or preset.
	Query string
	// Data presets the table; preset sources never fetch.
	Data *table.Table
}

// Window names the context attributes bounding a load.
type Window struct {
	Start string
	End   string
}

// QueryArgs are the values available to a query template.
type QueryArgs struct {
	Start    string
	End      string
	Stores   []int
	Products []int
}

// Source is a data source bound to the pipeline granularity.
type Source struct {
	spec        Spec
	granularity config.Granularity
	indexNames  []string
	query       *template.Template
	origin      Origin
	log         *zap.SugaredLogger
}

var queryFuncs = template.FuncMap{
	"join": func(values []int) string {
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = strconv.Itoa(v)
		}
		return strings.Join(parts, ",")
	},
}

// New binds spec to the pipeline granularity. Index columns are derived
// once: for each declared dimension, in order, whose granularity is set,
// the column of the selected level.
func New(spec Spec, granularity config.Granularity, origin Origin, log *zap.SugaredLogger) (*Source, error) {
	if spec.Name == "" {
		return nil, errors.New("data source name is empty")
	}
	s := &Source{
		spec:        spec,
		granularity: granularity,
		origin:      origin,
		log:         logger.Component(log, "datasource").With(logger.FieldSource, spec.Name),
	}
	for _, dim := range spec.Dimensions {
		level := granularity[dim.Name]
		if level == "" {
			continue
		}
		is, ok := dim.Levels[level]
		if !ok {
			return nil, errors.Wrapf(errors.ErrNotImplemented,
				"data source %s has no %s level %q", spec.Name, dim.Name, level)
		}
		s.indexNames = append(s.indexNames, is.Column)
	}
	if spec.Query != "" {
		tmpl, err := template.New(spec.Name).Funcs(queryFuncs).Parse(spec.Query)
		if err != nil {
			return nil, errors.Wrapf(err, "data source %s: invalid query template", spec.Name)
		}
		s.query = tmpl
	}
	return s, nil
}

func (s *Source) Name() string { return s.spec.Name }

// IndexNames returns the index columns of the source at the pipeline
// granularity.
func (s *Source) IndexNames() []string {
	out := make([]string, len(s.indexNames))
	copy(out, s.indexNames)
	return out
}

// Preset reports whether the source carries its own data.
func (s *Source) Preset() bool { return s.spec.Data != nil }

// Level returns the index spec of the active level of dim.
func (s *Source) Level(dim string) (IndexSpec, bool) {
	level := s.granularity[dim]
	if level == "" {
		return IndexSpec{}, false
	}
	for _, d := range s.spec.Dimensions {
		if d.Name == dim {
			is, ok := d.Levels[level]
			return is, ok
		}
	}
	return IndexSpec{}, false
}

// RawIndexColumns lists the raw columns of every declared level, active or
// not. They are never treated as feature columns.
func (s *Source) RawIndexColumns() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, d := range s.spec.Dimensions {
		for _, is := range d.Levels {
			c := is.RawColumn()
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// dateColumn is the raw column of the time dimension when it is a date.
func (s *Source) dateColumn() string {
	for _, d := range s.spec.Dimensions {
		if d.Name != config.DimTime {
			continue
		}
		for _, is := range d.Levels {
			if is.IsAgg() {
				return is.InitColumn
			}
		}
	}
	return ""
}

// FetchPath is the cached location of the source's raw table for a scope.
func (s *Source) FetchPath(scn *scenario.Scenario, sc scope.Scope) (string, error) {
	st, err := scope.FetchedStage(sc)
	if err != nil {
		return "", err
	}
	return scn.RelPath(s.spec.Name+".csv", st), nil
}

// NeedsFetch decides whether the raw table must be pulled from the origin:
// when the cached file is missing, when no context was persisted for the
// phase, or in strict mode when the persisted context differs from sctx.
func (s *Source) NeedsFetch(scn *scenario.Scenario, sctx scope.Context, sc scope.Scope, strict bool) (bool, error) {
	dst, err := s.FetchPath(scn, sc)
	if err != nil {
		return false, err
	}
	ctxPath := scn.RelPath(sctx.FileName(), sctx.FileStage())
	if _, err := os.Stat(ctxPath); err != nil {
		return true, nil
	}
	persisted, err := scope.Load(ctxPath)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(dst); err != nil {
		return true, nil
	}
	return strict && !scope.Equal(persisted, sctx), nil
}

// Fetch queries the origin for the scope's window and caches the result in
// the scenario.
func (s *Source) Fetch(ctx context.Context, scn *scenario.Scenario, sctx scope.Context, sc scope.Scope) (*table.Table, error) {
	if s.query == nil || s.origin == nil {
		return nil, errors.Newf("data source %s cannot be fetched: no origin query", s.spec.Name)
	}
	dst, err := s.FetchPath(scn, sc)
	if err != nil {
		return nil, err
	}
	end, err := sctx.Attr(scope.AttrLastTargetDate)
	if err != nil {
		end, _ = sctx.Attr(scope.AttrLastSalesDate)
	}
	args := QueryArgs{
		Start:    sctx.StartDate().Format(config.DateLayout),
		End:      end.Format(config.DateLayout),
		Stores:   sctx.Location().Values,
		Products: sctx.Products().Values,
	}
	var q bytes.Buffer
	if err := s.query.Execute(&q, args); err != nil {
		return nil, errors.Wrapf(err, "data source %s: render query", s.spec.Name)
	}
	t, err := s.origin.Query(ctx, q.String())
	if err != nil {
		return nil, errors.Wrapf(err, "data source %s: fetch", s.spec.Name)
	}
	if err := t.WriteCSV(dst); err != nil {
		return nil, err
	}
	s.log.Infow("Fetched data", logger.FieldScope, string(sc), logger.FieldRows, t.Len(), logger.FieldFile, dst)
	return t, nil
}

// FetchIfNeeded fetches the raw table when NeedsFetch says so and reports
// whether it did.
func (s *Source) FetchIfNeeded(ctx context.Context, scn *scenario.Scenario, sctx scope.Context, sc scope.Scope, strict bool) (bool, error) {
	if s.Preset() {
		return false, nil
	}
	need, err := s.NeedsFetch(scn, sctx, sc, strict)
	if err != nil || !need {
		return false, err
	}
	_, err = s.Fetch(ctx, scn, sctx, sc)
	return err == nil, err
}

// Load returns the source's table for a scope, fetching it if the cache is
// missing, then keeps the rows whose date lies inside window.
func (s *Source) Load(ctx context.Context, scn *scenario.Scenario, sctx scope.Context, sc scope.Scope, window *Window) (*table.Table, error) {
	if s.Preset() {
		return s.spec.Data.Clone(), nil
	}
	need, err := s.NeedsFetch(scn, sctx, sc, false)
	if err != nil {
		return nil, err
	}
	var t *table.Table
	if need {
		if t, err = s.Fetch(ctx, scn, sctx, sc); err != nil {
			return nil, err
		}
	} else {
		dst, err := s.FetchPath(scn, sc)
		if err != nil {
			return nil, err
		}
		if t, err = table.ReadCSV(dst); err != nil {
			return nil, err
		}
		s.log.Debugw("Loaded cached data", logger.FieldScope, string(sc), logger.FieldFile, dst)
	}

	dateCol := s.dateColumn()
	if window == nil || dateCol == "" || !t.HasColumn(dateCol) {
		return t, nil
	}
	start, err := sctx.Attr(window.Start)
	if err != nil {
		return nil, errors.Wrapf(err, "data source %s: window start", s.spec.Name)
	}
	end, err := sctx.Attr(window.End)
	if err != nil {
		return nil, errors.Wrapf(err, "data source %s: window end", s.spec.Name)
	}
	var bad error
	out := t.Filter(func(r model.GenericRecord) bool {
		d, err := AsDate(r[dateCol])
		if err != nil {
			bad = err
			return false
		}
		return !d.Before(start) && !d.After(end)
	})
	if bad != nil {
		return nil, errors.Wrapf(bad, "data source %s: column %s", s.spec.Name, dateCol)
	}
	return out, nil
}

// Aggregate reduces a raw table to the pipeline granularity. Aggregating
// levels replace their raw column by the derived index column, after which
// rows are grouped on the index columns and every feature column is
// reduced with the level's operator, or with op when it is set.
func (s *Source) Aggregate(t *table.Table, sctx scope.Context, op string) (*table.Table, error) {
	features := table.Difference(t.Columns(), s.RawIndexColumns())
	out := t.Clone()
	groupOp := ""
	for _, dim := range config.Dimensions {
		is, ok := s.Level(dim)
		if !ok || !is.IsAgg() {
			if !ok && s.granularity[dim] != "" && s.declares(dim) {
				return nil, errors.Wrapf(errors.ErrNotImplemented,
					"data source %s has no %s level %q", s.spec.Name, dim, s.granularity[dim])
			}
			continue
		}
		if !out.HasColumn(is.InitColumn) {
			return nil, errors.Newf("data source %s: column %s missing for %s", s.spec.Name, is.InitColumn, dim)
		}
		values, err := is.Reducer(out.Column(is.InitColumn), sctx, s.granularity[dim])
		if err != nil {
			return nil, errors.Wrapf(err, "data source %s", s.spec.Name)
		}
		if err := out.SetColumn(is.Column, values); err != nil {
			return nil, err
		}
		out = out.Drop(is.InitColumn)
		groupOp = is.Op
	}
	if groupOp == "" {
		return out, nil
	}
	if op != "" {
		groupOp = op
	}
	features = table.Difference(features, s.indexNames)
	return out.GroupBy(s.indexNames, features, groupOp)
}

func (s *Source) declares(dim string) bool {
	for _, d := range s.spec.Dimensions {
		if d.Name == dim {
			return true
		}
	}
	return false
}
