package features

import (
	"context"

	"go.uber.org/zap"

	"go-forecast-pipeline/internal/config"
	"go-forecast-pipeline/internal/datasource"
	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/logger"
	"go-forecast-pipeline/internal/scenario"
	"go-forecast-pipeline/internal/scope"
	"go-forecast-pipeline/internal/table"
)

// IndexSpec declares where the index of a feature table comes from: either
// a seed feature whose rows define the index, or one feature per active
// dimension whose distinct values are crossed.
type IndexSpec struct {
	Feature string
	Data    map[string]Feature
}

// FromFeature seeds the index with the rows of feature id.
func FromFeature(id string) IndexSpec { return IndexSpec{Feature: id} }

// FromData builds the index as the cross product of per-dimension features.
func FromData(byDimension map[string]Feature) IndexSpec { return IndexSpec{Data: byDimension} }

// Engine assembles a feature table for one scenario and context. It is
// configured in steps and must have granularity, sources, features and
// index set before it runs.
type Engine struct {
	scn         *scenario.Scenario
	sctx        scope.Context
	registry    *Registry
	granularity config.Granularity
	columns     map[string][]string
	sources     map[string]*datasource.Source
	features    []Feature
	index       *IndexSpec
	indexNames  []string
	indexTable  *table.Table
	log         *zap.SugaredLogger
}

func NewEngine(scn *scenario.Scenario, sctx scope.Context, reg *Registry, log *zap.SugaredLogger) *Engine {
	return &Engine{
		scn:      scn,
		sctx:     sctx,
		registry: reg,
		sources:  map[string]*datasource.Source{},
		log:      logger.Component(log, "features"),
	}
}

// SetGranularity sets the active levels and the columns kept per source
// after aggregation.
func (e *Engine) SetGranularity(g config.Granularity, columns map[string][]string) {
	e.granularity = g
	e.columns = columns
}

func (e *Engine) SetSources(sources ...*datasource.Source) {
	for _, s := range sources {
		e.sources[s.Name()] = s
	}
}

func (e *Engine) SetFeatures(fs ...Feature) {
	e.features = append([]Feature(nil), fs...)
}

// SetIndex resolves the index columns: for each active dimension, the
// column of the level the indexing source declares.
func (e *Engine) SetIndex(spec IndexSpec) error {
	if e.granularity == nil || len(e.sources) == 0 {
		return errors.Wrap(errors.ErrMissingProperty, "granularity and sources must be set before the index")
	}
	var names []string
	for _, dim := range config.Dimensions {
		if !e.granularity.Active(dim) {
			continue
		}
		var f Feature
		if spec.Feature != "" {
			var ok bool
			if f, ok = e.feature(spec.Feature); !ok {
				return errors.Wrapf(errors.ErrMissingProperty, "index feature %q is not declared", spec.Feature)
			}
		} else {
			var ok bool
			if f, ok = spec.Data[dim]; !ok {
				return errors.Wrapf(errors.ErrMissingProperty, "no index feature for dimension %s", dim)
			}
		}
		src, ok := e.sources[f.Source]
		if !ok {
			return errors.Wrapf(errors.ErrMissingProperty, "data source %q is not declared", f.Source)
		}
		is, ok := src.Level(dim)
		if !ok {
			return errors.Wrapf(errors.ErrNotImplemented,
				"data source %s has no %s level %q", f.Source, dim, e.granularity[dim])
		}
		names = append(names, is.Column)
	}
	e.index = &spec
	e.indexNames = names
	e.indexTable = nil
	return nil
}

// IndexNames returns the index columns of the assembled table.
func (e *Engine) IndexNames() []string {
	return append([]string(nil), e.indexNames...)
}

func (e *Engine) feature(id string) (Feature, bool) {
	for _, f := range e.features {
		if f.ID == id {
			return f, true
		}
	}
	return Feature{}, false
}

func (e *Engine) ready() error {
	switch {
	case e.granularity == nil:
		return errors.Wrap(errors.ErrMissingProperty, "granularity")
	case len(e.sources) == 0:
		return errors.Wrap(errors.ErrMissingProperty, "input data")
	case e.index == nil:
		return errors.Wrap(errors.ErrMissingProperty, "index")
	case len(e.features) == 0:
		return errors.Wrap(errors.ErrMissingProperty, "pipeline features")
	}
	return nil
}

// Index computes the cross product of the distinct index values of every
// per-dimension feature. It is only defined for data-built indexes and is
// computed once.
func (e *Engine) Index(ctx context.Context, sc scope.Scope, trained TrainedState) (*table.Table, error) {
	if e.index == nil || e.index.Feature != "" {
		return nil, errors.Wrap(errors.ErrMissingProperty, "index is not built from data")
	}
	if e.indexTable != nil {
		return e.indexTable.Clone(), nil
	}
	var parts []*table.Table
	for _, dim := range config.Dimensions {
		if !e.granularity.Active(dim) {
			continue
		}
		out, idx, err := e.RunStep(ctx, e.index.Data[dim], sc, trained)
		if err != nil {
			return nil, err
		}
		part, err := out.Select(table.Intersect(e.indexNames, idx)...)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part.Distinct())
	}
	index, err := table.CrossJoin(parts...)
	if err != nil {
		return nil, err
	}
	e.log.Infow("Index built", logger.FieldRows, index.Len(), logger.FieldColumns, index.Columns())
	e.indexTable = index
	return index.Clone(), nil
}

// Run assembles the feature table for scope sc. Trained transformers
// record their state into trained in training and read it elsewhere.
func (e *Engine) Run(ctx context.Context, sc scope.Scope, trained TrainedState) (*table.Table, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var final *table.Table
	seed := e.index.Feature
	if seed != "" {
		f, _ := e.feature(seed)
		out, _, err := e.RunStep(ctx, f, sc, trained)
		if err != nil {
			return nil, err
		}
		final = out
	} else {
		index, err := e.Index(ctx, sc, trained)
		if err != nil {
			return nil, err
		}
		final = index
	}

	for _, f := range e.features {
		if f.ID == seed || !f.AppliesTo(sc) {
			continue
		}
		out, idx, err := e.RunStep(ctx, f, sc, trained)
		if err != nil {
			return nil, err
		}
		on := table.Intersect(e.indexNames, idx)
		before := final.Len()
		if final, err = table.Join(final, out, on, f.how()); err != nil {
			return nil, errors.Wrapf(err, "feature %s", f.ID)
		}
		e.log.Debugw("Feature merged", logger.FieldFeature, f.ID, "on", on,
			"rows_before", before, logger.FieldRows, final.Len())
	}
	rows, cols := final.Shape()
	e.log.Infow("Feature table assembled", logger.FieldScope, string(sc), logger.FieldRows, rows, logger.FieldColumns, cols)
	return final, nil
}

// RunStep produces the table of one feature: load, aggregate, column
// pruning, transform, filter. It returns the table and the source index
// columns it still carries.
func (e *Engine) RunStep(ctx context.Context, f Feature, sc scope.Scope, trained TrainedState) (*table.Table, []string, error) {
	src, ok := e.sources[f.Source]
	if !ok {
		return nil, nil, errors.Wrapf(errors.ErrMissingProperty, "feature %s: data source %q is not declared", f.ID, f.Source)
	}
	t, err := src.Load(ctx, e.scn, e.sctx, sc, f.Load)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "feature %s: load", f.ID)
	}

	op := ""
	if f.Aggregate != nil {
		op = f.Aggregate.Op
	}
	if t, err = src.Aggregate(t, e.sctx, op); err != nil {
		return nil, nil, errors.Wrapf(err, "feature %s: aggregate", f.ID)
	}

	if cols := e.columns[src.Name()]; len(cols) > 0 {
		keep := table.Intersect(src.IndexNames(), t.Columns())
		keep = append(keep, table.Difference(cols, keep)...)
		if t, err = t.Select(keep...); err != nil {
			return nil, nil, errors.Wrapf(err, "feature %s: select columns", f.ID)
		}
	}

	if f.Transform != nil {
		if t, err = e.transform(f, t, src, sc, trained); err != nil {
			return nil, nil, errors.Wrapf(err, "feature %s: transform", f.ID)
		}
	}

	if f.Filter != nil {
		filter, _ := e.registry.filter(f.Filter.Name)
		if t, err = filter(t, f.Filter.Level); err != nil {
			return nil, nil, errors.Wrapf(err, "feature %s: filter %s", f.ID, f.Filter.Name)
		}
	}
	return t, table.Intersect(src.IndexNames(), t.Columns()), nil
}

func (e *Engine) transform(f Feature, t *table.Table, src *datasource.Source, sc scope.Scope, trained TrainedState) (*table.Table, error) {
	if f.Transform.Mode == Parallel {
		var out *table.Table
		for _, st := range f.Transform.Steps {
			tr, _ := e.registry.transformer(st.Name)
			r, err := tr.Apply(t, st.Args)
			if err != nil {
				return nil, errors.Wrapf(err, "transformer %s", st.Name)
			}
			if out == nil {
				out = r
				continue
			}
			on := table.Intersect(src.IndexNames(), out.Columns(), r.Columns())
			if out, err = table.Join(out, r, on, table.Inner); err != nil {
				return nil, errors.Wrapf(err, "transformer %s", st.Name)
			}
		}
		if out == nil {
			return t, nil
		}
		return out, nil
	}

	var err error
	for _, st := range f.Transform.Steps {
		tr, _ := e.registry.transformer(st.Name)
		if !st.Trained {
			if t, err = tr.Apply(t, st.Args); err != nil {
				return nil, errors.Wrapf(err, "transformer %s", st.Name)
			}
			continue
		}
		key := trainedKey(f.ID, st.Name)
		state, ok := trained[key]
		if sc == scope.Training {
			if state, err = tr.Fit(t, st.Args); err != nil {
				return nil, errors.Wrapf(err, "transformer %s: fit", st.Name)
			}
			trained[key] = state
		} else if !ok {
			return nil, errors.Wrapf(errors.ErrMissingTrainedState, "transformer %s", key)
		}
		if t, err = tr.Replay(t, st.Args, state); err != nil {
			return nil, errors.Wrapf(err, "transformer %s", st.Name)
		}
	}
	return t, nil
}
