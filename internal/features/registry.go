package features

import (
	"sort"
	"sync"

	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/model"
	"go-forecast-pipeline/internal/table"
	"go-forecast-pipeline/pkg/utils"
)

// Args are the keyword arguments of a transformer step.
type Args map[string]interface{}

// String returns the string argument key, or def.
func (a Args) String(key, def string) string {
	if v, ok := a[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Strings returns a list argument; a single string is a one-element list.
func (a Args) Strings(key string) []string {
	switch v := a[key].(type) {
	case []string:
		return v
	case string:
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, x := range v {
			out = append(out, utils.FormatValue(x))
		}
		return out
	}
	return nil
}

// State is the fitted state of a trained transformer.
type State map[string][]string

// TrainedState holds the fitted state of every trained step of a run,
// keyed by feature id and transformer name.
type TrainedState map[string]State

func trainedKey(featureID, step string) string { return featureID + "/" + step }

// Transformer is a named table transformation. Trainable transformers fit
// a State in training and replay it in every other scope.
type Transformer struct {
	Apply  func(t *table.Table, args Args) (*table.Table, error)
	Fit    func(t *table.Table, args Args) (State, error)
	Replay func(t *table.Table, args Args, st State) (*table.Table, error)
}

// Trainable reports whether the transformer can be fitted.
func (tr Transformer) Trainable() bool { return tr.Fit != nil && tr.Replay != nil }

// FilterFunc drops rows according to a threshold.
type FilterFunc func(t *table.Table, level float64) (*table.Table, error)

// Registry resolves transformer and filter names.
type Registry struct {
	mu           sync.RWMutex
	transformers map[string]Transformer
	filters      map[string]FilterFunc
}

// NewRegistry returns a registry holding the built-in transformers.
func NewRegistry() *Registry {
	r := &Registry{
		transformers: map[string]Transformer{},
		filters:      map[string]FilterFunc{},
	}
	r.RegisterTransformer("encode", Transformer{Fit: fitEncoder, Replay: replayEncoder})
	r.RegisterTransformer("manage_nan", Transformer{Apply: manageNaN})
	r.RegisterTransformer("pivot", Transformer{Apply: pivot})
	r.RegisterTransformer("agg", Transformer{Apply: aggValue})
	r.RegisterTransformer("rename", Transformer{Apply: rename})
	return r
}

func (r *Registry) RegisterTransformer(name string, tr Transformer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transformers[name] = tr
}

func (r *Registry) RegisterFilter(name string, f FilterFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters[name] = f
}

func (r *Registry) transformer(name string) (Transformer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tr, ok := r.transformers[name]
	return tr, ok
}

func (r *Registry) filter(name string) (FilterFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.filters[name]
	return f, ok
}

// fitEncoder records the categories of every textual column, or of the
// columns listed in "columns".
func fitEncoder(t *table.Table, args Args) (State, error) {
	cols := args.Strings("columns")
	if len(cols) == 0 {
		for _, c := range t.Columns() {
			for _, r := range t.Rows() {
				if _, ok := r[c].(string); ok {
					cols = append(cols, c)
					break
				}
			}
		}
	}
	st := State{}
	for _, c := range cols {
		if !t.HasColumn(c) {
			return nil, errors.Newf("encode: column %q not in %s", c, t)
		}
		seen := map[string]struct{}{}
		for _, v := range t.Column(c) {
			if v == nil {
				continue
			}
			seen[utils.FormatValue(v)] = struct{}{}
		}
		cats := make([]string, 0, len(seen))
		for k := range seen {
			cats = append(cats, k)
		}
		sort.Strings(cats)
		st[c] = cats
	}
	return st, nil
}

// replayEncoder one-hot encodes the fitted columns. Categories unseen at
// fit time encode as all zeros, so training and prediction tables share
// the same columns.
func replayEncoder(t *table.Table, _ Args, st State) (*table.Table, error) {
	out := t.Clone()
	cols := make([]string, 0, len(st))
	for c := range st {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	for _, c := range cols {
		if !out.HasColumn(c) {
			return nil, errors.Wrapf(errors.ErrShapeMismatch, "encode: column %q not in %s", c, t)
		}
		values := out.Column(c)
		for _, cat := range st[c] {
			dummy := make([]interface{}, len(values))
			for i, v := range values {
				if v != nil && utils.FormatValue(v) == cat {
					dummy[i] = int64(1)
				} else {
					dummy[i] = int64(0)
				}
			}
			if err := out.SetColumn(c+"_"+cat, dummy); err != nil {
				return nil, err
			}
		}
		out = out.Drop(c)
	}
	return out, nil
}

// manageNaN applies the missing-value strategy: strict rejects missing
// cells, zero fills them with 0.
func manageNaN(t *table.Table, args Args) (*table.Table, error) {
	switch strategy := args.String("strategy", "strict"); strategy {
	case "strict":
		if col, ok := t.HasMissing(); ok {
			return nil, errors.Newf("manage_nan: missing values in column %q", col)
		}
		return t, nil
	case "zero":
		out := t.Clone()
		for _, r := range out.Rows() {
			for _, c := range out.Columns() {
				if r[c] == nil {
					r[c] = int64(0)
				}
			}
		}
		return out, nil
	default:
		return nil, errors.Newf("manage_nan: unknown strategy %q", strategy)
	}
}

// pivot spreads "columns" into one "values"_<x> column per distinct value.
func pivot(t *table.Table, args Args) (*table.Table, error) {
	return t.Pivot(args.Strings("index"), args.String("columns", ""), args.String("values", ""),
		args.String("agg", table.OpSum), int64(0))
}

// aggValue reduces "values" over "index" into a "<values>_<agg>" column.
func aggValue(t *table.Table, args Args) (*table.Table, error) {
	value := args.String("values", "")
	op := args.String("agg", table.OpSum)
	out, err := t.GroupBy(args.Strings("index"), []string{value}, op)
	if err != nil {
		return nil, err
	}
	return out.Rename(map[string]string{value: value + "_" + op}), nil
}

// rename renames "from" to "to".
func rename(t *table.Table, args Args) (*table.Table, error) {
	from, to := args.String("from", ""), args.String("to", "")
	if !t.HasColumn(from) || to == "" {
		return nil, errors.Newf("rename: cannot rename %q to %q in %s", from, to, t)
	}
	return t.Rename(map[string]string{from: to}), nil
}

// MinTotal keeps the rows of groups whose summed value reaches level.
func MinTotal(group, value string) FilterFunc {
	return func(t *table.Table, level float64) (*table.Table, error) {
		totals, err := t.GroupBy([]string{group}, []string{value}, table.OpSum)
		if err != nil {
			return nil, err
		}
		keep := map[string]struct{}{}
		for _, r := range totals.Rows() {
			if utils.Numeric(r[value]) >= level {
				keep[utils.FormatValue(r[group])] = struct{}{}
			}
		}
		return t.Filter(func(r model.GenericRecord) bool {
			_, ok := keep[utils.FormatValue(r[group])]
			return ok
		}), nil
	}
}
