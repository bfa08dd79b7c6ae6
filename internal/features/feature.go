// Package features assembles feature tables: each Feature descriptor names
// a data source and the load, aggregate, transform and filter steps applied
// to it, and the Engine joins the resulting tables on a declared index.
package features

import (
	"go-forecast-pipeline/internal/datasource"
	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/scope"
	"go-forecast-pipeline/internal/table"
)

// Mode selects how the steps of a Transform combine.
type Mode string

const (
	// Series feeds each step the output of the previous one.
	Series Mode = "series"
	// Parallel feeds every step the same input and joins the outputs.
	Parallel Mode = "parallel"
)

// Step is one named transformer invocation.
type Step struct {
	Name    string
	Trained bool
	Args    Args
}

type Transform struct {
	Mode  Mode
	Steps []Step
}

// Filter drops rows with a named filter function and threshold.
type Filter struct {
	Name  string
	Level float64
}

// Aggregate overrides the aggregation operator of the source.
type Aggregate struct {
	Op string
}

// Merge configures how the feature joins the running table.
type Merge struct {
	How table.JoinHow
}

// Feature describes how one feature table is produced.
type Feature struct {
	ID        string
	Source    string
	Load      *datasource.Window
	Aggregate *Aggregate
	Transform *Transform
	Filter    *Filter
	Merge     *Merge
	Scopes    []scope.Scope
}

// NewFeature validates f against reg.
func NewFeature(f Feature, reg *Registry) (Feature, error) {
	if f.ID == "" {
		return Feature{}, errors.New("feature id is empty")
	}
	if f.Source == "" {
		return Feature{}, errors.Newf("feature %s: data source is empty", f.ID)
	}
	if len(f.Scopes) == 0 {
		return Feature{}, errors.Newf("feature %s: no scope", f.ID)
	}
	for _, sc := range f.Scopes {
		if _, err := scope.Parse(string(sc)); err != nil {
			return Feature{}, errors.Wrapf(err, "feature %s", f.ID)
		}
	}
	if f.Aggregate != nil && !table.ValidOp(f.Aggregate.Op) {
		return Feature{}, errors.Newf("feature %s: unknown aggregation %q", f.ID, f.Aggregate.Op)
	}
	if f.Merge != nil && f.Merge.How != table.Inner && f.Merge.How != table.Left {
		return Feature{}, errors.Newf("feature %s: unsupported merge %q", f.ID, f.Merge.How)
	}
	if f.Transform != nil {
		mode := f.Transform.Mode
		if mode != Series && mode != Parallel {
			return Feature{}, errors.Newf("feature %s: unknown transform mode %q", f.ID, mode)
		}
		for _, st := range f.Transform.Steps {
			tr, ok := reg.transformer(st.Name)
			if !ok {
				return Feature{}, errors.Newf("feature %s: unknown transformer %q", f.ID, st.Name)
			}
			if st.Trained && (mode == Parallel || !tr.Trainable()) {
				return Feature{}, errors.Newf("feature %s: transformer %q cannot be trained here", f.ID, st.Name)
			}
			if !st.Trained && tr.Apply == nil {
				return Feature{}, errors.Newf("feature %s: transformer %q must be trained", f.ID, st.Name)
			}
		}
	}
	if f.Filter != nil {
		if _, ok := reg.filter(f.Filter.Name); !ok {
			return Feature{}, errors.Newf("feature %s: unknown filter %q", f.ID, f.Filter.Name)
		}
	}
	return f, nil
}

// AppliesTo reports whether the feature is computed in sc.
func (f Feature) AppliesTo(sc scope.Scope) bool {
	for _, s := range f.Scopes {
		if s == sc {
			return true
		}
	}
	return false
}

func (f Feature) how() table.JoinHow {
	if f.Merge == nil || f.Merge.How == "" {
		return table.Inner
	}
	return f.Merge.How
}
