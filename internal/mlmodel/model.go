// Package mlmodel holds the regression models used to forecast demand and
// the wrapper that binds a model to the feature columns it was trained on.
package mlmodel

import (
	"sort"
	"sync"

	"go-forecast-pipeline/internal/errors"
)

// Model is a regressor over dense numeric rows.
type Model interface {
	Fit(x [][]float64, y []float64) error
	Predict(x [][]float64) ([]float64, error)
}

// Constructor builds an untrained model from its parameters.
type Constructor func(params map[string]float64) (Model, error)

// Registry resolves model names.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry returns a registry holding the built-in models.
func NewRegistry() *Registry {
	r := &Registry{ctors: map[string]Constructor{}}
	r.Register("mean", func(map[string]float64) (Model, error) { return &Mean{}, nil })
	r.Register("ridge", newRidge)
	return r
}

func (r *Registry) Register(name string, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[name] = c
}

// New builds the model registered under name.
func (r *Registry) New(name string, params map[string]float64) (Model, error) {
	r.mu.RLock()
	c, ok := r.ctors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.WithHintf(errors.Wrapf(errors.ErrUnknownModel, "model %q", name),
			"known models: %v", r.Names())
	}
	return c(params)
}

// Names lists the registered models in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ctors))
	for n := range r.ctors {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func checkShape(x [][]float64, y []float64) error {
	if len(x) == 0 {
		return errors.Wrap(errors.ErrShapeMismatch, "no training rows")
	}
	if len(x) != len(y) {
		return errors.Wrapf(errors.ErrShapeMismatch, "%d rows for %d targets", len(x), len(y))
	}
	width := len(x[0])
	for i, row := range x {
		if len(row) != width {
			return errors.Wrapf(errors.ErrShapeMismatch, "row %d has %d values, expected %d", i, len(row), width)
		}
	}
	return nil
}

// Mean predicts the mean of the training targets.
type Mean struct {
	Value  float64 `msgpack:"value"`
	Fitted bool    `msgpack:"fitted"`
}

func (m *Mean) Fit(x [][]float64, y []float64) error {
	if err := checkShape(x, y); err != nil {
		return err
	}
	var sum float64
	for _, v := range y {
		sum += v
	}
	m.Value = sum / float64(len(y))
	m.Fitted = true
	return nil
}

func (m *Mean) Predict(x [][]float64) ([]float64, error) {
	if !m.Fitted {
		return nil, errors.New("mean model is not fitted")
	}
	out := make([]float64, len(x))
	for i := range out {
		out[i] = m.Value
	}
	return out, nil
}
