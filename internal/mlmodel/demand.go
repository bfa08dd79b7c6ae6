package mlmodel

import (
	"math/rand"

	"github.com/vmihailenco/msgpack/v5"

	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/table"
	"go-forecast-pipeline/pkg/utils"
)

// Demand binds a model to the feature columns it was fitted on.
type Demand struct {
	Name    string
	Params  map[string]float64
	Columns []string
	model   Model
}

// NewDemand builds an untrained demand model.
func NewDemand(reg *Registry, name string, params map[string]float64) (*Demand, error) {
	m, err := reg.New(name, params)
	if err != nil {
		return nil, err
	}
	return &Demand{Name: name, Params: params, model: m}, nil
}

// Fit trains on every column of x.
func (d *Demand) Fit(x *table.Table, y []float64) error {
	d.Columns = x.Columns()
	rows, err := matrix(x, d.Columns)
	if err != nil {
		return err
	}
	return d.model.Fit(rows, y)
}

// Predict aligns x on the training columns, a column missing from x reads
// as zeros, and predicts one value per row.
func (d *Demand) Predict(x *table.Table) ([]float64, error) {
	if d.Columns == nil {
		return nil, errors.New("demand model is not fitted")
	}
	rows, err := matrix(x, d.Columns)
	if err != nil {
		return nil, err
	}
	return d.model.Predict(rows)
}

// CrossValidate returns the sMAPE of each of k folds, fitting a fresh model
// of the same kind on the other folds. Rows are shuffled with seed.
func (d *Demand) CrossValidate(reg *Registry, x *table.Table, y []float64, k int, seed int64) ([]float64, error) {
	if k < 2 || k > x.Len() {
		return nil, errors.Newf("cross validation needs 2 <= folds <= %d, got %d", x.Len(), k)
	}
	rows, err := matrix(x, x.Columns())
	if err != nil {
		return nil, err
	}
	perm := rand.New(rand.NewSource(seed)).Perm(len(rows))
	scores := make([]float64, 0, k)
	for fold := 0; fold < k; fold++ {
		var trainX, testX [][]float64
		var trainY, testY []float64
		for i, idx := range perm {
			if i%k == fold {
				testX, testY = append(testX, rows[idx]), append(testY, y[idx])
			} else {
				trainX, trainY = append(trainX, rows[idx]), append(trainY, y[idx])
			}
		}
		m, err := reg.New(d.Name, d.Params)
		if err != nil {
			return nil, err
		}
		if err := m.Fit(trainX, trainY); err != nil {
			return nil, errors.Wrapf(err, "fold %d", fold)
		}
		pred, err := m.Predict(testX)
		if err != nil {
			return nil, errors.Wrapf(err, "fold %d", fold)
		}
		scores = append(scores, SMAPE(pred, testY))
	}
	return scores, nil
}

type envelope struct {
	Name    string             `msgpack:"name"`
	Params  map[string]float64 `msgpack:"params"`
	Columns []string           `msgpack:"columns"`
	State   msgpack.RawMessage `msgpack:"state"`
}

// Marshal encodes the model and its columns.
func (d *Demand) Marshal() ([]byte, error) {
	state, err := msgpack.Marshal(d.model)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s model", d.Name)
	}
	return msgpack.Marshal(envelope{Name: d.Name, Params: d.Params, Columns: d.Columns, State: state})
}

// UnmarshalDemand decodes a model written by Marshal.
func UnmarshalDemand(reg *Registry, b []byte) (*Demand, error) {
	var env envelope
	if err := msgpack.Unmarshal(b, &env); err != nil {
		return nil, errors.Wrap(err, "decode demand model")
	}
	d, err := NewDemand(reg, env.Name, env.Params)
	if err != nil {
		return nil, err
	}
	if err := msgpack.Unmarshal(env.State, d.model); err != nil {
		return nil, errors.Wrapf(err, "decode %s model", env.Name)
	}
	d.Columns = env.Columns
	return d, nil
}

func matrix(t *table.Table, columns []string) ([][]float64, error) {
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c] = t.HasColumn(c)
	}
	out := make([][]float64, t.Len())
	for i, r := range t.Rows() {
		row := make([]float64, len(columns))
		for j, c := range columns {
			if !present[c] {
				continue
			}
			v, ok := utils.ToFloat(r[c])
			if !ok {
				return nil, errors.Newf("column %q row %d: %v is not numeric", c, i, r[c])
			}
			row[j] = v
		}
		out[i] = row
	}
	return out, nil
}
