package mlmodel

import (
	"gonum.org/v1/gonum/mat"

	"go-forecast-pipeline/internal/errors"
)

// Ridge is an L2-regularized linear regression with an unpenalized
// intercept.
type Ridge struct {
	Alpha     float64   `msgpack:"alpha"`
	Weights   []float64 `msgpack:"weights"`
	Intercept float64   `msgpack:"intercept"`
}

func newRidge(params map[string]float64) (Model, error) {
	alpha, ok := params["alpha"]
	if !ok {
		alpha = 1
	}
	if alpha < 0 {
		return nil, errors.Newf("ridge: alpha must be positive, got %v", alpha)
	}
	return &Ridge{Alpha: alpha}, nil
}

// Fit solves (XᵀX + αI)w = Xᵀy on centered data.
func (m *Ridge) Fit(x [][]float64, y []float64) error {
	if err := checkShape(x, y); err != nil {
		return err
	}
	n, p := len(x), len(x[0])
	if p == 0 {
		return errors.Wrap(errors.ErrShapeMismatch, "ridge: no feature columns")
	}
	xc := mat.NewDense(n, p, nil)
	for i, row := range x {
		xc.SetRow(i, row)
	}
	xMean := make([]float64, p)
	for j := 0; j < p; j++ {
		col := mat.Col(nil, j, xc)
		for _, v := range col {
			xMean[j] += v
		}
		xMean[j] /= float64(n)
		for i := range col {
			xc.Set(i, j, col[i]-xMean[j])
		}
	}
	var yMean float64
	for _, v := range y {
		yMean += v
	}
	yMean /= float64(n)
	yc := mat.NewVecDense(n, nil)
	for i, v := range y {
		yc.SetVec(i, v-yMean)
	}

	var gram mat.SymDense
	gram.SymOuterK(1, xc.T())
	for j := 0; j < p; j++ {
		gram.SetSym(j, j, gram.At(j, j)+m.Alpha)
	}
	var rhs mat.VecDense
	rhs.MulVec(xc.T(), yc)

	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		return errors.New("ridge: singular system, increase alpha")
	}
	var w mat.VecDense
	if err := chol.SolveVecTo(&w, &rhs); err != nil {
		return errors.Wrap(err, "ridge")
	}

	m.Weights = make([]float64, p)
	m.Intercept = yMean
	for j := range m.Weights {
		m.Weights[j] = w.AtVec(j)
		m.Intercept -= m.Weights[j] * xMean[j]
	}
	return nil
}

func (m *Ridge) Predict(x [][]float64) ([]float64, error) {
	if m.Weights == nil {
		return nil, errors.New("ridge model is not fitted")
	}
	out := make([]float64, len(x))
	for i, row := range x {
		if len(row) != len(m.Weights) {
			return nil, errors.Wrapf(errors.ErrShapeMismatch,
				"row %d has %d values, model has %d weights", i, len(row), len(m.Weights))
		}
		v := m.Intercept
		for j, w := range m.Weights {
			v += w * row[j]
		}
		out[i] = v
	}
	return out, nil
}
