// Package regression fits the deterministic trend component of the
// regression-kriging pipeline: an ordinary least-squares linear model
// from standardized covariates to the observed target quantity.
package regression

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"soilgrid/pkg/covariate"
	"soilgrid/pkg/models"
)

// TrendModel is a fitted linear trend. The standardization statistics
// captured at fit time are reapplied at prediction time, so Predict
// takes raw covariate vectors. A constant model (empty covariate set
// or zero target variance) predicts the intercept everywhere.
type TrendModel struct {
	Intercept float64   `json:"intercept"`
	Coeffs    []float64 `json:"coefficients,omitempty"`
	Means     []float64 `json:"-"`
	Stds      []float64 `json:"-"`
	Constant  bool      `json:"constant"`

	// R2 is the in-sample coefficient of determination, reported for
	// diagnostics only.
	R2 float64 `json:"r2"`
}

// Predict evaluates the trend at a raw covariate vector.
func (m *TrendModel) Predict(vec []float64) float64 {
	if m.Constant {
		return m.Intercept
	}
	y := m.Intercept
	for i, c := range m.Coeffs {
		y += c * (vec[i] - m.Means[i]) / m.Stds[i]
	}
	return y
}

// Fit resolves each observation to its nearest covariate sample,
// standardizes the covariates over the fitting set, and fits the OLS
// trend. It returns the model, the residual (observed − predicted) per
// included observation, and the included observations themselves in
// residual order.
//
// A nil or empty sampler keeps every observation and degenerates to
// the intercept-only model (ordinary kriging of the raw signal).
// Fewer than covariate-dimension + 2 usable observations (2 for the
// constant case) fail with InsufficientDataError.
func Fit(obs []models.SensorObservation, sampler *covariate.Sampler, target models.Target) (*TrendModel, []float64, []models.SensorObservation, error) {
	if sampler == nil || sampler.Len() == 0 {
		return fitConstant(obs, target, 2)
	}

	used := make([]models.SensorObservation, 0, len(obs))
	rows := make([][]float64, 0, len(obs))
	y := make([]float64, 0, len(obs))
	for _, o := range obs {
		sample, ok := sampler.Nearest(o.X, o.Y)
		if !ok {
			continue
		}
		used = append(used, o)
		rows = append(rows, sample.Vector())
		y = append(y, target.Value(o))
	}

	need := models.CovariateDim + 2
	if len(used) < need {
		return nil, nil, nil, &models.InsufficientDataError{Stage: "trend", Need: need, Got: len(used)}
	}

	if stat.Variance(y, nil) == 0 {
		// Flat target: the OLS solution is the constant predictor, so
		// skip the solve and fit the intercept directly.
		m, res := constantModel(y)
		return m, res, used, nil
	}

	means, stds := standardize(rows)

	n := len(used)
	a := mat.NewDense(n, models.CovariateDim+1, nil)
	for i, row := range rows {
		a.Set(i, 0, 1)
		for j, v := range row {
			a.Set(i, j+1, (v-means[j])/stds[j])
		}
	}
	bvec := mat.NewVecDense(n, y)

	beta, err := solveLeastSquares(a, bvec)
	if err != nil {
		// Collinear covariates: retry with a ridge-regularized normal
		// system before giving up on the linear part.
		beta, err = solveRidge(a, bvec, 1e-6)
	}
	if err != nil {
		m, res := constantModel(y)
		return m, res, used, nil
	}

	m := &TrendModel{
		Intercept: beta[0],
		Coeffs:    beta[1:],
		Means:     means,
		Stds:      stds,
	}

	residuals := make([]float64, n)
	var ssRes, ssTot float64
	meanY := stat.Mean(y, nil)
	for i, row := range rows {
		residuals[i] = y[i] - m.Predict(row)
		ssRes += residuals[i] * residuals[i]
		ssTot += (y[i] - meanY) * (y[i] - meanY)
	}
	if ssTot > 0 {
		m.R2 = 1 - ssRes/ssTot
	}
	return m, residuals, used, nil
}

func fitConstant(obs []models.SensorObservation, target models.Target, need int) (*TrendModel, []float64, []models.SensorObservation, error) {
	if len(obs) < need {
		return nil, nil, nil, &models.InsufficientDataError{Stage: "trend", Need: need, Got: len(obs)}
	}
	y := make([]float64, len(obs))
	for i, o := range obs {
		y[i] = target.Value(o)
	}
	m, res := constantModel(y)
	return m, res, obs, nil
}

func constantModel(y []float64) (*TrendModel, []float64) {
	mean := stat.Mean(y, nil)
	res := make([]float64, len(y))
	for i, v := range y {
		res[i] = v - mean
	}
	return &TrendModel{Intercept: mean, Constant: true}, res
}

// standardize computes per-channel mean and standard deviation over
// the fitting rows. A zero-variance channel gets unit scale so it
// contributes a constant instead of dividing by zero.
func standardize(rows [][]float64) (means, stds []float64) {
	means = make([]float64, models.CovariateDim)
	stds = make([]float64, models.CovariateDim)
	col := make([]float64, len(rows))
	for j := 0; j < models.CovariateDim; j++ {
		for i, row := range rows {
			col[i] = row[j]
		}
		means[j] = stat.Mean(col, nil)
		stds[j] = stat.StdDev(col, nil)
		if stds[j] == 0 {
			stds[j] = 1
		}
	}
	return means, stds
}

func solveLeastSquares(a *mat.Dense, b *mat.VecDense) ([]float64, error) {
	var qr mat.QR
	qr.Factorize(a)
	var sol mat.Dense
	if err := qr.SolveTo(&sol, false, b); err != nil {
		return nil, err
	}
	_, cols := a.Dims()
	beta := make([]float64, cols)
	for i := range beta {
		beta[i] = sol.At(i, 0)
	}
	return beta, nil
}

// solveRidge solves (AᵀA + λI)β = Aᵀb.
func solveRidge(a *mat.Dense, b *mat.VecDense, lambda float64) ([]float64, error) {
	_, cols := a.Dims()
	var ata mat.Dense
	ata.Mul(a.T(), a)
	for i := 0; i < cols; i++ {
		ata.Set(i, i, ata.At(i, i)+lambda)
	}
	var atb mat.VecDense
	atb.MulVec(a.T(), b)

	var sol mat.VecDense
	if err := sol.SolveVec(&ata, &atb); err != nil {
		return nil, err
	}
	beta := make([]float64, cols)
	for i := range beta {
		beta[i] = sol.AtVec(i)
	}
	return beta, nil
}
