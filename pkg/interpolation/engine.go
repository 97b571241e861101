// Package interpolation orchestrates the regression-kriging pipeline:
// trend fit, residual variogram, lattice rasterization, covariate
// interpolation, residual kriging, and the final summed prediction and
// variance grids.
package interpolation

import (
	"io"
	"log/slog"
	"math"
	"time"

	"soilgrid/pkg/covariate"
	"soilgrid/pkg/kriging"
	"soilgrid/pkg/models"
	"soilgrid/pkg/raster"
	"soilgrid/pkg/regression"
	"soilgrid/pkg/variogram"
)

// gapVarianceInflation is the fraction of the sill added (on top of
// the nugget) to the variance of cells outside covariate coverage,
// where the trend rests on zero-filled covariates.
const gapVarianceInflation = 0.1

// PredictionGrid is the output of one interpolation call. All arrays
// share the shape [len(Y rows)][len(X cols)]. Ownership transfers to
// the caller; the engine keeps nothing between calls.
type PredictionGrid struct {
	X          [][]float64     `json:"x"`
	Y          [][]float64     `json:"y"`
	Prediction [][]float64     `json:"prediction"`
	Variance   [][]float64     `json:"variance"`
	Variogram  variogram.Model `json:"variogram"`

	// TrendR2 is the in-sample fit quality of the trend component;
	// zero for a constant trend.
	TrendR2 float64 `json:"trend_r2"`

	// CovariateGaps counts lattice cells outside the covariate convex
	// hull, where covariates were zero-filled and variance inflated.
	CovariateGaps int `json:"covariate_gaps"`
}

// ValidationReport summarizes leave-one-out cross-validation.
type ValidationReport struct {
	Target  string  `json:"target"`
	Folds   int     `json:"folds"`
	Skipped int     `json:"skipped"`
	RMSE    float64 `json:"rmse"`
	MAE     float64 `json:"mae"`
}

// Engine runs interpolation calls. It carries tuning knobs and a
// logger only; every model fitted during a call is scoped to that call,
// so one Engine is safe for concurrent use.
type Engine struct {
	bins      int
	batchSize int
	workers   int
	neighbors int
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger attaches a logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithBins sets the number of variogram lag bins. Values < 1 are ignored.
func WithBins(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.bins = n
		}
	}
}

// WithBatchSize sets the kriging batch size. Values < 1 are ignored.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.batchSize = n
		}
	}
}

// WithWorkers sets the kriging worker count. Values < 1 are ignored.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.workers = n
		}
	}
}

// WithNeighbors sets the covariate plane-fit neighborhood size.
func WithNeighbors(k int) Option {
	return func(e *Engine) {
		if k >= 3 {
			e.neighbors = k
		}
	}
}

// New builds an Engine with default tuning.
func New(opts ...Option) *Engine {
	e := &Engine{
		bins:      variogram.DefaultBins,
		batchSize: kriging.DefaultBatchSize,
		neighbors: covariate.DefaultNeighbors,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Interpolate fuses the sensor observations and covariate samples into
// a dense prediction grid over bounds at the given resolution (meters).
// Component failures propagate unmodified; there is no partial result.
func (e *Engine) Interpolate(sensors []models.SensorObservation, covs []models.CovariateSample, bounds models.Bounds, resolutionMeters float64, target models.Target) (*PredictionGrid, error) {
	start := time.Now()

	var sampler *covariate.Sampler
	if len(covs) > 0 {
		sampler = covariate.NewSampler(covs, covariate.WithNeighbors(e.neighbors))
	}

	trend, residuals, used, err := regression.Fit(sensors, sampler, target)
	if err != nil {
		return nil, err
	}
	coords := make([][2]float64, len(used))
	for i, o := range used {
		coords[i] = [2]float64{o.X, o.Y}
	}

	vg, err := variogram.Fit(coords, residuals, e.bins)
	if err != nil {
		return nil, err
	}
	e.logger.Info("variogram fitted",
		"target", target.String(),
		"sensors", len(used),
		"nugget", vg.Nugget, "sill", vg.Sill, "range", vg.Range,
		"trend_constant", trend.Constant, "trend_r2", trend.R2)

	xs, ys, err := raster.Rasterize(bounds, resolutionMeters)
	if err != nil {
		return nil, err
	}
	points := make([][2]float64, 0, len(xs)*len(ys))
	for _, y := range ys {
		for _, x := range xs {
			points = append(points, [2]float64{x, y})
		}
	}

	trendPred, gapMask, gaps := e.trendAtPoints(trend, sampler, points)

	kriger, err := kriging.New(coords, residuals, vg,
		kriging.WithBatchSize(e.batchSize), kriging.WithWorkers(e.workers))
	if err != nil {
		return nil, err
	}
	resPred, resVar := kriger.Predict(points)

	limit := vg.Sill + vg.Nugget
	inflation := vg.Nugget + gapVarianceInflation*vg.Sill
	for i := range points {
		resPred[i] += trendPred[i]
		if gapMask[i] {
			resVar[i] = math.Min(limit, resVar[i]+inflation)
		}
	}
	if gaps > 0 {
		e.logger.Warn("covariate coverage gaps", "cells", gaps, "total", len(points))
	}

	grid := &PredictionGrid{
		Variogram:     vg,
		TrendR2:       trend.R2,
		CovariateGaps: gaps,
	}
	grid.X, grid.Y = raster.Meshgrid(xs, ys)
	grid.Prediction = reshape(resPred, len(ys), len(xs))
	grid.Variance = reshape(resVar, len(ys), len(xs))

	e.logger.Info("interpolation complete",
		"rows", len(ys), "cols", len(xs),
		"gaps", gaps, "elapsed", time.Since(start))
	return grid, nil
}

// trendAtPoints evaluates the trend at every lattice point. Points
// outside the covariate hull fall back to zero-filled covariates and
// are flagged as gaps; a constant trend needs no covariates at all.
func (e *Engine) trendAtPoints(trend *regression.TrendModel, sampler *covariate.Sampler, points [][2]float64) (out []float64, gapMask []bool, gaps int) {
	out = make([]float64, len(points))
	gapMask = make([]bool, len(points))
	if trend.Constant || sampler == nil {
		for i := range out {
			out[i] = trend.Intercept
		}
		return out, gapMask, 0
	}

	vecs, inside := sampler.InterpolateAt(points)
	zero := make([]float64, models.CovariateDim)
	for i := range points {
		vec := vecs[i]
		if !inside[i] {
			vec = zero
			gapMask[i] = true
			gaps++
		}
		out[i] = trend.Predict(vec)
	}
	return out, gapMask, gaps
}

// CrossValidate runs leave-one-out validation: each sensor is held
// out, the full pipeline is refit on the rest, and the held-out value
// is predicted at its own location. Folds that cannot be fit (too few
// remaining observations) are skipped and counted.
func (e *Engine) CrossValidate(sensors []models.SensorObservation, covs []models.CovariateSample, target models.Target) (*ValidationReport, error) {
	var sampler *covariate.Sampler
	if len(covs) > 0 {
		sampler = covariate.NewSampler(covs, covariate.WithNeighbors(e.neighbors))
	}

	report := &ValidationReport{Target: target.String()}
	var sqSum, absSum float64
	subset := make([]models.SensorObservation, 0, len(sensors))
	for i, held := range sensors {
		subset = subset[:0]
		subset = append(subset, sensors[:i]...)
		subset = append(subset, sensors[i+1:]...)

		est, err := e.predictAt(subset, sampler, target, held.X, held.Y)
		if err != nil {
			report.Skipped++
			continue
		}
		diff := est - target.Value(held)
		sqSum += diff * diff
		absSum += math.Abs(diff)
		report.Folds++
	}
	if report.Folds == 0 {
		return nil, &models.InsufficientDataError{Stage: "validation", Need: 1, Got: 0}
	}
	report.RMSE = math.Sqrt(sqSum / float64(report.Folds))
	report.MAE = absSum / float64(report.Folds)
	e.logger.Info("cross-validation complete",
		"target", report.Target, "folds", report.Folds,
		"skipped", report.Skipped, "rmse", report.RMSE, "mae", report.MAE)
	return report, nil
}

// predictAt fits the pipeline on the given observations and evaluates
// the prediction at a single location.
func (e *Engine) predictAt(obs []models.SensorObservation, sampler *covariate.Sampler, target models.Target, x, y float64) (float64, error) {
	trend, residuals, used, err := regression.Fit(obs, sampler, target)
	if err != nil {
		return 0, err
	}
	coords := make([][2]float64, len(used))
	for i, o := range used {
		coords[i] = [2]float64{o.X, o.Y}
	}
	vg, err := variogram.Fit(coords, residuals, e.bins)
	if err != nil {
		return 0, err
	}
	kriger, err := kriging.New(coords, residuals, vg, kriging.WithWorkers(1))
	if err != nil {
		return 0, err
	}

	trendVal := trend.Intercept
	if !trend.Constant && sampler != nil {
		if sample, ok := sampler.Nearest(x, y); ok {
			trendVal = trend.Predict(sample.Vector())
		}
	}
	resPred, _ := kriger.Predict([][2]float64{{x, y}})
	return trendVal + resPred[0], nil
}

func reshape(flat []float64, rows, cols int) [][]float64 {
	out := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		out[r] = flat[r*cols : (r+1)*cols]
	}
	return out
}
