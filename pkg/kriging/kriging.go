// Package kriging predicts a residual surface and its variance at
// arbitrary target points from the residuals observed at sensor
// locations, driven by a fitted spherical variogram.
package kriging

import (
	"math"
	"runtime"
	"sync"

	"soilgrid/pkg/models"
	"soilgrid/pkg/variogram"
)

// DefaultBatchSize bounds how many target points a worker evaluates
// per batch; it exists to cap peak memory on large grids, not for
// correctness.
const DefaultBatchSize = 1000

// coincidenceEps is the distance below which a target is treated as
// coinciding with a sensor. The normalized exponential weights do not
// concentrate on their own, so this shortcut is what makes the
// prediction collapse to the sensor residual and the variance to the
// nugget at zero distance.
const coincidenceEps = 1e-9

// Kriger evaluates residual predictions against a fixed set of sensor
// residuals and a fitted variogram. It is immutable after construction
// and safe for concurrent use.
//
// The weights are the normalized exponential surrogate exp(-d/range)
// rather than the exact ordinary-kriging solve: always summing to one
// and immune to near-singular semivariance matrices, at the cost of
// not being the strictly minimum-variance estimator. Downstream
// variance interpretation depends on this choice; do not swap in the
// exact solve without flagging it.
type Kriger struct {
	coords    [][2]float64
	residuals []float64
	model     variogram.Model
	batchSize int
	workers   int
}

// Option configures a Kriger.
type Option func(*Kriger)

// WithBatchSize overrides DefaultBatchSize. Values < 1 are ignored.
func WithBatchSize(n int) Option {
	return func(k *Kriger) {
		if n >= 1 {
			k.batchSize = n
		}
	}
}

// WithWorkers sets how many goroutines evaluate batches. Values < 1
// select runtime.NumCPU.
func WithWorkers(n int) Option {
	return func(k *Kriger) {
		if n >= 1 {
			k.workers = n
		}
	}
}

// New builds a Kriger over the sensor coordinates and their residuals.
// Fails with InsufficientDataError when no sensors are supplied.
func New(coords [][2]float64, residuals []float64, model variogram.Model, opts ...Option) (*Kriger, error) {
	if len(coords) == 0 || len(residuals) == 0 {
		return nil, &models.InsufficientDataError{Stage: "kriging", Need: 1, Got: 0}
	}
	k := &Kriger{
		coords:    coords,
		residuals: residuals,
		model:     model,
		batchSize: DefaultBatchSize,
		workers:   runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// Predict evaluates the residual prediction and kriging variance at
// every target point. Targets are processed in fixed-size batches;
// batches are independent and run across the worker pool, each writing
// its own disjoint index range of the output.
func (k *Kriger) Predict(targets [][2]float64) (preds, vars []float64) {
	n := len(targets)
	preds = make([]float64, n)
	vars = make([]float64, n)
	if n == 0 {
		return preds, vars
	}

	batches := make(chan int)
	var wg sync.WaitGroup
	workers := k.workers
	if workers > (n+k.batchSize-1)/k.batchSize {
		workers = (n + k.batchSize - 1) / k.batchSize
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for start := range batches {
				end := start + k.batchSize
				if end > n {
					end = n
				}
				for i := start; i < end; i++ {
					preds[i], vars[i] = k.predictPoint(targets[i])
				}
			}
		}()
	}
	for start := 0; start < n; start += k.batchSize {
		batches <- start
	}
	close(batches)
	wg.Wait()
	return preds, vars
}

func (k *Kriger) predictPoint(target [2]float64) (pred, variance float64) {
	ns := len(k.coords)
	dists := make([]float64, ns)
	for i, c := range k.coords {
		d := math.Hypot(target[0]-c[0], target[1]-c[1])
		if d < coincidenceEps {
			v := k.model.Nugget
			if v < 0 {
				v = 0
			}
			return k.residuals[i], v
		}
		dists[i] = d
	}

	weights := make([]float64, ns)
	var sum float64
	for i, d := range dists {
		weights[i] = math.Exp(-d / k.model.Range)
		sum += weights[i]
	}
	if sum == 0 {
		// Every sensor is so far past the range that the exponentials
		// underflowed; fall back to uniform weights.
		for i := range weights {
			weights[i] = 1
		}
		sum = float64(ns)
	}

	var gammaBar float64
	for i, w := range weights {
		w /= sum
		pred += w * k.residuals[i]
		gammaBar += w * k.model.Semivariance(dists[i])
	}

	variance = gammaBar
	if limit := k.model.Sill + k.model.Nugget; variance > limit {
		variance = limit
	}
	if variance < 0 {
		variance = 0
	}
	return pred, variance
}
