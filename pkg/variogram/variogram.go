// Package variogram estimates the spatial correlation structure of
// trend residuals and exposes it as a fitted spherical model.
package variogram

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"soilgrid/pkg/models"
)

// DefaultBins is the number of equal-width lag bins used when fitting
// the empirical variogram.
const DefaultBins = 15

// Model is a fitted spherical variogram: Nugget >= 0, Sill >= Nugget,
// Range > 0 in the distance units of the input coordinates. The sill
// here is the total plateau value, nugget included.
type Model struct {
	Nugget float64 `json:"nugget"`
	Sill   float64 `json:"sill"`
	Range  float64 `json:"range"`
}

// Semivariance evaluates the spherical model at lag h:
//
//	0                                             h = 0
//	nugget + (sill-nugget)(1.5 h/a - 0.5 (h/a)^3) 0 < h <= a
//	sill                                          h > a
func (m Model) Semivariance(h float64) float64 {
	switch {
	case h <= 0:
		return 0
	case h <= m.Range:
		r := h / m.Range
		return m.Nugget + (m.Sill-m.Nugget)*(1.5*r-0.5*r*r*r)
	default:
		return m.Sill
	}
}

// Fit estimates spherical model parameters from the residuals observed
// at the sensor coordinates using the method of moments:
//
//   - sill  = variance of the residuals
//   - nugget = mean semivariance of the first non-empty lag bin
//     (10% of the sill when every bin is empty)
//   - range  = half the maximum pairwise distance
//
// This is a closed-form estimate, not a least-squares fit to the
// binned curve; substituting a curve fit is a documented improvement,
// not a bug fix. Bins <= 0 selects DefaultBins.
func Fit(coords [][2]float64, residuals []float64, bins int) (Model, error) {
	if len(coords) != len(residuals) {
		return Model{}, fmt.Errorf("variogram: %d coordinates but %d residuals", len(coords), len(residuals))
	}
	if len(residuals) < 2 {
		return Model{}, &models.InsufficientDataError{Stage: "variogram", Need: 2, Got: len(residuals)}
	}
	if bins <= 0 {
		bins = DefaultBins
	}

	_, gammas, counts, maxDist := Empirical(coords, residuals, bins)

	sill := stat.Variance(residuals, nil)

	nugget := 0.1 * sill
	for b, c := range counts {
		if c > 0 {
			nugget = gammas[b]
			break
		}
	}
	// The spherical form needs nugget <= sill to stay monotone.
	if nugget > sill {
		nugget = sill
	}
	if nugget < 0 {
		nugget = 0
	}

	rng := maxDist / 2
	if rng <= 0 {
		rng = 1e-12
	}

	return Model{Nugget: nugget, Sill: sill, Range: rng}, nil
}

// Empirical bins the pairwise semivariances gamma(i,j) = (r_i-r_j)^2/2
// into equal-width lag bins spanning [0, maxdist/2). It returns the
// bin-center lags, the per-bin mean semivariance (zero for bins with
// no pairs, which are kept rather than dropped), the per-bin pair
// counts, and the maximum pairwise distance observed.
func Empirical(coords [][2]float64, residuals []float64, bins int) (lags, gammas []float64, counts []int, maxDist float64) {
	n := len(coords)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if d := dist(coords[i], coords[j]); d > maxDist {
				maxDist = d
			}
		}
	}

	lags = make([]float64, bins)
	gammas = make([]float64, bins)
	counts = make([]int, bins)

	maxLag := maxDist / 2
	if maxLag <= 0 {
		return lags, gammas, counts, maxDist
	}
	width := maxLag / float64(bins)
	for b := range lags {
		lags[b] = (float64(b) + 0.5) * width
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := dist(coords[i], coords[j])
			if d >= maxLag {
				continue
			}
			b := int(d / width)
			if b >= bins {
				b = bins - 1
			}
			diff := residuals[i] - residuals[j]
			gammas[b] += 0.5 * diff * diff
			counts[b]++
		}
	}
	for b := range gammas {
		if counts[b] > 0 {
			gammas[b] /= float64(counts[b])
		}
	}
	return lags, gammas, counts, maxDist
}

func dist(a, b [2]float64) float64 {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	return math.Hypot(dx, dy)
}
