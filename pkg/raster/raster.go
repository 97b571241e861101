// Package raster builds the regular coordinate lattice that the
// interpolation engine predicts onto.
package raster

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"soilgrid/pkg/models"
)

// MetersPerDegree is the fixed approximate conversion between the
// physical resolution (meters) and the angular coordinate reference of
// the inputs: one degree of latitude spans roughly 111.32 km. The same
// factor is applied to both axes.
const MetersPerDegree = 111320.0

// Rasterize produces the axis coordinates of a regular lattice covering
// bounds at the given resolution in meters. The lattice steps from the
// minimum toward the maximum on each axis, excluding the maximum
// (half-open interval), matching the pixel-origin convention of the
// satellite products the covariates come from.
func Rasterize(b models.Bounds, resolutionMeters float64) (xs, ys []float64, err error) {
	if resolutionMeters <= 0 {
		return nil, nil, &models.InvalidBoundsError{Reason: "resolution must be positive"}
	}
	if b.MaxX <= b.MinX {
		return nil, nil, &models.InvalidBoundsError{Reason: "max_x must exceed min_x"}
	}
	if b.MaxY <= b.MinY {
		return nil, nil, &models.InvalidBoundsError{Reason: "max_y must exceed min_y"}
	}

	step := resolutionMeters / MetersPerDegree
	xs = axis(b.MinX, b.MaxX, step)
	ys = axis(b.MinY, b.MaxY, step)
	return xs, ys, nil
}

// axis returns points min, min+step, ... strictly below max: every
// in-range point is kept, so a non-divisible span rounds up. The
// epsilon guards the step count against float rounding so that an
// exactly divisible span still excludes the maximum.
func axis(min, max, step float64) []float64 {
	n := int(math.Ceil((max-min)/step - 1e-9))
	if n < 1 {
		n = 1
	}
	pts := make([]float64, n)
	if n == 1 {
		pts[0] = min
		return pts
	}
	floats.Span(pts, min, min+step*float64(n-1))
	return pts
}

// Meshgrid expands axis coordinates into two 2-D arrays of identical
// shape [len(ys)][len(xs)], row-major with y varying across rows.
func Meshgrid(xs, ys []float64) (gx, gy [][]float64) {
	gx = make([][]float64, len(ys))
	gy = make([][]float64, len(ys))
	for r := range ys {
		gx[r] = make([]float64, len(xs))
		gy[r] = make([]float64, len(xs))
		for c := range xs {
			gx[r][c] = xs[c]
			gy[r][c] = ys[r]
		}
	}
	return gx, gy
}
