package covariate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soilgrid/pkg/models"
)

func gridSamples() []models.CovariateSample {
	// 4x4 grid of samples with planar channel surfaces, so linear
	// interpolation inside the hull should be near exact.
	var out []models.CovariateSample
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			x, y := float64(i), float64(j)
			out = append(out, models.CovariateSample{
				X: x, Y: y,
				NDVI:      0.3 + 0.1*x,
				NDWI:      0.1 + 0.05*y,
				LST:       20 + x + y,
				Elevation: 100 - 2*x,
				Slope:     1.5,
			})
		}
	}
	return out
}

func TestNearestEmptyDataset(t *testing.T) {
	s := NewSampler(nil)
	_, ok := s.Nearest(0, 0)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestNearestReturnsClosestSample(t *testing.T) {
	s := NewSampler(gridSamples())

	got, ok := s.Nearest(2.2, 0.9)
	require.True(t, ok)
	assert.Equal(t, 2.0, got.X)
	assert.Equal(t, 1.0, got.Y)
}

func TestNearestExactHit(t *testing.T) {
	s := NewSampler(gridSamples())

	got, ok := s.Nearest(3, 3)
	require.True(t, ok)
	assert.Equal(t, 3.0, got.X)
	assert.Equal(t, 3.0, got.Y)
	assert.InDelta(t, 0.6, got.NDVI, 1e-12)
}

func TestInterpolateInsideHullRecoversPlanarChannels(t *testing.T) {
	s := NewSampler(gridSamples())

	pts := [][2]float64{{1.5, 1.5}, {0.5, 2.5}, {2.0, 1.0}}
	vecs, inside := s.InterpolateAt(pts)

	for i, p := range pts {
		require.True(t, inside[i], "point %v should be inside the hull", p)
		assert.InDelta(t, 0.3+0.1*p[0], vecs[i][0], 1e-9, "ndvi at %v", p)
		assert.InDelta(t, 0.1+0.05*p[1], vecs[i][1], 1e-9, "ndwi at %v", p)
		assert.InDelta(t, 20+p[0]+p[1], vecs[i][2], 1e-9, "lst at %v", p)
		assert.InDelta(t, 100-2*p[0], vecs[i][3], 1e-9, "elevation at %v", p)
		assert.InDelta(t, 1.5, vecs[i][4], 1e-9, "slope at %v", p)
	}
}

func TestInterpolateOutsideHullYieldsNaN(t *testing.T) {
	s := NewSampler(gridSamples())

	vecs, inside := s.InterpolateAt([][2]float64{{-1, -1}, {10, 2}})
	for i := range vecs {
		assert.False(t, inside[i])
		for c, v := range vecs[i] {
			assert.True(t, math.IsNaN(v), "channel %d should be NaN outside the hull", c)
		}
	}
}

func TestInterpolateCollinearSamplesHaveNoHull(t *testing.T) {
	var line []models.CovariateSample
	for i := 0; i < 5; i++ {
		line = append(line, models.CovariateSample{X: float64(i), Y: 0, NDVI: 0.5})
	}
	s := NewSampler(line)

	vecs, inside := s.InterpolateAt([][2]float64{{2, 0}})
	assert.False(t, inside[0])
	assert.True(t, math.IsNaN(vecs[0][0]))
}

func TestConvexHullSquare(t *testing.T) {
	pts := [][2]float64{{0, 0}, {2, 0}, {2, 2}, {0, 2}, {1, 1}, {0.5, 1.7}}
	hull := convexHull(pts)
	require.Len(t, hull, 4)

	s := &Sampler{hull: hull}
	assert.True(t, s.insideHull([2]float64{1, 1}))
	assert.True(t, s.insideHull([2]float64{0, 0}))
	assert.False(t, s.insideHull([2]float64{2.1, 1}))
	assert.False(t, s.insideHull([2]float64{-0.1, 1}))
}
