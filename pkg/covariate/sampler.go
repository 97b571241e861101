// Package covariate resolves remote-sensing covariate samples onto
// arbitrary coordinates: nearest-sample lookup for the trend fit, and
// bulk locally-linear interpolation onto a target lattice bounded by
// the convex hull of the sample locations.
package covariate

import (
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"
	"gonum.org/v1/gonum/mat"

	"soilgrid/pkg/models"
)

const (
	rtreeMinChildren = 25
	rtreeMaxChildren = 50
	rtreeTolerance   = 1e-6

	// DefaultNeighbors is how many nearby samples feed each local
	// plane fit during lattice interpolation.
	DefaultNeighbors = 8
)

type sampleItem struct {
	sample models.CovariateSample
	rect   *rtreego.Rect
}

func (it *sampleItem) Bounds() *rtreego.Rect { return it.rect }

// Sampler indexes a covariate dataset for spatial lookups. Immutable
// after construction and safe for concurrent use.
type Sampler struct {
	samples   []models.CovariateSample
	tree      *rtreego.Rtree
	hull      [][2]float64
	neighbors int
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithNeighbors sets the local plane-fit neighborhood size. Values < 3
// are ignored (a plane needs three points).
func WithNeighbors(k int) Option {
	return func(s *Sampler) {
		if k >= 3 {
			s.neighbors = k
		}
	}
}

// NewSampler builds an R-tree over the covariate samples and
// precomputes their convex hull. An empty dataset yields a usable
// sampler whose lookups report no result.
func NewSampler(samples []models.CovariateSample, opts ...Option) *Sampler {
	s := &Sampler{
		samples:   samples,
		tree:      rtreego.NewTree(2, rtreeMinChildren, rtreeMaxChildren),
		neighbors: DefaultNeighbors,
	}
	for _, opt := range opts {
		opt(s)
	}
	pts := make([][2]float64, len(samples))
	for i, c := range samples {
		rect := rtreego.Point{c.X, c.Y}.ToRect(rtreeTolerance)
		s.tree.Insert(&sampleItem{sample: c, rect: rect})
		pts[i] = [2]float64{c.X, c.Y}
	}
	s.hull = convexHull(pts)
	return s
}

// Len returns the number of indexed samples.
func (s *Sampler) Len() int { return len(s.samples) }

// Nearest returns the covariate sample closest to (x, y) by Euclidean
// distance, or ok=false when the dataset is empty.
func (s *Sampler) Nearest(x, y float64) (models.CovariateSample, bool) {
	if len(s.samples) == 0 {
		return models.CovariateSample{}, false
	}
	results := s.tree.NearestNeighbors(1, rtreego.Point{x, y})
	if len(results) == 0 || results[0] == nil {
		return models.CovariateSample{}, false
	}
	return results[0].(*sampleItem).sample, true
}

// nearestK returns up to k samples ordered by distance to (x, y).
func (s *Sampler) nearestK(x, y float64, k int) []models.CovariateSample {
	if k > len(s.samples) {
		k = len(s.samples)
	}
	if k == 0 {
		return nil
	}
	results := s.tree.NearestNeighbors(k, rtreego.Point{x, y})
	out := make([]models.CovariateSample, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		out = append(out, r.(*sampleItem).sample)
	}
	return out
}

// InterpolateAt interpolates every covariate channel onto the given
// points. Inside the convex hull of the sample locations each channel
// is estimated with a local plane fit over the nearest samples
// (inverse-distance weighting when the neighborhood is degenerate);
// outside the hull every channel is NaN and inside[i] is false.
func (s *Sampler) InterpolateAt(points [][2]float64) (vecs [][]float64, inside []bool) {
	vecs = make([][]float64, len(points))
	inside = make([]bool, len(points))
	for i, p := range points {
		if !s.insideHull(p) {
			vecs[i] = nanVector()
			continue
		}
		inside[i] = true
		vecs[i] = s.interpolatePoint(p)
	}
	return vecs, inside
}

func (s *Sampler) interpolatePoint(p [2]float64) []float64 {
	neigh := s.nearestK(p[0], p[1], s.neighbors)
	if len(neigh) >= 3 {
		if v, ok := planeFit(p, neigh); ok {
			return v
		}
	}
	return idw(p, neigh)
}

// planeFit solves value = b0 + b1*dx + b2*dy per channel over the
// neighborhood (all channels share one QR factorization) and evaluates
// at the query point, where dx, dy are offsets from the query so the
// estimate is simply b0. Reports ok=false for a rank-deficient
// neighborhood (collinear samples).
func planeFit(p [2]float64, neigh []models.CovariateSample) ([]float64, bool) {
	n := len(neigh)
	a := mat.NewDense(n, 3, nil)
	b := mat.NewDense(n, models.CovariateDim, nil)
	for i, c := range neigh {
		a.Set(i, 0, 1)
		a.Set(i, 1, c.X-p[0])
		a.Set(i, 2, c.Y-p[1])
		b.SetRow(i, c.Vector())
	}

	var qr mat.QR
	qr.Factorize(a)
	var beta mat.Dense
	if err := qr.SolveTo(&beta, false, b); err != nil {
		return nil, false
	}
	out := make([]float64, models.CovariateDim)
	for c := 0; c < models.CovariateDim; c++ {
		out[c] = beta.At(0, c)
	}
	return out, true
}

// idw is the fallback interpolation: inverse-square-distance weights,
// collapsing to the exact sample value on coincidence.
func idw(p [2]float64, neigh []models.CovariateSample) []float64 {
	out := make([]float64, models.CovariateDim)
	if len(neigh) == 0 {
		return nanVector()
	}
	var wsum float64
	weights := make([]float64, len(neigh))
	for i, c := range neigh {
		d := math.Hypot(c.X-p[0], c.Y-p[1])
		if d < 1e-12 {
			copy(out, c.Vector())
			return out
		}
		weights[i] = 1 / (d * d)
		wsum += weights[i]
	}
	for i, c := range neigh {
		w := weights[i] / wsum
		for j, v := range c.Vector() {
			out[j] += w * v
		}
	}
	return out
}

func nanVector() []float64 {
	v := make([]float64, models.CovariateDim)
	for i := range v {
		v[i] = math.NaN()
	}
	return v
}

// insideHull reports whether p lies inside (or on) the convex hull of
// the sample locations. Fewer than three hull vertices span no area,
// so nothing is inside.
func (s *Sampler) insideHull(p [2]float64) bool {
	h := s.hull
	if len(h) < 3 {
		return false
	}
	const eps = 1e-12
	for i := range h {
		a := h[i]
		b := h[(i+1)%len(h)]
		if cross(a, b, p) < -eps {
			return false
		}
	}
	return true
}

// convexHull computes the hull with Andrew's monotone chain, returned
// counter-clockwise without the closing vertex. Collinear inputs
// produce a degenerate hull of fewer than three vertices.
func convexHull(pts [][2]float64) [][2]float64 {
	if len(pts) < 3 {
		return nil
	}
	sorted := make([][2]float64, len(pts))
	copy(sorted, pts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i][0] != sorted[j][0] {
			return sorted[i][0] < sorted[j][0]
		}
		return sorted[i][1] < sorted[j][1]
	})

	var lower [][2]float64
	for _, p := range sorted {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}
	var upper [][2]float64
	for i := len(sorted) - 1; i >= 0; i-- {
		p := sorted[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}
	hull := append(lower[:len(lower)-1], upper[:len(upper)-1]...)
	if len(hull) < 3 {
		return nil
	}
	return hull
}

func cross(a, b, p [2]float64) float64 {
	return (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
}
