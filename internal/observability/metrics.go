package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// interpolation service.
type Metrics struct {
	InterpolationsTotal  *prometheus.CounterVec // labels: target, outcome={success,error}
	InterpolationSeconds prometheus.Histogram
	GridCells            prometheus.Histogram
	CovariateGapCells    prometheus.Counter
	SensorsPerRequest    prometheus.Histogram
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.InterpolationsTotal,
		m.InterpolationSeconds,
		m.GridCells,
		m.CovariateGapCells,
		m.SensorsPerRequest,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		InterpolationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soilgrid",
			Name:      "interpolations_total",
			Help:      "Interpolation requests by target and outcome.",
		}, []string{"target", "outcome"}),
		InterpolationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "soilgrid",
			Name:      "interpolation_duration_seconds",
			Help:      "Duration of a complete interpolation call.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		GridCells: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "soilgrid",
			Name:      "grid_cells",
			Help:      "Number of lattice cells produced per interpolation.",
			Buckets:   []float64{16, 64, 256, 1024, 4096, 16384, 65536},
		}),
		CovariateGapCells: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "soilgrid",
			Name:      "covariate_gap_cells_total",
			Help:      "Total grid cells predicted outside covariate coverage.",
		}),
		SensorsPerRequest: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "soilgrid",
			Name:      "sensors_per_request",
			Help:      "Sensor observations supplied per interpolation request.",
			Buckets:   []float64{2, 5, 10, 25, 50, 100, 250},
		}),
	}
}
