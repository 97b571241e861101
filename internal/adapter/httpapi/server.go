// Package httpapi exposes the interpolation engine over HTTP: health,
// readiness, and metrics endpoints plus a JSON interpolate route. The
// core stays wire-format free; all encoding lives here.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"soilgrid/internal/observability"
	"soilgrid/pkg/interpolation"
	"soilgrid/pkg/models"
)

// maxRequestBytes bounds the interpolate request body so an oversized
// payload fails fast instead of exhausting memory in the decoder.
const maxRequestBytes = 10 << 20

// Interpolator is the engine surface the server needs.
type Interpolator interface {
	Interpolate(sensors []models.SensorObservation, covs []models.CovariateSample, bounds models.Bounds, resolutionMeters float64, target models.Target) (*interpolation.PredictionGrid, error)
}

// InterpolateRequest is the JSON body of POST /v1/interpolate.
type InterpolateRequest struct {
	Sensors    []SensorJSON    `json:"sensors"`
	Covariates []CovariateJSON `json:"covariates,omitempty"`
	Bounds     BoundsJSON      `json:"bounds"`

	// ResolutionMeters is the grid spacing; the server default applies
	// when omitted.
	ResolutionMeters float64 `json:"resolution_meters,omitempty"`

	// Target is "surface" (default), "root", or "temperature".
	Target string `json:"target,omitempty"`
}

type SensorJSON struct {
	ID              string  `json:"id,omitempty"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	MoistureSurface float64 `json:"moisture_surface"`
	MoistureRoot    float64 `json:"moisture_root,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
	Elevation       float64 `json:"elevation,omitempty"`
}

type CovariateJSON struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	NDVI      float64 `json:"ndvi"`
	NDWI      float64 `json:"ndwi"`
	LST       float64 `json:"lst"`
	Elevation float64 `json:"elevation"`
	Slope     float64 `json:"slope"`
}

type BoundsJSON struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Server exposes the interpolation HTTP API.
type Server struct {
	httpServer *http.Server
	engine     Interpolator
	metrics    *observability.Metrics
	logger     *slog.Logger

	defaultResolution float64
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics,
// and POST /v1/interpolate routes.
func NewServer(addr string, engine Interpolator, defaultResolution float64, metrics *observability.Metrics, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		engine:            engine,
		metrics:           metrics,
		logger:            logger,
		defaultResolution: defaultResolution,
	}

	mux.Handle("/healthz", requireMethod(http.MethodGet, http.HandlerFunc(s.handleHealth)))
	mux.Handle("/readyz", requireMethod(http.MethodGet, http.HandlerFunc(s.handleReady)))
	mux.Handle("/metrics", requireMethod(http.MethodGet, promhttp.Handler()))
	mux.Handle("/v1/interpolate", requireMethod(http.MethodPost, http.HandlerFunc(s.handleInterpolate)))

	return s
}

// requireMethod restricts a route to one HTTP method (plus HEAD for GET
// routes), answering 405 with an Allow header otherwise.
func requireMethod(method string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method && !(method == http.MethodGet && r.Method == http.MethodHead) {
			w.Header().Set("Allow", method)
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	// The engine is a pure per-request computation with no upstream
	// dependency, so readiness equals liveness.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleInterpolate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	var req InterpolateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	target, ok := models.ParseTarget(req.Target)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown target: " + req.Target})
		return
	}
	resolution := req.ResolutionMeters
	if resolution == 0 {
		resolution = s.defaultResolution
	}

	sensors := make([]models.SensorObservation, len(req.Sensors))
	for i, sj := range req.Sensors {
		sensors[i] = models.SensorObservation(sj)
	}
	covs := make([]models.CovariateSample, len(req.Covariates))
	for i, cj := range req.Covariates {
		covs[i] = models.CovariateSample(cj)
	}
	bounds := models.Bounds(req.Bounds)

	start := time.Now()
	s.metrics.SensorsPerRequest.Observe(float64(len(sensors)))

	grid, err := s.engine.Interpolate(sensors, covs, bounds, resolution, target)
	if err != nil {
		s.metrics.InterpolationsTotal.WithLabelValues(target.String(), "error").Inc()
		s.writeEngineError(w, err)
		return
	}

	s.metrics.InterpolationsTotal.WithLabelValues(target.String(), "success").Inc()
	s.metrics.InterpolationSeconds.Observe(time.Since(start).Seconds())
	s.metrics.GridCells.Observe(float64(len(grid.Prediction) * len(grid.Prediction[0])))
	s.metrics.CovariateGapCells.Add(float64(grid.CovariateGaps))

	writeJSON(w, http.StatusOK, grid)
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	var insufficient *models.InsufficientDataError
	var invalid *models.InvalidBoundsError
	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		s.logger.Error("interpolation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
