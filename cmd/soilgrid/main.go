package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"soilgrid/internal/adapter/httpapi"
	"soilgrid/internal/observability"
	"soilgrid/pkg/config"
	"soilgrid/pkg/interpolation"
	"soilgrid/pkg/models"
	"soilgrid/pkg/render"
)

var (
	configPath string

	sensorsPath    string
	covariatesPath string
	boundsFlag     string
	resolution     float64
	targetFlag     string
	outPath        string

	pngPrediction string
	pngVariance   string
	pngScale      int

	serveAddr string
)

var rootCmd = &cobra.Command{
	Use:   "soilgrid",
	Short: "Regression-kriging interpolation of soil sensor readings",
	Long: `soilgrid fuses sparse ground-sensor readings with remote-sensing
covariates (NDVI, NDWI, thermal, terrain) into a dense prediction grid
with a per-cell variance estimate, using regression kriging.`,
}

var interpolateCmd = &cobra.Command{
	Use:   "interpolate",
	Short: "Compute a prediction grid from sensor and covariate CSV files",
	RunE:  runInterpolate,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Leave-one-out cross-validation of the pipeline on a sensor set",
	RunE:  runValidate,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the interpolation engine over HTTP",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "soilgrid.yaml", "Config file path")

	for _, cmd := range []*cobra.Command{interpolateCmd, validateCmd} {
		cmd.Flags().StringVarP(&sensorsPath, "sensors", "s", "", "Sensor observations CSV (required)")
		cmd.Flags().StringVarP(&covariatesPath, "covariates", "k", "", "Covariate samples CSV (optional)")
		cmd.Flags().StringVarP(&targetFlag, "target", "t", "surface", "Target quantity: surface, root, temperature")
		cmd.MarkFlagRequired("sensors") //nolint:errcheck // flag exists
	}

	interpolateCmd.Flags().StringVarP(&boundsFlag, "bounds", "b", "", "Bounding box min_x,min_y,max_x,max_y (required)")
	interpolateCmd.Flags().Float64VarP(&resolution, "resolution", "r", 0, "Grid resolution in meters (default from config)")
	interpolateCmd.Flags().StringVarP(&outPath, "out", "o", "-", "Output JSON path, - for stdout")
	interpolateCmd.Flags().StringVar(&pngPrediction, "png-prediction", "", "Optional PNG heatmap of the prediction grid")
	interpolateCmd.Flags().StringVar(&pngVariance, "png-variance", "", "Optional PNG heatmap of the variance grid")
	interpolateCmd.Flags().IntVar(&pngScale, "png-scale", 8, "Pixels per grid cell in rendered PNGs")
	interpolateCmd.MarkFlagRequired("bounds") //nolint:errcheck // flag exists

	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "Listen address (default from config)")

	rootCmd.AddCommand(interpolateCmd, validateCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func buildEngine(cfg *config.Config) (*interpolation.Engine, *slog.Logger) {
	logger := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	engine := interpolation.New(
		interpolation.WithLogger(logger),
		interpolation.WithWorkers(cfg.Interpolation.Workers),
		interpolation.WithBatchSize(cfg.Interpolation.BatchSize),
		interpolation.WithBins(cfg.Interpolation.VariogramBins),
		interpolation.WithNeighbors(cfg.Interpolation.CovariateNeighbors),
	)
	return engine, logger
}

func loadInputs() ([]models.SensorObservation, []models.CovariateSample, models.Target, error) {
	target, ok := models.ParseTarget(targetFlag)
	if !ok {
		return nil, nil, target, fmt.Errorf("unknown target %q", targetFlag)
	}
	sensors, err := loadSensorsCSV(sensorsPath)
	if err != nil {
		return nil, nil, target, fmt.Errorf("loading sensors: %w", err)
	}
	var covs []models.CovariateSample
	if covariatesPath != "" {
		covs, err = loadCovariatesCSV(covariatesPath)
		if err != nil {
			return nil, nil, target, fmt.Errorf("loading covariates: %w", err)
		}
	}
	return sensors, covs, target, nil
}

func parseBounds(s string) (models.Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return models.Bounds{}, fmt.Errorf("bounds must be min_x,min_y,max_x,max_y, got %q", s)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return models.Bounds{}, fmt.Errorf("bounds component %d: %w", i, err)
		}
		vals[i] = v
	}
	return models.Bounds{MinX: vals[0], MinY: vals[1], MaxX: vals[2], MaxY: vals[3]}, nil
}

func runInterpolate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	engine, _ := buildEngine(cfg)

	sensors, covs, target, err := loadInputs()
	if err != nil {
		return err
	}
	bounds, err := parseBounds(boundsFlag)
	if err != nil {
		return err
	}
	res := resolution
	if res == 0 {
		res = cfg.Interpolation.ResolutionMeters
	}

	grid, err := engine.Interpolate(sensors, covs, bounds, res, target)
	if err != nil {
		return err
	}

	if err := writeGrid(grid, outPath); err != nil {
		return err
	}
	if pngPrediction != "" {
		if err := savePNG(grid.Prediction, pngPrediction, false); err != nil {
			return err
		}
	}
	if pngVariance != "" {
		if err := savePNG(grid.Variance, pngVariance, true); err != nil {
			return err
		}
	}
	return nil
}

func writeGrid(grid *interpolation.PredictionGrid, path string) error {
	out := os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(grid)
}

func savePNG(grid [][]float64, path string, grayscale bool) error {
	r := render.NewRenderer(pngScale)
	var (
		img image.Image
		err error
	)
	if grayscale {
		img, err = r.Grayscale(grid)
	} else {
		img, err = r.Heatmap(grid)
	}
	if err != nil {
		return err
	}
	return render.SavePNG(img, path)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	engine, _ := buildEngine(cfg)

	sensors, covs, target, err := loadInputs()
	if err != nil {
		return err
	}

	report, err := engine.CrossValidate(sensors, covs, target)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	engine, logger := buildEngine(cfg)
	metrics := observability.NewMetrics()

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	srv := httpapi.NewServer(addr, engine, cfg.Interpolation.ResolutionMeters, metrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownGraceSeconds)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
