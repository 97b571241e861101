package interpolation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soilgrid/pkg/models"
)

// triangleSensors places three sensors inside a bounds box whose 4x4
// lattice (step 0.001 deg at 111.32 m resolution) leaves the (0.003,
// 0.003) corner far from every sensor.
func triangleSensors() ([]models.SensorObservation, models.Bounds, float64) {
	sensors := []models.SensorObservation{
		{ID: "a", X: 0.0002, Y: 0.0002, MoistureSurface: 0.20},
		{ID: "b", X: 0.0016, Y: 0.0003, MoistureSurface: 0.25},
		{ID: "c", X: 0.0008, Y: 0.0016, MoistureSurface: 0.30},
	}
	bounds := models.Bounds{MinX: 0, MinY: 0, MaxX: 0.004, MaxY: 0.004}
	return sensors, bounds, 111.32
}

func TestInterpolateTriangleScenario(t *testing.T) {
	sensors, bounds, res := triangleSensors()
	e := New(WithWorkers(2))

	grid, err := e.Interpolate(sensors, nil, bounds, res, models.TargetMoistureSurface)
	require.NoError(t, err)

	require.Len(t, grid.Prediction, 4)
	require.Len(t, grid.Prediction[0], 4)
	require.Len(t, grid.Variance, 4)
	assert.Equal(t, 0, grid.CovariateGaps)

	limit := grid.Variogram.Sill + grid.Variogram.Nugget
	for r := range grid.Prediction {
		for c := range grid.Prediction[r] {
			p, v := grid.Prediction[r][c], grid.Variance[r][c]
			assert.GreaterOrEqual(t, p, 0.15, "prediction at (%d,%d)", r, c)
			assert.LessOrEqual(t, p, 0.35, "prediction at (%d,%d)", r, c)
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, limit+1e-15)
		}
	}

	// The corner farthest from all sensors carries strictly more
	// uncertainty than the cell nearest the sensor centroid.
	farCorner := grid.Variance[3][3]   // (0.003, 0.003)
	nearCentroid := grid.Variance[1][1] // (0.001, 0.001)
	assert.Greater(t, farCorner, nearCentroid)
}

func TestInterpolateDeterministic(t *testing.T) {
	sensors, bounds, res := triangleSensors()
	e := New(WithWorkers(4), WithBatchSize(3))

	g1, err := e.Interpolate(sensors, nil, bounds, res, models.TargetMoistureSurface)
	require.NoError(t, err)
	g2, err := e.Interpolate(sensors, nil, bounds, res, models.TargetMoistureSurface)
	require.NoError(t, err)

	assert.Equal(t, g1.Prediction, g2.Prediction)
	assert.Equal(t, g1.Variance, g2.Variance)
	assert.Equal(t, g1.Variogram, g2.Variogram)
}

func TestInterpolateTooFewSensors(t *testing.T) {
	sensors := []models.SensorObservation{{X: 0.001, Y: 0.001, MoistureSurface: 0.2}}
	bounds := models.Bounds{MinX: 0, MinY: 0, MaxX: 0.004, MaxY: 0.004}

	_, err := New().Interpolate(sensors, nil, bounds, 111.32, models.TargetMoistureSurface)

	var insufficient *models.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
}

func TestInterpolateInvalidBounds(t *testing.T) {
	sensors, _, res := triangleSensors()
	bad := models.Bounds{MinX: 0.004, MinY: 0, MaxX: 0, MaxY: 0.004}

	_, err := New().Interpolate(sensors, nil, bad, res, models.TargetMoistureSurface)

	var invalid *models.InvalidBoundsError
	require.ErrorAs(t, err, &invalid)
}

func coveredFixture() ([]models.SensorObservation, []models.CovariateSample) {
	// Covariates cover only the inner [0.001, 0.003]^2 square of the
	// bounds, so the outer lattice ring falls outside the hull.
	var covs []models.CovariateSample
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			x := 0.001 + 0.0005*float64(i)
			y := 0.001 + 0.0005*float64(j)
			covs = append(covs, models.CovariateSample{
				X: x, Y: y,
				NDVI:      0.3 + 50*x,
				NDWI:      0.1 + 30*y,
				LST:       22 - 100*x,
				Elevation: 104 + 1000*y,
				Slope:     2.0,
			})
		}
	}
	var sensors []models.SensorObservation
	locs := [][2]float64{
		{0.0011, 0.0012}, {0.0025, 0.0014}, {0.0018, 0.0027},
		{0.0013, 0.0022}, {0.0028, 0.0028}, {0.0021, 0.0011},
		{0.0015, 0.0016}, {0.0026, 0.0022},
	}
	for i, l := range locs {
		sensors = append(sensors, models.SensorObservation{
			ID: "s", X: l[0], Y: l[1],
			MoistureSurface: 0.18 + 20*l[1] + 0.001*float64(i%3),
		})
	}
	return sensors, covs
}

func TestInterpolateFlagsCovariateGaps(t *testing.T) {
	sensors, covs := coveredFixture()
	bounds := models.Bounds{MinX: 0, MinY: 0, MaxX: 0.004, MaxY: 0.004}
	e := New(WithWorkers(1))

	grid, err := e.Interpolate(sensors, covs, bounds, 111.32, models.TargetMoistureSurface)
	require.NoError(t, err)

	// Lattice x,y in {0, 0.001, 0.002, 0.003}; only the 3x3 block with
	// both coordinates >= 0.001 lies inside the covariate hull.
	assert.Equal(t, 7, grid.CovariateGaps)

	limit := grid.Variogram.Sill + grid.Variogram.Nugget
	for r := range grid.Variance {
		for c := range grid.Variance[r] {
			assert.GreaterOrEqual(t, grid.Variance[r][c], 0.0)
			assert.LessOrEqual(t, grid.Variance[r][c], limit+1e-15)
		}
	}
	// A gap corner must not report less uncertainty than a covered
	// interior cell.
	assert.GreaterOrEqual(t, grid.Variance[0][0], grid.Variance[2][2])
}

func TestCrossValidateTriangle(t *testing.T) {
	sensors, _, _ := triangleSensors()
	e := New()

	report, err := e.CrossValidate(sensors, nil, models.TargetMoistureSurface)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Folds)
	assert.Equal(t, 0, report.Skipped)
	assert.Greater(t, report.RMSE, 0.0)
	assert.GreaterOrEqual(t, report.RMSE, report.MAE)
	assert.Equal(t, "moisture_surface", report.Target)
}

func TestCrossValidateAllFoldsSkipped(t *testing.T) {
	sensors := []models.SensorObservation{
		{X: 0, Y: 0, MoistureSurface: 0.2},
		{X: 0.001, Y: 0.001, MoistureSurface: 0.3},
	}

	_, err := New().CrossValidate(sensors, nil, models.TargetMoistureSurface)

	var insufficient *models.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "validation", insufficient.Stage)
}
