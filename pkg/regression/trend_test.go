package regression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soilgrid/pkg/covariate"
	"soilgrid/pkg/models"
)

// trendFixture builds colocated observations and covariate samples
// where the target is an exact linear function of three channels, so
// the fitted trend should explain essentially all of the variance.
func trendFixture(n int) ([]models.SensorObservation, []models.CovariateSample) {
	obs := make([]models.SensorObservation, n)
	samples := make([]models.CovariateSample, n)
	for i := 0; i < n; i++ {
		x, y := float64(i%5), float64(i/5)
		s := models.CovariateSample{
			X: x, Y: y,
			NDVI:      0.2 + 0.05*float64(i),
			NDWI:      0.1 * float64((i*3)%7),
			LST:       15 + float64((i*5)%11),
			Elevation: 90 + float64((i*7)%13),
			Slope:     0.5 * float64((i*2)%5),
		}
		samples[i] = s
		obs[i] = models.SensorObservation{
			ID: "s", X: x, Y: y,
			MoistureSurface: 0.1 + 0.4*s.NDVI - 0.01*s.LST + 0.002*s.Elevation,
		}
	}
	return obs, samples
}

func TestFitWithoutCovariatesIsConstant(t *testing.T) {
	obs := []models.SensorObservation{
		{X: 0, Y: 0, MoistureSurface: 0.20},
		{X: 1, Y: 0, MoistureSurface: 0.25},
		{X: 0, Y: 1, MoistureSurface: 0.30},
	}

	m, residuals, used, err := Fit(obs, nil, models.TargetMoistureSurface)
	require.NoError(t, err)

	assert.True(t, m.Constant)
	assert.InDelta(t, 0.25, m.Intercept, 1e-12)
	assert.Len(t, used, 3)

	var sum float64
	for _, r := range residuals {
		sum += r
	}
	assert.InDelta(t, 0, sum, 1e-12)
	assert.InDelta(t, 0.25, m.Predict(nil), 1e-12)
}

func TestFitConstantNeedsTwoObservations(t *testing.T) {
	obs := []models.SensorObservation{{X: 0, Y: 0, MoistureSurface: 0.2}}

	_, _, _, err := Fit(obs, nil, models.TargetMoistureSurface)

	var insufficient *models.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "trend", insufficient.Stage)
	assert.Equal(t, 2, insufficient.Need)
	assert.Equal(t, 1, insufficient.Got)
}

func TestFitWithCovariatesNeedsDimPlusTwo(t *testing.T) {
	obs, samples := trendFixture(models.CovariateDim + 1)
	s := covariate.NewSampler(samples)

	_, _, _, err := Fit(obs, s, models.TargetMoistureSurface)

	var insufficient *models.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, models.CovariateDim+2, insufficient.Need)
	assert.Equal(t, models.CovariateDim+1, insufficient.Got)
}

func TestFitRecoversLinearTrend(t *testing.T) {
	obs, samples := trendFixture(12)
	s := covariate.NewSampler(samples)

	m, residuals, used, err := Fit(obs, s, models.TargetMoistureSurface)
	require.NoError(t, err)
	require.Len(t, used, 12)

	assert.False(t, m.Constant)
	assert.Greater(t, m.R2, 0.999)
	for i, r := range residuals {
		assert.InDelta(t, 0, r, 1e-6, "residual %d", i)
	}
	for i, sample := range samples {
		assert.InDelta(t, obs[i].MoistureSurface, m.Predict(sample.Vector()), 1e-6)
	}
}

func TestFitFlatTargetFallsBackToConstant(t *testing.T) {
	obs, samples := trendFixture(10)
	for i := range obs {
		obs[i].MoistureSurface = 0.22
	}
	s := covariate.NewSampler(samples)

	m, residuals, _, err := Fit(obs, s, models.TargetMoistureSurface)
	require.NoError(t, err)

	assert.True(t, m.Constant)
	assert.InDelta(t, 0.22, m.Intercept, 1e-12)
	for _, r := range residuals {
		assert.InDelta(t, 0, r, 1e-12)
	}
}

func TestFitCollinearCovariatesStillPredicts(t *testing.T) {
	// Every channel a function of x alone: the design matrix is rank
	// deficient and the ridge fallback has to carry the fit.
	n := 10
	obs := make([]models.SensorObservation, n)
	samples := make([]models.CovariateSample, n)
	for i := 0; i < n; i++ {
		x := float64(i)
		samples[i] = models.CovariateSample{
			X: x, Y: 0,
			NDVI: 0.1 * x, NDWI: 0.2 * x, LST: x, Elevation: 2 * x, Slope: 3 * x,
		}
		obs[i] = models.SensorObservation{X: x, Y: 0, MoistureSurface: 0.1 + 0.02*x}
	}
	s := covariate.NewSampler(samples)

	m, _, _, err := Fit(obs, s, models.TargetMoistureSurface)
	require.NoError(t, err)

	for i, sample := range samples {
		assert.InDelta(t, obs[i].MoistureSurface, m.Predict(sample.Vector()), 1e-3)
	}
}

func TestFitSelectsTarget(t *testing.T) {
	obs, samples := trendFixture(10)
	for i := range obs {
		obs[i].MoistureRoot = 0.5
	}
	s := covariate.NewSampler(samples)

	m, _, _, err := Fit(obs, s, models.TargetMoistureRoot)
	require.NoError(t, err)
	assert.True(t, m.Constant)
	assert.InDelta(t, 0.5, m.Intercept, 1e-12)
}

func TestStandardizeZeroVarianceChannel(t *testing.T) {
	rows := [][]float64{
		{1, 5, 0.3, 2, 7},
		{2, 5, 0.4, 3, 7},
		{3, 5, 0.5, 4, 7},
	}
	means, stds := standardize(rows)

	assert.InDelta(t, 5.0, means[1], 1e-12)
	assert.Equal(t, 1.0, stds[1], "flat channel keeps unit scale")
	assert.Equal(t, 1.0, stds[4])
	assert.Greater(t, stds[0], 0.0)
}
