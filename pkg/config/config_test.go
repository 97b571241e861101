package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.Interpolation.BatchSize)
	assert.Equal(t, 15, cfg.Interpolation.VariogramBins)
	assert.Equal(t, 10.0, cfg.Interpolation.ResolutionMeters)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfigOverridesKeepDefaultsElsewhere(t *testing.T) {
	path := filepath.Join(t.TempDir(), "soilgrid.yaml")
	data := []byte("interpolation:\n  variogramBins: 20\nlogging:\n  format: json\n")
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Interpolation.VariogramBins)
	assert.Equal(t, "json", cfg.Logging.Format)
	// Untouched keys keep their defaults.
	assert.Equal(t, 1000, cfg.Interpolation.BatchSize)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfigMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("interpolation: ["), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "soilgrid.yaml")
	cfg := DefaultConfig()
	cfg.Interpolation.Workers = 3
	cfg.Server.Addr = ":9090"

	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Interpolation.Workers)
	assert.Equal(t, ":9090", loaded.Server.Addr)
}
