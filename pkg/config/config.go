// Package config provides configuration loading and management for soilgrid.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Interpolation parameters
	Interpolation struct {
		// Workers specifies how many goroutines evaluate kriging batches
		Workers int `yaml:"workers"`

		// BatchSize bounds how many grid cells a worker evaluates per batch
		BatchSize int `yaml:"batchSize"`

		// VariogramBins is the number of lag bins for the empirical variogram
		VariogramBins int `yaml:"variogramBins"`

		// CovariateNeighbors is the neighborhood size for covariate
		// interpolation onto the grid
		CovariateNeighbors int `yaml:"covariateNeighbors"`

		// ResolutionMeters is the default grid resolution when the caller
		// does not specify one
		ResolutionMeters float64 `yaml:"resolutionMeters"`
	} `yaml:"interpolation"`

	// Server parameters for the service surface
	Server struct {
		// Addr is the listen address for the HTTP API
		Addr string `yaml:"addr"`

		// ShutdownGraceSeconds bounds how long in-flight requests may
		// finish after a termination signal
		ShutdownGraceSeconds int `yaml:"shutdownGraceSeconds"`
	} `yaml:"server"`

	// Logging parameters
	Logging struct {
		// Level is one of debug, info, warn, error
		Level string `yaml:"level"`

		// Format is "text" or "json"
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Interpolation.Workers = runtime.NumCPU()
	cfg.Interpolation.BatchSize = 1000
	cfg.Interpolation.VariogramBins = 15
	cfg.Interpolation.CovariateNeighbors = 8
	cfg.Interpolation.ResolutionMeters = 10.0

	cfg.Server.Addr = ":8080"
	cfg.Server.ShutdownGraceSeconds = 10

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
