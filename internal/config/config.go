package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Listen is the address of the metrics/health HTTP listener.
	Listen string `yaml:"listen"`
	Logger struct {
		Verbosity string `yaml:"verbosity"`
	} `yaml:"logger"`
	CUDA struct {
		// Optional overrides for the shared library sonames. Empty means
		// the default search chain (libcublas.so.12 → .11 → unversioned).
		CublasLibrary string `yaml:"cublasLibrary"`
		CudartLibrary string `yaml:"cudartLibrary"`
	} `yaml:"cuda"`
	Pool struct {
		// WarmHandles is the number of handles pre-created for the default
		// stream at startup so the first dispatches skip creation cost.
		WarmHandles int `yaml:"warmHandles"`
	} `yaml:"pool"`
	Selftest struct {
		// Enabled runs a known batched triangular solve through the full
		// dispatch path at startup and fails startup if it miscomputes.
		Enabled bool `yaml:"enabled"`
	} `yaml:"selftest"`
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	cfg := &Config{Listen: ":9090"}
	cfg.Logger.Verbosity = "info"
	cfg.Selftest.Enabled = true
	return cfg
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return config, nil
}
