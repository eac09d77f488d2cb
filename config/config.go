// Package config holds the run configuration for the training apps.
package config

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/auralab/wavesep/tensor"
)

// Run configures one training run.
type Run struct {
	OutputFolder      string  `yaml:"output_folder"`
	Epochs            int     `yaml:"epochs"`
	Device            string  `yaml:"device"`
	Seed              int64   `yaml:"seed"`
	CacheLogFrequency float64 `yaml:"cache_log_frequency"`
	Validate          bool    `yaml:"validate"`
}

// Default returns the configuration used when no file is given.
func Default() *Run {
	return &Run{
		OutputFolder:      "output",
		Epochs:            10,
		Device:            "cpu",
		Seed:              0,
		CacheLogFrequency: 0.1,
		Validate:          true,
	}
}

// Load reads a YAML config file and applies environment overrides
// (WAVESEP_OUTPUT_FOLDER, WAVESEP_EPOCHS, WAVESEP_DEVICE, WAVESEP_SEED).
func Load(path string) (*Run, error) {
	run := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(data, run); err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
	}

	run.OutputFolder = getEnv("WAVESEP_OUTPUT_FOLDER", run.OutputFolder)
	run.Device = getEnv("WAVESEP_DEVICE", run.Device)
	if v := os.Getenv("WAVESEP_EPOCHS"); v != "" {
		epochs, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.Wrap(err, "parse WAVESEP_EPOCHS")
		}
		run.Epochs = epochs
	}
	if v := os.Getenv("WAVESEP_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "parse WAVESEP_SEED")
		}
		run.Seed = seed
	}

	if run.Epochs < 1 {
		return nil, errors.Errorf("epochs must be at least 1, got %d", run.Epochs)
	}
	if run.CacheLogFrequency <= 0 || run.CacheLogFrequency > 1 {
		return nil, errors.Errorf("cache_log_frequency must be in (0, 1], got %g", run.CacheLogFrequency)
	}
	return run, nil
}

// DeviceType maps the configured device name onto a tensor device. Unknown
// names mean the CPU.
func (r *Run) DeviceType() tensor.DeviceType {
	if r.Device == "gpu" || r.Device == "cuda" {
		return tensor.GPU
	}
	return tensor.CPU
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
