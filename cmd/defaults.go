package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/moe-regress/harness"
)

const defaultsFilePath = "defaults.yaml"

// HarnessConfig represents the full defaults.yaml structure.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type HarnessConfig struct {
	Version          string           `yaml:"version"`
	Launcher         harness.Launcher `yaml:"launcher"`
	Baseline         string           `yaml:"baseline"`
	Suite            string           `yaml:"suite"`
	Strict           bool             `yaml:"strict"`
	ReducedPrefix    int              `yaml:"reduced_prefix"`
	WarnUnmatchedGPU bool             `yaml:"warn_unmatched_gpu"`
	Timeout          time.Duration    `yaml:"timeout"`
}

func defaultHarnessConfig() HarnessConfig {
	compare := harness.DefaultCompareConfig()
	return HarnessConfig{
		Version:          "1",
		Launcher:         harness.DefaultLauncher(),
		Baseline:         "tests/test_baseline.json",
		ReducedPrefix:    compare.ReducedPrefix,
		WarnUnmatchedGPU: compare.WarnUnmatchedGPU,
	}
}

// loadHarnessConfig parses defaults.yaml over the built-in defaults, so keys
// missing from the file keep their default values. A missing file at the
// default location is not an error.
// Uses strict field checking: typos must cause errors.
func loadHarnessConfig(path string, explicit bool) (HarnessConfig, error) {
	cfg := defaultHarnessConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			logrus.Debugf("%s not found, using built-in defaults", path)
			return cfg, nil
		}
		return cfg, fmt.Errorf("read defaults file %s: %w", path, err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse defaults YAML %s: %w", path, err)
	}
	if cfg.ReducedPrefix < 1 {
		return cfg, fmt.Errorf("%s: reduced_prefix must be >= 1, got %d", path, cfg.ReducedPrefix)
	}
	if cfg.Timeout < 0 {
		return cfg, fmt.Errorf("%s: timeout must be >= 0, got %s", path, cfg.Timeout)
	}
	return cfg, nil
}

func (c HarnessConfig) runnerConfig() harness.RunnerConfig {
	return harness.RunnerConfig{
		Launcher: c.Launcher,
		Strict:   c.Strict,
		Timeout:  c.Timeout,
	}
}

func (c HarnessConfig) compareConfig() harness.CompareConfig {
	return harness.CompareConfig{
		ReducedPrefix:    c.ReducedPrefix,
		WarnUnmatchedGPU: c.WarnUnmatchedGPU,
	}
}
