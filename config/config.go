// Package config loads the YAML-driven settings for a txnbenchd
// process: which concurrency-control mode to run, how many workers to
// give the pool, and the logger/telemetry sub-configs those packages
// already define their own yaml-tagged structs for.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/concurrency-lab/txnbench/pkg/logger"
	"github.com/concurrency-lab/txnbench/pkg/telemetry"
)

// Config is the top-level shape of a txnbenchd YAML config file.
type Config struct {
	// Mode names a concurrency-control strategy: SERIAL,
	// LOCKING_EXCLUSIVE_ONLY, LOCKING, TWOPL, TWOPL2, OCC, P_OCC, MVCC,
	// or SILO.
	Mode string `yaml:"mode"`
	// Workers is the fixed worker pool size. Zero or unset falls back
	// to the reference configuration's default of eight.
	Workers int `yaml:"workers"`
	// StoreKeys is how many keys Store.Init pre-populates at startup.
	StoreKeys int `yaml:"store_keys"`

	Logger    logger.Config    `yaml:"logger"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// Load reads and parses a YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}

// Default returns the reference configuration: SERIAL mode, eight
// workers, a thousand pre-populated keys, development logging, and
// telemetry disabled.
func Default() *Config {
	return &Config{
		Mode:      "SERIAL",
		Workers:   8,
		StoreKeys: 1000,
		Logger: logger.Config{
			Level:  "info",
			Format: "console",
		},
		Telemetry: telemetry.Config{
			Enabled:          false,
			PrometheusPort:   9090,
			TraceSampleRatio: 0,
		},
	}
}
