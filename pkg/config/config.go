package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/i5heu/GoProducerConsumer/internal/logging"
	"github.com/i5heu/GoProducerConsumer/pkg/pipeline"
)

// EnvPrefix is prepended to every environment override, e.g. PIPELINE_POOL_WORKERS.
const EnvPrefix = "PIPELINE"

// Pool is an alias for pipeline.Pool. This allows other programs to import
// the worker pool configuration without pulling in the CLI settings.
type Pool = pipeline.Pool

// Config holds everything the pipeline CLI can be configured with.
type Config struct {
	Pool Pool           `yaml:"pool" json:"pool"`
	Run  RunConfig      `yaml:"run" json:"run"`
	Log  logging.Config `yaml:"log" json:"log"`
}

// RunConfig describes the demo workload.
type RunConfig struct {
	Items      int                `yaml:"items" json:"items" envconfig:"ITEMS"`
	Queue      pipeline.QueueKind `yaml:"queue" json:"queue" envconfig:"QUEUE"`
	Iterations int                `yaml:"iterations" json:"iterations" envconfig:"ITERATIONS"`
	Trace      bool               `yaml:"trace" json:"trace" envconfig:"TRACE"`
	Seed       int64              `yaml:"seed" json:"seed" envconfig:"SEED"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Pool: Pool{
			Workers:   0,
			Producers: 1,
			Mode:      pipeline.ModeDedicated,
		},
		Run: RunConfig{
			Items:      100,
			Queue:      pipeline.QueueCond,
			Iterations: 1,
		},
		Log: logging.DefaultConfig(),
	}
}

// Load applies, in order, the defaults, the file at path (skipped when path
// is empty) and PIPELINE_* environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format: %s", ext)
	}
	return nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Run.Items < 0:
		return fmt.Errorf("run.items must be >= 0, got %d", c.Run.Items)
	case c.Run.Iterations < 1:
		return fmt.Errorf("run.iterations must be >= 1, got %d", c.Run.Iterations)
	case c.Pool.Workers < 0:
		return fmt.Errorf("pool.workers must be >= 0, got %d", c.Pool.Workers)
	case c.Pool.Producers < 0:
		return fmt.Errorf("pool.producers must be >= 0, got %d", c.Pool.Producers)
	}
	if _, err := pipeline.ParseQueueKind(string(c.Run.Queue)); err != nil {
		return err
	}
	return nil
}
