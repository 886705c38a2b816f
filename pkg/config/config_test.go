package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/GoProducerConsumer/pkg/pipeline"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 100, cfg.Run.Items)
	assert.Equal(t, pipeline.QueueCond, cfg.Run.Queue)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "pipeline.yaml", `
pool:
  workers: 8
  producers: 2
  mode: interleaved
run:
  items: 250
  queue: chan
  iterations: 3
  trace: true
log:
  level: debug
  development: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Pool{Workers: 8, Producers: 2, Mode: pipeline.ModeInterleaved}, cfg.Pool)
	assert.Equal(t, 250, cfg.Run.Items)
	assert.Equal(t, pipeline.QueueChan, cfg.Run.Queue)
	assert.Equal(t, 3, cfg.Run.Iterations)
	assert.True(t, cfg.Run.Trace)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Development)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "pipeline.json", `{
		"pool": {"workers": 4, "mode": "dedicated"},
		"run": {"items": 10},
		"log": {"level": "error", "development": true, "output_paths": ["stdout", "/tmp/pipeline.log"]}
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Pool.Workers)
	assert.Equal(t, pipeline.ModeDedicated, cfg.Pool.Mode)
	assert.Equal(t, 10, cfg.Run.Items)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.True(t, cfg.Log.Development)
	assert.Equal(t, []string{"stdout", "/tmp/pipeline.log"}, cfg.Log.OutputPaths)
	// Untouched keys keep their defaults.
	assert.Equal(t, 1, cfg.Run.Iterations)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "pipeline.yml", "run:\n  items: 250\npool:\n  workers: 8\n")
	t.Setenv("PIPELINE_RUN_ITEMS", "42")
	t.Setenv("PIPELINE_POOL_MODE", "interleaved")
	t.Setenv("PIPELINE_RUN_QUEUE", "chan")
	t.Setenv("PIPELINE_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Run.Items)
	assert.Equal(t, 8, cfg.Pool.Workers)
	assert.Equal(t, pipeline.ModeInterleaved, cfg.Pool.Mode)
	assert.Equal(t, pipeline.QueueChan, cfg.Run.Queue)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		env  map[string]string
	}{
		{name: "unsupported extension", file: "pipeline.toml", body: "items = 1"},
		{name: "bad yaml", file: "pipeline.yaml", body: "pool: [1, 2"},
		{name: "negative items", file: "pipeline.yaml", body: "run:\n  items: -1\n"},
		{name: "unknown mode", file: "pipeline.yaml", body: "pool:\n  mode: round-robin\n"},
		{name: "unknown queue from env", file: "pipeline.yaml", body: "run:\n  items: 1\n", env: map[string]string{"PIPELINE_RUN_QUEUE": "ring"}},
		{name: "zero iterations", file: "pipeline.json", body: `{"run": {"iterations": 0}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeFile(t, tt.file, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
