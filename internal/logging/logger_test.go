package logging

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
	assert.NotNil(t, NewOrNop(Config{Level: "loud"}))
}

func TestNewDefault(t *testing.T) {
	logger, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestTraceWritesWholeLines(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := zap.New(core)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			Trace(l, "generating spreadsheet #%d", i)
		}(i)
	}
	wg.Wait()

	entries := logs.All()
	require.Len(t, entries, 50)
	seen := make(map[string]bool)
	for _, e := range entries {
		assert.Equal(t, "trace", e.LoggerName)
		seen[e.Message] = true
	}
	for i := 0; i < 50; i++ {
		assert.True(t, seen[fmt.Sprintf("generating spreadsheet #%d", i)])
	}
}

func TestTraceSkippedAboveDebug(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	Trace(zap.New(core), "hidden %d", 1)
	assert.Zero(t, logs.Len())
}
