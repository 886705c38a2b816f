package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/GoProducerConsumer/internal/report"
)

func TestCollectSkipsFailedRuns(t *testing.T) {
	sessions := []report.Session{{Runs: []report.RunResult{
		{Queue: "cond", Mode: "dedicated", Workers: 2, Consumed: 100, ActualElapsed: "1ms"},
		{Queue: "cond", Mode: "dedicated", Workers: 2, Consumed: 100, ActualElapsed: "2ms"},
		{Queue: "chan", Mode: "interleaved", Workers: 4, Consumed: 10, ActualElapsed: "1ms"},
		{Queue: "cond", Mode: "dedicated", Workers: 2, Consumed: 0, ActualElapsed: "1ms"},
		{Queue: "cond", Mode: "dedicated", Workers: 2, Consumed: 3, ActualElapsed: "1ms", Error: "boom"},
		{Queue: "cond", Mode: "dedicated", Workers: 2, Consumed: 3, ActualElapsed: "bogus"},
	}}}

	got := collect(sessions)
	assert.Equal(t, []float64{10_000, 20_000}, got["cond"]["dedicated"][2])
	assert.Equal(t, []float64{100_000}, got["chan"]["interleaved"][4])
	assert.Len(t, got, 2)
}

func TestBuildStatsOrderedByWorkers(t *testing.T) {
	stats := buildStats(map[int][]float64{
		8: {5, 1, 3},
		1: {7},
	})
	require.Len(t, stats, 2)
	assert.Equal(t, 1, stats[0].workers)
	assert.Equal(t, 7.0, stats[0].median)
	assert.Equal(t, 8, stats[1].workers)
	assert.Equal(t, 3.0, stats[1].median)
	assert.Equal(t, 1.0, stats[1].low)
	assert.Equal(t, 5.0, stats[1].high)
}

func TestDrawQueueWritesPNG(t *testing.T) {
	file := filepath.Join(t.TempDir(), "graph.png")
	err := drawQueue("cond", map[string]map[int][]float64{
		"dedicated":   {1: {100, 120}, 2: {80, 90}},
		"interleaved": {1: {110}, 2: {70, 75, 72}},
	}, file)
	require.NoError(t, err)
	assert.FileExists(t, file)
}

func TestFormatNs(t *testing.T) {
	assert.Equal(t, "500ns", formatNs(500))
	assert.Equal(t, "1.5µs", formatNs(1500))
	assert.Equal(t, "2.0ms", formatNs(2e6))
	assert.Equal(t, "3.00s", formatNs(3e9))
}
