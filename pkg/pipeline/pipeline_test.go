package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/GoProducerConsumer/pkg/metrics"
)

type counter struct {
	next     atomic.Int64
	produced atomic.Int64
	consumed atomic.Int64
}

func (c *counter) produce() int {
	c.produced.Add(1)
	return int(c.next.Add(1))
}

func (c *counter) consume(int) {
	c.consumed.Add(1)
}

func TestRunInvocationCounts(t *testing.T) {
	for _, kind := range []QueueKind{QueueCond, QueueChan} {
		for _, n := range []int{0, 1, 10, 500} {
			c := &counter{}
			p := New(Producer(c.produce), Consumer(c.consume), WithWorkers(4), WithQueue(kind))
			res, err := p.Run(context.Background(), n)
			require.NoError(t, err)
			assert.EqualValues(t, n, c.produced.Load(), "%s/%d produced", kind, n)
			assert.EqualValues(t, n, c.consumed.Load(), "%s/%d consumed", kind, n)
			assert.EqualValues(t, n, res.Consumed)
		}
	}
}

func TestPipelineIsReusable(t *testing.T) {
	c := &counter{}
	p := New(Producer(c.produce), Consumer(c.consume), WithWorkers(3), WithMode(ModeInterleaved))

	first, err := p.Run(context.Background(), 100)
	require.NoError(t, err)
	second, err := p.Run(context.Background(), 40)
	require.NoError(t, err)

	assert.EqualValues(t, 100, first.Consumed)
	assert.EqualValues(t, 40, second.Consumed)
	assert.EqualValues(t, 140, c.consumed.Load())
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestPipelineReusableAfterFailure(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	var consumed atomic.Int64
	p := New(
		func(context.Context) (int, error) {
			if fail.Load() {
				return 0, errors.New("flaky source")
			}
			return 1, nil
		},
		Consumer(func(int) { consumed.Add(1) }),
		WithWorkers(4),
	)

	_, err := p.Run(context.Background(), 50)
	require.ErrorIs(t, err, ErrCallableFailed)

	fail.Store(false)
	res, err := p.Run(context.Background(), 50)
	require.NoError(t, err)
	assert.EqualValues(t, 50, res.Consumed)
	assert.EqualValues(t, 50, consumed.Load())
}

func TestRunRejectsNegativeCount(t *testing.T) {
	c := &counter{}
	_, err := New(Producer(c.produce), Consumer(c.consume)).Run(context.Background(), -5)
	assert.ErrorIs(t, err, ErrInvalidItemCount)
	assert.Zero(t, c.produced.Load())
}

func TestProduceFailureOnThirdCall(t *testing.T) {
	for _, kind := range []QueueKind{QueueCond, QueueChan} {
		t.Run(string(kind), func(t *testing.T) {
			var calls atomic.Int32
			p := New(
				func(context.Context) (string, error) {
					if calls.Add(1) == 3 {
						return "", errors.New("third call fails")
					}
					return "sheet", nil
				},
				Consumer(func(string) {}),
				WithWorkers(8),
				WithProducers(1),
				WithQueue(kind),
			)

			done := make(chan error, 1)
			go func() {
				_, err := p.Run(context.Background(), 1000)
				done <- err
			}()

			select {
			case err := <-done:
				var stageErr *StageError
				require.ErrorAs(t, err, &stageErr)
				assert.Equal(t, RoleProduce, stageErr.Role)
				// One dedicated producer claims items in order.
				assert.Equal(t, 2, stageErr.Index)
			case <-time.After(10 * time.Second):
				t.Fatal("Run hung after a producer failure")
			}
		})
	}
}

func TestSortedConsumptionMatchesProduction(t *testing.T) {
	for _, workers := range []int{1, 2, 4, 8} {
		var next atomic.Int64
		var mu sync.Mutex
		seen := make(map[int64]int)

		p := New(
			Producer(func() int64 { return next.Add(1) - 1 }),
			Consumer(func(v int64) {
				mu.Lock()
				seen[v]++
				mu.Unlock()
			}),
			WithWorkers(workers),
		)
		_, err := p.Run(context.Background(), 1000)
		require.NoError(t, err)

		require.Len(t, seen, 1000, "workers=%d", workers)
		for i := int64(0); i < 1000; i++ {
			assert.Equal(t, 1, seen[i], "workers=%d item=%d", workers, i)
		}
	}
}

func TestWithPoolAndMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c := &counter{}
	p := New(Producer(c.produce), Consumer(c.consume),
		WithPool(Pool{Workers: 6, Producers: 2, Mode: ModeDedicated}),
		WithMetrics(m),
	)

	res, err := p.Run(context.Background(), 300)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Workers)
	assert.Equal(t, 2, res.Producers)
	assert.Equal(t, 300.0, testutil.ToFloat64(m.ItemsConsumed))
}

func TestParseQueueKind(t *testing.T) {
	tests := []struct {
		in      string
		want    QueueKind
		wantErr bool
	}{
		{"", QueueCond, false},
		{"cond", QueueCond, false},
		{" CHAN ", QueueChan, false},
		{"ring", "", true},
	}
	for _, tt := range tests {
		got, err := ParseQueueKind(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
