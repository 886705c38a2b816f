package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pipeline"

// Metrics holds the Prometheus collectors for pipeline runs.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ItemsProduced    prometheus.Counter
	ItemsConsumed    prometheus.Counter
	CallableFailures *prometheus.CounterVec
	QueueDepth       prometheus.Gauge
	RunDuration      prometheus.Histogram
	Runs             *prometheus.CounterVec
}

// New registers the pipeline collectors with reg.
// Pass prometheus.NewRegistry() in tests to avoid clashing with the default registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ItemsProduced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_produced_total",
			Help:      "Total number of items produced and enqueued",
		}),
		ItemsConsumed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_consumed_total",
			Help:      "Total number of items dequeued and consumed",
		}),
		CallableFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callable_failures_total",
			Help:      "Total number of failed produce or consume calls",
		}, []string{"role"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Items currently waiting in the hand-off queue",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a complete run",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of runs by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ItemProduced() {
	if m == nil {
		return
	}
	m.ItemsProduced.Inc()
	m.QueueDepth.Inc()
}

func (m *Metrics) ItemDequeued() {
	if m == nil {
		return
	}
	m.QueueDepth.Dec()
}

func (m *Metrics) ItemConsumed() {
	if m == nil {
		return
	}
	m.ItemsConsumed.Inc()
}

func (m *Metrics) CallableFailed(role string) {
	if m == nil {
		return
	}
	m.CallableFailures.WithLabelValues(role).Inc()
}

// RunFinished records the outcome ("ok", "failed" or "aborted") and duration of a run.
func (m *Metrics) RunFinished(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
}

// ResetQueueDepth zeroes the depth gauge; items left behind by an aborted run are discarded with its queue.
func (m *Metrics) ResetQueueDepth() {
	if m == nil {
		return
	}
	m.QueueDepth.Set(0)
}
