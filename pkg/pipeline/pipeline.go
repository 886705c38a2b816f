// Package pipeline runs a fixed number of items through user supplied
// produce and consume callables on a pool of goroutines connected by a
// blocking hand-off queue.
//
//	p := pipeline.New(
//		pipeline.Producer(newSheet),
//		pipeline.Consumer(calculate),
//		pipeline.WithWorkers(8),
//	)
//	res, err := p.Run(ctx, 100)
//
// Both callables are invoked concurrently from several goroutines; any
// shared state they touch must be synchronised by the caller.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/i5heu/GoProducerConsumer/internal/coordinator"
	"github.com/i5heu/GoProducerConsumer/internal/queue"
	"github.com/i5heu/GoProducerConsumer/pkg/blockingqueue"
	"github.com/i5heu/GoProducerConsumer/pkg/chanqueue"
	"github.com/i5heu/GoProducerConsumer/pkg/metrics"
)

type (
	// Pool is the worker pool configuration.
	Pool = coordinator.Config
	// Mode assigns producer and consumer roles to workers.
	Mode = coordinator.Mode
	// Result summarises a completed or aborted run.
	Result = coordinator.Result
	// StageError reports which callable failed and for which item.
	StageError = coordinator.StageError

	ProduceFunc[T any] = coordinator.ProduceFunc[T]
	ConsumeFunc[T any] = coordinator.ConsumeFunc[T]
)

const (
	ModeDedicated   = coordinator.ModeDedicated
	ModeInterleaved = coordinator.ModeInterleaved

	RoleProduce = coordinator.RoleProduce
	RoleConsume = coordinator.RoleConsume
)

var (
	ErrInvalidItemCount = coordinator.ErrInvalidItemCount
	ErrNilCallable      = coordinator.ErrNilCallable
	ErrCallableFailed   = coordinator.ErrCallableFailed
	ErrAborted          = coordinator.ErrAborted

	ParseMode = coordinator.ParseMode
)

// QueueKind selects the hand-off queue implementation.
type QueueKind string

const (
	// QueueCond is the sync.Cond based blockingqueue. Default.
	QueueCond QueueKind = "cond"
	// QueueChan is the channel hand-off chanqueue.
	QueueChan QueueKind = "chan"
)

// ParseQueueKind accepts "cond" or "chan"; the empty string means QueueCond.
func ParseQueueKind(s string) (QueueKind, error) {
	switch k := QueueKind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return QueueCond, nil
	case QueueCond, QueueChan:
		return k, nil
	default:
		return "", fmt.Errorf("unknown queue kind %q (want cond or chan)", s)
	}
}

func (k *QueueKind) UnmarshalText(text []byte) error {
	parsed, err := ParseQueueKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Producer adapts a plain value generator.
func Producer[T any](fn func() T) ProduceFunc[T] {
	return func(context.Context) (T, error) { return fn(), nil }
}

// Consumer adapts a plain sink.
func Consumer[T any](fn func(T)) ConsumeFunc[T] {
	return func(_ context.Context, item T) error {
		fn(item)
		return nil
	}
}

type settings struct {
	pool    Pool
	queue   QueueKind
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Pipeline.
type Option func(*settings)

func WithPool(pool Pool) Option {
	return func(s *settings) { s.pool = pool }
}

// WithWorkers sets the pool size; n <= 0 means runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(s *settings) { s.pool.Workers = n }
}

// WithProducers sets how many workers only produce in ModeDedicated.
func WithProducers(n int) Option {
	return func(s *settings) { s.pool.Producers = n }
}

func WithMode(m Mode) Option {
	return func(s *settings) { s.pool.Mode = m }
}

func WithQueue(kind QueueKind) Option {
	return func(s *settings) { s.queue = kind }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// Pipeline holds the callables and settings; every Run gets its own queue
// and counters, so a Pipeline can be run again once a Run has returned.
type Pipeline[T any] struct {
	produce ProduceFunc[T]
	consume ConsumeFunc[T]
	s       settings
}

func New[T any](produce ProduceFunc[T], consume ConsumeFunc[T], opts ...Option) *Pipeline[T] {
	s := settings{queue: QueueCond}
	for _, opt := range opts {
		opt(&s)
	}
	return &Pipeline[T]{produce: produce, consume: consume, s: s}
}

// Run blocks until itemCount items have each been produced and consumed
// exactly once, the first callable failure, or ctx ends.
func (p *Pipeline[T]) Run(ctx context.Context, itemCount int) (Result, error) {
	job := coordinator.Job[T]{
		Produce:  p.produce,
		Consume:  p.consume,
		NewQueue: p.queueFactory(),
		Logger:   p.s.logger,
		Metrics:  p.s.metrics,
	}
	return coordinator.Run(ctx, p.s.pool, job, itemCount)
}

func (p *Pipeline[T]) queueFactory() func() queue.Queue[coordinator.Item[T]] {
	if p.s.queue == QueueChan {
		return func() queue.Queue[coordinator.Item[T]] { return chanqueue.New[coordinator.Item[T]]() }
	}
	return func() queue.Queue[coordinator.Item[T]] { return blockingqueue.New[coordinator.Item[T]]() }
}
