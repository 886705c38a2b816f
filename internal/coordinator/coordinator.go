package coordinator

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/i5heu/GoProducerConsumer/internal/queue"
	"github.com/i5heu/GoProducerConsumer/pkg/blockingqueue"
	"github.com/i5heu/GoProducerConsumer/pkg/metrics"
)

// Mode decides which role each worker of the pool plays.
type Mode int

const (
	// ModeDedicated runs Producers workers that only produce; the rest only consume.
	ModeDedicated Mode = iota
	// ModeInterleaved lets every worker alternate between producing and consuming.
	ModeInterleaved
)

func (m Mode) String() string {
	switch m {
	case ModeDedicated:
		return "dedicated"
	case ModeInterleaved:
		return "interleaved"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "dedicated" or "interleaved", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dedicated", "":
		return ModeDedicated, nil
	case "interleaved":
		return ModeInterleaved, nil
	default:
		return 0, fmt.Errorf("unknown mode %q (want dedicated or interleaved)", s)
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Phase is the lifecycle state of a single run.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseDraining
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseDraining:
		return "draining"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Config is only about concurrency: how many workers and how their roles are assigned.
type Config struct {
	Workers   int  `yaml:"workers" json:"workers"`
	Producers int  `yaml:"producers" json:"producers"`
	Mode      Mode `yaml:"mode" json:"mode"`
}

// Normalize fills defaults: Workers <= 0 means runtime.NumCPU(); a dedicated
// pool keeps at least one consumer and one producer, and a single worker
// always interleaves.
func (c Config) Normalize() Config {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Workers == 1 {
		c.Mode = ModeInterleaved
	}
	if c.Mode == ModeInterleaved {
		c.Producers = c.Workers
		return c
	}
	if c.Producers <= 0 {
		c.Producers = 1
	}
	if c.Producers > c.Workers-1 {
		c.Producers = c.Workers - 1
	}
	return c
}

// Item is the queue envelope: the produced value plus its logical index.
type Item[T any] struct {
	Index int
	Value T
}

type (
	ProduceFunc[T any] func(ctx context.Context) (T, error)
	ConsumeFunc[T any] func(ctx context.Context, item T) error
)

// Job bundles the callables of a run with its optional collaborators.
type Job[T any] struct {
	Produce ProduceFunc[T]
	Consume ConsumeFunc[T]

	// NewQueue builds the hand-off queue for one run. Nil means blockingqueue.New.
	NewQueue func() queue.Queue[Item[T]]
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

// Result summarises one run.
type Result struct {
	RunID     uuid.UUID
	Workers   int
	Producers int
	Mode      Mode
	Produced  int64
	Consumed  int64
	Elapsed   time.Duration
	Phase     Phase
}

// Run produces and consumes exactly itemCount items with the worker pool
// described by cfg and returns once every item has been consumed, or on the
// first failure. A zero itemCount returns at once without starting workers.
func Run[T any](ctx context.Context, cfg Config, job Job[T], itemCount int) (Result, error) {
	if itemCount < 0 {
		return Result{}, fmt.Errorf("%w: got %d", ErrInvalidItemCount, itemCount)
	}
	if job.Produce == nil || job.Consume == nil {
		return Result{}, ErrNilCallable
	}

	cfg = cfg.Normalize()
	res := Result{
		RunID:     uuid.New(),
		Workers:   cfg.Workers,
		Producers: cfg.Producers,
		Mode:      cfg.Mode,
		Phase:     PhaseIdle,
	}
	if itemCount == 0 {
		res.Phase = PhaseDone
		return res, nil
	}

	newQueue := job.NewQueue
	if newQueue == nil {
		newQueue = func() queue.Queue[Item[T]] { return blockingqueue.New[Item[T]]() }
	}
	log := job.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := &run[T]{
		total:   int64(itemCount),
		q:       newQueue(),
		produce: job.Produce,
		consume: job.Consume,
		log:     log.With(zap.String("run_id", res.RunID.String())),
		metrics: job.Metrics,
	}
	r.leftToProduce.Store(r.total)
	r.leftToConsume.Store(r.total)

	r.log.Info("run started",
		zap.Int("items", itemCount),
		zap.Int("workers", cfg.Workers),
		zap.Int("producers", cfg.Producers),
		zap.Stringer("mode", cfg.Mode),
	)

	start := time.Now()
	r.setPhase(PhaseRunning)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Workers; w++ {
		switch {
		case cfg.Mode == ModeInterleaved:
			g.Go(func() error { return r.interleave(gctx) })
		case w < cfg.Producers:
			g.Go(func() error { return r.produceLoop(gctx) })
		default:
			g.Go(func() error { return r.consumeLoop(gctx) })
		}
	}
	err := g.Wait()
	r.q.Close()

	res.Elapsed = time.Since(start)
	res.Produced = r.produced.Load()
	res.Consumed = r.consumed.Load()

	if err != nil {
		res.Phase = r.currentPhase()
		var stageErr *StageError
		outcome := "failed"
		if !errors.As(err, &stageErr) {
			outcome = "aborted"
			err = fmt.Errorf("%w: %w", ErrAborted, err)
		}
		r.metrics.ResetQueueDepth()
		r.metrics.RunFinished(outcome, res.Elapsed)
		r.log.Warn("run stopped early",
			zap.Error(err),
			zap.Int64("produced", res.Produced),
			zap.Int64("consumed", res.Consumed),
			zap.Stringer("phase", res.Phase),
		)
		return res, err
	}

	r.setPhase(PhaseDone)
	res.Phase = PhaseDone
	r.metrics.RunFinished("ok", res.Elapsed)
	r.log.Info("run finished",
		zap.Duration("elapsed", res.Elapsed),
		zap.Int64("produced", res.Produced),
		zap.Int64("consumed", res.Consumed),
	)
	return res, nil
}

// run is the shared state of one Run call.
type run[T any] struct {
	total int64
	q     queue.Queue[Item[T]]

	leftToProduce atomic.Int64
	leftToConsume atomic.Int64
	produced      atomic.Int64
	consumed      atomic.Int64
	phase         atomic.Int32

	produce ProduceFunc[T]
	consume ConsumeFunc[T]
	log     *zap.Logger
	metrics *metrics.Metrics
}

// claim decrements c only while it is positive and returns the value it saw.
func claim(c *atomic.Int64) (int64, bool) {
	for {
		left := c.Load()
		if left <= 0 {
			return 0, false
		}
		if c.CompareAndSwap(left, left-1) {
			return left, true
		}
	}
}

func (r *run[T]) produceLoop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		left, ok := claim(&r.leftToProduce)
		if !ok {
			return nil
		}
		if err := r.produceOne(ctx, int(r.total-left)); err != nil {
			return err
		}
	}
}

// consumeLoop claims a consume slot before popping, so it never waits for an
// item nobody is going to push.
func (r *run[T]) consumeLoop(ctx context.Context) error {
	for {
		if _, ok := claim(&r.leftToConsume); !ok {
			return nil
		}
		if err := r.consumeOne(ctx); err != nil {
			return err
		}
	}
}

// interleave alternates roles. Every push happens before the same worker's
// pop, so the pops claimed never outnumber the pushes still to come.
func (r *run[T]) interleave(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		worked := false
		if left, ok := claim(&r.leftToProduce); ok {
			worked = true
			if err := r.produceOne(ctx, int(r.total-left)); err != nil {
				return err
			}
		}
		if _, ok := claim(&r.leftToConsume); ok {
			worked = true
			if err := r.consumeOne(ctx); err != nil {
				return err
			}
		}
		if !worked {
			return nil
		}
	}
}

func (r *run[T]) produceOne(ctx context.Context, index int) error {
	val, err := r.callProduce(ctx)
	if err != nil {
		return r.fail(ctx, RoleProduce, index, err)
	}
	r.q.Push(Item[T]{Index: index, Value: val})
	r.metrics.ItemProduced()
	if r.produced.Add(1) == r.total {
		r.setPhase(PhaseDraining)
	}
	return nil
}

func (r *run[T]) consumeOne(ctx context.Context) error {
	item, err := r.q.Pop(ctx)
	if err != nil {
		return err
	}
	r.metrics.ItemDequeued()
	if err := r.callConsume(ctx, item.Value); err != nil {
		return r.fail(ctx, RoleConsume, item.Index, err)
	}
	r.metrics.ItemConsumed()
	r.consumed.Add(1)
	return nil
}

// fail turns a callable error into a StageError, unless the callable only
// gave up because the run was already being torn down.
func (r *run[T]) fail(ctx context.Context, role Role, index int, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return ctxErr
	}
	r.metrics.CallableFailed(role.String())
	return &StageError{Role: role, Index: index, Err: err}
}

func (r *run[T]) callProduce(ctx context.Context) (val T, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicError{value: p}
		}
	}()
	return r.produce(ctx)
}

func (r *run[T]) callConsume(ctx context.Context, val T) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicError{value: p}
		}
	}()
	return r.consume(ctx, val)
}

func (r *run[T]) setPhase(to Phase) {
	from := Phase(r.phase.Swap(int32(to)))
	if from != to {
		r.log.Debug("phase changed", zap.Stringer("from", from), zap.Stringer("to", to))
	}
}

func (r *run[T]) currentPhase() Phase {
	return Phase(r.phase.Load())
}
