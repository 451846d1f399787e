package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/hitscore/internal/adapters/mq/queue"
	"github.com/okian/hitscore/internal/domain/model"
	"github.com/okian/hitscore/pkg/logger"
	"github.com/okian/hitscore/pkg/metrics"
)

const workerShutdownTimeout = 5 * time.Second

// Job abstracts what workers read off the queue.
type Job = queue.Job

// Processor localizes and scores the frame behind one impact job.
type Processor interface {
	Process(ctx context.Context, job Job) (model.ImpactEvent, error)
}

// Sink receives finished events.
type Sink interface {
	Add(ctx context.Context, event model.ImpactEvent) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes impact jobs.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue drains.
	Run(ctx context.Context)

	// Shutdown stops the worker.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	processor Processor
	sink      Sink
	name      string

	// onError receives every job failure.
	onError func(error)

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, processor Processor, sink Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     queue,
		processor: processor,
		sink:      sink,
		name:      "worker",
		onError:   func(error) {},
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Nop(),
	}

	for _, opt := range opts {
		opt(w)
	}

	w.logger = w.logger.Named(w.name)

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.processJob(ctx, job); err != nil {
				w.logger.Error(ctx, "impact job failed",
					logger.Int("frame", job.FrameIndex),
					logger.Error(err),
				)
				w.onError(err)
			}
		}
	}
}

// Shutdown stops the worker and waits for the current job to finish.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) processJob(ctx context.Context, job Job) error {
	start := time.Now()
	event, err := w.processor.Process(ctx, job)
	metrics.RecordLocalizationLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		metrics.RecordWorkerError()
		return fmt.Errorf("impact %d at frame %d: %w", job.Ordinal, job.FrameIndex, err)
	}

	if err := w.sink.Add(ctx, event); err != nil {
		metrics.RecordWorkerError()
		return fmt.Errorf("collect impact %d: %w", job.Ordinal, err)
	}

	w.logger.Debug(ctx, "impact processed",
		logger.Int("ordinal", event.Ordinal),
		logger.Int("frame", event.FrameIndex),
		logger.Bool("scored", event.Scored),
		logger.Int("points", event.PointValue),
	)
	return nil
}

// Pool manages multiple workers sharing one queue. The first job failure
// cancels the pool context so the remaining workers stop early.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	cancel  context.CancelFunc
	errOnce sync.Once
	err     error
	wg      sync.WaitGroup

	logger logger.Logger
}

// NewPool creates a new worker pool. A count below one uses runtime.NumCPU().
func NewPool(workerCount int, queue Queue, processor Processor, sink Sink, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		cancel:  func() {},
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(pool)
	}
	pool.logger = pool.logger.Named("worker-pool")

	for i := 0; i < workerCount; i++ {
		w := NewInMemoryWorker(
			queue,
			processor,
			sink,
			WithName("worker-"+strconv.Itoa(i)),
			WithLogger(pool.logger),
		)
		w.onError = pool.fail
		pool.workers[i] = w
	}

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool. The returned context is cancelled on
// the first job failure; producers should enqueue with it.
func (p *Pool) Start(ctx context.Context) context.Context {
	ctx, p.cancel = context.WithCancel(ctx)
	metrics.UpdateWorkerActiveCount(len(p.workers))

	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *InMemoryWorker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
	return ctx
}

func (p *Pool) fail(err error) {
	p.errOnce.Do(func() {
		p.err = err
		p.cancel()
	})
}

// Wait blocks until every worker has returned, which happens once the queue
// is closed and drained or the pool context is cancelled. It returns the
// first job failure, or the context error if the run was cancelled.
func (p *Pool) Wait(ctx context.Context) error {
	p.wg.Wait()
	p.cancel()
	metrics.UpdateWorkerActiveCount(0)

	if p.err != nil {
		return p.err
	}
	return ctx.Err()
}

// Shutdown closes the queue and stops all workers.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, workerShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	p.cancel()
	metrics.UpdateWorkerActiveCount(0)
	return nil
}
