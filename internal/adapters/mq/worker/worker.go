// Package worker runs queued analysis jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/framecoach/internal/domain/fault"
	"github.com/okian/framecoach/internal/domain/model"
	"github.com/okian/framecoach/pkg/logger"
	"github.com/okian/framecoach/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Runner executes one job. The orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, job model.Job) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Job
}

// InMemoryWorker pulls jobs off the queue and hands them to the Runner.
type InMemoryWorker struct {
	queue  Queue
	runner Runner
	name   string

	done chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker with configuration options.
func NewInMemoryWorker(queue Queue, runner Runner, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:  queue,
		runner: runner,
		name:   "worker",
		done:   make(chan struct{}),
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(logger.String("worker", w.name))
	return w
}

// Run processes jobs until the queue is closed and drained or ctx is done.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	for job := range w.queue.Dequeue(ctx) {
		w.process(ctx, job)
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) process(ctx context.Context, job model.Job) {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerLatency(float64(time.Since(start).Milliseconds()))
	}()

	err := w.runner.Run(ctx, job)
	switch {
	case err == nil:
	case errors.Is(err, fault.ErrSuperseded), errors.Is(err, context.Canceled):
		w.logger.Debug(ctx, "job superseded",
			logger.String("job", job.ID), logger.Uint64("generation", job.Generation))
	default:
		metrics.RecordWorkerError()
		w.logger.Warn(ctx, "job failed",
			logger.String("job", job.ID),
			logger.String("session", job.Request.SessionID),
			logger.String("kind", fault.KindName(err)),
			logger.Error(err),
		)
	}
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	runner  Runner

	cancel   context.CancelFunc
	stopOnce sync.Once

	logger logger.Logger
}

// NewPool creates a pool. A non-positive count uses runtime.NumCPU().
func NewPool(workerCount int, queue Queue, runner Runner, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		runner:  runner,
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(queue, runner,
			WithName("worker-"+strconv.Itoa(i)),
			WithLogger(p.logger),
		)
	}

	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start launches every worker. Workers stop when ctx is done or on Shutdown.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue, lets workers drain it and waits for them. When
// ctx expires first, the remaining jobs are cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	var err error
	p.stopOnce.Do(func() {
		if closer, ok := p.queue.(interface{ Close() error }); ok {
			if cerr := closer.Close(); cerr != nil {
				p.logger.Error(ctx, "error closing queue", logger.Error(cerr))
			}
		}
		if p.cancel == nil {
			return
		}

		shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
		defer cancel()

		for i, w := range p.workers {
			select {
			case <-w.done:
			case <-shutdownCtx.Done():
				p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
				err = fmt.Errorf("shutdown timed out: %w", shutdownCtx.Err())
			}
			if err != nil {
				break
			}
		}
		p.cancel()
		if err != nil {
			for _, w := range p.workers {
				<-w.done
			}
		}
	})
	return err
}
