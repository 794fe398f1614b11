// Package worker runs the goroutines that persist finished batches.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/ceoorcto/internal/adapters/mq/queue"
	"github.com/okian/ceoorcto/pkg/logger"
	"github.com/okian/ceoorcto/pkg/metrics"
)

const defaultWorkerCount = 2

// Submitter persists one finished batch.
type Submitter interface {
	Submit(ctx context.Context, job queue.Job) error
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, job queue.Job) error

// Submit calls f.
func (f SubmitterFunc) Submit(ctx context.Context, job queue.Job) error { return f(ctx, job) }

// Source is where workers read jobs from.
type Source interface {
	Dequeue() <-chan queue.Job
}

// Worker drains jobs until the source closes, ctx ends, or Shutdown is called.
type Worker struct {
	source    Source
	submitter Submitter
	name      string
	retries   int
	backoff   time.Duration
	logger    logger.Logger

	processed atomic.Int64
	failed    atomic.Int64

	shutdown chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a worker.
func New(source Source, submitter Submitter, opts ...Option) *Worker {
	w := &Worker{
		source:    source,
		submitter: submitter,
		name:      "flush-worker",
		backoff:   200 * time.Millisecond,
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get()
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run processes jobs. It returns when the source is closed and drained.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	jobs := w.source.Dequeue()
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
			metrics.RecordQueueDequeue()
			w.process(ctx, job)
		}
	}
}

func (w *Worker) process(ctx context.Context, job queue.Job) {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	var err error
	for attempt := 0; attempt <= w.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				err = ctx.Err()
			case <-time.After(w.backoff * time.Duration(attempt)):
			}
			if ctx.Err() != nil {
				break
			}
		}
		if err = w.submitter.Submit(ctx, job); err == nil {
			w.processed.Add(1)
			return
		}
	}

	w.failed.Add(1)
	metrics.RecordWorkerError()
	metrics.RecordFlushError()
	metrics.RecordErrorByComponent("worker", "submit_failed")
	w.logger.Error(ctx, "batch flush failed",
		logger.String("batch_id", job.BatchID),
		logger.String("session_id", job.SessionID),
		logger.Int("profiles", len(job.People)),
		logger.Error(err),
	)
}

// Shutdown stops the worker without draining and waits for it to exit.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker.Shutdown: %w", ctx.Err())
	}
}

// Stats reports processed and failed job counts.
func (w *Worker) Stats() (processed, failed int64) {
	return w.processed.Load(), w.failed.Load()
}

// Pool runs several workers on one source.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
	started atomic.Bool
}

// NewPool creates count workers sharing source and submitter.
func NewPool(count int, source Source, submitter Submitter, opts ...Option) *Pool {
	if count < 1 {
		count = defaultWorkerCount
	}
	p := &Pool{workers: make([]*Worker, count)}
	for i := range p.workers {
		wopts := append([]Option{WithName("flush-worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = New(source, submitter, wopts...)
	}
	return p
}

// Start launches every worker once.
func (p *Pool) Start(ctx context.Context) {
	if p.started.Swap(true) {
		return
	}
	metrics.UpdateWorkerActiveCount(len(p.workers))
	for _, w := range p.workers {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.Run(ctx)
		}()
	}
}

// Wait blocks until every worker has exited, typically after the source was closed.
func (p *Pool) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		metrics.UpdateWorkerActiveCount(0)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker.Pool.Wait: %w", ctx.Err())
	}
}

// Shutdown stops every worker without draining.
func (p *Pool) Shutdown(ctx context.Context) error {
	for _, w := range p.workers {
		w.stopOnce.Do(func() { close(w.shutdown) })
	}
	return p.Wait(ctx)
}

// Stats sums processed and failed counts over all workers.
func (p *Pool) Stats() (processed, failed int64) {
	for _, w := range p.workers {
		a, b := w.Stats()
		processed += a
		failed += b
	}
	return processed, failed
}

// Size is the number of workers.
func (p *Pool) Size() int { return len(p.workers) }
