package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/ceoorcto/internal/adapters/mq/queue"
	"github.com/okian/ceoorcto/internal/adapters/mq/worker"
	"github.com/okian/ceoorcto/internal/domain/model"
	"github.com/okian/ceoorcto/pkg/logger"
	"github.com/okian/ceoorcto/pkg/metrics"
)

// Flusher takes a finished batch off the game's hands. It must not block
// on persistence.
type Flusher interface {
	Flush(ctx context.Context, job model.FlushJob) error
}

// FlusherFunc adapts a function to Flusher.
type FlusherFunc func(ctx context.Context, job model.FlushJob) error

// Flush calls f.
func (f FlusherFunc) Flush(ctx context.Context, job model.FlushJob) error { return f(ctx, job) }

// AsyncFlusher queues batches for a worker pool that submits them.
type AsyncFlusher struct {
	queue  *queue.InMemoryQueue
	pool   *worker.Pool
	logger logger.Logger

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// FlusherOption configures an AsyncFlusher.
type FlusherOption func(*flusherConfig)

type flusherConfig struct {
	capacity int
	workers  int
	retries  int
	backoff  time.Duration
	logger   logger.Logger
}

// WithFlushCapacity bounds the number of pending batches.
func WithFlushCapacity(n int) FlusherOption {
	return func(c *flusherConfig) { c.capacity = n }
}

// WithFlushWorkers sets the number of concurrent submitters.
func WithFlushWorkers(n int) FlusherOption {
	return func(c *flusherConfig) { c.workers = n }
}

// WithFlushRetries retries failed submissions with a linear backoff.
func WithFlushRetries(n int, backoff time.Duration) FlusherOption {
	return func(c *flusherConfig) { c.retries, c.backoff = n, backoff }
}

// WithFlushLogger sets the logger.
func WithFlushLogger(l logger.Logger) FlusherOption {
	return func(c *flusherConfig) { c.logger = l }
}

// NewAsyncFlusher starts workers that hand queued batches to submitter.
func NewAsyncFlusher(ctx context.Context, submitter worker.Submitter, opts ...FlusherOption) *AsyncFlusher {
	cfg := flusherConfig{capacity: 64, workers: 1, retries: 2, backoff: 250 * time.Millisecond}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.Get()
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	q := queue.NewInMemoryQueue(queue.WithCapacity(cfg.capacity))
	pool := worker.NewPool(cfg.workers, q, submitter,
		worker.WithLogger(cfg.logger),
		worker.WithRetries(cfg.retries, cfg.backoff),
	)
	pool.Start(runCtx)
	return &AsyncFlusher{queue: q, pool: pool, logger: cfg.logger.Named("flusher"), cancel: cancel}
}

// Flush implements Flusher. It only enqueues.
func (f *AsyncFlusher) Flush(ctx context.Context, job model.FlushJob) error {
	if err := f.queue.Enqueue(ctx, job); err != nil {
		metrics.RecordFlushError()
		f.logger.Warn(ctx, "batch dropped before flush",
			logger.String("batch_id", job.BatchID),
			logger.Int("profiles", len(job.People)),
			logger.Error(err),
		)
		return fmt.Errorf("client.AsyncFlusher.Flush: %w", err)
	}
	return nil
}

// Pending is the number of queued batches.
func (f *AsyncFlusher) Pending() int { return f.queue.Len() }

// Stats reports submitted and failed batch counts.
func (f *AsyncFlusher) Stats() (submitted, failed int64) { return f.pool.Stats() }

// Close stops accepting batches and waits for queued ones to be
// submitted. When ctx ends first the workers are abandoned.
func (f *AsyncFlusher) Close(ctx context.Context) error {
	var err error
	f.closeOnce.Do(func() {
		_ = f.queue.Close()
		if err = f.pool.Wait(ctx); err != nil {
			f.cancel()
			err = fmt.Errorf("client.AsyncFlusher.Close: %w", err)
			return
		}
		f.cancel()
	})
	return err
}
