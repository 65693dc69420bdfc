// Package dispatcher runs the evaluation worker pool and reports how many
// evaluations are waiting for a worker.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/roshanis/shopagent/internal/metrics"
	"github.com/roshanis/shopagent/internal/service"
	"github.com/roshanis/shopagent/internal/worker"
)

// DefaultDepthInterval is how often Run samples the queue depth.
const DefaultDepthInterval = time.Second

// Config controls the dispatcher. Zero values fall back to defaults.
type Config struct {
	DepthInterval time.Duration
	Logger        *zap.Logger
}

// lener is implemented by queues that can report their backlog.
type lener interface {
	Len() int
}

// Dispatcher fans queued evaluations out to a pool of workers.
type Dispatcher struct {
	queue   service.Queue
	workers []*worker.Worker
	every   time.Duration
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(queue service.Queue, workers []*worker.Worker, cfg Config) *Dispatcher {
	if cfg.DepthInterval <= 0 {
		cfg.DepthInterval = DefaultDepthInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		every:   cfg.DepthInterval,
		logger:  cfg.Logger,
	}
}

// Run starts all workers and blocks until the context finishes and every
// worker has returned. While running it publishes the queue depth.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("starting evaluation workers", zap.Int("workers", len(d.workers)))
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}

	ticker := time.NewTicker(d.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			d.reportDepth()
			d.logger.Info("evaluation workers stopped")
			return
		case <-ticker.C:
			d.reportDepth()
		}
	}
}

// Enqueue hands an evaluation to the queue. The caller bounds the wait
// for space through ctx.
func (d *Dispatcher) Enqueue(ctx context.Context, item service.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		d.logger.Warn("evaluation not queued",
			zap.String("job_id", item.EvaluationID),
			zap.Int("depth", d.depth()),
			zap.Error(err),
		)
		return fmt.Errorf("queue enqueue: %w", err)
	}
	depth := d.reportDepth()
	d.logger.Debug("evaluation queued",
		zap.String("job_id", item.EvaluationID),
		zap.Int("depth", depth),
	)
	return nil
}

// depth returns the backlog, or -1 when the queue cannot report it.
func (d *Dispatcher) depth() int {
	if l, ok := d.queue.(lener); ok {
		return l.Len()
	}
	return -1
}

func (d *Dispatcher) reportDepth() int {
	n := d.depth()
	if n >= 0 {
		metrics.SetQueueDepth(n)
	}
	return n
}
