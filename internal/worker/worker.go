// Package worker implements the evaluation execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roshanis/shopagent/internal/evaluation"
	"github.com/roshanis/shopagent/internal/metrics"
	"github.com/roshanis/shopagent/internal/service"
	"github.com/roshanis/shopagent/internal/storage"
)

// Config controls Worker behavior.
type Config struct {
	// JobTimeout bounds one evaluation; zero means no limit.
	JobTimeout time.Duration
	// Archive, when set, receives a JSON report of every finished evaluation.
	Archive       storage.BlobStore
	ArchivePrefix string
}

// Worker consumes queue items and runs the evaluator for each.
type Worker struct {
	queue     service.Queue
	registry  service.Registry
	evaluator service.Evaluator
	runs      *Runs
	clock     evaluation.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. Workers sharing runs can abort each other's evaluations.
func New(
	queue service.Queue,
	registry service.Registry,
	evaluator service.Evaluator,
	runs *Runs,
	clock evaluation.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if runs == nil {
		runs = NewRuns()
	}
	return &Worker{
		queue:     queue,
		registry:  registry,
		evaluator: evaluator,
		runs:      runs,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			if !sleep(ctx, 100*time.Millisecond) {
				return
			}
			continue
		}
		w.logger.Debug("dequeued evaluation", zap.String("job_id", item.EvaluationID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item service.QueueItem) {
	id := item.EvaluationID
	// Writes that record the outcome must land even while shutting down.
	storeCtx := context.WithoutCancel(ctx)

	jobCtx, cancel := w.jobContext(ctx)
	defer cancel()
	aborted := w.runs.start(id, cancel)
	defer w.runs.finish(id)

	if err := w.registry.MarkRunning(storeCtx, id); err != nil {
		if errors.Is(err, service.ErrFinished) {
			w.logger.Info("skipping finished evaluation", zap.String("job_id", id))
			return
		}
		w.logger.Error("mark running failed", zap.String("job_id", id), zap.Error(err))
		return
	}

	metrics.IncActiveEvaluations()
	defer metrics.DecActiveEvaluations()

	result, err := w.evaluator.Evaluate(jobCtx, item.Product, func(progress map[string]float64) {
		if err := w.registry.UpdateProgress(storeCtx, id, progress); err != nil && !errors.Is(err, service.ErrFinished) {
			w.logger.Warn("progress update failed", zap.String("job_id", id), zap.Error(err))
		}
	})

	switch {
	case err == nil:
		w.finish(storeCtx, id, evaluation.StatusCompleted, w.registry.Complete(storeCtx, id, result, w.clock.Now()))
	case aborted():
		w.logger.Info("evaluation aborted", zap.String("job_id", id))
		metrics.ObserveEvaluation(string(evaluation.StatusCancelled))
	case ctx.Err() != nil:
		w.finish(storeCtx, id, evaluation.StatusFailed, w.registry.Fail(storeCtx, id, "service shutting down", w.clock.Now()))
	case errors.Is(err, context.DeadlineExceeded):
		reason := fmt.Sprintf("evaluation timed out after %s", w.cfg.JobTimeout)
		w.finish(storeCtx, id, evaluation.StatusFailed, w.registry.Fail(storeCtx, id, reason, w.clock.Now()))
	default:
		w.finish(storeCtx, id, evaluation.StatusFailed, w.registry.Fail(storeCtx, id, err.Error(), w.clock.Now()))
	}
}

func (w *Worker) finish(ctx context.Context, id string, status evaluation.Status, err error) {
	switch {
	case err == nil:
		w.logger.Info("evaluation finished", zap.String("job_id", id), zap.String("status", string(status)))
		metrics.ObserveEvaluation(string(status))
		w.archive(ctx, id)
	case errors.Is(err, service.ErrFinished):
		// Cancelled while the last agents were finishing.
		rec, gerr := w.registry.Get(ctx, id)
		if gerr == nil {
			status = rec.Status
		}
		w.logger.Info("evaluation outcome discarded", zap.String("job_id", id), zap.String("status", string(status)))
		metrics.ObserveEvaluation(string(status))
	default:
		w.logger.Error("final evaluation update failed", zap.String("job_id", id), zap.Error(err))
	}
}

func (w *Worker) jobContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.cfg.JobTimeout > 0 {
		return context.WithTimeout(ctx, w.cfg.JobTimeout)
	}
	return context.WithCancel(ctx)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
