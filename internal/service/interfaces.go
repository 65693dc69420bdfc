package service

import (
	"context"
	"time"

	"github.com/roshanis/shopagent/internal/evaluation"
)

// Registry persists evaluation records. Once a record is terminal its status
// never changes again; updates to it fail with ErrFinished. Lookups of an
// unknown id fail with evaluation.ErrNotFound.
type Registry interface {
	Create(ctx context.Context, rec Record) error
	MarkRunning(ctx context.Context, id string) error
	UpdateProgress(ctx context.Context, id string, progress map[string]float64) error
	Complete(ctx context.Context, id string, result evaluation.ResultSnapshot, at time.Time) error
	Fail(ctx context.Context, id string, reason string, at time.Time) error
	// Cancel marks a pending or running record cancelled. A terminal record
	// is returned unchanged.
	Cancel(ctx context.Context, id string, at time.Time) (Record, error)
	Get(ctx context.Context, id string) (Record, error)
}

// Enqueuer accepts evaluations for execution.
type Enqueuer interface {
	Enqueue(ctx context.Context, item QueueItem) error
}

// Queue provides enqueue/dequeue semantics for evaluations.
type Queue interface {
	Enqueuer
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Evaluator runs the analysis agents for one product.
type Evaluator interface {
	Agents() []evaluation.Agent
	InitialProgress() map[string]float64
	Evaluate(ctx context.Context, product evaluation.Product, onProgress func(map[string]float64)) (evaluation.ResultSnapshot, error)
}

// Aborter stops an evaluation that a worker is currently running.
type Aborter interface {
	Abort(id string) bool
}
