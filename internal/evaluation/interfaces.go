package evaluation

import (
	"context"
	"time"
)

// JobService is the remote evaluation service as seen by the monitor.
type JobService interface {
	// Submit creates a job. It fails with *SubmissionError when the service
	// rejects the product.
	Submit(ctx context.Context, product Product) (SubmitResponse, error)
	// GetStatus fails with ErrNotFound if the id is unknown.
	GetStatus(ctx context.Context, id string) (StatusSnapshot, error)
	// GetResult fails with ErrNotFound or ErrConflict if the job has not completed.
	GetResult(ctx context.Context, id string) (ResultSnapshot, error)
	// Cancel is idempotent; cancelling a terminal job is not an error.
	Cancel(ctx context.Context, id string) (SubmitResponse, error)
}

// AgentLister lists the workers a service runs for each job.
type AgentLister interface {
	ListAgents(ctx context.Context) ([]Agent, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
