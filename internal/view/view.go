package view

import (
	"time"

	"github.com/roshanis/shopagent/internal/evaluation"
	"github.com/roshanis/shopagent/internal/progress"
	"github.com/roshanis/shopagent/internal/store"
)

// State is one of the three presentation states.
type State string

// Presentation states.
const (
	StateSubmission State = "submission"
	StateObserving  State = "observing"
	StateResults    State = "results"
)

// View is the render model for one store snapshot.
type View struct {
	State   State
	JobID   string
	Status  *evaluation.StatusSnapshot
	Result  *evaluation.ResultSnapshot
	Summary progress.Summary
	// Message is the single recoverable message, shown on the submission view.
	Message string
	// Version is the store version the view was derived from.
	Version uint64
}

// Derive computes the view for snap at time now.
func Derive(snap store.Snapshot, now time.Time) View {
	v := View{
		JobID:   snap.JobID,
		Status:  snap.Status,
		Result:  snap.Result,
		Message: snap.Message,
		Version: snap.Version,
	}
	switch {
	case snap.JobID == "":
		v.State = StateSubmission
	case snap.Result != nil:
		v.State = StateResults
	default:
		v.State = StateObserving
	}
	if snap.Status != nil {
		v.Summary = progress.Summarize(*snap.Status, now)
	}
	return v
}
