package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/roshanis/shopagent/internal/evaluation"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported lifecycle stages.
const (
	StageJobArmed     Stage = "JOB_ARMED"
	StageStatusPolled Stage = "STATUS_POLLED"
	StageJobDone      Stage = "JOB_DONE"
	StageJobError     Stage = "JOB_ERROR"
	StageJobCancelled Stage = "JOB_CANCELLED"
)

// Event captures a single milestone in one job's observation.
type Event struct {
	// JobID is the opaque service-issued identity.
	JobID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// Status is the remote status carried by poll and terminal events.
	Status evaluation.Status
	// Overall is the aggregated completion ratio at the time of the event.
	Overall float64
	// Dur is the fetch latency for polls and the observation time for terminal events.
	Dur time.Duration
	// Note lets emitters attach low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobArmed, StageJobDone, StageJobError, StageJobCancelled:
	case StageStatusPolled:
		if !e.Status.Valid() {
			return fmt.Errorf("status poll requires a known status, got %q", e.Status)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Overall < 0 || e.Overall > 1 {
		return errors.New("overall must be within [0,1]")
	}
	return nil
}
