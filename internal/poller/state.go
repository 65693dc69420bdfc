package poller

import "github.com/roshanis/shopagent/internal/evaluation"

// State is the lifecycle state of one Handle.
type State string

// Handle states.
const (
	StateIdle           State = "idle"
	StateArmed          State = "armed"
	StateFetchingResult State = "fetching_result"
	StateStopped        State = "stopped"
)

type trigger string

const (
	triggerArm             trigger = "arm"
	triggerStatusPending   trigger = "status_pending"
	triggerStatusRunning   trigger = "status_running"
	triggerStatusCompleted trigger = "status_completed"
	triggerStatusFailed    trigger = "status_failed"
	triggerStatusCancelled trigger = "status_cancelled"
	triggerTransportError  trigger = "transport_error"
	triggerResultOK        trigger = "result_ok"
	triggerResultError     trigger = "result_error"
	triggerCancel          trigger = "cancel"
	triggerAbandon         trigger = "abandon"
)

// transitions is the complete table. StateStopped has no outgoing edges.
var transitions = map[State]map[trigger]State{
	StateIdle: {
		triggerArm: StateArmed,
	},
	StateArmed: {
		triggerStatusPending:   StateArmed,
		triggerStatusRunning:   StateArmed,
		triggerStatusCompleted: StateFetchingResult,
		triggerStatusFailed:    StateStopped,
		triggerStatusCancelled: StateStopped,
		triggerTransportError:  StateStopped,
		triggerCancel:          StateStopped,
		triggerAbandon:         StateStopped,
	},
	StateFetchingResult: {
		triggerResultOK:    StateStopped,
		triggerResultError: StateStopped,
		triggerCancel:      StateStopped,
		triggerAbandon:     StateStopped,
	},
}

// statusTrigger maps a reported status onto its trigger.
func statusTrigger(s evaluation.Status) (trigger, bool) {
	switch s {
	case evaluation.StatusPending:
		return triggerStatusPending, true
	case evaluation.StatusRunning:
		return triggerStatusRunning, true
	case evaluation.StatusCompleted:
		return triggerStatusCompleted, true
	case evaluation.StatusFailed:
		return triggerStatusFailed, true
	case evaluation.StatusCancelled:
		return triggerStatusCancelled, true
	default:
		return "", false
	}
}

func next(from State, t trigger) (State, bool) {
	to, ok := transitions[from][t]
	return to, ok
}

// OutcomeKind classifies how a Handle stopped.
type OutcomeKind string

// Outcome kinds. OutcomeNone means the handle is still running.
const (
	OutcomeNone      OutcomeKind = ""
	OutcomeCompleted OutcomeKind = "completed"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeCancelled OutcomeKind = "cancelled"
	OutcomeAbandoned OutcomeKind = "abandoned"
)

// Outcome is the terminal result of a Handle. Err is set for OutcomeFailed
// and is one of the evaluation error types.
type Outcome struct {
	Kind OutcomeKind
	Err  error
}
