package evaluation

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals the service does not know the job id.
	ErrNotFound = errors.New("evaluation not found")
	// ErrConflict signals the job is not in a state that allows the request.
	ErrConflict = errors.New("evaluation not in required state")
)

// SubmissionError reports that the service rejected a job description.
type SubmissionError struct {
	Detail string
}

func (e *SubmissionError) Error() string {
	if e.Detail == "" {
		return "submission rejected"
	}
	return "submission rejected: " + e.Detail
}

// Message is the text shown on the submission view.
func (e *SubmissionError) Message() string {
	if e.Detail == "" {
		return "Failed to start evaluation. Please try again."
	}
	return e.Detail
}

// TransportError wraps a network or unexpected status-code failure.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Message is the recoverable text shown after a polling transport failure.
func (e *TransportError) Message() string {
	return "Failed to get evaluation status. Please try again."
}

// TerminalJobError reports that the service ended the job as failed or cancelled.
type TerminalJobError struct {
	JobID  string
	Status Status
}

func (e *TerminalJobError) Error() string {
	return fmt.Sprintf("evaluation %s ended with status %s", e.JobID, e.Status)
}

// Message is the recoverable text shown after a terminal job error.
func (e *TerminalJobError) Message() string {
	return fmt.Sprintf("Evaluation %s. Please try again.", e.Status)
}

// ResultUnavailableError reports that a completed job's result could not be fetched.
type ResultUnavailableError struct {
	JobID string
	Err   error
}

func (e *ResultUnavailableError) Error() string {
	return fmt.Sprintf("result for evaluation %s unavailable: %v", e.JobID, e.Err)
}

func (e *ResultUnavailableError) Unwrap() error {
	return e.Err
}

// Message is the recoverable text shown when the result fetch fails.
func (e *ResultUnavailableError) Message() string {
	return "Evaluation finished but its results could not be loaded. Please try again."
}

// UserMessage returns the single human-readable message for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var m interface{ Message() string }
	if errors.As(err, &m) {
		return m.Message()
	}
	return "Something went wrong. Please try again."
}
