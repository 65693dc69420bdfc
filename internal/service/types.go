// Package service defines the reference evaluation service: the records it
// keeps, the contracts of its storage, queue and analysis engine, and the
// operations the HTTP API exposes.
package service

import (
	"errors"
	"maps"
	"time"

	"github.com/roshanis/shopagent/internal/evaluation"
)

var (
	// ErrExists is returned when creating a record whose id is taken.
	ErrExists = errors.New("evaluation already exists")
	// ErrFinished is returned when updating a record that reached a terminal status.
	ErrFinished = errors.New("evaluation already finished")
	// ErrQueueFull is returned when a submission could not be queued in time.
	ErrQueueFull = errors.New("evaluation queue is full")
)

// Record is the persisted state of one evaluation.
type Record struct {
	ID          string
	Status      evaluation.Status
	Product     evaluation.Product
	Progress    map[string]float64
	Result      *evaluation.ResultSnapshot
	ErrorText   string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	cp := r
	cp.Progress = maps.Clone(r.Progress)
	if r.Result != nil {
		res := r.Result.Clone()
		cp.Result = &res
	}
	if r.CompletedAt != nil {
		ts := *r.CompletedAt
		cp.CompletedAt = &ts
	}
	return cp
}

// StatusSnapshot renders the record the way the status endpoint reports it.
func (r Record) StatusSnapshot() evaluation.StatusSnapshot {
	return evaluation.StatusSnapshot{
		ID:          r.ID,
		Status:      r.Status,
		Progress:    r.Progress,
		CreatedAt:   r.CreatedAt,
		CompletedAt: r.CompletedAt,
	}.Clone()
}

// QueueItem wraps an evaluation ready to run.
type QueueItem struct {
	EvaluationID string
	Product      evaluation.Product
	Submitted    time.Time
}

// NotReadyError reports why a result cannot be served yet (or at all).
type NotReadyError struct {
	Status evaluation.Status
	Reason string
}

func (e *NotReadyError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return "evaluation " + string(e.Status)
}

// Is makes NotReadyError match evaluation.ErrConflict.
func (e *NotReadyError) Is(target error) bool {
	return target == evaluation.ErrConflict
}
