// Package memory provides in-memory persistence for development and tests.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/roshanis/shopagent/internal/evaluation"
	"github.com/roshanis/shopagent/internal/service"
)

// EvaluationStore keeps evaluation records in a map guarded by a RWMutex.
type EvaluationStore struct {
	mu      sync.RWMutex
	records map[string]service.Record
}

// NewEvaluationStore constructs an EvaluationStore.
func NewEvaluationStore() *EvaluationStore {
	return &EvaluationStore{records: make(map[string]service.Record)}
}

// Create stores a new record.
func (s *EvaluationStore) Create(_ context.Context, rec service.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; exists {
		return service.ErrExists
	}
	s.records[rec.ID] = rec.Clone()
	return nil
}

// MarkRunning moves a pending record to running.
func (s *EvaluationStore) MarkRunning(_ context.Context, id string) error {
	return s.update(id, func(rec *service.Record) {
		rec.Status = evaluation.StatusRunning
	})
}

// UpdateProgress replaces the progress map of a live record.
func (s *EvaluationStore) UpdateProgress(_ context.Context, id string, progress map[string]float64) error {
	return s.update(id, func(rec *service.Record) {
		rec.Progress = maps.Clone(progress)
	})
}

// Complete stores the result and marks the record completed.
func (s *EvaluationStore) Complete(_ context.Context, id string, result evaluation.ResultSnapshot, at time.Time) error {
	return s.update(id, func(rec *service.Record) {
		res := result.Clone()
		rec.Status = evaluation.StatusCompleted
		rec.Result = &res
		for name := range rec.Progress {
			rec.Progress[name] = 1
		}
		rec.CompletedAt = pointerTime(at)
	})
}

// Fail marks the record failed with reason.
func (s *EvaluationStore) Fail(_ context.Context, id string, reason string, at time.Time) error {
	return s.update(id, func(rec *service.Record) {
		rec.Status = evaluation.StatusFailed
		rec.ErrorText = reason
		rec.CompletedAt = pointerTime(at)
	})
}

// Cancel marks a live record cancelled and returns it; terminal records are
// returned unchanged.
func (s *EvaluationStore) Cancel(_ context.Context, id string, at time.Time) (service.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return service.Record{}, evaluation.ErrNotFound
	}
	if !rec.Status.Terminal() {
		rec.Status = evaluation.StatusCancelled
		rec.CompletedAt = pointerTime(at)
		s.records[id] = rec
	}
	return rec.Clone(), nil
}

// Get fetches a copy of the record.
func (s *EvaluationStore) Get(_ context.Context, id string) (service.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return service.Record{}, evaluation.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *EvaluationStore) update(id string, mutate func(*service.Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return evaluation.ErrNotFound
	}
	if rec.Status.Terminal() {
		return service.ErrFinished
	}
	rec = rec.Clone()
	mutate(&rec)
	s.records[id] = rec
	return nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
