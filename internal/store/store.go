package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/roshanis/shopagent/internal/evaluation"
)

var (
	// ErrJobActive is returned by Begin while another job is observed.
	ErrJobActive = errors.New("a job is already being observed")
	// ErrNoActiveJob rejects updates when no job is observed.
	ErrNoActiveJob = errors.New("no job is being observed")
	// ErrStaleJob rejects updates addressed to a job other than the observed one.
	ErrStaleJob = errors.New("update belongs to a job that is no longer observed")
	// ErrTerminal rejects status updates after a terminal snapshot.
	ErrTerminal = errors.New("job already reached a terminal status")
	// ErrNotCompleted rejects a result before the status is completed.
	ErrNotCompleted = errors.New("job has not completed")
	// ErrResultSet rejects a second result for the same job.
	ErrResultSet = errors.New("result already recorded")
)

// Snapshot is a consistent, deep-copied view of the store.
type Snapshot struct {
	JobID   string
	Status  *evaluation.StatusSnapshot
	Result  *evaluation.ResultSnapshot
	Message string
	// Version increases with every mutation.
	Version uint64
}

// Active reports whether a job identity is held.
func (s Snapshot) Active() bool {
	return s.JobID != ""
}

// Store owns the identity, status and result of at most one job.
type Store struct {
	mu          sync.RWMutex
	jobID       string
	status      *evaluation.StatusSnapshot
	result      *evaluation.ResultSnapshot
	message     string
	version     uint64
	subscribers map[int]chan struct{}
	nextSub     int
}

// New constructs an empty Store.
func New() *Store {
	return &Store{subscribers: make(map[int]chan struct{})}
}

// Begin records a new job identity and clears prior status, result and message.
func (s *Store) Begin(jobID string) error {
	if jobID == "" {
		return errors.New("job id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobID != "" {
		return fmt.Errorf("begin %s: %w", jobID, ErrJobActive)
	}
	s.jobID = jobID
	s.status = nil
	s.result = nil
	s.message = ""
	s.changedLocked()
	return nil
}

// UpdateStatus replaces the status snapshot of the observed job.
func (s *Store) UpdateStatus(jobID string, snap evaluation.StatusSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkJobLocked(jobID); err != nil {
		return err
	}
	if s.status != nil && s.status.Status.Terminal() {
		return fmt.Errorf("update %s: %w", jobID, ErrTerminal)
	}
	cp := snap.Clone()
	if cp.ID == "" {
		cp.ID = jobID
	}
	s.status = &cp
	s.changedLocked()
	return nil
}

// SetResult records the result once the observed job has completed.
func (s *Store) SetResult(jobID string, res evaluation.ResultSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkJobLocked(jobID); err != nil {
		return err
	}
	if s.status == nil || s.status.Status != evaluation.StatusCompleted {
		return fmt.Errorf("set result %s: %w", jobID, ErrNotCompleted)
	}
	if s.result != nil {
		return fmt.Errorf("set result %s: %w", jobID, ErrResultSet)
	}
	cp := res.Clone()
	if cp.ID == "" {
		cp.ID = jobID
	}
	s.result = &cp
	s.changedLocked()
	return nil
}

// Reset clears identity, status, result and message unconditionally.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	s.message = ""
	s.changedLocked()
}

// Fail clears the observed job and records msg as the recoverable message.
// It is rejected when jobID is not the observed job.
func (s *Store) Fail(jobID, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkJobLocked(jobID); err != nil {
		return err
	}
	s.clearLocked()
	s.message = msg
	s.changedLocked()
	return nil
}

// Report records msg while no job is observed, replacing any prior message.
func (s *Store) Report(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobID != "" {
		return fmt.Errorf("report: %w", ErrJobActive)
	}
	s.message = msg
	s.changedLocked()
	return nil
}

// ClearMessage drops the recoverable message without touching the job.
func (s *Store) ClearMessage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.message == "" {
		return
	}
	s.message = ""
	s.changedLocked()
}

// JobID returns the observed identity, or "" when idle.
func (s *Store) JobID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobID
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		JobID:   s.jobID,
		Message: s.message,
		Version: s.version,
	}
	if s.status != nil {
		cp := s.status.Clone()
		snap.Status = &cp
	}
	if s.result != nil {
		cp := s.result.Clone()
		snap.Result = &cp
	}
	return snap
}

// Subscribe returns a channel that receives a signal after mutations. Signals
// coalesce: a slow reader sees one pending signal and reads Snapshot for the
// latest state. The returned func unsubscribes and closes the channel.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan struct{}, 1)
	s.subscribers[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subscribers, id)
			close(ch)
		})
	}
}

func (s *Store) checkJobLocked(jobID string) error {
	if s.jobID == "" {
		return ErrNoActiveJob
	}
	if jobID != s.jobID {
		return fmt.Errorf("job %s (observing %s): %w", jobID, s.jobID, ErrStaleJob)
	}
	return nil
}

func (s *Store) clearLocked() {
	s.jobID = ""
	s.status = nil
	s.result = nil
}

func (s *Store) changedLocked() {
	s.version++
	for _, ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
