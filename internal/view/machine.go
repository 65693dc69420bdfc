package view

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/roshanis/shopagent/internal/clock/system"
	"github.com/roshanis/shopagent/internal/evaluation"
	"github.com/roshanis/shopagent/internal/poller"
	"github.com/roshanis/shopagent/internal/store"
)

// ErrInvalidTransition is returned for actions the current state does not allow.
var ErrInvalidTransition = errors.New("invalid view transition")

// Submitter creates jobs on the remote service.
type Submitter interface {
	Submit(ctx context.Context, product evaluation.Product) (evaluation.SubmitResponse, error)
}

// Machine routes user actions. It is safe for concurrent use.
type Machine struct {
	svc    Submitter
	store  *store.Store
	poller *poller.Controller
	clock  evaluation.Clock
	logger *zap.Logger

	mu     sync.Mutex
	handle *poller.Handle
}

// New wires a Machine. clock and logger may be nil.
func New(svc Submitter, st *store.Store, ctrl *poller.Controller, clock evaluation.Clock, logger *zap.Logger) *Machine {
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		svc:    svc,
		store:  st,
		poller: ctrl,
		clock:  clock,
		logger: logger,
	}
}

// View derives the current view.
func (m *Machine) View() View {
	return Derive(m.store.Snapshot(), m.clock.Now())
}

// Submit sends product to the service and starts observing the new job.
// A rejection is recorded as the submission message and returned. ctx bounds
// the whole observation: when it ends, polling stops and the store resets.
func (m *Machine) Submit(ctx context.Context, product evaluation.Product) (evaluation.SubmitResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st := m.View().State; st != StateSubmission {
		return evaluation.SubmitResponse{}, fmt.Errorf("submit from %s: %w", st, ErrInvalidTransition)
	}

	resp, err := m.svc.Submit(ctx, product.Normalize())
	if err != nil {
		m.report(err)
		return evaluation.SubmitResponse{}, fmt.Errorf("submit evaluation: %w", err)
	}
	if resp.ID == "" {
		err := &evaluation.SubmissionError{}
		m.report(err)
		return evaluation.SubmitResponse{}, fmt.Errorf("submit evaluation: empty job id: %w", err)
	}

	if err := m.store.Begin(resp.ID); err != nil {
		return evaluation.SubmitResponse{}, fmt.Errorf("observe %s: %w", resp.ID, err)
	}
	h, err := m.poller.Arm(ctx, resp.ID)
	if err != nil {
		m.store.Reset()
		return evaluation.SubmitResponse{}, fmt.Errorf("observe %s: %w", resp.ID, err)
	}
	m.handle = h
	m.logger.Info("evaluation submitted",
		zap.String("job_id", resp.ID),
		zap.String("product", product.Name),
	)
	return resp, nil
}

// Cancel cancels the observed job and returns to submission without a
// message. It does nothing outside the observing state.
func (m *Machine) Cancel(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.View().State != StateObserving {
		return
	}
	if m.handle == nil {
		m.store.Reset()
		return
	}
	if err := m.handle.Cancel(ctx); err != nil {
		m.logger.Warn("cancel request failed; observation already stopped", zap.Error(err))
	}
}

// Restart returns to a clean submission view. From results it discards the
// job; from submission it clears the message.
func (m *Machine) Restart() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch st := m.View().State; st {
	case StateResults:
		m.store.Reset()
		m.handle = nil
	case StateSubmission:
		m.store.ClearMessage()
	default:
		return fmt.Errorf("restart from %s: %w", st, ErrInvalidTransition)
	}
	return nil
}

// Changes notifies after every store mutation. Call the returned func to stop.
func (m *Machine) Changes() (<-chan struct{}, func()) {
	return m.store.Subscribe()
}

// Wait blocks until the current observation stops or ctx ends, then returns
// the view at that point.
func (m *Machine) Wait(ctx context.Context) (View, error) {
	m.mu.Lock()
	h := m.handle
	m.mu.Unlock()

	if h != nil {
		select {
		case <-h.Done():
		case <-ctx.Done():
			return m.View(), ctx.Err()
		}
	}
	return m.View(), nil
}

// Outcome reports how the last observation ended, if any.
func (m *Machine) Outcome() (poller.Outcome, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == nil {
		return poller.Outcome{}, false
	}
	return m.handle.Outcome(), true
}

// report records the submission message. Only a service rejection carries
// its own detail; anything else gets the generic submission text.
func (m *Machine) report(err error) {
	msg := (&evaluation.SubmissionError{}).Message()
	var serr *evaluation.SubmissionError
	if errors.As(err, &serr) {
		msg = serr.Message()
	}
	if rerr := m.store.Report(msg); rerr != nil {
		m.logger.Warn("could not record submission error", zap.Error(rerr))
	}
	m.logger.Warn("evaluation submission failed", zap.Error(err))
}
