package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/roshanis/shopagent/internal/evaluation"
	"github.com/roshanis/shopagent/internal/progress"
)

// Handle is the cancellable poll task for one job. Once stopped it never
// fetches or writes to the store again.
type Handle struct {
	c       *Controller
	jobID   string
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	armedAt time.Time
	logger  *zap.Logger

	mu      sync.Mutex
	state   State
	outcome Outcome
}

// JobID returns the observed identity.
func (h *Handle) JobID() string {
	return h.jobID
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Outcome returns how the handle stopped; Kind is OutcomeNone while running.
func (h *Handle) Outcome() Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome
}

// Done is closed when the poll goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel stops polling, resets the store, then asks the service to cancel
// the job. The handle stops regardless of the remote call's result, which is
// returned for logging only. Calling Cancel on a stopped handle does nothing.
func (h *Handle) Cancel(ctx context.Context) error {
	h.mu.Lock()
	if _, ok := h.fireLocked(triggerCancel); !ok {
		h.mu.Unlock()
		return nil
	}
	h.outcome = Outcome{Kind: OutcomeCancelled}
	h.cancel()
	h.resetStoreLocked()
	h.mu.Unlock()

	h.c.emit(h, progress.Event{Stage: progress.StageJobCancelled, Dur: h.sinceArmed()})
	h.logger.Info("evaluation cancelled by user")

	if _, err := h.c.svc.Cancel(ctx, h.jobID); err != nil {
		h.logger.Warn("remote cancel failed", zap.Error(err))
		return fmt.Errorf("cancel %s: %w", h.jobID, err)
	}
	return nil
}

func (h *Handle) run() {
	defer close(h.done)
	defer h.cancel()

	for {
		started := h.c.clock.Now()
		snap, err := h.c.svc.GetStatus(h.ctx, h.jobID)
		if h.ctx.Err() != nil {
			h.abandon()
			return
		}
		if err != nil {
			h.stop(triggerTransportError, &evaluation.TransportError{Op: "get status", Err: err})
			return
		}
		if !h.apply(snap, h.c.clock.Now().Sub(started)) {
			return
		}

		switch {
		case snap.Status == evaluation.StatusCompleted:
			h.fetchResult()
			return
		case snap.Status.Terminal():
			t, _ := statusTrigger(snap.Status)
			h.stop(t, &evaluation.TerminalJobError{JobID: h.jobID, Status: snap.Status})
			return
		}

		// The interval runs from the end of this cycle, so a slow fetch
		// delays the next one instead of overlapping it.
		select {
		case <-h.ctx.Done():
			h.abandon()
			return
		case <-h.c.after(h.c.interval):
		}
	}
}

// apply records a status snapshot unless the handle stopped meanwhile. It
// reports whether the loop should continue. Failed and cancelled statuses
// are recorded while still armed; run stops the handle right after.
func (h *Handle) apply(snap evaluation.StatusSnapshot, latency time.Duration) bool {
	t, ok := statusTrigger(snap.Status)
	if !ok {
		h.stop(triggerTransportError, &evaluation.TransportError{
			Op:  "get status",
			Err: fmt.Errorf("unknown status %q", snap.Status),
		})
		return false
	}

	h.mu.Lock()
	if h.state != StateArmed {
		h.mu.Unlock()
		h.logger.Debug("discarding stale status response", zap.String("status", string(snap.Status)))
		return false
	}
	if err := h.c.store.UpdateStatus(h.jobID, snap); err != nil {
		h.mu.Unlock()
		h.logger.Warn("store rejected status update", zap.Error(err))
		h.stop(triggerTransportError, &evaluation.TransportError{Op: "apply status", Err: err})
		return false
	}
	if !snap.Status.Terminal() || snap.Status == evaluation.StatusCompleted {
		h.fireLocked(t)
	}
	h.mu.Unlock()

	overall, _ := progress.Aggregate(snap.Progress)
	if snap.Status == evaluation.StatusCompleted {
		overall = 1
	}
	h.c.emit(h, progress.Event{
		Stage:   progress.StageStatusPolled,
		Status:  snap.Status,
		Overall: overall,
		Dur:     latency,
	})
	return true
}

func (h *Handle) fetchResult() {
	res, err := h.c.svc.GetResult(h.ctx, h.jobID)
	if h.ctx.Err() != nil {
		h.abandon()
		return
	}
	if err != nil {
		h.stop(triggerResultError, &evaluation.ResultUnavailableError{JobID: h.jobID, Err: err})
		return
	}

	h.mu.Lock()
	if _, ok := h.fireLocked(triggerResultOK); !ok {
		h.mu.Unlock()
		h.logger.Debug("discarding stale result response")
		return
	}
	if err := h.c.store.SetResult(h.jobID, res); err != nil {
		h.outcome = Outcome{Kind: OutcomeFailed, Err: &evaluation.ResultUnavailableError{JobID: h.jobID, Err: err}}
		h.failStoreLocked(h.outcome.Err)
		h.mu.Unlock()
		h.logger.Warn("store rejected result", zap.Error(err))
		h.c.emit(h, progress.Event{Stage: progress.StageJobError, Note: err.Error(), Dur: h.sinceArmed()})
		return
	}
	h.outcome = Outcome{Kind: OutcomeCompleted}
	h.mu.Unlock()

	h.logger.Info("evaluation completed",
		zap.Int("overall_score", res.OverallScore),
		zap.String("recommendation", string(res.OverallRecommendation)),
	)
	h.c.emit(h, progress.Event{Stage: progress.StageJobDone, Status: evaluation.StatusCompleted, Dur: h.sinceArmed()})
}

// stop moves to StateStopped with a failure outcome and records the user
// message in the store. It does nothing if the handle already stopped.
func (h *Handle) stop(t trigger, cause error) {
	h.mu.Lock()
	if _, ok := h.fireLocked(t); !ok {
		h.mu.Unlock()
		return
	}
	h.outcome = Outcome{Kind: OutcomeFailed, Err: cause}
	h.cancel()
	h.failStoreLocked(cause)
	h.mu.Unlock()

	h.logger.Warn("evaluation observation failed", zap.Error(cause))
	evt := progress.Event{Stage: progress.StageJobError, Note: cause.Error(), Dur: h.sinceArmed()}
	if terr, ok := cause.(*evaluation.TerminalJobError); ok {
		evt.Status = terr.Status
	}
	h.c.emit(h, evt)
}

// abandon stops a handle whose parent context ended without a user cancel.
func (h *Handle) abandon() {
	h.mu.Lock()
	if _, ok := h.fireLocked(triggerAbandon); !ok {
		h.mu.Unlock()
		return
	}
	h.outcome = Outcome{Kind: OutcomeAbandoned}
	h.resetStoreLocked()
	h.mu.Unlock()

	h.logger.Info("evaluation observation abandoned")
	h.c.emit(h, progress.Event{Stage: progress.StageJobCancelled, Note: "abandoned", Dur: h.sinceArmed()})
}

func (h *Handle) fire(t trigger) (State, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fireLocked(t)
}

func (h *Handle) fireLocked(t trigger) (State, bool) {
	to, ok := next(h.state, t)
	if !ok {
		h.logger.Debug("ignoring trigger",
			zap.String("state", string(h.state)),
			zap.String("trigger", string(t)),
		)
		return h.state, false
	}
	h.state = to
	return to, true
}

func (h *Handle) failStoreLocked(cause error) {
	if err := h.c.store.Fail(h.jobID, evaluation.UserMessage(cause)); err != nil {
		h.logger.Debug("store already moved on", zap.Error(err))
	}
}

func (h *Handle) resetStoreLocked() {
	if h.c.store.JobID() == h.jobID {
		h.c.store.Reset()
	}
}

func (h *Handle) sinceArmed() time.Duration {
	d := h.c.clock.Now().Sub(h.armedAt)
	if d < 0 {
		return 0
	}
	return d
}
