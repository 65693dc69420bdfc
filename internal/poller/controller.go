package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/roshanis/shopagent/internal/clock/system"
	"github.com/roshanis/shopagent/internal/evaluation"
	"github.com/roshanis/shopagent/internal/progress"
	"github.com/roshanis/shopagent/internal/store"
)

// DefaultInterval separates the end of one poll cycle from the next.
const DefaultInterval = 2 * time.Second

var (
	// ErrAlreadyArmed is returned by Arm while another handle is running.
	ErrAlreadyArmed = errors.New("poller already armed")
	// ErrNotObserved is returned by Arm when the store does not hold the job.
	ErrNotObserved = errors.New("job is not the one held by the store")
)

// StatusService is the part of the remote service the controller calls.
type StatusService interface {
	GetStatus(ctx context.Context, id string) (evaluation.StatusSnapshot, error)
	GetResult(ctx context.Context, id string) (evaluation.ResultSnapshot, error)
	Cancel(ctx context.Context, id string) (evaluation.SubmitResponse, error)
}

// Config controls the controller. Zero values fall back to defaults.
type Config struct {
	Interval time.Duration
	// Clock stamps events and latencies. It does not pace cycles.
	Clock evaluation.Clock
	// After paces the wait between cycles; nil means time.After.
	After   func(time.Duration) <-chan time.Time
	Emitter progress.Emitter
	Logger  *zap.Logger
}

// Controller owns the poll cycle of the observed job.
type Controller struct {
	svc      StatusService
	store    *store.Store
	interval time.Duration
	clock    evaluation.Clock
	after    func(time.Duration) <-chan time.Time
	emitter  progress.Emitter
	logger   *zap.Logger

	mu      sync.Mutex
	current *Handle
}

// New constructs a Controller writing into st.
func New(svc StatusService, st *store.Store, cfg Config) *Controller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = system.New()
	}
	if cfg.After == nil {
		cfg.After = time.After
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Controller{
		svc:      svc,
		store:    st,
		interval: cfg.Interval,
		clock:    cfg.Clock,
		after:    cfg.After,
		emitter:  cfg.Emitter,
		logger:   cfg.Logger,
	}
}

// Arm starts polling jobID, which must be the job held by the store.
// Cancelling ctx abandons the observation: polling stops and the store is
// reset without calling the remote cancel.
func (c *Controller) Arm(ctx context.Context, jobID string) (*Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && c.current.State() != StateStopped {
		return nil, fmt.Errorf("arm %s: %w", jobID, ErrAlreadyArmed)
	}
	if held := c.store.JobID(); held != jobID {
		return nil, fmt.Errorf("arm %s (store holds %q): %w", jobID, held, ErrNotObserved)
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		c:       c,
		jobID:   jobID,
		state:   StateIdle,
		ctx:     runCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
		armedAt: c.clock.Now(),
		logger:  c.logger.With(zap.String("job_id", jobID)),
	}
	if _, ok := h.fire(triggerArm); !ok {
		cancel()
		return nil, fmt.Errorf("arm %s: handle not idle", jobID)
	}
	c.current = h
	c.emit(h, progress.Event{Stage: progress.StageJobArmed})
	go h.run()
	return h, nil
}

// Active returns the running handle, or nil.
func (c *Controller) Active() *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.State() == StateStopped {
		return nil
	}
	return c.current
}

// Cancel cancels the running handle, if any. It is idempotent.
func (c *Controller) Cancel(ctx context.Context) error {
	h := c.Active()
	if h == nil {
		return nil
	}
	return h.Cancel(ctx)
}

func (c *Controller) emit(h *Handle, evt progress.Event) {
	if c.emitter == nil {
		return
	}
	evt.JobID = h.jobID
	evt.TS = c.clock.Now()
	c.emitter.Emit(evt)
}
