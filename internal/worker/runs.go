package worker

import (
	"context"
	"sync"
)

// Runs tracks the evaluations currently executing so they can be aborted.
type Runs struct {
	mu      sync.Mutex
	running map[string]*run
}

type run struct {
	cancel  context.CancelFunc
	aborted bool
}

// NewRuns constructs an empty tracker.
func NewRuns() *Runs {
	return &Runs{running: make(map[string]*run)}
}

// Abort cancels the evaluation if it is running and reports whether it was.
func (r *Runs) Abort(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rn, ok := r.running[id]
	if !ok {
		return false
	}
	rn.aborted = true
	rn.cancel()
	return true
}

// Active reports how many evaluations are running.
func (r *Runs) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

// start registers id and returns a func reporting whether it was aborted.
func (r *Runs) start(id string, cancel context.CancelFunc) func() bool {
	rn := &run{cancel: cancel}
	r.mu.Lock()
	r.running[id] = rn
	r.mu.Unlock()
	return func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return rn.aborted
	}
}

func (r *Runs) finish(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, id)
}
