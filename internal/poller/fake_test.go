package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roshanis/shopagent/internal/evaluation"
	"github.com/roshanis/shopagent/internal/progress"
)

type statusReply struct {
	snap evaluation.StatusSnapshot
	err  error
}

// fakeService replays scripted status replies; the last reply repeats.
type fakeService struct {
	mu        sync.Mutex
	replies   []statusReply
	result    evaluation.ResultSnapshot
	resultErr error
	cancelErr error
	// gate, when set, holds every GetStatus call until it is closed,
	// ignoring ctx, to model a response that arrives late.
	gate chan struct{}
	// hold keeps each fetch busy for a while to expose overlap.
	hold time.Duration

	// starts and ends stamp every GetStatus call, guarded by mu.
	starts []time.Time
	ends   []time.Time

	statusCalls atomic.Int32
	resultCalls atomic.Int32
	cancelCalls atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeService) GetStatus(_ context.Context, id string) (evaluation.StatusSnapshot, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	call := int(f.statusCalls.Add(1)) - 1
	f.mu.Lock()
	f.starts = append(f.starts, time.Now())
	f.mu.Unlock()

	if f.gate != nil {
		<-f.gate
	}
	if f.hold > 0 {
		time.Sleep(f.hold)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.ends = append(f.ends, time.Now())
	if len(f.replies) == 0 {
		return evaluation.StatusSnapshot{ID: id, Status: evaluation.StatusRunning}, nil
	}
	if call >= len(f.replies) {
		call = len(f.replies) - 1
	}
	r := f.replies[call]
	if r.snap.ID == "" {
		r.snap.ID = id
	}
	return r.snap, r.err
}

// timings returns copies of the recorded GetStatus start and end times.
func (f *fakeService) timings() (starts, ends []time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.starts...), append([]time.Time(nil), f.ends...)
}

func (f *fakeService) GetResult(_ context.Context, id string) (evaluation.ResultSnapshot, error) {
	f.resultCalls.Add(1)
	if f.resultErr != nil {
		return evaluation.ResultSnapshot{}, f.resultErr
	}
	res := f.result
	res.ID = id
	return res, nil
}

func (f *fakeService) Cancel(_ context.Context, id string) (evaluation.SubmitResponse, error) {
	f.cancelCalls.Add(1)
	if f.cancelErr != nil {
		return evaluation.SubmitResponse{}, f.cancelErr
	}
	return evaluation.SubmitResponse{ID: id, Status: evaluation.StatusCancelled}, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Stage)
	}
	return out
}

func status(s evaluation.Status, prog map[string]float64) statusReply {
	return statusReply{snap: evaluation.StatusSnapshot{Status: s, Progress: prog}}
}
