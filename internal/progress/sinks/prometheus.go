package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roshanis/shopagent/internal/progress"
)

// PrometheusSink exports monitor lifecycle metrics: jobs observed, their
// outcomes, polls per status, and the latest completion ratio.
type PrometheusSink struct {
	jobsArmed    prometheus.Counter
	jobsFinished *prometheus.CounterVec
	jobsObserved prometheus.Gauge
	jobRuntime   *prometheus.HistogramVec

	polls        *prometheus.CounterVec
	pollDuration prometheus.Histogram
	overall      prometheus.Gauge

	tracker *jobTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsArmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shoplab_monitor_jobs_armed_total",
			Help: "Total jobs the monitor started polling.",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shoplab_monitor_jobs_finished_total",
			Help: "Observed jobs partitioned by outcome.",
		}, []string{"outcome"}),
		jobsObserved: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shoplab_monitor_jobs_observed",
			Help: "Jobs currently being polled.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shoplab_monitor_job_observation_seconds",
			Help:    "Time from arming to the terminal outcome.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"outcome"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shoplab_monitor_status_polls_total",
			Help: "Status fetches partitioned by reported status.",
		}, []string{"status"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shoplab_monitor_status_poll_seconds",
			Help:    "Status fetch latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}),
		overall: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shoplab_monitor_overall_progress_ratio",
			Help: "Aggregated completion ratio of the most recent poll.",
		}),
		tracker: newJobTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsArmed,
		s.jobsFinished,
		s.jobsObserved,
		s.jobRuntime,
		s.polls,
		s.pollDuration,
		s.overall,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageJobArmed:
		s.jobsArmed.Inc()
		if s.tracker.start(evt.JobID) {
			s.jobsObserved.Inc()
		}
	case progress.StageStatusPolled:
		s.polls.WithLabelValues(string(evt.Status)).Inc()
		s.overall.Set(evt.Overall)
		if evt.Dur > 0 {
			s.pollDuration.Observe(evt.Dur.Seconds())
		}
	case progress.StageJobDone:
		s.finish(evt, "completed")
	case progress.StageJobError:
		s.finish(evt, "error")
	case progress.StageJobCancelled:
		s.finish(evt, "cancelled")
	}
}

func (s *PrometheusSink) finish(evt progress.Event, outcome string) {
	s.jobsFinished.WithLabelValues(outcome).Inc()
	if evt.Dur > 0 {
		s.jobRuntime.WithLabelValues(outcome).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.JobID) {
		s.jobsObserved.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type jobTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newJobTracker() *jobTracker {
	return &jobTracker{running: make(map[string]struct{})}
}

func (t *jobTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *jobTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
