package progress

import (
	"math"
	"sort"
	"time"

	"github.com/roshanis/shopagent/internal/evaluation"
)

// WorkerState is the presentational classification of one worker.
type WorkerState string

// Worker states derived from a progress fraction.
const (
	WorkerPending   WorkerState = "pending"
	WorkerRunning   WorkerState = "running"
	WorkerCompleted WorkerState = "completed"
)

// expectedRuntime is the nominal duration used for the remaining-time estimate.
const expectedRuntime = 30 * time.Second

// Clamp maps a fraction into [0,1]; NaN becomes 0.
func Clamp(fraction float64) float64 {
	switch {
	case math.IsNaN(fraction), fraction < 0:
		return 0
	case fraction > 1:
		return 1
	default:
		return fraction
	}
}

// Aggregate returns the mean of the clamped fractions. ok is false for an
// empty mapping and the ratio is then 0.
func Aggregate(workers map[string]float64) (ratio float64, ok bool) {
	if len(workers) == 0 {
		return 0, false
	}
	var sum float64
	for _, fraction := range workers {
		sum += Clamp(fraction)
	}
	return sum / float64(len(workers)), true
}

// Classify maps a fraction to pending (0), completed (1) or running.
func Classify(fraction float64) WorkerState {
	switch Clamp(fraction) {
	case 0:
		return WorkerPending
	case 1:
		return WorkerCompleted
	default:
		return WorkerRunning
	}
}

// Worker is one display row.
type Worker struct {
	Name     string
	Fraction float64
	Percent  int
	State    WorkerState
}

// Summary holds the derived display metrics for a status snapshot.
type Summary struct {
	Overall            float64
	Percent            int
	Workers            []Worker
	Elapsed            time.Duration
	EstimatedRemaining time.Duration
}

// Summarize derives display metrics from a snapshot at time now.
func Summarize(snap evaluation.StatusSnapshot, now time.Time) Summary {
	overall, ok := Aggregate(snap.Progress)
	if !ok && snap.Status == evaluation.StatusCompleted {
		overall = 1
	}

	workers := make([]Worker, 0, len(snap.Progress))
	for name, fraction := range snap.Progress {
		f := Clamp(fraction)
		workers = append(workers, Worker{
			Name:     name,
			Fraction: f,
			Percent:  int(math.Round(f * 100)),
			State:    Classify(f),
		})
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i].Name < workers[j].Name })

	var elapsed time.Duration
	if !snap.CreatedAt.IsZero() {
		end := now
		if snap.CompletedAt != nil {
			end = *snap.CompletedAt
		}
		if elapsed = end.Sub(snap.CreatedAt).Truncate(time.Second); elapsed < 0 {
			elapsed = 0
		}
	}

	return Summary{
		Overall:            overall,
		Percent:            int(math.Round(overall * 100)),
		Workers:            workers,
		Elapsed:            elapsed,
		EstimatedRemaining: estimateRemaining(elapsed, overall),
	}
}

func estimateRemaining(elapsed time.Duration, overall float64) time.Duration {
	left := (expectedRuntime - elapsed).Seconds() * (1 - overall)
	if left <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(left)) * time.Second
}
