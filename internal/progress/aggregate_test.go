package progress

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roshanis/shopagent/internal/evaluation"
)

func TestAggregateMean(t *testing.T) {
	t.Parallel()

	ratio, ok := Aggregate(map[string]float64{"A": 0.5, "B": 0.0})
	require.True(t, ok)
	require.InDelta(t, 0.25, ratio, 1e-9)
}

func TestAggregateStaysInUnitInterval(t *testing.T) {
	t.Parallel()

	inputs := []map[string]float64{
		{"A": 0},
		{"A": 1},
		{"A": 1, "B": 1, "C": 1, "D": 1},
		{"A": 0.1, "B": 0.9, "C": 0.33},
		{"A": 0.999, "B": 0.001},
	}
	for _, in := range inputs {
		ratio, ok := Aggregate(in)
		require.True(t, ok)
		require.GreaterOrEqual(t, ratio, 0.0)
		require.LessOrEqual(t, ratio, 1.0)

		var sum float64
		for _, v := range in {
			sum += v
		}
		require.InDelta(t, sum/float64(len(in)), ratio, 1e-9)
	}
}

func TestAggregateClampsOutOfRange(t *testing.T) {
	t.Parallel()

	ratio, ok := Aggregate(map[string]float64{"A": -1, "B": 3, "C": math.NaN(), "D": 0.5})
	require.True(t, ok)
	require.InDelta(t, 1.5/4, ratio, 1e-9)
}

func TestAggregateEmpty(t *testing.T) {
	t.Parallel()

	ratio, ok := Aggregate(nil)
	require.False(t, ok)
	require.Zero(t, ratio)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	require.Equal(t, WorkerPending, Classify(0))
	require.Equal(t, WorkerRunning, Classify(0.01))
	require.Equal(t, WorkerRunning, Classify(0.99))
	require.Equal(t, WorkerCompleted, Classify(1))
	require.Equal(t, WorkerCompleted, Classify(1.2))
}

func TestSummarizeRunning(t *testing.T) {
	t.Parallel()

	created := time.Unix(1_000, 0).UTC()
	snap := evaluation.StatusSnapshot{
		ID:        "j1",
		Status:    evaluation.StatusRunning,
		Progress:  map[string]float64{"B": 0.0, "A": 0.5},
		CreatedAt: created,
	}
	sum := Summarize(snap, created.Add(10*time.Second))

	require.InDelta(t, 0.25, sum.Overall, 1e-9)
	require.Equal(t, 25, sum.Percent)
	require.Len(t, sum.Workers, 2)
	require.Equal(t, "A", sum.Workers[0].Name)
	require.Equal(t, WorkerRunning, sum.Workers[0].State)
	require.Equal(t, WorkerPending, sum.Workers[1].State)
	require.Equal(t, 10*time.Second, sum.Elapsed)
	// (30-10) * 0.75 = 15
	require.Equal(t, 15*time.Second, sum.EstimatedRemaining)
}

func TestSummarizeCompletedWithoutProgress(t *testing.T) {
	t.Parallel()

	sum := Summarize(evaluation.StatusSnapshot{Status: evaluation.StatusCompleted}, time.Now())
	require.InDelta(t, 1.0, sum.Overall, 0)
	require.Equal(t, 100, sum.Percent)
	require.Zero(t, sum.EstimatedRemaining)
}

func TestSummarizeUsesCompletedAt(t *testing.T) {
	t.Parallel()

	created := time.Unix(1_000, 0).UTC()
	done := created.Add(42 * time.Second)
	snap := evaluation.StatusSnapshot{
		Status:      evaluation.StatusCompleted,
		Progress:    map[string]float64{"A": 1},
		CreatedAt:   created,
		CompletedAt: &done,
	}
	sum := Summarize(snap, created.Add(time.Hour))
	require.Equal(t, 42*time.Second, sum.Elapsed)
}
