package evaluation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	cases := map[Status]bool{
		StatusPending:   false,
		StatusRunning:   false,
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	}
	for status, want := range cases {
		require.Equal(t, want, status.Terminal(), status)
		require.True(t, status.Valid())
	}
	require.False(t, Status("paused").Valid())
}

func TestStatusSnapshotCloneIsDeep(t *testing.T) {
	t.Parallel()

	done := time.Unix(200, 0).UTC()
	snap := StatusSnapshot{
		ID:          "j1",
		Status:      StatusCompleted,
		Progress:    map[string]float64{"A": 1},
		CompletedAt: &done,
	}
	cp := snap.Clone()
	cp.Progress["A"] = 0.5
	*cp.CompletedAt = time.Unix(300, 0)

	require.InDelta(t, 1.0, snap.Progress["A"], 0)
	require.Equal(t, time.Unix(200, 0).UTC(), *snap.CompletedAt)
}

func TestResultSnapshotCloneIsDeep(t *testing.T) {
	t.Parallel()

	res := ResultSnapshot{
		OverallScore: 80,
		AgentResults: map[string]AgentResult{
			"A": {Score: 80, Details: map[string]any{"k": "v"}},
		},
		KeyStrengths: []string{"cheap"},
	}
	cp := res.Clone()
	cp.AgentResults["A"].Details["k"] = "changed"
	cp.KeyStrengths[0] = "changed"

	require.Equal(t, "v", res.AgentResults["A"].Details["k"])
	require.Equal(t, "cheap", res.KeyStrengths[0])
}
