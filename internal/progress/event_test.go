package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roshanis/shopagent/internal/evaluation"
)

func TestEventValidate(t *testing.T) {
	t.Parallel()

	now := time.Unix(10, 0)
	tests := []struct {
		name    string
		evt     Event
		wantErr string
	}{
		{name: "armed", evt: Event{JobID: "j1", TS: now, Stage: StageJobArmed}},
		{name: "poll", evt: Event{JobID: "j1", TS: now, Stage: StageStatusPolled, Status: evaluation.StatusRunning, Overall: 0.5}},
		{name: "missing id", evt: Event{TS: now, Stage: StageJobArmed}, wantErr: "job id"},
		{name: "missing ts", evt: Event{JobID: "j1", Stage: StageJobArmed}, wantErr: "timestamp"},
		{name: "poll without status", evt: Event{JobID: "j1", TS: now, Stage: StageStatusPolled}, wantErr: "status"},
		{name: "unknown stage", evt: Event{JobID: "j1", TS: now, Stage: "NOPE"}, wantErr: "unknown stage"},
		{name: "negative dur", evt: Event{JobID: "j1", TS: now, Stage: StageJobDone, Dur: -time.Second}, wantErr: "duration"},
		{name: "overall range", evt: Event{JobID: "j1", TS: now, Stage: StageJobDone, Overall: 2}, wantErr: "overall"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.evt.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}
