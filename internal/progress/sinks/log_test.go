package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roshanis/shopagent/internal/evaluation"
	"github.com/roshanis/shopagent/internal/progress"
)

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))

	now := time.Now()
	batch := []progress.Event{
		{JobID: "j1", TS: now, Stage: progress.StageJobArmed},
		{JobID: "j1", TS: now, Stage: progress.StageStatusPolled, Status: evaluation.StatusRunning, Overall: 0.25},
		{JobID: "j1", TS: now, Stage: progress.StageJobError, Status: evaluation.StatusFailed, Note: "boom"},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 3)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, zapcore.DebugLevel, entries[1].Level)
	require.InDelta(t, 0.25, entries[1].ContextMap()["overall"], 1e-9)
	require.Equal(t, zapcore.WarnLevel, entries[2].Level)
	require.Equal(t, "boom", entries[2].ContextMap()["note"])
}

func TestNewLogSinkNilLogger(t *testing.T) {
	t.Parallel()

	sink := NewLogSink(nil)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{{JobID: "j1", TS: time.Now(), Stage: progress.StageJobDone}}))
}
