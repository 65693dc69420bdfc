package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roshanis/shopagent/internal/evaluation"
	"github.com/roshanis/shopagent/internal/service"
)

type fakeArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func (a *fakeArchive) PutObject(_ context.Context, path, contentType string, r io.Reader) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.objects == nil {
		a.objects = map[string][]byte{}
		a.types = map[string]string{}
	}
	a.objects[path] = body
	a.types[path] = contentType
	return "mem://" + path, nil
}

func (a *fakeArchive) get(path string) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.objects[path]
	return b, ok
}

func TestWorker_ArchivesFinishedEvaluation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := seededRegistry(t, "eval-arch")
	queue := &fakeQueue{items: []service.QueueItem{{EvaluationID: "eval-arch"}}}
	engine := &fakeEvaluator{
		evaluate: func(context.Context, func(map[string]float64)) (evaluation.ResultSnapshot, error) {
			return evaluation.ResultSnapshot{OverallScore: 70, OverallRecommendation: evaluation.RecommendationNeutral}, nil
		},
	}
	archive := &fakeArchive{}
	done := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	w := New(queue, registry, engine, nil, &fakeClock{now: done}, Config{Archive: archive, ArchivePrefix: "reports"}, zap.NewNop())
	go w.Run(ctx)

	const path = "reports/2025/03/01/eval-arch.json"
	require.Eventually(t, func() bool {
		_, ok := archive.get(path)
		return ok
	}, time.Second, 10*time.Millisecond)

	body, _ := archive.get(path)
	var got report
	require.NoError(t, json.Unmarshal(body, &got))
	require.Equal(t, "eval-arch", got.ID)
	require.Equal(t, evaluation.StatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	require.Equal(t, 70, got.Result.OverallScore)
	require.Equal(t, "application/json", archive.types[path])
}

func TestWorker_ArchiveFailureKeepsOutcome(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := seededRegistry(t, "eval-arch-fail")
	queue := &fakeQueue{items: []service.QueueItem{{EvaluationID: "eval-arch-fail"}}}
	engine := &fakeEvaluator{
		evaluate: func(context.Context, func(map[string]float64)) (evaluation.ResultSnapshot, error) {
			return evaluation.ResultSnapshot{}, errors.New("boom")
		},
	}
	archive := &fakeArchive{err: errors.New("bucket gone")}
	w := New(queue, registry, engine, nil, &fakeClock{now: time.Unix(100, 0)}, Config{Archive: archive}, zap.NewNop())
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		return status(t, registry, "eval-arch-fail") == evaluation.StatusFailed
	}, time.Second, 10*time.Millisecond)
}
