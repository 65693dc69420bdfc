package api_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roshanis/shopagent/internal/agents"
	"github.com/roshanis/shopagent/internal/api"
	"github.com/roshanis/shopagent/internal/client"
	"github.com/roshanis/shopagent/internal/clock/system"
	"github.com/roshanis/shopagent/internal/config"
	"github.com/roshanis/shopagent/internal/dispatcher"
	"github.com/roshanis/shopagent/internal/evaluation"
	"github.com/roshanis/shopagent/internal/id/uuid"
	"github.com/roshanis/shopagent/internal/poller"
	queuememory "github.com/roshanis/shopagent/internal/queue/memory"
	"github.com/roshanis/shopagent/internal/service"
	"github.com/roshanis/shopagent/internal/storage/memory"
	"github.com/roshanis/shopagent/internal/store"
	"github.com/roshanis/shopagent/internal/view"
	"github.com/roshanis/shopagent/internal/worker"
)

// startStack runs the whole service behind an httptest server and returns
// a view machine observing it through the HTTP client.
func startStack(t *testing.T, step time.Duration) *view.Machine {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	clock := system.New()
	registry := memory.NewEvaluationStore()
	queue := queuememory.NewQueue(8)
	runs := worker.NewRuns()
	panel := agents.NewPanel(agents.Heuristics(step), nil)

	workers := []*worker.Worker{
		worker.New(queue, registry, panel, runs, clock, worker.Config{JobTimeout: 10 * time.Second}, nil),
		worker.New(queue, registry, panel, runs, clock, worker.Config{JobTimeout: 10 * time.Second}, nil),
	}
	disp := dispatcher.New(queue, workers, dispatcher.Config{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		disp.Run(ctx)
	}()

	svc := service.New(registry, disp, panel, runs, uuid.New(), clock, service.Config{}, nil)
	cfg := config.Config{Auth: config.AuthConfig{Enabled: true, APIKey: "k"}}
	srv := httptest.NewServer(api.NewServer(svc, cfg, zap.NewNop()).Handler())

	t.Cleanup(func() {
		srv.Close()
		cancel()
		queue.Close()
		<-done
	})

	c, err := client.New(srv.URL, client.WithAPIKey("k"), client.WithTimeout(2*time.Second))
	require.NoError(t, err)
	st := store.New()
	ctrl := poller.New(c, st, poller.Config{Interval: 10 * time.Millisecond})
	return view.New(c, st, ctrl, nil, nil)
}

func TestLifecycle_CompletesThroughHTTP(t *testing.T) {
	t.Parallel()

	m := startStack(t, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rating := 4.6
	resp, err := m.Submit(ctx, evaluation.Product{
		Name:        "Organic Shampoo",
		Brand:       "Acme",
		Price:       12,
		Category:    "beauty",
		Ingredients: "water, aloe, coconut oil",
		Reviews:     "love it, great scent",
		Rating:      &rating,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.ID)

	v, err := m.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, view.StateResults, v.State)
	require.NotNil(t, v.Result)
	assert.Equal(t, resp.ID, v.Result.ID)
	assert.Equal(t, evaluation.StatusCompleted, v.Result.Status)
	assert.Len(t, v.Result.AgentResults, 4)
	assert.NotNil(t, v.Result.KeyStrengths)
	require.NotNil(t, v.Status)
	for name, f := range v.Status.Progress {
		assert.InDelta(t, 1.0, f, 1e-9, name)
	}

	outcome, ok := m.Outcome()
	require.True(t, ok)
	assert.Equal(t, poller.OutcomeCompleted, outcome.Kind)
}

func TestLifecycle_CancelReturnsToSubmission(t *testing.T) {
	t.Parallel()

	m := startStack(t, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := m.Submit(ctx, evaluation.Product{Name: "Soap", Brand: "Acme", Price: 3})
	require.NoError(t, err)
	require.Equal(t, view.StateObserving, m.View().State)

	m.Cancel(ctx)
	v, err := m.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, view.StateSubmission, v.State)
	assert.Empty(t, v.Message)

	outcome, ok := m.Outcome()
	require.True(t, ok)
	assert.Equal(t, poller.OutcomeCancelled, outcome.Kind)
}

func TestLifecycle_RejectedSubmission(t *testing.T) {
	t.Parallel()

	m := startStack(t, 0)
	_, err := m.Submit(context.Background(), evaluation.Product{Name: "Soap", Brand: "Acme", Price: -1})
	require.Error(t, err)

	v := m.View()
	assert.Equal(t, view.StateSubmission, v.State)
	assert.NotEmpty(t, v.Message)
}
