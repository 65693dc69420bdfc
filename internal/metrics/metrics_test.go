package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := evaluationsTotal
	Init()
	require.Same(t, first, evaluationsTotal)
}

func TestEvaluationCollectors(t *testing.T) {
	Init()

	completed := evaluationsTotal.WithLabelValues("completed")
	before := testutil.ToFloat64(completed)
	ObserveEvaluation("completed")
	require.InDelta(t, before+1, testutil.ToFloat64(completed), 1e-9)

	gauge := testutil.ToFloat64(activeEvaluations)
	IncActiveEvaluations()
	require.InDelta(t, gauge+1, testutil.ToFloat64(activeEvaluations), 1e-9)
	DecActiveEvaluations()
	require.InDelta(t, gauge, testutil.ToFloat64(activeEvaluations), 1e-9)

	ObserveAgent("Cost Analysis", 1500*time.Millisecond)
	require.Positive(t, testutil.CollectAndCount(agentDurationSeconds))

	rejected := testutil.ToFloat64(queueRejectionsTotal)
	ObserveQueueRejection()
	require.InDelta(t, rejected+1, testutil.ToFloat64(queueRejectionsTotal), 1e-9)

	SetQueueDepth(3)
	require.InDelta(t, 3, testutil.ToFloat64(queueDepth), 1e-9)
	SetQueueDepth(0)
	require.Zero(t, testutil.ToFloat64(queueDepth))
}

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/evaluate/{id}/status", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	ok := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200"))
	notFound := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404"))

	for _, path := range []string{"/api/evaluate/j1/status", "/missing"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.InDelta(t, ok+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")), 1e-9)
	require.InDelta(t, notFound+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404")), 1e-9)
	require.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}
