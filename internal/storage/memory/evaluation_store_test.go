package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roshanis/shopagent/internal/evaluation"
	"github.com/roshanis/shopagent/internal/service"
)

func TestEvaluationStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewEvaluationStore()
	ctx := context.Background()
	created := time.Unix(100, 0).UTC()
	rec := service.Record{
		ID:        "eval-1",
		Status:    evaluation.StatusPending,
		Product:   evaluation.Product{Name: "X", Brand: "B", Price: 1},
		Progress:  map[string]float64{"A": 0, "B": 0},
		CreatedAt: created,
	}

	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Create(ctx, rec); !errors.Is(err, service.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if err := store.MarkRunning(ctx, rec.ID); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	progress := map[string]float64{"A": 0.5, "B": 0.3}
	if err := store.UpdateProgress(ctx, rec.ID, progress); err != nil {
		t.Fatalf("UpdateProgress() error = %v", err)
	}
	progress["A"] = 0.9
	got, err := store.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != evaluation.StatusRunning || got.Progress["A"] != 0.5 {
		t.Fatalf("unexpected record %+v", got)
	}
	got.Progress["B"] = 1
	if again, _ := store.Get(ctx, rec.ID); again.Progress["B"] != 0.3 {
		t.Fatal("expected Get to return a copy")
	}

	done := created.Add(time.Minute)
	if err := store.Complete(ctx, rec.ID, evaluation.ResultSnapshot{OverallScore: 71}, done); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	final, err := store.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if final.Status != evaluation.StatusCompleted || final.Result == nil || final.Result.OverallScore != 71 {
		t.Fatalf("unexpected final record %+v", final)
	}
	if final.CompletedAt == nil || !final.CompletedAt.Equal(done) {
		t.Fatalf("expected completed_at %v, got %v", done, final.CompletedAt)
	}
	if final.Progress["A"] != 1 || final.Progress["B"] != 1 {
		t.Fatalf("expected full progress, got %v", final.Progress)
	}
	if err := store.UpdateProgress(ctx, rec.ID, progress); !errors.Is(err, service.ErrFinished) {
		t.Fatalf("expected ErrFinished, got %v", err)
	}
}

func TestEvaluationStoreCancelIsFinal(t *testing.T) {
	t.Parallel()

	store := NewEvaluationStore()
	ctx := context.Background()
	if err := store.Create(ctx, service.Record{ID: "eval-2", Status: evaluation.StatusPending}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	at := time.Unix(200, 0).UTC()
	rec, err := store.Cancel(ctx, "eval-2", at)
	if err != nil || rec.Status != evaluation.StatusCancelled {
		t.Fatalf("Cancel() = %+v, %v", rec, err)
	}
	if err := store.Complete(ctx, "eval-2", evaluation.ResultSnapshot{}, at); !errors.Is(err, service.ErrFinished) {
		t.Fatalf("expected cancelled record to reject completion, got %v", err)
	}
	if err := store.MarkRunning(ctx, "eval-2"); !errors.Is(err, service.ErrFinished) {
		t.Fatalf("expected cancelled record to reject running, got %v", err)
	}
	again, err := store.Cancel(ctx, "eval-2", at.Add(time.Hour))
	if err != nil || !again.CompletedAt.Equal(at) {
		t.Fatalf("second Cancel() = %+v, %v", again, err)
	}
}

func TestEvaluationStoreNotFound(t *testing.T) {
	t.Parallel()

	store := NewEvaluationStore()
	ctx := context.Background()
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, evaluation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Cancel(ctx, "missing", time.Now()); !errors.Is(err, evaluation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Fail(ctx, "missing", "x", time.Now()); !errors.Is(err, evaluation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
