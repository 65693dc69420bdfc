package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimiter_Wait(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()

	if err := l.Wait(ctx, "gpt-4o-mini"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	start := time.Now()
	if err := l.Wait(ctx, "gpt-4o-mini"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("second wait should be delayed by the bucket, took %v", elapsed)
	}
}

func TestLimiter_WaitHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.01, DefaultBurst: 1})
	if err := l.Wait(context.Background(), "k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "k")
	if err == nil {
		t.Fatal("expected error from exhausted bucket")
	}
	if errors.Is(err, context.Canceled) {
		t.Fatalf("expected deadline-style error, got %v", err)
	}
}

func TestLimiter_AllowPerKey(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 1, DefaultBurst: 2})
	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("burst of 2 should allow two calls")
	}
	if l.Allow("a") {
		t.Fatal("third call should be limited")
	}
	if !l.Allow("b") {
		t.Fatal("keys must not share buckets")
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	if !l.Unlimited() {
		t.Fatal("zero rps should disable limiting")
	}
	for range 100 {
		if !l.Allow("x") {
			t.Fatal("unlimited limiter rejected a call")
		}
	}
	var nilLimiter *Limiter
	if err := nilLimiter.Wait(context.Background(), "x"); err != nil {
		t.Fatalf("nil limiter should not block: %v", err)
	}
}
