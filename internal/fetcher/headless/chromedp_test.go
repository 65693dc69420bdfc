package headless

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
)

func TestNewChromedpLimiterValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewChromedp(Config{MaxParallel: -1}); err == nil {
		t.Fatal("expected error for negative max parallel")
	}
	r, err := NewChromedp(Config{MaxParallel: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r.Close()
	if cap(r.limiter) != 2 {
		t.Fatalf("expected limiter capacity 2, got %d", cap(r.limiter))
	}
	if r.cfg.Settle != 500*time.Millisecond {
		t.Fatalf("expected default settle delay, got %v", r.cfg.Settle)
	}
}

func TestRendererNavTimeoutDefault(t *testing.T) {
	t.Parallel()

	r := &Renderer{}
	if got := r.navTimeout(); got != defaultNavigationTimeout {
		t.Fatalf("expected default nav timeout, got %v", got)
	}
	r.cfg.NavigationTimeout = time.Second
	if got := r.navTimeout(); got != time.Second {
		t.Fatalf("expected override to be used, got %v", got)
	}
}

func TestAcquireHonoursContext(t *testing.T) {
	t.Parallel()

	r := &Renderer{limiter: make(chan struct{}, 1)}
	if err := r.acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled acquire, got %v", err)
	}
	r.release()
	if err := r.acquire(context.Background()); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestResponseMetaCaptureAndFallbacks(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 500, URL: "https://cdn/app.js"},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 203, URL: "https://example.com/rendered"},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200, URL: "https://ads.example.com/frame"},
	})
	status, url := meta.snapshotWithFallbacks("https://req", "")
	if status != 203 || url != "https://example.com/rendered" {
		t.Fatalf("unexpected snapshot values: status=%d url=%s", status, url)
	}

	meta = newResponseMeta()
	status, url = meta.snapshotWithFallbacks("https://req", "https://final")
	if status != http.StatusOK || url != "https://final" {
		t.Fatalf("expected fallback values, got status=%d url=%s", status, url)
	}
	status, url = meta.snapshotWithFallbacks("https://req", "")
	if status != http.StatusOK || url != "https://req" {
		t.Fatalf("expected request url fallback, got status=%d url=%s", status, url)
	}
}
