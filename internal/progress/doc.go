// Package progress turns per-worker progress fractions into a single
// completion metric for display, and carries the monitor's lifecycle events.
// Events are batched on a background goroutine and fanned out to pluggable
// sinks such as structured logs or Prometheus metrics.
package progress
