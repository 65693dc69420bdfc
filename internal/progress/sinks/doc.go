// Package sinks contains progress.Sink implementations for the monitor's
// lifecycle events: structured zap logs, Prometheus collectors and
// Pub/Sub messages.
package sinks
