// Package api hosts the HTTP server and middleware of the reference
// evaluation service. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/agents to list the analysis agents.
//   - POST /api/evaluate to submit a product.
//   - GET /api/evaluate/{id}/status and /result to follow a job.
//   - DELETE /api/evaluate/{id} to cancel it.
//
// Errors are returned as {"detail": "..."} bodies.
package api
