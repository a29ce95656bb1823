// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/captures to submit a page capture.
//   - GET /v1/captures and /v1/captures/{capture_id} for capture
//     records including the delivery transcript.
//   - GET /v1/captures/{capture_id}/document and /images/{index} to
//     download artifacts while they are retained on disk.
//   - POST /v1/retention/sweep to run a retention pass immediately.
package api
