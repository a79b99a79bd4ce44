// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/crawls to start a crawl-and-ingest task.
//   - GET /v1/crawls and /v1/crawls/{task_id} for progress polling.
//
// Every /v1 route requires the caller's identity in the X-User-ID header.
package api
