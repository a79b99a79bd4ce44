// Command siteingest crawls websites into a vector store.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics and crawl endpoints. Each caller identifies itself with
//     the X-User-ID header and may run at most ingest.max_concurrent_tasks crawls at once.
//   - Orchestration: internal/ingest.Service admits tasks and launches them on an ants pool; internal/worker runs the
//     crawl, clean, chunk, embed and store phases and records progress after each.
//   - Fetching: the frontier crawler walks one authority breadth-first in small batches. Every request passes through
//     one process-wide rate limiter before the Colly fetcher issues it.
//   - Persistence & fanout: vectors go to memory or Postgres; a completion event is published to Pub/Sub when a
//     topic is configured, otherwise recorded in memory.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     metrics are exported via the metrics middleware and /metrics handler.
//
// Quick checklist:
//   - Configure env vars: SITEINGEST_SERVER_PORT or PORT, SITEINGEST_CRAWLER_REQUESTS_PER_SECOND,
//     SITEINGEST_EMBEDDING_PROVIDER, SITEINGEST_VECTORSTORE_BACKEND and SITEINGEST_VECTORSTORE_DSN.
//   - Serve: siteingest serve --config config.yaml
//   - One-shot: siteingest crawl https://example.com --max-pages 20 --user alice
package main
