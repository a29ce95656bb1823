// Package main hosts the pagesnap service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, and capture endpoints. Submitted URLs are validated
//     and normalized (bare domains default to https), persisted via the CaptureStore, and enqueued for work.
//   - Dispatcher & queue: captures flow through a bounded in-memory queue sized by config.Capture.QueueDepth and
//     are fanned out to a fixed worker pool sized by config.Capture.Concurrency. Context cancellation stops
//     workers cleanly on shutdown.
//   - Capture pipeline: workers fetch the page via the Colly-based fetcher, promote to a headless Chromedp render
//     when the heuristic detector finds a script-heavy shell, then inline images, stylesheets, and scripts into a
//     single self-contained document. Inlining is two-phase per resource kind: collect references from the parsed
//     DOM, fetch them concurrently with a bounded errgroup, then mutate the tree in document order.
//   - Persistence & fanout: the finished document and extracted images land in a per-capture page directory under
//     the artifact root. The document is archived to GCS and a compact Pub/Sub event is published when those
//     integrations are configured; both are optional and never fail the capture. Outbound deliveries are recorded
//     on the capture as a transcript.
//   - Retention: the janitor sweeps page directories past the retention age on an interval and honors per-capture
//     scheduled deletions after delivery. Downloads answer 410 once artifacts are gone.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     counters and histograms are exported via /metrics. Capture state lives in memory or Postgres depending on
//     config, so the HTTP surface itself stays stateless.
//
// Operational notes:
//   - Concurrency model: bounded queue + fixed worker pool; headless renders have their own semaphore and
//     per-domain rate limits inside the Chromedp renderer. Shutdown is coordinated via context cancellation
//     propagated from main through the dispatcher to workers, then the queue is closed and drained.
//   - Timeouts: page, resource, and CSS fetches each carry their own budget from config; a timeout counts as a
//     resource failure and never aborts the whole capture.
//   - Observability: zap logs carry capture IDs and URLs at key transitions; Prometheus tracks HTTP traffic,
//     resource fetch outcomes, retries, render promotions, and swept directories.
//
// Quick checklist:
//   - Configure env vars: PAGESNAP_SERVER_PORT, PAGESNAP_CAPTURE_CONCURRENCY, PAGESNAP_HEADLESS_ENABLED,
//     PAGESNAP_ARTIFACTS_ROOT, plus PAGESNAP_DB_*, PAGESNAP_ARCHIVE_*, and PAGESNAP_PUBSUB_* when persistence or
//     fanout beyond memory is required.
//   - Run locally: go run ./cmd/pagesnap -config config.yaml (or rely solely on env overrides). A Chrome or
//     Chromium binary must be on PATH for headless rendering; without one the service degrades to plain fetches.
package main
