// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - GET /posts/{username} runs one scrape job and returns its records.
//   - GET / serves a static landing page.
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/runs and /v1/runs/{run_id} for the run log via the
//     RunRepository interface.
package api
