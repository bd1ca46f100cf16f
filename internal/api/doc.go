// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/scans for structured Places scans.
//   - POST /v1/browser-runs and GET /v1/browser-runs/{job_id} for background
//     browser runs.
//   - GET /v1/leads, PATCH /v1/leads/{id} and GET /v1/leads/countries for the
//     admin lead list.
package api
