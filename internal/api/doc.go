// Package api hosts the control server for harvest runs. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to start a run, GET /v1/runs/{run_id} to inspect it and
//     POST /v1/runs/{run_id}/cancel to stop it.
//   - GET /v1/stats for company and posting totals.
package api
