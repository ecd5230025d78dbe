// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping of the service registry.
//   - GET /api/runs and /api/runs/{run_id} for reading the run ledger via the
//     store.RunRepository interface.
package api
