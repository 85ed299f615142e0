// Package http provides the HTTP observability surface for the session sync
// engine: Prometheus metrics, health checks, and a JSON stats snapshot.
//
// # Endpoints
//
//	GET /metrics - Prometheus exposition format
//	GET /health  - component health checks (200 or 503)
//	GET /stats   - JSON snapshot of engine counters and gauges
//
// The listener binds to localhost by default. The engine's API surface stays
// in-process; this server exposes read-only operational state only.
package http
