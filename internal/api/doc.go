// Package api exposes the worker over HTTP: synchronous render
// submission, run ledger queries, health and stats probes, and
// Prometheus metrics.
//
// # Key Types
//
// Run: transport representation of a ledger entry with the decoded
// outcome inlined, so consumers never parse nested JSON strings.
//
// HealthStatus: engine liveness plus the last model provisioning pass.
//
// WorkerStats: uptime, run counts, storage mode, and free disk space.
//
// # Design Notes
//
// DTOs use camelCase JSON tags and RFC3339 millisecond timestamps. The
// one exception is POST /api/run, whose response is the worker outcome
// in its serverless wire form (volume_paths, total_images); that shape
// is a contract with existing job senders and stays snake_case.
//
// Submission is synchronous: POST /api/run holds the connection until
// the render finishes. The server therefore sets no write deadline and
// derives request contexts from the daemon context, so an in-flight
// render aborts with the daemon instead of outliving shutdown.
//
// Client is the other half of the contract: cmd/kiln talks to kilnd
// through it. It applies the same rules from the caller's side, with
// no client timeout on submissions and failed runs surfaced as
// outcomes rather than transport errors.
package api
