// Package daemon coordinates the long-running kilnd process.
//
// It wires configuration, the run ledger, the worker, and the HTTP API into
// a single lifecycle with flock-based locking to prevent multiple instances
// inside one container. The daemon reports preflight results at startup and
// owns the retention sweep for old logs and ledger rows.
//
// Keep orchestration here: run semantics live in internal/worker and
// transport in internal/api.
package daemon
