// Package logging assembles structured slog loggers and formatting helpers
// used across the worker.
//
// It owns the configurable console/JSON handlers, centralizes level and
// output plumbing, and exposes context-aware helpers so pipeline code can
// automatically tag log lines with run IDs, component names, and correlation
// IDs. The package also provides a no-op logger for tests and wiring code
// that cannot fail, plus retention pruning for the engine process logs.
//
// Prefer these constructors over hand-rolled slog setup so components emit
// data with the same shape and routing guarantees as the rest of the system.
package logging
