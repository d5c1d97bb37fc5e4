// Package preflight provides readiness checks for the engine install,
// filesystem paths, and configuration the worker depends on.
//
// The checks run in two contexts. kilnd executes them once at startup and
// logs failures as warnings; the daemon still comes up, because a detached
// volume may attach later and individual runs fail with typed outcomes
// anyway. The CLI renders the same results as a table for operators.
//
// Checks never create directories or mutate state. Callers that want the
// directories to exist run config.EnsureDirectories first.
package preflight
