// Package supervisor manages the render engine process.
//
// The engine is launched lazily: EnsureRunning probes the HTTP endpoint and
// only spawns when nothing answers, so a warm engine is reused across runs.
// Engine output goes to append-mode log files, and startup failures carry the
// tail of those files so crashes are diagnosable from the run record alone.
package supervisor
