// Package logs reads the tails of engine output files with bounded memory.
//
// The supervisor appends engine stdout and stderr to files rather than
// buffering them in memory; when startup fails, the trailing lines are the
// only diagnostic available. This package provides that tail consistently so
// callers do not re-implement ad-hoc seek logic.
package logs
