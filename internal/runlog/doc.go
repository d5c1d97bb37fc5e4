// Package runlog persists a record of every render run the worker
// processes. The ledger exists for operators, the HTTP API, and the
// CLI; job control flow never depends on it, so callers log write
// failures instead of aborting a run.
package runlog
