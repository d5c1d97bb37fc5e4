// Package worker sequences a render run end to end: provision the model
// library, ensure the engine is serving, submit the job graph, await the
// terminal history entry, locate artifacts, and store each one.
//
// A run fails only when zero artifacts end up accessible. Provisioning
// problems reduce capability, and per-artifact storage failures become
// warnings on an otherwise successful outcome. Invocations are serialized
// within one worker; the engine process is reused across runs.
package worker
