// Package services defines shared utilities consumed by the worker
// pipeline and the engine integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, component names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that keep failure
//     classification (fatal vs capability-reducing vs per-artifact) uniform
//     across pipeline phases.
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// stays consistent from provisioning through artifact storage.
package services
