// Package config loads, normalizes, and validates the worker configuration.
//
// Configuration comes from a TOML file plus environment fallbacks such as
// KILN_API_TOKEN and KILN_PRESIGN_ENDPOINT. Loading expands tilde and
// relative paths, fills in defaults for anything the file leaves out, and
// rejects values the daemon could not run with. The resulting Config carries
// every knob the daemon and CLI share, from engine launch flags to artifact
// storage selection.
package config
