// Package assets provisions the engine's model directory from the shared
// network volume. Provisioning reconciles a single symlink (engine models
// dir -> volume model library) and reports what it found; it never fails the
// run, because a worker without shared models can still serve graphs that
// need none.
package assets
