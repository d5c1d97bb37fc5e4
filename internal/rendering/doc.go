// Package rendering submits job graphs to the engine and waits for their
// terminal state under a wall-clock budget.
package rendering
