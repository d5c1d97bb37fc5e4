// Package outputs resolves the files a render job produced.
//
// The engine's history result names its artifacts; those descriptors are the
// source of truth. A time-windowed directory scan exists only as a fallback
// for graphs whose save nodes do not report, and it is a heuristic: files
// are attributed to the job purely by modification time.
package outputs
