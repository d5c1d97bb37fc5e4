// Package comfyui implements the HTTP client for the render engine
// endpoint: readiness and system stats probes, prompt submission, history
// polling, and model enumeration. The engine exposes the ComfyUI API
// surface; this package owns every request shape and response parse so the
// rest of the worker deals in typed graphs and results only.
package comfyui
