// Package notifications delivers run lifecycle events via ntfy.
//
// The default implementation publishes to the topic configured in
// kiln.toml and gracefully degrades to a no-op when no topic is set.
// Delivery is best effort: callers log failures and keep processing.
package notifications
