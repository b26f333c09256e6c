// Package notifications delivers operator events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Per-category toggles (errors, breaker, recovery) let operators
// silence classes of events without removing the topic.
//
// Extend this package if you need alternative transports; all daemon code
// depends only on the Service interface.
package notifications
