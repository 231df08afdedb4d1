// Package metric provides Prometheus metrics registration and exposition
// for agent components.
//
// Components accept an optional *MetricsRegistry; a nil registry disables
// metrics entirely (nil input = nil feature pattern), so tests and minimal
// deployments carry no metrics overhead. The registry tracks registrations
// by "component.metric" key to surface duplicate registrations as invalid
// errors rather than prometheus panics.
//
// Server exposes the registry on an HTTP port at /metrics alongside a
// trivial /health endpoint.
package metric
