/*
Package metrics defines and registers the plugin host's Prometheus metrics:
worker pool occupancy, restart counts, RPC latency, and tool invocation
counts/durations. Metrics are exposed over HTTP via Handler() for scraping,
following the same prometheus.MustRegister-at-init pattern as the rest of
this module's ambient stack.
*/
package metrics
