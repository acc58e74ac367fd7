// Package metrics exposes action lifecycle counters in Prometheus format.
//
// A Collector is registered as a pool observer and derives its series from
// the snapshots it sees:
//
//	labthings_actions_started_total{action}
//	labthings_actions_finished_total{action,status}
//	labthings_actions_running{action}
//	labthings_action_duration_seconds{action}
//
// Each Collector owns its own prometheus.Registry so tests and multiple
// servers in one process never collide on the global default registry.
package metrics
