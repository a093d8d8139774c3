// Package metrics provides Prometheus-compatible metrics for the mock
// server.
//
// It writes the Prometheus text exposition format (version 0.0.4) with
// counters, gauges, gauge functions and histograms. All metrics are safe for
// concurrent use.
//
//	registry := metrics.NewRegistry()
//	requests := registry.NewCounter("requests_total", "Requests served", "outcome")
//	vec, _ := requests.WithLabels("matched")
//	_ = vec.Inc()
//	http.Handle("/metrics", registry.Handler())
package metrics
