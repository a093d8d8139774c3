package engine

import (
	"strconv"
	"strings"
	"time"

	"github.com/getmockd/mockserver/pkg/metrics"
)

// Outcome labels of the requests metric for the data plane.
const (
	outcomeMatched   = "matched"
	outcomeUnmatched = "unmatched"
	outcomeError     = "error"
	outcomeInvalid   = "invalid"
)

// Metrics counts the exchanges a Handler serves. A nil *Metrics records
// nothing.
type Metrics struct {
	requests *metrics.Counter
	duration *metrics.Histogram
}

// NewMetrics registers the handler metrics in r.
func NewMetrics(r *metrics.Registry) *Metrics {
	return &Metrics{
		requests: r.NewCounter("mockserver_requests_total",
			"Requests served, by plane and outcome", "plane", "outcome"),
		duration: r.NewHistogram("mockserver_request_duration_seconds",
			"Time spent producing a response, by plane", metrics.DefaultBuckets, "plane"),
	}
}

func (m *Metrics) observeControl(cmd Command, elapsed time.Duration) {
	m.observe("control", strings.TrimPrefix(string(cmd), "/"), elapsed)
}

func (m *Metrics) observeData(outcome string, elapsed time.Duration) {
	m.observe("data", outcome, elapsed)
}

func (m *Metrics) observe(plane, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if vec, err := m.requests.WithLabels(plane, outcome); err == nil {
		_ = vec.Inc()
	}
	if vec, err := m.duration.WithLabels(plane); err == nil {
		vec.Observe(elapsed.Seconds())
	}
}

// registerServerGauges exposes the state sizes of s.
func registerServerGauges(r *metrics.Registry, s *Server) {
	r.NewGaugeFunc("mockserver_expectations_active", "Expectations currently registered", func() float64 {
		return float64(s.registry.Count())
	})
	r.NewGaugeFunc("mockserver_requests_logged", "Requests held in the request log", func() float64 {
		return float64(s.requests.Count())
	})
	r.NewGaugeFunc("mockserver_ports_bound", "Ports currently listening", func() float64 {
		return float64(len(s.Ports()))
	})
}

// newListenerGauge registers the gauge of mock listeners by TLS mode.
func newListenerGauge(r *metrics.Registry) *metrics.Gauge {
	return r.NewGauge("mockserver_listeners", "Mock listeners serving, by TLS mode", "tls")
}

// trackListeners moves the listener gauge of l's TLS mode by delta.
func trackListeners(g *metrics.Gauge, l *listener, delta float64) {
	if vec, err := g.WithLabels(strconv.FormatBool(l.tls)); err == nil {
		vec.Add(delta)
	}
}
