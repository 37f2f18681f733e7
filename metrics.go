package ambientd

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Color request outcomes used as the "result" label.
const (
	resultAccepted = "accepted"
	resultIgnored  = "ignored"
	resultFenced   = "fenced"
	resultInvalid  = "invalid"
)

// Metrics holds the collectors exported by the daemon.
type Metrics struct {
	ColorRequests *prometheus.CounterVec
	EngineStarts  prometheus.Counter
	Viewers       prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ColorRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ambientd_color_requests_total",
				Help: "Color set requests by mode and result",
			},
			[]string{"mode", "result"},
		),
		EngineStarts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ambientd_engine_starts_total",
				Help: "Number of times the fade engine was (re)created",
			},
		),
		Viewers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ambientd_viewers",
				Help: "Connected live color viewers",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.ColorRequests, m.EngineStarts, m.Viewers)
	}

	return m
}
