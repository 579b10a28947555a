package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pulse"

// Outcome label values.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeDropped = "dropped"
)

// Metrics tracks the real-time core:
//   - live connections and active typing entries
//   - inbound events by name and outcome
//   - per-recipient deliveries by event and outcome
//   - end-to-end latency of message sends
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	TypingActive      prometheus.Gauge

	// Labels: event, outcome (ok|error)
	EventsTotal *prometheus.CounterVec

	// Labels: event, outcome (ok|dropped)
	DeliveriesTotal *prometheus.CounterVec

	// Buckets: 1ms .. 2.5s
	SendDuration prometheus.Histogram
}

// New registers all collectors with reg. Tests pass a fresh prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConnectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of live connections that reached the active state",
		}),
		TypingActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "typing_active",
			Help:      "Number of live typing state entries",
		}),
		EventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Client events handled by event name and outcome",
		}, []string{"event", "outcome"}),
		DeliveriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Per-connection deliveries by event name and outcome",
		}, []string{"event", "outcome"}),
		SendDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_send_duration_seconds",
			Help:      "Time from accepting a message:send to the end of its fan-out",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

func (m *Metrics) Event(event string, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.EventsTotal.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) Delivered(event string, ok bool) {
	outcome := OutcomeOK
	if !ok {
		outcome = OutcomeDropped
	}
	m.DeliveriesTotal.WithLabelValues(event, outcome).Inc()
}
