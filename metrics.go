package websocket

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for upgrades and sessions.
// A nil *Metrics records nothing.
type Metrics struct {
	upgrades       *prometheus.CounterVec
	activeSessions prometheus.Gauge
	framesReceived *prometheus.CounterVec
	frameErrors    *prometheus.CounterVec
	framesSent     prometheus.Counter
}

// NewMetrics registers the collectors on reg under namespace.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "textsocket"
	}
	factory := promauto.With(reg)

	return &Metrics{
		upgrades: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upgrades_total",
			Help:      "Total number of upgrade attempts by result",
		}, []string{"result"}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions currently open",
		}),

		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total number of decoded client frames by kind",
		}, []string{"kind"}),

		frameErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_errors_total",
			Help:      "Total number of client frames that failed to decode",
		}, []string{"reason"}),

		framesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Total number of frames written to clients",
		}),
	}
}

func (m *Metrics) upgrade(result string) {
	if m == nil {
		return
	}
	m.upgrades.WithLabelValues(result).Inc()
}

func (m *Metrics) sessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) sessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func (m *Metrics) frameReceived(kind FrameKind) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) frameError(err error) {
	if m == nil {
		return
	}
	reason := "other"
	switch {
	case errors.Is(err, ErrTruncatedFrame):
		reason = "truncated"
	case errors.Is(err, ErrUnmaskedClientFrame):
		reason = "unmasked"
	}
	m.frameErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) frameSent() {
	if m == nil {
		return
	}
	m.framesSent.Inc()
}
