package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects chat subsystem counters.
//
// All methods are safe to call on a nil *Metrics, which lets tests and tools
// run the chat services without a registry.
type Metrics struct {
	// Connections tracks live identified connections.
	// Labels: role (visitor|admin)
	Connections *prometheus.GaugeVec

	// Messages counts appended chat messages.
	// Labels: from (visitor|admin|auto)
	Messages *prometheus.CounterVec

	// AutoReplies counts auto-responder deliveries.
	AutoReplies prometheus.Counter

	// DroppedEvents counts inbound events the router refused.
	// Labels: reason
	DroppedEvents *prometheus.CounterVec

	// PersistErrors counts failed storage writes.
	// Labels: op (save|delete|settings)
	PersistErrors *prometheus.CounterVec

	// Sessions is the number of sessions held in memory.
	Sessions prometheus.Gauge
}

// NewMetrics registers the chat metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Connections: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chat",
			Name:      "connections",
			Help:      "Live identified chat connections by role.",
		}, []string{"role"}),
		Messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "messages_total",
			Help:      "Chat messages appended to sessions.",
		}, []string{"from"}),
		AutoReplies: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "auto_replies_total",
			Help:      "Automatic replies delivered while no staff was online.",
		}),
		DroppedEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "dropped_events_total",
			Help:      "Inbound events dropped by the router.",
		}, []string{"reason"}),
		PersistErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "persist_errors_total",
			Help:      "Failed writes to the session storage backend.",
		}, []string{"op"}),
		Sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat",
			Name:      "sessions",
			Help:      "Visitor sessions held in memory.",
		}),
	}
}

func (m *Metrics) ConnectionOpened(role string) {
	if m == nil {
		return
	}
	m.Connections.WithLabelValues(role).Inc()
}

func (m *Metrics) ConnectionClosed(role string) {
	if m == nil {
		return
	}
	m.Connections.WithLabelValues(role).Dec()
}

func (m *Metrics) MessageAppended(from string) {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues(from).Inc()
}

func (m *Metrics) AutoReplied() {
	if m == nil {
		return
	}
	m.AutoReplies.Inc()
}

func (m *Metrics) EventDropped(reason string) {
	if m == nil {
		return
	}
	m.DroppedEvents.WithLabelValues(reason).Inc()
}

func (m *Metrics) PersistFailed(op string) {
	if m == nil {
		return
	}
	m.PersistErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.Sessions.Set(float64(n))
}
