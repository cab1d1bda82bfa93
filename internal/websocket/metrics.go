package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the hub's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	ActiveClients    prometheus.Gauge
	ConnectionsTotal prometheus.Counter
	MessagesSent     prometheus.Counter
	MessagesDropped  prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg when it is not nil
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ActiveClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tickpulse",
			Subsystem: "websocket",
			Name:      "active_clients",
			Help:      "Number of connected websocket clients.",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tickpulse",
			Subsystem: "websocket",
			Name:      "connections_total",
			Help:      "Websocket clients registered since start.",
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tickpulse",
			Subsystem: "websocket",
			Name:      "messages_sent_total",
			Help:      "Messages queued to websocket clients.",
		}),
		MessagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tickpulse",
			Subsystem: "websocket",
			Name:      "messages_dropped_total",
			Help:      "Messages discarded because a queue was full.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.ActiveClients, m.ConnectionsTotal, m.MessagesSent, m.MessagesDropped} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) connected(active int) {
	if m == nil {
		return
	}
	m.ConnectionsTotal.Inc()
	m.ActiveClients.Set(float64(active))
}

func (m *Metrics) disconnected(active int) {
	if m == nil {
		return
	}
	m.ActiveClients.Set(float64(active))
}

func (m *Metrics) sent(n int) {
	if m == nil {
		return
	}
	m.MessagesSent.Add(float64(n))
}

func (m *Metrics) dropped(n int) {
	if m == nil {
		return
	}
	m.MessagesDropped.Add(float64(n))
}
