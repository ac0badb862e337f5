// Package metrics exposes Prometheus collectors for message routing.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "servicebus"
	subsystem = "runtime"
)

// Message outcomes.
const (
	OutcomeLocal         = "local"
	OutcomeForwarded     = "forwarded"
	OutcomeUnknownTarget = "unknown_target"
	OutcomeMalformed     = "malformed"
)

// Delivery failure reasons.
const (
	ReasonQueueFull    = "queue_full"
	ReasonClosed       = "closed"
	ReasonEncode       = "encode"
	ReasonWrite        = "write"
	ReasonNoGateway    = "no_gateway"
	ReasonNoConnection = "no_connection"
)

// Metrics holds the runtime collectors.
type Metrics struct {
	mu sync.Mutex

	messagesTotal         *prometheus.CounterVec
	deliveryFailuresTotal *prometheus.CounterVec
	routesLearnedTotal    prometheus.Counter
	connections           prometheus.Gauge
	services              prometheus.Gauge

	registerer prometheus.Registerer
	registered bool
}

// New creates the collectors. A nil registerer uses the default one.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		registerer: registerer,
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_total",
			Help:      "Messages routed by the runtime, by outcome",
		}, []string{"outcome"}),
		deliveryFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "delivery_failures_total",
			Help:      "Outbound messages that could not be delivered, by reason",
		}, []string{"reason"}),
		routesLearnedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "routes_learned_total",
			Help:      "Route table updates learned from inbound traffic",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connections",
			Help:      "Open connections to peer runtimes",
		}),
		services: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "services",
			Help:      "Services in the registry, local and remote",
		}),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.messagesTotal,
		m.deliveryFailuresTotal,
		m.routesLearnedTotal,
		m.connections,
		m.services,
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// RecordMessage counts a routed message.
func (m *Metrics) RecordMessage(outcome string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(outcome).Inc()
}

// RecordDeliveryFailure counts an undeliverable outbound message.
func (m *Metrics) RecordDeliveryFailure(reason string) {
	if m == nil {
		return
	}
	m.deliveryFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordRouteLearned counts a route table update.
func (m *Metrics) RecordRouteLearned() {
	if m == nil {
		return
	}
	m.routesLearnedTotal.Inc()
}

// SetConnections sets the open connection gauge.
func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(n))
}

// SetServices sets the registry size gauge.
func (m *Metrics) SetServices(n int) {
	if m == nil {
		return
	}
	m.services.Set(float64(n))
}
