// Package telemetry registers the Prometheus metrics exported by orgchat.
//
// All metrics live on the default registry and are served by
// promhttp.Handler() on the configured metrics path (default /metrics).
//
// Command outcomes are labelled with a fixed vocabulary (applied, rejected,
// failed) and events with their wire type, so label cardinality stays bounded
// regardless of user input.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orgchat"

var (
	// Connections tracks identities currently held by the coordinator.
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connections",
		Help:      "Number of connections currently registered with the coordinator.",
	})

	// Organizations tracks organizations created since process start.
	// Organizations are never removed, so the gauge only grows.
	Organizations = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "organizations",
		Help:      "Number of organizations in the registry.",
	})

	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands handled by the coordinator, by command and outcome.",
		},
		[]string{"command", "outcome"},
	)

	EventsDeliveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Events handed to a connection's outbound queue, by event type.",
		},
		[]string{"event"},
	)

	DeliveryFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Events that could not be handed to a recipient, by event type.",
		},
		[]string{"event"},
	)
)

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
