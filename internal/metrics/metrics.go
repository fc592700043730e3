// Package metrics provides Prometheus instrumentation for the support chat
// service. It exposes gauges for live sessions and bridge connections and
// counters for message, extension, claim and session-end outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActiveCoordinators tracks the number of session coordinators that have
	// finished entry and are running their event loop.
	ActiveCoordinators = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "onetalk_active_coordinators",
		Help: "Current number of running chat session coordinators",
	})

	// BridgeConnections tracks the current number of WebSocket client bridges.
	BridgeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "onetalk_bridge_connections",
		Help: "Current number of active WebSocket bridge connections",
	})

	// MessagesTotal counts chat messages, labeled by outcome.
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "onetalk_messages_total",
		Help: "Total number of chat messages processed",
	}, []string{"outcome"}) // outcome = "sent", "received", "rolled_back", "rejected"

	// SessionEndsTotal counts completed session-end routines by trigger.
	SessionEndsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "onetalk_session_ends_total",
		Help: "Total number of session end routines run",
	}, []string{"trigger"}) // trigger = "manual", "remote", "clock"

	// ExtensionsTotal counts extension negotiation outcomes.
	ExtensionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "onetalk_extensions_total",
		Help: "Total number of session extension events",
	}, []string{"outcome"}) // outcome = "requested", "declined", "applied", "failed"

	// ClaimsTotal counts listener claim attempts by outcome.
	ClaimsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "onetalk_claims_total",
		Help: "Total number of session claim attempts",
	}, []string{"outcome"}) // outcome = "won", "lost", "error"

	// WaitTime records how long seekers wait before a listener claims them.
	WaitTime = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "onetalk_wait_seconds",
		Help:    "Time from session request to listener claim",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
	})
)

func init() {
	prometheus.MustRegister(
		ActiveCoordinators,
		BridgeConnections,
		MessagesTotal,
		SessionEndsTotal,
		ExtensionsTotal,
		ClaimsTotal,
		WaitTime,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
