package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "chat_relay"

// Inbound frame outcomes.
const (
	outcomeHandled     = "handled"
	outcomeMalformed   = "malformed"
	outcomeFailed      = "failed"
	outcomeRateLimited = "rate_limited"
	outcomeNotActive   = "not_active"
)

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "active_sessions",
		Help:      "Sessions currently registered in a group.",
	})

	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "events_published_total",
		Help:      "Events handed to the router, by event type.",
	}, []string{"type"})

	deliveriesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "deliveries_dropped_total",
		Help:      "Deliveries that failed because the recipient queue was full.",
	})

	inboundFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "inbound_frames_total",
		Help:      "Frames read from clients, by outcome.",
	}, []string{"outcome"})
)

// RegistryCollector exposes the number of known groups. It is not registered
// by default since each Registry needs its own collector.
func RegistryCollector(r *Registry) prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "groups",
		Help:      "Groups that have had at least one session since startup.",
	}, func() float64 {
		return float64(len(r.Groups()))
	})
}
