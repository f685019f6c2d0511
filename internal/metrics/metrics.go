// Package metrics holds the Prometheus collectors shared by the API and the
// projector. They register on the default registry served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
	ResultReplayed = "replayed"
	ResultFailed   = "failed"
)

var (
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "market",
		Name:      "orders_total",
		Help:      "Order creation attempts by result.",
	}, []string{"result"})

	BidsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "market",
		Name:      "bids_total",
		Help:      "Bid attempts by result.",
	}, []string{"result"})

	ReservedUnits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "market",
		Name:      "reserved_units_total",
		Help:      "Units decremented from inventory by committed reservations.",
	})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "market",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method", "status"})

	EventsProjected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "market",
		Name:      "events_projected_total",
		Help:      "Events applied to the activity read model by type.",
	}, []string{"type"})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "market",
		Name:      "events_dropped_total",
		Help:      "Events that could not be handed to the broker.",
	})
)

// Outcome maps an operation error to a result label.
func Outcome(err error, rejected func(error) bool) string {
	switch {
	case err == nil:
		return ResultAccepted
	case rejected(err):
		return ResultRejected
	default:
		return ResultFailed
	}
}
