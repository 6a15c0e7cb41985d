// Package metrics exposes pipeline health signals.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

var Module = fx.Provide(NewPipeline)

// Pipeline captures ingestion and delivery counters. All methods are safe
// on a nil receiver so callers never need to guard.
type Pipeline struct {
	received         *prometheus.CounterVec
	rejected         *prometheus.CounterVec
	processed        *prometheus.CounterVec
	delivered        *prometheus.CounterVec
	suppressed       *prometheus.CounterVec
	deliveryFailures *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec
	breakerChanges   *prometheus.CounterVec
}

func NewPipeline() *Pipeline {
	return newPipeline(prometheus.DefaultRegisterer)
}

func newPipeline(registerer prometheus.Registerer) *Pipeline {
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notipus_webhooks_received_total",
		Help: "Inbound webhooks by provider, before verification.",
	}, []string{"provider"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notipus_webhooks_rejected_total",
		Help: "Webhooks rejected before processing, by low-cardinality reason.",
	}, []string{"provider", "reason"})
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notipus_events_processed_total",
		Help: "Normalized events accepted into the pipeline.",
	}, []string{"provider", "event_type"})
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notipus_notifications_delivered_total",
		Help: "Notifications successfully delivered per destination.",
	}, []string{"destination"})
	suppressed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notipus_notifications_suppressed_total",
		Help: "Notifications suppressed before delivery, by reason.",
	}, []string{"reason"})
	deliveryFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notipus_delivery_failures_total",
		Help: "Delivery attempts that ultimately failed per destination.",
	}, []string{"destination"})
	deliveryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notipus_delivery_duration_seconds",
		Help:    "End-to-end delivery latency per destination.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"destination"})
	breakerChanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notipus_breaker_transitions_total",
		Help: "Circuit breaker state transitions, by target state.",
	}, []string{"state"})

	registerer.MustRegister(
		received,
		rejected,
		processed,
		delivered,
		suppressed,
		deliveryFailures,
		deliveryDuration,
		breakerChanges,
	)

	return &Pipeline{
		received:         received,
		rejected:         rejected,
		processed:        processed,
		delivered:        delivered,
		suppressed:       suppressed,
		deliveryFailures: deliveryFailures,
		deliveryDuration: deliveryDuration,
		breakerChanges:   breakerChanges,
	}
}

func (m *Pipeline) IncReceived(provider string) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(provider).Inc()
}

func (m *Pipeline) IncRejected(provider, reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(provider, reason).Inc()
}

func (m *Pipeline) IncProcessed(provider, eventType string) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(provider, eventType).Inc()
}

func (m *Pipeline) IncDelivered(destination string) {
	if m == nil {
		return
	}
	m.delivered.WithLabelValues(destination).Inc()
}

func (m *Pipeline) IncSuppressed(reason string) {
	if m == nil {
		return
	}
	m.suppressed.WithLabelValues(reason).Inc()
}

func (m *Pipeline) IncDeliveryFailure(destination string) {
	if m == nil {
		return
	}
	m.deliveryFailures.WithLabelValues(destination).Inc()
}

func (m *Pipeline) IncBreakerTransition(state string) {
	if m == nil {
		return
	}
	m.breakerChanges.WithLabelValues(state).Inc()
}

func (m *Pipeline) ObserveDeliveryDuration(destination string, d time.Duration) {
	if m == nil {
		return
	}
	m.deliveryDuration.WithLabelValues(destination).Observe(d.Seconds())
}
