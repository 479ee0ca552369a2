// Package metrics holds the Prometheus collectors for the registration flow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RegistrationsTotal counts registration submissions by pass type,
	// registration type and outcome code.
	RegistrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "weekender",
		Name:      "registrations_total",
		Help:      "Registration submissions by pass type, registration type and outcome.",
	}, []string{"pass_type", "registration_type", "outcome"})

	// PaymentSignalsTotal counts payment lifecycle signals from clients.
	PaymentSignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "weekender",
		Name:      "payment_signals_total",
		Help:      "Client payment callbacks by signal and outcome.",
	}, []string{"signal", "outcome"})

	// WebhookRequestsTotal counts provider webhooks by event type and result.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "weekender",
		Name:      "webhook_requests_total",
		Help:      "Payment provider webhook requests by event type and processing result.",
	}, []string{"event_type", "result"})

	// CheckoutDuration tracks outbound checkout creation latency.
	CheckoutDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "weekender",
		Name:      "checkout_duration_seconds",
		Help:      "Checkout session creation latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"result"})

	// EventsDroppedTotal counts lifecycle events dropped because the queue
	// was full.
	EventsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "weekender",
		Name:      "events_dropped_total",
		Help:      "Lifecycle events dropped because the recorder queue was full.",
	})

	// EventSinkErrorsTotal counts failed writes to an event sink.
	EventSinkErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "weekender",
		Name:      "event_sink_errors_total",
		Help:      "Failed lifecycle event writes by sink.",
	}, []string{"sink"})

	// CurrentTierIndex exposes the active weekend price tier position.
	CurrentTierIndex = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "weekender",
		Name:      "current_tier_index",
		Help:      "Index of the active weekend price tier (0 is the cheapest).",
	})
)
