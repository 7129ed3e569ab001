package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	ReconcileOutcomeApplied     = "applied"
	ReconcileOutcomeDuplicate   = "duplicate"
	ReconcileOutcomeUnmatched   = "unmatched"
	ReconcileOutcomeIgnored     = "ignored"
	ReconcileOutcomeRejected    = "rejected"
	ReconcileOutcomeFailed      = "failed"
	ReconcileOutcomeNeedsReview = "needs_review"
)

// ReconcileMetrics tracks webhook reconciliation outcomes. Errors swallowed
// after signature verification surface here and in the event log.
type ReconcileMetrics struct {
	events           *prometheus.CounterVec
	processingErrors *prometheus.CounterVec
}

func NewReconcileMetrics(registerer prometheus.Registerer, cfg Config) *ReconcileMetrics {
	constLabels := constLabelsFor(cfg)
	m := &ReconcileMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "quoteflow_webhook_events_total",
			Help:        "Payment webhook events by provider, kind and outcome.",
			ConstLabels: constLabels,
		}, []string{"provider", "event_type", "outcome"}),
		processingErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "quoteflow_webhook_processing_errors_total",
			Help:        "Verified webhook events acknowledged despite an internal failure.",
			ConstLabels: constLabels,
		}, []string{"provider", "event_type"}),
	}
	registerer.MustRegister(m.events, m.processingErrors)
	return m
}

func (m *ReconcileMetrics) IncEvent(provider, eventType, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(provider, eventType, outcome).Inc()
}

func (m *ReconcileMetrics) IncProcessingError(provider, eventType string) {
	if m == nil {
		return
	}
	m.processingErrors.WithLabelValues(provider, eventType).Inc()
}
