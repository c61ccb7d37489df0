package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics tracks the outbox relay.
type OutboxMetrics struct {
	events  *prometheus.CounterVec
	batches prometheus.Counter
}

// NewOutboxMetrics registers the relay metrics. A nil registerer yields a no-op recorder.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_total",
		Help: "Outbox events handled by event type and outcome.",
	}, []string{"event_type", "outcome"})
	batches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_batches_total",
		Help: "Non-empty outbox batches processed.",
	})
	reg.MustRegister(events, batches)
	return &OutboxMetrics{events: events, batches: batches}
}

// IncEvent counts one event outcome: published, retry or dead_letter.
func (m *OutboxMetrics) IncEvent(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *OutboxMetrics) IncBatch() {
	if m == nil || m.batches == nil {
		return
	}
	m.batches.Inc()
}
