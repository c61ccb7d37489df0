package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PopupMetrics records eligibility, issuance and submission outcomes.
type PopupMetrics struct {
	decisions        *prometheus.CounterVec
	issuance         *prometheus.CounterVec
	issuanceDuration *prometheus.HistogramVec
	recordConflicts  prometheus.Counter
	submissions      *prometheus.CounterVec
}

// NewPopupMetrics registers the popup metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewPopupMetrics(reg prometheus.Registerer) *PopupMetrics {
	if reg == nil {
		return &PopupMetrics{}
	}
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "popup_eligibility_decisions_total",
		Help: "Eligibility decisions by outcome reason.",
	}, []string{"reason"})
	issuance := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "popup_discount_issuance_total",
		Help: "Discount issuance attempts by strategy and outcome.",
	}, []string{"strategy", "outcome"})
	issuanceDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "popup_discount_issuance_duration_seconds",
		Help:    "Duration of discount issuance in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"strategy"})
	recordConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "popup_submission_record_conflicts_total",
		Help: "Optimistic concurrency conflicts while recording submissions.",
	})
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "popup_submissions_total",
		Help: "Storefront submissions by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(decisions, issuance, issuanceDuration, recordConflicts, submissions)
	return &PopupMetrics{
		decisions:        decisions,
		issuance:         issuance,
		issuanceDuration: issuanceDuration,
		recordConflicts:  recordConflicts,
		submissions:      submissions,
	}
}

// IncDecision counts one eligibility decision.
func (m *PopupMetrics) IncDecision(reason string) {
	if m == nil || m.decisions == nil {
		return
	}
	m.decisions.WithLabelValues(normalizeLabel(reason)).Inc()
}

// ObserveIssuance counts one issuance attempt and its duration.
func (m *PopupMetrics) ObserveIssuance(strategy, outcome string, duration time.Duration) {
	if m == nil || m.issuance == nil {
		return
	}
	m.issuance.WithLabelValues(normalizeLabel(strategy), normalizeLabel(outcome)).Inc()
	m.issuanceDuration.WithLabelValues(normalizeLabel(strategy)).Observe(duration.Seconds())
}

// IncRecordConflict counts one lost version race.
func (m *PopupMetrics) IncRecordConflict() {
	if m == nil || m.recordConflicts == nil {
		return
	}
	m.recordConflicts.Inc()
}

// IncSubmission counts one storefront submission.
func (m *PopupMetrics) IncSubmission(outcome string) {
	if m == nil || m.submissions == nil {
		return
	}
	m.submissions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
