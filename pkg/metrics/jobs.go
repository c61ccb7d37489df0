package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JobMetrics records maintenance job runs.
type JobMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	pruned   *prometheus.CounterVec
}

// NewJobMetrics registers the job metrics. A nil registerer yields a no-op recorder.
func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cron_job_duration_seconds",
		Help:    "Duration of maintenance jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cron_job_runs_total",
		Help: "Maintenance job runs by outcome.",
	}, []string{"job", "outcome"})
	pruned := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cron_rows_pruned_total",
		Help: "Rows removed by retention jobs.",
	}, []string{"job"})
	reg.MustRegister(duration, runs, pruned)
	return &JobMetrics{duration: duration, runs: runs, pruned: pruned}
}

// ObserveRun records one run of job.
func (m *JobMetrics) ObserveRun(job string, duration time.Duration, err error) {
	if m == nil || m.runs == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
	m.runs.WithLabelValues(normalizeLabel(job), outcome).Inc()
}

func (m *JobMetrics) AddPruned(job string, rows int64) {
	if m == nil || m.pruned == nil || rows <= 0 {
		return
	}
	m.pruned.WithLabelValues(normalizeLabel(job)).Add(float64(rows))
}
