package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestJobMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg)
	m.ObserveRun("outbox-retention", 20*time.Millisecond, nil)
	m.ObserveRun("outbox-retention", 10*time.Millisecond, errors.New("boom"))
	m.AddPruned("outbox-retention", 7)
	m.AddPruned("outbox-retention", 0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "cron_job_runs_total", "outcome", "failure"); err != nil {
		t.Fatalf("fetch runs: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failure=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "cron_rows_pruned_total", "job", "outbox-retention"); err != nil {
		t.Fatalf("fetch pruned: %v", err)
	} else if got != 7 {
		t.Fatalf("expected pruned=7, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "cron_job_duration_seconds", "job", "outbox-retention"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected positive duration sum, got %f", got)
	}
}
