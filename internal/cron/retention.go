package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/popcatch-backend/pkg/logger"
	"github.com/angelmondragon/popcatch-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PruneFunc deletes rows older than cutoff and reports how many went.
type PruneFunc func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)

// RetentionJobParams configure a retention job.
type RetentionJobParams struct {
	Name    string
	Days    int
	DB      txRunner
	Prune   PruneFunc
	Logger  *logger.Logger
	Metrics *metrics.JobMetrics
}

type retentionJob struct {
	name    string
	keep    time.Duration
	db      txRunner
	prune   PruneFunc
	logg    *logger.Logger
	metrics *metrics.JobMetrics
	now     func() time.Time
}

// NewRetentionJob builds a job that prunes rows older than Days.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("job name required")
	}
	if params.Days <= 0 {
		return nil, fmt.Errorf("%s: retention days must be positive", params.Name)
	}
	if params.DB == nil {
		return nil, fmt.Errorf("%s: db runner required", params.Name)
	}
	if params.Prune == nil {
		return nil, fmt.Errorf("%s: prune func required", params.Name)
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("%s: logger required", params.Name)
	}
	return &retentionJob{
		name:    params.Name,
		keep:    time.Duration(params.Days) * 24 * time.Hour,
		db:      params.DB,
		prune:   params.Prune,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.keep)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.prune(ctx, tx, cutoff)
		deleted = rows
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.metrics.AddPruned(j.name, deleted)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "retention cleanup complete")
	return nil
}
