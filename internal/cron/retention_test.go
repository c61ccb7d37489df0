package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func TestRetentionJobUsesCutoff(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	var gotCutoff time.Time
	job, err := NewRetentionJob(RetentionJobParams{
		Name:   "outbox-retention",
		Days:   14,
		DB:     passthroughTx{},
		Logger: quietLogger(),
		Prune: func(_ context.Context, _ *gorm.DB, cutoff time.Time) (int64, error) {
			gotCutoff = cutoff
			return 3, nil
		},
	})
	require.NoError(t, err)
	job.(*retentionJob).now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, "outbox-retention", job.Name())
	assert.True(t, gotCutoff.Equal(now.Add(-14*24*time.Hour)))
}

func TestRetentionJobWrapsError(t *testing.T) {
	job, err := NewRetentionJob(RetentionJobParams{
		Name:   "dlq-retention",
		Days:   90,
		DB:     passthroughTx{},
		Logger: quietLogger(),
		Prune: func(context.Context, *gorm.DB, time.Time) (int64, error) {
			return 0, errors.New("boom")
		},
	})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dlq-retention")
}

func TestNewRetentionJobValidates(t *testing.T) {
	prune := func(context.Context, *gorm.DB, time.Time) (int64, error) { return 0, nil }
	_, err := NewRetentionJob(RetentionJobParams{Name: "x", Days: 0, DB: passthroughTx{}, Prune: prune, Logger: quietLogger()})
	assert.Error(t, err)
	_, err = NewRetentionJob(RetentionJobParams{Name: "x", Days: 1, Prune: prune, Logger: quietLogger()})
	assert.Error(t, err)
	_, err = NewRetentionJob(RetentionJobParams{Days: 1, DB: passthroughTx{}, Prune: prune, Logger: quietLogger()})
	assert.Error(t, err)
}
