package cron

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/popcatch-backend/pkg/logger"
)

type fakeLock struct {
	held     bool
	released int
	err      error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.released++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	first := &testJob{name: "fail", err: errors.New("boom")}
	second := &testJob{name: "success"}
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger:   quietLogger(),
		Registry: NewRegistry(first, second),
		Lock:     lock,
	})
	require.NoError(t, err)

	require.NoError(t, service.runCycle(context.Background()))
	assert.Equal(t, 1, first.runs)
	assert.Equal(t, 1, second.runs)
	assert.Equal(t, 1, lock.released)
	assert.False(t, lock.held)
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "retention"}
	service, err := NewService(ServiceParams{
		Logger:   quietLogger(),
		Registry: NewRegistry(job),
		Lock:     &fakeLock{held: true},
	})
	require.NoError(t, err)

	require.NoError(t, service.runCycle(context.Background()))
	assert.Zero(t, job.runs)
}

func TestRunCycleReportsLockError(t *testing.T) {
	service, err := NewService(ServiceParams{
		Logger: quietLogger(),
		Lock:   &fakeLock{err: errors.New("redis down")},
	})
	require.NoError(t, err)
	assert.Error(t, service.runCycle(context.Background()))
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "retention"}
	service, err := NewService(ServiceParams{
		Logger:   quietLogger(),
		Registry: NewRegistry(job),
		Lock:     &fakeLock{},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, service.Run(ctx), context.Canceled)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &fakeLock{}})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Logger: quietLogger()})
	assert.Error(t, err)
}
