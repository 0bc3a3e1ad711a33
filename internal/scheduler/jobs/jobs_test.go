package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wonny/portfolioviz/pkg/logger"
)

type fakeSessions struct {
	idle, live int
}

func (f *fakeSessions) SweepIdle() int {
	n := f.idle
	f.live -= n
	f.idle = 0
	return n
}

func (f *fakeSessions) Len() int { return f.live }

func TestSessionSweepJob(t *testing.T) {
	sessions := &fakeSessions{idle: 2, live: 5}
	job := NewSessionSweepJob(sessions, "0 */5 * * * *", logger.NewNop())

	assert.Equal(t, "session_sweep", job.Name())
	assert.Equal(t, "0 */5 * * * *", job.Schedule())
	assert.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 3, sessions.Len())
	assert.NoError(t, job.Run(context.Background()))
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

func TestBackendProbeJob(t *testing.T) {
	pinger := &fakePinger{}
	job := NewBackendProbeJob(pinger, "@every 1m", logger.NewNop())

	assert.False(t, job.Healthy(), "unknown until the first probe")
	assert.NoError(t, job.Run(context.Background()))
	assert.True(t, job.Healthy())

	pinger.err = errors.New("connection refused")
	err := job.Run(context.Background())
	assert.ErrorIs(t, err, pinger.err)
	assert.False(t, job.Healthy())
}

type fakeCleaner struct{ calls int }

func (f *fakeCleaner) CleanStale() int {
	f.calls++
	return 3
}

func TestCacheCleanupJob(t *testing.T) {
	cleaner := &fakeCleaner{}
	job := NewCacheCleanupJob(cleaner, logger.NewNop())

	assert.Equal(t, "cache_cleanup", job.Name())
	assert.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, cleaner.calls)
}
