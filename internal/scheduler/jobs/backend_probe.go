package jobs

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/wonny/portfolioviz/pkg/logger"
)

// Pinger checks the remote backend
type Pinger interface {
	Ping(ctx context.Context) error
}

// BackendProbeJob pings the portfolio backend and remembers whether it answered
type BackendProbeJob struct {
	backend  Pinger
	schedule string
	logger   *logger.Logger

	healthy atomic.Bool
}

// NewBackendProbeJob creates a new backend probe job
func NewBackendProbeJob(backend Pinger, schedule string, log *logger.Logger) *BackendProbeJob {
	return &BackendProbeJob{
		backend:  backend,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *BackendProbeJob) Name() string {
	return "backend_probe"
}

// Schedule returns the configured cron schedule
func (j *BackendProbeJob) Schedule() string {
	return j.schedule
}

// Healthy reports the outcome of the last probe
func (j *BackendProbeJob) Healthy() bool {
	return j.healthy.Load()
}

// Run pings the backend; a state change is logged once
func (j *BackendProbeJob) Run(ctx context.Context) error {
	err := j.backend.Ping(ctx)
	was := j.healthy.Swap(err == nil)

	switch {
	case err != nil && was:
		j.logger.WithError(err).Warn("Portfolio backend became unreachable")
	case err == nil && !was:
		j.logger.Info("Portfolio backend reachable")
	}

	if err != nil {
		return fmt.Errorf("probe backend: %w", err)
	}
	return nil
}
