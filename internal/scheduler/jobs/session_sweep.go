package jobs

import (
	"context"

	"github.com/wonny/portfolioviz/pkg/logger"
)

// SessionSweeper closes idle dashboard sessions
type SessionSweeper interface {
	SweepIdle() int
	Len() int
}

// SessionSweepJob evicts dashboard sessions whose page went away without closing
type SessionSweepJob struct {
	sessions SessionSweeper
	schedule string
	logger   *logger.Logger
}

// NewSessionSweepJob creates a new session sweep job
func NewSessionSweepJob(sessions SessionSweeper, schedule string, log *logger.Logger) *SessionSweepJob {
	return &SessionSweepJob{
		sessions: sessions,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *SessionSweepJob) Name() string {
	return "session_sweep"
}

// Schedule returns the configured cron schedule
func (j *SessionSweepJob) Schedule() string {
	return j.schedule
}

// Run closes idle sessions
func (j *SessionSweepJob) Run(ctx context.Context) error {
	removed := j.sessions.SweepIdle()

	if removed > 0 {
		j.logger.WithFields(map[string]interface{}{
			"removed": removed,
			"live":    j.sessions.Len(),
		}).Info("Idle sessions closed")
	}

	return nil
}
