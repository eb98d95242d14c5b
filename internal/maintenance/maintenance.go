// Package maintenance runs periodic housekeeping: expiring stale upload
// sessions and purging old job history.
package maintenance

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps a seconds-granularity cron runner.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		logger: logger.With(slog.String("component", "maintenance")),
	}
}

// AddJob registers fn under a 6-field cron spec. Panics inside fn are
// contained so one broken task cannot take the scheduler down.
func (s *Scheduler) AddJob(spec, name string, fn func()) error {
	_, err := s.cron.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("maintenance task panicked",
					slog.String("task", name),
					slog.Any("panic", r),
				)
			}
		}()
		started := time.Now()
		fn()
		s.logger.Debug("maintenance task ran",
			slog.String("task", name),
			slog.Duration("elapsed", time.Since(started)),
		)
	})
	if err != nil {
		return fmt.Errorf("scheduling %s (%q): %w", name, spec, err)
	}
	s.logger.Info("maintenance task scheduled", slog.String("task", name), slog.String("spec", spec))
	return nil
}

// Start begins running scheduled tasks.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running tasks to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
