package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/familyhub/calendar-sync-api/internal/service"
)

// SyncRunner is the slice of the sync service the scheduler needs.
type SyncRunner interface {
	SyncAll(ctx context.Context) []service.SyncResult
}

// Scheduler periodically sweeps every active subscription, standing in for
// the hosted cron trigger when the service runs standalone.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// New builds a scheduler running runner.SyncAll on the given cron spec
// (e.g. "@hourly" or "*/15 * * * *").
func New(spec string, runner SyncRunner, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		results := runner.SyncAll(context.Background())
		summary := service.Summarize(results)
		logger.Info("scheduled calendar sync finished",
			zap.Int("calendars", summary.Calendars),
			zap.Int("added", summary.EventsAdded),
			zap.Int("updated", summary.EventsUpdated),
			zap.Int("removed", summary.EventsRemoved),
			zap.Int("failed", summary.Failed))
	})
	if err != nil {
		return nil, err
	}

	return &Scheduler{cron: c, logger: logger}, nil
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("sync scheduler started")
}

// Stop halts the cron loop and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("sync scheduler stopped")
}
