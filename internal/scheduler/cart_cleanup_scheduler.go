package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/bloomhouse/cartsync/pkg/logger"
	"github.com/robfig/cron/v3"
)

// Purger deletes cart lines older than the given age.
type Purger interface {
	PurgeAbandoned(olderThan time.Duration) (int64, error)
}

// CartCleanupScheduler purges abandoned server cart lines on a cron schedule.
type CartCleanupScheduler struct {
	cron         *cron.Cron
	purger       Purger
	schedule     string
	abandonAfter time.Duration
}

func NewCartCleanupScheduler(purger Purger, schedule string, abandonAfter time.Duration) *CartCleanupScheduler {
	return &CartCleanupScheduler{
		cron:         cron.New(),
		purger:       purger,
		schedule:     schedule,
		abandonAfter: abandonAfter,
	}
}

// Start registers the purge job and starts the cron runner.
func (s *CartCleanupScheduler) Start() error {
	if s.abandonAfter <= 0 {
		return fmt.Errorf("abandon age must be positive, got %s", s.abandonAfter)
	}

	if _, err := s.cron.AddFunc(s.schedule, s.RunOnce); err != nil {
		logger.Error("Failed to add cron job for cart cleanup", err, map[string]interface{}{
			"schedule": s.schedule,
		})
		return err
	}

	s.cron.Start()
	logger.Info("Cart cleanup scheduler started", map[string]interface{}{
		"schedule":      s.schedule,
		"abandon_after": s.abandonAfter.String(),
	})
	return nil
}

// RunOnce performs a single purge.
func (s *CartCleanupScheduler) RunOnce() {
	logger.Info("Starting scheduled cart cleanup", nil)

	deleted, err := s.purger.PurgeAbandoned(s.abandonAfter)
	if err != nil {
		logger.Error("Failed to purge abandoned carts", err)
		return
	}

	logger.Info("Cart cleanup finished", map[string]interface{}{
		"deleted": deleted,
	})
}

// Stop stops the runner and waits for a running job, up to ctx.
func (s *CartCleanupScheduler) Stop(ctx context.Context) {
	logger.Info("Stopping cart cleanup scheduler...", nil)
	select {
	case <-s.cron.Stop().Done():
		logger.Info("Cart cleanup scheduler stopped", nil)
	case <-ctx.Done():
		logger.Warn("Cart cleanup still running at shutdown", nil)
	}
}
