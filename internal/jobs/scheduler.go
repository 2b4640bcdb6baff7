// Package jobs owns the cron-driven maintenance tasks. The in-memory expiry
// sweep is not here: the rate limiter owns it, tied to its own lifecycle.
package jobs

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/btasarimambalaj-afk/adminara-sub000/internal/store"
)

// Scheduler runs cron-driven maintenance with a clean start/stop lifecycle.
type Scheduler struct {
	cron   *cron.Cron
	store  store.StateStore
	logger *zap.Logger
}

// NewScheduler builds the schedule.
func NewScheduler(st store.StateStore, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := cron.New(cron.WithSeconds())
	s := &Scheduler{cron: c, store: st, logger: logger}

	if _, err := c.AddFunc("0 0 * * * *", func() {
		healthy := st.HealthCheck(context.Background())
		if healthy {
			logger.Info("store health", zap.Bool("healthy", true))
		} else {
			logger.Error("store health", zap.Bool("healthy", false))
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule health report: %w", err)
	}

	return s, nil
}

// Start launches the schedule.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("background jobs started")
}

// Stop halts the schedule and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("background jobs stopped")
}
