// Package scheduler runs the incremental update on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/trogers1052/twstock-service/internal/calendar"
	"github.com/trogers1052/twstock-service/internal/common"
	"github.com/trogers1052/twstock-service/internal/models"
)

// DefaultSchedule runs at 14:30 Taipei time on weekdays, after the close
const DefaultSchedule = "0 30 14 * * 1-5"

// UpdateRunner runs an update batch
type UpdateRunner interface {
	Update(ctx context.Context, req models.UpdateRequest) models.UpdateResponse
}

// Scheduler triggers incremental updates for a fixed symbol list, or the
// catalog head when the list is empty
type Scheduler struct {
	runner  UpdateRunner
	symbols []string
	timeout time.Duration
	cron    *cron.Cron
	logger  arbor.ILogger

	mu      sync.Mutex
	running bool
}

// New creates a scheduler; the cron clock runs in Taipei time
func New(runner UpdateRunner, symbols []string, timeout time.Duration, logger arbor.ILogger) *Scheduler {
	if timeout <= 0 {
		timeout = time.Hour
	}
	return &Scheduler{
		runner:  runner,
		symbols: symbols,
		timeout: timeout,
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(calendar.Taipei)),
		logger:  common.OrSilent(logger),
	}
}

// Start registers the update job and starts the cron loop
func (s *Scheduler) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	if _, err := s.cron.AddFunc(schedule, s.runUpdate); err != nil {
		return fmt.Errorf("failed to register schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", schedule).
		Int("symbols", len(s.symbols)).
		Msg("Update scheduler started")
	return nil
}

// Stop stops the scheduler and waits for a running job to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Update scheduler stopped")
}

// RunNow triggers an immediate update in the background
func (s *Scheduler) RunNow() {
	s.logger.Info().Msg("Triggering immediate update run")
	go s.runUpdate()
}

// runUpdate skips a tick while the previous run is still going
func (s *Scheduler) runUpdate() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn().Msg("Previous scheduled update still running, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	started := time.Now()
	s.logger.Info().Msg("Starting scheduled update")

	resp := s.runner.Update(ctx, models.UpdateRequest{
		Symbols:       s.symbols,
		UpdatePrices:  true,
		UpdateReturns: true,
	})

	var written int64
	for _, r := range resp.Results {
		written += r.PriceRecords
	}
	s.logger.Info().
		Str("run_id", resp.RunID).
		Int("success", resp.Summary.Success).
		Int("failed", resp.Summary.Failed).
		Int("new_prices", int(written)).
		Dur("duration", time.Since(started)).
		Msg("Scheduled update completed")
}
