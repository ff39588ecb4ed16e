// Package scheduler runs the background jobs: outbox draining and the
// nightly snapshot refresh.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aimd54/datestreak/internal/config"
	"github.com/aimd54/datestreak/internal/service/aggregator"
	"github.com/aimd54/datestreak/internal/service/outbox"
	"github.com/aimd54/datestreak/pkg/logger"
)

// Job names, also used as metric labels.
const (
	JobOutboxDrain     = "outbox_drain"
	JobSnapshotRefresh = "snapshot_refresh"
)

// Drainer interface for the outbox worker.
type Drainer interface {
	Drain(ctx context.Context) (*outbox.Summary, error)
}

// Aggregator interface for the snapshot refresh.
type Aggregator interface {
	AggregateDaily(ctx context.Context, date time.Time) (*aggregator.RunSummary, error)
}

// Service handles background job scheduling.
type Service struct {
	config     *config.Config
	drainer    Drainer
	aggregator Aggregator
	log        *logger.Logger
	cron       *cron.Cron
	now        func() time.Time
}

// NewService creates a new scheduler service.
func NewService(cfg *config.Config, drainer *outbox.Worker, agg *aggregator.Service, log *logger.Logger) *Service {
	return NewServiceWithInterfaces(cfg, drainer, agg, log)
}

// NewServiceWithInterfaces creates a new scheduler service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(cfg *config.Config, drainer Drainer, agg Aggregator, log *logger.Logger) *Service {
	return &Service{
		config:     cfg,
		drainer:    drainer,
		aggregator: agg,
		log:        log.Component("scheduler"),
		now:        time.Now,
	}
}

// Start initializes and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Scheduler.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := s.config.Scheduler.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Scheduler.Timezone, err)
	}

	s.cron = cron.New(cron.WithLocation(location))

	if spec := s.config.Outbox.DrainSchedule; spec != "" {
		if _, err := s.cron.AddFunc(spec, func() {
			s.runOutboxDrain(context.Background())
		}); err != nil {
			return fmt.Errorf("failed to register outbox drain job: %w", err)
		}
		s.log.Info().Str("schedule", spec).Msg("Outbox drain job registered")
	}

	if spec := s.config.Scheduler.SnapshotRefresh; spec != "" {
		if _, err := s.cron.AddFunc(spec, func() {
			s.runSnapshotRefresh(context.Background())
		}); err != nil {
			return fmt.Errorf("failed to register snapshot refresh job: %w", err)
		}
		s.log.Info().Str("schedule", spec).Msg("Snapshot refresh job registered")
	}

	s.cron.Start()

	entries := s.cron.Entries()
	nextRun := ""
	if len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Int("jobs", len(entries)).
		Str("timezone", s.config.Scheduler.Timezone).
		Str("next_run", nextRun).
		Msg("Scheduler started successfully")

	return nil
}

// Stop gracefully shuts down the scheduler, waiting for running jobs.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}
