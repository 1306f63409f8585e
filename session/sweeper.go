package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

const DefaultSweepInterval = 30 * time.Minute

// Sweeper runs Registry.Sweep on a fixed interval.
type Sweeper struct {
	scheduler gocron.Scheduler
	registry  *Registry
	timeout   time.Duration
	logger    *slog.Logger
}

func NewSweeper(registry *Registry, interval, timeout time.Duration, logger *slog.Logger) (*Sweeper, error) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	s := &Sweeper{
		scheduler: scheduler,
		registry:  registry,
		timeout:   timeout,
		logger:    logger,
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.run),
		gocron.WithName("session_sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return nil, fmt.Errorf("failed to schedule sweep: %w", err)
	}
	return s, nil
}

func (s *Sweeper) run() {
	report := s.registry.Sweep(context.Background(), s.timeout)
	s.logger.Debug("Session sweep finished", "expired", len(report.Expired), "persisted", report.Persisted)
}

func (s *Sweeper) Start() {
	s.scheduler.Start()
}

func (s *Sweeper) Stop() error {
	return s.scheduler.Shutdown()
}
