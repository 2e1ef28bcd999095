package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// SamplingScheduler periodically samples resource usage of every active
// agent through the orchestrator.
type SamplingScheduler struct {
	scheduler gocron.Scheduler
	orch      *Orchestrator
	interval  time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewSamplingScheduler creates a scheduler that runs SampleResources every
// interval. The job is registered on Start.
func NewSamplingScheduler(orch *Orchestrator, interval time.Duration) (*SamplingScheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sampling interval must be positive, got %s", interval)
	}
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SamplingScheduler{
		scheduler: s,
		orch:      orch,
		interval:  interval,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start registers the sampling job and starts the scheduler.
func (s *SamplingScheduler) Start() error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.run),
		gocron.WithName("resource-sampling"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("register sampling job: %w", err)
	}
	s.scheduler.Start()
	slog.Info("resource sampling started", "interval", s.interval)
	return nil
}

func (s *SamplingScheduler) run() {
	n := s.orch.SampleResources(s.ctx)
	slog.Debug("resource sampling run", "published", n)
}

// Stop cancels a running sample and shuts the scheduler down.
func (s *SamplingScheduler) Stop() error {
	s.cancel()
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	return nil
}
