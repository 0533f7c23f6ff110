// Package sweeper runs the expiration sweep on a fixed interval.
package sweeper

import (
	"context"
	"sync"
	"time"

	"escaperoom/internal/service"

	"github.com/rs/zerolog"
)

// Sweeper closes out ended bookings.
type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (service.SweepResult, error)
}

type Config struct {
	Interval   time.Duration
	RunOnStart bool
}

func DefaultConfig() Config {
	return Config{Interval: time.Hour, RunOnStart: true}
}

// Scheduler triggers sweeps. At most one sweep runs at a time; a tick that
// arrives while one is in progress is skipped.
type Scheduler struct {
	config  Config
	sweeper Sweeper
	now     func() time.Time
	logger  *zerolog.Logger

	runMu   sync.Mutex
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	lastRun time.Time
}

func NewScheduler(config Config, sweeper Sweeper, logger *zerolog.Logger) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "sweeper").Logger()
	return &Scheduler{
		config:  config,
		sweeper: sweeper,
		now:     time.Now,
		logger:  &l,
		stopCh:  make(chan struct{}),
	}
}

// Start runs the scheduler loop until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info().Dur("interval", s.config.Interval).Bool("run_on_start", s.config.RunOnStart).Msg("sweep scheduler started")

	if s.config.RunOnStart {
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweep scheduler stopped by context")
			s.setStopped()
			return
		case <-s.stopCh:
			s.logger.Info().Msg("sweep scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) setStopped() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// Stop stops the scheduler loop. A sweep already in progress finishes.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.running {
		s.running = false
		close(s.stopCh)
	}
	s.mu.Unlock()
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.runMu.TryLock() {
		s.logger.Warn().Msg("previous sweep still running, skipping tick")
		return
	}
	defer s.runMu.Unlock()
	s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) (service.SweepResult, error) {
	now := s.now()
	result, err := s.sweeper.SweepExpired(ctx, now)
	if err != nil {
		s.logger.Error().Err(err).
			Int("transitioned", result.Transitioned()).
			Int("failed", result.Failed).
			Msg("expiration sweep finished with errors")
	}

	s.mu.Lock()
	s.lastRun = now
	s.mu.Unlock()
	return result, err
}

// RunNow sweeps immediately, waiting for a scheduled sweep to finish first.
func (s *Scheduler) RunNow(ctx context.Context) (service.SweepResult, error) {
	s.logger.Info().Msg("manual sweep triggered")
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.run(ctx)
}

// LastRun returns the reference time of the last completed sweep.
func (s *Scheduler) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// IsRunning returns whether the scheduler loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
