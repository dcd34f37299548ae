package consolidation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs consolidation periodically in the background.
//
// The scheduler provides Start/Stop lifecycle management with graceful
// shutdown. Each run is independent: errors are logged and the schedule
// continues. All public methods are safe for concurrent use.
type Scheduler struct {
	interval   time.Duration
	eps        float64
	minSamples int
	runTimeout time.Duration

	engine *Engine
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithInterval sets the time between consolidation runs. Default is one hour.
func WithInterval(interval time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.interval = interval }
}

// WithParams sets the clustering parameters used on each run.
func WithParams(eps float64, minSamples int) SchedulerOption {
	return func(s *Scheduler) {
		s.eps = eps
		s.minSamples = minSamples
	}
}

// NewScheduler creates a scheduler for the given engine. It does not start
// automatically; call Start.
func NewScheduler(engine *Engine, logger *zap.Logger, opts ...SchedulerOption) (*Scheduler, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scheduler{
		interval:   time.Hour,
		eps:        DefaultEps,
		minSamples: DefaultMinSamples,
		runTimeout: 5 * time.Minute,
		engine:     engine,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start begins the background consolidation loop. Calling Start on a running
// scheduler returns an error without starting a second goroutine.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	s.stopCh = make(chan struct{})
	s.running = true

	s.logger.Info("consolidation scheduler started",
		zap.Duration("interval", s.interval),
		zap.Float64("eps", s.eps),
		zap.Int("min_samples", s.minSamples),
	)

	go s.run()
	return nil
}

// Stop signals the background goroutine to exit. Stop on a stopped
// scheduler is a no-op.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.logger.Info("consolidation scheduler stopped")
	return nil
}

func (s *Scheduler) run() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler goroutine panicked",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce()
		case <-s.stopCh:
			return
		}
	}
}

// runOnce executes a single consolidation run with panic recovery so one
// bad run cannot kill the schedule.
func (s *Scheduler) runOnce() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("consolidation run panicked",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()

	outcome, err := s.engine.Consolidate(ctx, s.eps, s.minSamples)
	if err != nil {
		s.logger.Error("scheduled consolidation failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled consolidation completed",
		zap.Bool("consolidated", outcome.Consolidated),
		zap.Int("clusters_formed", outcome.ClustersFormed),
	)
}
