package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// TickProcessor defines the interface for running one scheduling iteration
type TickProcessor interface {
	ProcessTick(ctx context.Context) error
}

// Scheduler drives the orchestrator's control loop on a fixed interval.
// Wake lets callers trigger an immediate iteration between ticks, used after
// an account starts running so its first post is not delayed by a full
// interval.
type Scheduler struct {
	processor TickProcessor
	interval  time.Duration
	logger    *slog.Logger
	stopCh    chan struct{}
	wakeCh    chan struct{}
	wg        sync.WaitGroup
	running   bool
	mu        sync.Mutex
}

// New creates a new scheduler
func New(processor TickProcessor, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		processor: processor,
		interval:  interval,
		logger:    logger,
		stopCh:    make(chan struct{}),
		wakeCh:    make(chan struct{}, 1),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("automation scheduler started", "interval", s.interval)

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the scheduler and waits for an in-progress tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("automation scheduler stopped")
}

// Wake requests an immediate tick. Non-blocking; a pending wake is enough.
func (s *Scheduler) Wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// run is the main scheduler loop
func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start
	s.tick(ctx)

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-s.wakeCh:
			s.tick(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if err := s.processor.ProcessTick(ctx); err != nil {
		s.logger.Error("scheduling tick failed", "error", err)
	}
}
