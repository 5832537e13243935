package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultSweepInterval is how often stale open decisions are expired
const DefaultSweepInterval = 5 * time.Minute

// ExpirySweeper periodically moves stale open decisions to expired
type ExpirySweeper struct {
	decisions *DecisionService
	logger    *zap.Logger
	interval  time.Duration
	ticker    *time.Ticker
	stop      chan struct{}
	done      chan struct{}
	mu        sync.Mutex
	isRunning bool
}

func NewExpirySweeper(decisions *DecisionService, logger *zap.Logger, interval time.Duration) *ExpirySweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &ExpirySweeper{
		decisions: decisions,
		logger:    logger,
		interval:  interval,
	}
}

// Start runs one sweep immediately and then one per interval
func (s *ExpirySweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	s.logger.Info("Starting expiry sweeper", zap.Duration("interval", s.interval))

	s.sweep(ctx)

	s.ticker = time.NewTicker(s.interval)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(ctx, s.ticker, s.stop, s.done)

	s.isRunning = true
	return nil
}

// Stop halts the sweeper and waits for an in-flight sweep to finish
func (s *ExpirySweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.ticker.Stop()
	close(s.stop)
	s.isRunning = false
	done := s.done

	// ctx bounds only the wait; the sweeper is stopped either way
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Expiry sweeper stop timed out waiting for sweep", zap.Error(ctx.Err()))
		return ctx.Err()
	}

	s.logger.Info("Expiry sweeper stopped")
	return nil
}

func (s *ExpirySweeper) run(ctx context.Context, ticker *time.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *ExpirySweeper) sweep(ctx context.Context) {
	if _, err := s.decisions.ExpireStale(ctx); err != nil {
		s.logger.Error("Expiry sweep failed", zap.Error(err))
	}
}
