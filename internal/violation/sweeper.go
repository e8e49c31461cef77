package violation

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sweeper runs ExpireDue on a fixed interval.
type Sweeper struct {
	escalator *Escalator
	interval  time.Duration
	batch     int
	logger    *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewSweeper(e *Escalator, interval time.Duration, batch int, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		escalator: e,
		interval:  interval,
		batch:     batch,
		logger:    logger.With("component", "suspension_sweeper"),
		stopCh:    make(chan struct{}),
	}
}

// Start begins the sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("Starting suspension sweeper", slog.Duration("interval", s.interval))
	s.wg.Add(1)
	go s.tickLoop(ctx)
}

// Stop gracefully stops the sweeper.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("Suspension sweeper stopped")
}

func (s *Sweeper) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	// Initial tick immediately
	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	n, err := s.escalator.ExpireDue(ctx, s.batch)
	if err != nil {
		s.logger.Error("Suspension sweep failed", slog.Any("error", err))
		return
	}
	if n > 0 {
		s.logger.Info("Suspension sweep finished", slog.Int("expired", n))
	}
}
