package app

import (
	"context"
	"errors"
	"time"

	"github.com/quartostays/booking-engine/internal/clock"
	"github.com/quartostays/booking-engine/internal/domain"
	"go.uber.org/zap"
)

// Sweeper expires overdue holds in the background, independent of user
// action. It drives the same terminal transition as a manual release, so the
// two can race safely.
type Sweeper struct {
	holds    *HoldService
	clock    clock.Clock
	logger   *zap.Logger
	interval time.Duration
	batch    int
}

func NewSweeper(holds *HoldService, clk clock.Clock, logger *zap.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		holds:    holds,
		clock:    clk,
		logger:   logger,
		interval: interval,
		batch:    100,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("hold sweeper started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("hold sweeper stopped")
			return
		case <-ticker.C:
			if n, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("sweep failed", zap.Error(err))
			} else if n > 0 {
				s.logger.Info("expired holds", zap.Int("count", n))
			}
		}
	}
}

// SweepOnce expires one batch of due holds and reports how many transitions
// it actually won.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	due, err := s.holds.repo.ListDueHolds(ctx, s.clock.Now(), s.batch)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, hold := range due {
		h, err := s.holds.Expire(ctx, hold.ID)
		if err != nil {
			if errors.Is(err, domain.ErrHoldNotFound) {
				continue
			}
			return expired, err
		}
		if h.Status == domain.HoldStatusExpired {
			expired++
		}
	}
	return expired, nil
}
