package sweeper

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mavuno/demand-engine/internal/engine"
)

// Sweeper periodically expires pools and auctions past their deliver_by
// deadline. Each pass is idempotent and safe to run alongside user-triggered
// transitions; the engines' version guards resolve any race.
type Sweeper struct {
	pools    *engine.PoolEngine
	auctions *engine.AuctionEngine
	interval time.Duration
	log      zerolog.Logger
}

func New(pools *engine.PoolEngine, auctions *engine.AuctionEngine, interval time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		pools:    pools,
		auctions: auctions,
		interval: interval,
		log:      log,
	}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("expiry sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	expiredPools, err := s.pools.ExpireOverdue(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("pool expiry sweep failed")
	}
	expiredAuctions, err := s.auctions.ExpireOverdue(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("auction expiry sweep failed")
	}
	if expiredPools > 0 || expiredAuctions > 0 {
		s.log.Info().
			Int("pools", expiredPools).
			Int("auctions", expiredAuctions).
			Msg("expired overdue aggregates")
	}
}
