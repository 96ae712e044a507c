package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// sweepBatchSize caps how many expired sessions one pass touches, so a large
// backlog is worked off across ticks instead of in one long stall.
const sweepBatchSize = 50

// ExpiredSweeper periodically expires overdue upload sessions and reclaims
// their chunk storage.
type ExpiredSweeper struct {
	uploads  uploadSweeper
	interval time.Duration
	logger   zerolog.Logger
}

// uploadSweeper is the slice of the upload service the sweeper needs.
type uploadSweeper interface {
	SweepExpired(ctx context.Context, batchSize int) (int, error)
}

func NewExpiredSweeper(uploads uploadSweeper, interval time.Duration, logger zerolog.Logger) *ExpiredSweeper {
	return &ExpiredSweeper{
		uploads:  uploads,
		interval: interval,
		logger:   logger.With().Str("component", "sweeper").Logger(),
	}
}

// Run polls until ctx is cancelled.
func (s *ExpiredSweeper) Run(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("sweeper started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			swept, err := s.uploads.SweepExpired(ctx, sweepBatchSize)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Error().Err(err).Msg("sweep pass failed")
				}
				continue
			}
			if swept > 0 {
				s.logger.Info().Int("swept", swept).Msg("expired upload sessions reclaimed")
			}
		}
	}
}
