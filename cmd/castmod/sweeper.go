package main

import (
	"context"
	"time"

	"github.com/castmod/castmod/internal/ticker"
)

const defaultSweepInterval = time.Minute

// Periodically ends cooldowns whose expiry has passed, until the context is cancelled.
func (srv *Server) RunSweeper(ctx context.Context) {
	interval := srv.sweepInterval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker.Periodically(ctx, srv.logger, "sweep-expired-cooldowns", interval, func(ctx context.Context) error {
		_, err := srv.sweepOnce(ctx, time.Now())
		return err
	})
}

func (srv *Server) sweepOnce(ctx context.Context, now time.Time) (int, error) {
	ctx, span := tracer.Start(ctx, "sweepExpiredCooldowns")
	defer span.End()

	n, err := srv.engine.Actions.SweepExpired(ctx, now)
	if n > 0 {
		cooldownsSwept.Add(float64(n))
		srv.logger.Info("ended expired cooldowns", "count", n)
	}
	return n, err
}
