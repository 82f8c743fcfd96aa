// Package expiry periodically closes CAB requests whose pending exception
// lapsed before review.
package expiry

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Sweeper is implemented by *cab.Engine.
type Sweeper interface {
	ExpireLapsed(ctx context.Context, correlationID string) (int, error)
}

type Scheduler struct {
	Sweeper  Sweeper
	Interval time.Duration
	Logger   *slog.Logger
}

// Run sweeps once at startup and then every Interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	if s.Sweeper == nil || s.Interval <= 0 {
		return
	}

	s.sweep(ctx)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	correlationID := "sweep-" + uuid.NewString()
	n, err := s.Sweeper.ExpireLapsed(ctx, correlationID)
	switch {
	case err != nil && ctx.Err() == nil:
		s.logger().Error("exception expiry sweep failed", "correlation_id", correlationID, "expired", n, "err", err)
	case n > 0:
		s.logger().Info("expired lapsed exception requests", "correlation_id", correlationID, "expired", n)
	}
}

func (s *Scheduler) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
