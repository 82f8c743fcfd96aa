package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ringgate/ringgate/internal/cab"
	"github.com/ringgate/ringgate/internal/config"
	"github.com/ringgate/ringgate/internal/governance"
	"github.com/ringgate/ringgate/internal/risk"
	"github.com/ringgate/ringgate/internal/store/memory"
	"github.com/ringgate/ringgate/internal/store/postgres"
)

// openRepository returns the configured store and a func that releases it.
func openRepository(ctx context.Context, cfg config.Config) (governance.Repository, func(), error) {
	if cfg.StoreBackend == config.BackendMemory {
		slog.Warn("using the in-memory store; governance records are lost on exit")
		return memory.New(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	return postgres.New(pool), pool.Close, nil
}

func newService(repo governance.Repository, models *risk.Registry, cfg config.Config, logger *slog.Logger) *governance.Service {
	return governance.New(repo, models, governance.Options{
		ModelVersion: cfg.RiskModelVersion,
		Roles:        cab.NewStaticRoles(cfg.CABMembers, cfg.SecurityReviewers),
		Workers:      cfg.EvaluateWorkers,
	}, logger)
}
