package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ringgate/ringgate/internal/config"
	"github.com/ringgate/ringgate/internal/expiry"
	httpapp "github.com/ringgate/ringgate/internal/http"
	"github.com/ringgate/ringgate/internal/metrics"
	"github.com/ringgate/ringgate/internal/risk"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:         "serve",
	Short:       "Run the governance HTTP API.",
	Args:        cobra.NoArgs,
	Annotations: structuredLog,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	cfg, err := config.LoadOptionalDB()
	if err != nil {
		return err
	}

	models, err := risk.LoadRegistry(cfg.RiskModelDir, cfg.RiskModelVersion)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	logger := slog.Default()
	svc := newService(repo, models, cfg, logger)
	srv := httpapp.NewEchoServer(svc, logger)

	var metricsErrCh <-chan error
	switch {
	case !cfg.MetricsEnabled():
		logger.Info("metrics disabled")
	case cfg.MetricsShared():
		srv.MountMetrics()
	default:
		_, metricsErrCh = metrics.StartServer(ctx, cfg.MetricsAddr, logger)
	}

	sweeper := expiry.Scheduler{Sweeper: svc.CAB, Interval: cfg.ExpirySweepInterval, Logger: logger}
	go sweeper.Run(ctx)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			"addr", cfg.HTTPAddr,
			"store", cfg.StoreBackend,
			"default_model_version", models.Default(),
		)
		errCh <- srv.StartServer(httpServer)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-metricsErrCh:
		return err
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
