package main

import (
	"errors"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/ringgate/ringgate/internal/config"
	"github.com/spf13/cobra"
)

const migrationsSource = "file://db/migrations"

var migrateDown bool

var migrateCmd = &cobra.Command{
	Use:         "migrate",
	Short:       "Run database migrations",
	Args:        cobra.NoArgs,
	Annotations: structuredLog,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		m, err := migrate.New(migrationsSource, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer func() { _, _ = m.Close() }()

		apply, direction := m.Up, "up"
		if migrateDown {
			apply, direction = m.Down, "down"
		}
		if err := apply(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				slog.Info("no changes to apply", "direction", direction)
				return nil
			}
			return err
		}

		version, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			return err
		}
		slog.Info("migrations applied successfully", "direction", direction, "version", version, "dirty", dirty)
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "Roll back every migration instead of applying them")
}
