package main

import (
	"log/slog"
	"strings"

	"github.com/ringgate/ringgate/internal/risk"
	"github.com/spf13/cobra"
)

var validateModelsCmd = &cobra.Command{
	Use:         "validate-models [dir]",
	Short:       "Validate built-in risk models plus an optional directory of extra versions.",
	Args:        cobra.MaximumNArgs(1),
	Annotations: structuredLog,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadModelConfig()
		if err != nil {
			return err
		}
		dir := cfg.RiskModelDir
		if len(args) == 1 {
			dir = args[0]
		}

		reg, err := risk.LoadRegistry(dir, cfg.RiskModelVersion)
		if err != nil {
			return &exitError{code: exitCodeInvalidModels, err: err}
		}

		versions := reg.Versions()
		slog.Info("validated risk models",
			"count", len(versions),
			"versions", strings.Join(versions, ","),
			"default", reg.Default(),
		)
		return nil
	},
}
