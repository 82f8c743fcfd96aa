package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ringgate/ringgate/internal/config"
	"github.com/ringgate/ringgate/internal/risk"
	"github.com/spf13/cobra"
)

var modelsJSON bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the published risk model versions.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadModelConfig()
		if err != nil {
			return err
		}
		reg, err := risk.LoadRegistry(cfg.RiskModelDir, cfg.RiskModelVersion)
		if err != nil {
			return err
		}
		return printModels(cmd.OutOrStdout(), reg, modelsJSON)
	},
}

func init() {
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "Print models as JSON")
}

// loadModelConfig reads configuration for commands that never open the store.
func loadModelConfig() (config.Config, error) {
	return config.LoadOptionalDB()
}

type modelListing struct {
	Default string       `json:"default"`
	Models  []risk.Model `json:"models"`
}

func printModels(out io.Writer, reg *risk.Registry, asJSON bool) error {
	listing := modelListing{Default: reg.Default()}
	for _, v := range reg.Versions() {
		m, err := reg.Lookup(v)
		if err != nil {
			return err
		}
		listing.Models = append(listing.Models, m)
	}

	if asJSON {
		b, err := json.MarshalIndent(listing, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(b))
		return err
	}

	for _, m := range listing.Models {
		marker := " "
		if m.Version == listing.Default {
			marker = "*"
		}
		rings := make([]string, 0, len(m.Rings))
		for _, r := range m.Rings {
			rings = append(rings, r.Name)
		}
		if _, err := fmt.Fprintf(out, "%s %s auto_approve<=%d exception>%d factors=%d rings=%s\n",
			marker, m.Version, m.CAB.AutoApproveMax, m.CAB.ExceptionAbove, len(m.Factors), strings.Join(rings, ","),
		); err != nil {
			return err
		}
	}
	return nil
}
