package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/ringgate/ringgate/internal/config"
	"github.com/ringgate/ringgate/internal/evidence"
	"github.com/ringgate/ringgate/internal/governance"
	"github.com/ringgate/ringgate/internal/logging"
	"github.com/ringgate/ringgate/internal/risk"
	"github.com/ringgate/ringgate/internal/store/memory"
	"github.com/spf13/cobra"
)

var evaluateFile string

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Dry-run a governance scenario against an in-memory store and print the verdicts.",
	Long: `Dry-run a governance scenario against an in-memory store and print the verdicts.

The scenario file holds the evidence to submit and the evaluations to run:

  {
    "model_version": "2026.1",
    "evidence": [{"candidate_id": "...", "artifact": {...}, "tests": {...}, "scans": {...}, "rollback": {...}}],
    "evaluations": [{"candidate_id": "...", "target_ring": "pilot", "requester": "...", "ring_state": {...}}]
  }

Exits with status 3 when any candidate is not promoted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadOptionalDB()
		if err != nil {
			return err
		}
		models, err := risk.LoadRegistry(cfg.RiskModelDir, cfg.RiskModelVersion)
		if err != nil {
			return err
		}
		sc, err := readScenario(evaluateFile, cmd.InOrStdin())
		if err != nil {
			return err
		}
		return runScenario(cmd.Context(), sc, models, cfg, cmd.OutOrStdout())
	},
}

func init() {
	evaluateCmd.Flags().StringVarP(&evaluateFile, "file", "f", "", `Scenario JSON file ("-" reads stdin)`)
	_ = evaluateCmd.MarkFlagRequired("file")
}

type scenario struct {
	ModelVersion string                     `json:"model_version,omitempty"`
	Evidence     []evidence.Submission      `json:"evidence"`
	Evaluations  []governance.EvaluateInput `json:"evaluations"`
}

type scenarioReport struct {
	Evidence []evidence.Record   `json:"evidence"`
	Results  []governance.Result `json:"results"`
}

func readScenario(path string, stdin io.Reader) (scenario, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return scenario{}, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var sc scenario
	if err := dec.Decode(&sc); err != nil {
		return scenario{}, fmt.Errorf("decode scenario %s: %w", path, err)
	}
	if len(sc.Evaluations) == 0 {
		return scenario{}, errors.New("scenario has no evaluations")
	}
	return sc, nil
}

// runScenario submits the evidence in order, then evaluates every entry
// concurrently. Nothing is persisted.
func runScenario(ctx context.Context, sc scenario, models *risk.Registry, cfg config.Config, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	svc := newService(memory.New(), models, cfg, logging.Discard())
	if v := strings.TrimSpace(sc.ModelVersion); v != "" {
		svc.ModelVersion = v
	}

	report := scenarioReport{Evidence: make([]evidence.Record, 0, len(sc.Evidence))}
	for i, sub := range sc.Evidence {
		sub.CorrelationID = "dry-run"
		rec, err := svc.Evidence.Submit(ctx, sub)
		if err != nil {
			return fmt.Errorf("evidence[%d]: %w", i, err)
		}
		report.Evidence = append(report.Evidence, rec)
	}

	inputs := make([]governance.EvaluateInput, len(sc.Evaluations))
	for i, in := range sc.Evaluations {
		if in.CorrelationID == "" {
			in.CorrelationID = uuid.NewString()
		}
		inputs[i] = in
	}
	report.Results = svc.EvaluateMany(ctx, inputs)

	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(out, string(b)); err != nil {
		return err
	}

	for _, r := range report.Results {
		if r.Verdict == nil || !r.Verdict.Promotion.Promoted() {
			return &exitError{code: exitCodeNotPromoted, silent: true}
		}
	}
	return nil
}
