package risk

import (
	"fmt"
	"math"
	"slices"

	"github.com/ringgate/ringgate/internal/evidence"
)

type RuleKind string

const (
	RuleCoverageGap           RuleKind = "coverage_gap"
	RuleTestFailureRatio      RuleKind = "test_failure_ratio"
	RuleVulnerabilitySeverity RuleKind = "vulnerability_severity"
	RuleCriticalPresence      RuleKind = "critical_presence"
	RuleRollbackReadiness     RuleKind = "rollback_readiness"
)

// Rule maps evidence fields to a normalized contribution in [0,1].
type Rule struct {
	Kind   RuleKind           `yaml:"kind" json:"kind"`
	Params map[string]float64 `yaml:"params,omitempty" json:"params,omitempty"`
}

// missingField is returned by a rule whose input field is absent.
type missingField string

func (m missingField) Error() string { return "missing " + string(m) }

var severityParams = []string{"critical", "high", "medium", "low"}

func (r Rule) param(name string, def float64) float64 {
	if v, ok := r.Params[name]; ok {
		return v
	}
	return def
}

func (r Rule) validate() error {
	for k, v := range r.Params {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("param %q must be a finite value >= 0", k)
		}
	}
	switch r.Kind {
	case RuleCoverageGap, RuleTestFailureRatio, RuleCriticalPresence:
		if len(r.Params) != 0 {
			return fmt.Errorf("rule %q takes no params", r.Kind)
		}
	case RuleVulnerabilitySeverity:
		for k := range r.Params {
			if k != "saturation" && !slices.Contains(severityParams, k) {
				return fmt.Errorf("unknown param %q", k)
			}
		}
		if r.param("saturation", 1) <= 0 {
			return fmt.Errorf("saturation must be > 0")
		}
	case RuleRollbackReadiness:
		for k := range r.Params {
			if k != "unvalidated" {
				return fmt.Errorf("unknown param %q", k)
			}
		}
		if r.param("unvalidated", 1) > 1 {
			return fmt.Errorf("unvalidated must be within [0,1]")
		}
	default:
		return fmt.Errorf("unknown rule kind %q", r.Kind)
	}
	return nil
}

// evaluate returns the raw observed value and the normalized contribution.
func (r Rule) evaluate(rec evidence.Record) (raw, normalized float64, err error) {
	switch r.Kind {
	case RuleCoverageGap:
		if rec.Tests.CoveragePercent == nil {
			return 0, 0, missingField("tests.coverage_percent")
		}
		raw = *rec.Tests.CoveragePercent
		return raw, clamp01(1 - raw/100), nil

	case RuleTestFailureRatio:
		executed := rec.Tests.Executed()
		if executed <= 0 {
			return 0, 0, missingField("tests.passed+tests.failed")
		}
		raw = float64(rec.Tests.Failed) / float64(executed)
		return raw, clamp01(raw), nil

	case RuleVulnerabilitySeverity:
		raw = float64(rec.Scans.Critical)*r.param("critical", 0) +
			float64(rec.Scans.High)*r.param("high", 0) +
			float64(rec.Scans.Medium)*r.param("medium", 0) +
			float64(rec.Scans.Low)*r.param("low", 0)
		return raw, clamp01(raw / r.param("saturation", 1)), nil

	case RuleCriticalPresence:
		raw = float64(rec.Scans.Critical)
		if rec.Scans.Critical > 0 {
			return raw, 1, nil
		}
		return raw, 0, nil

	case RuleRollbackReadiness:
		if !rec.Rollback.Present {
			return 0, 0, missingField("rollback.present")
		}
		if rec.Rollback.Validated {
			return 1, 0, nil
		}
		return 0, clamp01(r.param("unvalidated", 1)), nil
	}
	return 0, 0, fmt.Errorf("unknown rule kind %q", r.Kind)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
