package risk

import (
	"math"
	"sort"
	"strings"
	"time"
)

// WeightTolerance is how far the factor weights of one version may drift from 1.0.
const WeightTolerance = 1e-6

const (
	BlastRadiusStandard         = "standard"
	BlastRadiusBusinessCritical = "business-critical"
)

// FactorDefinition is one weighted dimension of a model version.
type FactorDefinition struct {
	Name   string  `yaml:"name" json:"name"`
	Weight float64 `yaml:"weight" json:"weight"`
	Rule   Rule    `yaml:"rule" json:"rule"`
}

// CABThresholds route a total score: <= AutoApproveMax is approved by the
// system, > ExceptionAbove needs an exception, anything between goes to review.
type CABThresholds struct {
	AutoApproveMax int `yaml:"auto_approve_max" json:"auto_approve_max"`
	ExceptionAbove int `yaml:"exception_above" json:"exception_above"`
}

// RingPolicy holds the promotion thresholds of one ring.
type RingPolicy struct {
	Name                string        `yaml:"name" json:"name"`
	BlastRadius         string        `yaml:"blast_radius" json:"blast_radius"`
	MinSuccessRate      float64       `yaml:"min_success_rate" json:"min_success_rate"`
	MaxTimeToCompliance time.Duration `yaml:"max_time_to_compliance" json:"max_time_to_compliance"`
}

// BusinessCritical reports whether promotion into this ring always needs a human.
func (p RingPolicy) BusinessCritical() bool {
	return p.BlastRadius == BlastRadiusBusinessCritical
}

// Model is a published, immutable scoring rubric together with the CAB and
// ring thresholds calibrated for it.
type Model struct {
	Version     string             `yaml:"version" json:"version"`
	Description string             `yaml:"description,omitempty" json:"description,omitempty"`
	CAB         CABThresholds      `yaml:"cab" json:"cab"`
	Factors     []FactorDefinition `yaml:"factors" json:"factors"`
	Rings       []RingPolicy       `yaml:"rings" json:"rings"`
}

// Ring returns the policy for name.
func (m Model) Ring(name string) (RingPolicy, bool) {
	name = strings.TrimSpace(name)
	for _, r := range m.Rings {
		if r.Name == name {
			return r, true
		}
	}
	return RingPolicy{}, false
}

// WeightSum adds the factor weights in a stable order.
func (m Model) WeightSum() float64 {
	weights := make([]float64, 0, len(m.Factors))
	for _, f := range m.Factors {
		weights = append(weights, f.Weight)
	}
	sort.Float64s(weights)
	var sum float64
	for _, w := range weights {
		sum += w
	}
	return sum
}

func (m Model) clone() Model {
	out := m
	out.Factors = make([]FactorDefinition, len(m.Factors))
	for i, f := range m.Factors {
		out.Factors[i] = f
		if f.Rule.Params != nil {
			params := make(map[string]float64, len(f.Rule.Params))
			for k, v := range f.Rule.Params {
				params[k] = v
			}
			out.Factors[i].Rule.Params = params
		}
	}
	out.Rings = append([]RingPolicy(nil), m.Rings...)
	return out
}

// Validate enforces every registration invariant. Weights are never
// normalised: a version whose weights do not sum to 1.0 is rejected.
func (m Model) Validate() error {
	version := strings.TrimSpace(m.Version)
	if version == "" {
		return invalidModel(m.Version, "version is required")
	}
	if len(m.Factors) == 0 {
		return invalidModel(version, "at least one factor is required")
	}

	seen := make(map[string]struct{}, len(m.Factors))
	for _, f := range m.Factors {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return invalidModel(version, "factor name is required")
		}
		if _, ok := seen[name]; ok {
			return invalidModel(version, "duplicate factor %q", name)
		}
		seen[name] = struct{}{}
		if math.IsNaN(f.Weight) || f.Weight < 0 || f.Weight > 1 {
			return invalidModel(version, "factor %q weight %v outside [0,1]", name, f.Weight)
		}
		if err := f.Rule.validate(); err != nil {
			return invalidModel(version, "factor %q: %v", name, err)
		}
	}
	if sum := m.WeightSum(); math.Abs(sum-1) > WeightTolerance {
		return invalidModel(version, "factor weights sum to %.9f, want 1.0", sum)
	}

	if m.CAB.AutoApproveMax < 0 || m.CAB.ExceptionAbove > 100 || m.CAB.AutoApproveMax > m.CAB.ExceptionAbove {
		return invalidModel(version, "cab thresholds must satisfy 0 <= auto_approve_max (%d) <= exception_above (%d) <= 100",
			m.CAB.AutoApproveMax, m.CAB.ExceptionAbove)
	}

	if len(m.Rings) == 0 {
		return invalidModel(version, "at least one ring is required")
	}
	rings := make(map[string]struct{}, len(m.Rings))
	for _, r := range m.Rings {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return invalidModel(version, "ring name is required")
		}
		if _, ok := rings[name]; ok {
			return invalidModel(version, "duplicate ring %q", name)
		}
		rings[name] = struct{}{}
		switch r.BlastRadius {
		case BlastRadiusStandard, BlastRadiusBusinessCritical:
		default:
			return invalidModel(version, "ring %q: blast_radius must be %q or %q", name, BlastRadiusStandard, BlastRadiusBusinessCritical)
		}
		if r.MinSuccessRate < 0 || r.MinSuccessRate > 100 {
			return invalidModel(version, "ring %q: min_success_rate %v outside [0,100]", name, r.MinSuccessRate)
		}
		if r.MaxTimeToCompliance <= 0 {
			return invalidModel(version, "ring %q: max_time_to_compliance must be > 0", name)
		}
	}
	return nil
}
