package risk

import (
	"errors"
	"fmt"

	"github.com/ringgate/ringgate/internal/faults"
)

var (
	ErrUnknownModelVersion          = errors.New("risk: unknown model version")
	ErrInvalidModel                 = errors.New("risk: invalid model")
	ErrModelVersionExists           = errors.New("risk: model version already published")
	ErrIncompleteEvidenceForScoring = errors.New("risk: incomplete evidence for scoring")
	ErrBreakdownExists              = errors.New("risk: breakdown already recorded")
)

// ConfigError reports a model that cannot be registered or used.
type ConfigError struct {
	Err     error
	Version string
	Reason  string
}

func (e *ConfigError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%v: %q", e.Err, e.Version)
	}
	return fmt.Sprintf("%v: %q: %s", e.Err, e.Version, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) FaultClass() faults.Class { return faults.ClassConfiguration }

// IncompleteEvidenceError names the factor and the evidence field it could not
// read. Scoring never substitutes zero for a missing field.
type IncompleteEvidenceError struct {
	EvidenceID   string
	CandidateID  string
	ModelVersion string
	Factor       string
	Field        string
}

func (e *IncompleteEvidenceError) Error() string {
	return fmt.Sprintf("%v: candidate %q evidence %s: factor %q needs %s (model %q)",
		ErrIncompleteEvidenceForScoring, e.CandidateID, e.EvidenceID, e.Factor, e.Field, e.ModelVersion)
}

func (e *IncompleteEvidenceError) Unwrap() error { return ErrIncompleteEvidenceForScoring }

func (e *IncompleteEvidenceError) FaultClass() faults.Class { return faults.ClassValidation }

func invalidModel(version, format string, args ...any) error {
	return &ConfigError{Err: ErrInvalidModel, Version: version, Reason: fmt.Sprintf(format, args...)}
}
