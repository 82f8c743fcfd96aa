package evidence

import (
	"errors"
	"fmt"

	"github.com/ringgate/ringgate/internal/faults"
)

var (
	ErrMissingField   = errors.New("evidence: missing field")
	ErrMalformedField = errors.New("evidence: malformed field")
	ErrIntegrity      = errors.New("evidence: integrity check failed")
)

type Category string

const (
	CategoryCandidate Category = "candidate"
	CategoryArtifact  Category = "artifact"
	CategoryTests     Category = "test_results"
	CategoryScans     Category = "scan_results"
	CategoryRollback  Category = "rollback_plan"
)

// ValidationError rejects a submission. Err is ErrMissingField or
// ErrMalformedField.
type ValidationError struct {
	Err         error
	CandidateID string
	Category    Category
	Field       string
	Detail      string
}

func (e *ValidationError) Error() string {
	where := string(e.Category)
	if e.Field != "" {
		where += "." + e.Field
	}
	msg := fmt.Sprintf("%v: candidate %q: %s", e.Err, e.CandidateID, where)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) FaultClass() faults.Class { return faults.ClassValidation }

// IntegrityError means a stored record no longer matches its verification
// hash. It is never repaired automatically.
type IntegrityError struct {
	RecordID     string
	CandidateID  string
	StoredHash   string
	ComputedHash string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%v: record %s (candidate %q): stored hash %s, computed %s",
		ErrIntegrity, e.RecordID, e.CandidateID, e.StoredHash, e.ComputedHash)
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

func (e *IntegrityError) FaultClass() faults.Class { return faults.ClassIntegrity }
