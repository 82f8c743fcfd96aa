package cab

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ringgate/ringgate/internal/faults"
)

var (
	ErrDuplicatePendingRequest = errors.New("cab: a non-terminal request already exists for this candidate and ring")
	ErrInvalidTransition       = errors.New("cab: invalid transition")
	ErrSameActorViolation      = errors.New("cab: separation of duties violated")
	ErrUnauthorizedActor       = errors.New("cab: actor lacks the required role")
	ErrExceptionExists         = errors.New("cab: request already has an exception")
	ErrExceptionExpired        = errors.New("cab: exception has expired")

	ErrMissingActor           = errors.New("cab: actor is required")
	ErrMissingReason          = errors.New("cab: reason is required")
	ErrInvalidExpiry          = errors.New("cab: exception expiry must be within 1 to 90 days")
	ErrNoCompensatingControls = errors.New("cab: at least one compensating control is required")
	ErrUnknownRing            = errors.New("cab: unknown target ring")
	ErrInvalidBreakdown       = errors.New("cab: risk breakdown is required")
)

var validationErrors = []error{
	ErrMissingActor,
	ErrMissingReason,
	ErrInvalidExpiry,
	ErrNoCompensatingControls,
	ErrUnknownRing,
	ErrInvalidBreakdown,
}

// Error carries the identifiers an operator needs to act on a failed CAB
// operation.
type Error struct {
	Err         error
	Op          string
	RequestID   string
	ExceptionID string
	CandidateID string
	Ring        string
	Status      Status
	Detail      string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("cab ")
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(strings.TrimPrefix(e.Err.Error(), "cab: "))

	var ids []string
	if e.RequestID != "" {
		ids = append(ids, "request "+e.RequestID)
	}
	if e.ExceptionID != "" {
		ids = append(ids, "exception "+e.ExceptionID)
	}
	if e.CandidateID != "" {
		ids = append(ids, fmt.Sprintf("candidate %q", e.CandidateID))
	}
	if e.Ring != "" {
		ids = append(ids, fmt.Sprintf("ring %q", e.Ring))
	}
	if e.Status != "" {
		ids = append(ids, "status "+string(e.Status))
	}
	if len(ids) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ids, ", "))
		b.WriteString(")")
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) FaultClass() faults.Class {
	for _, v := range validationErrors {
		if errors.Is(e.Err, v) {
			return faults.ClassValidation
		}
	}
	return faults.ClassStateConflict
}
