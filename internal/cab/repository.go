package cab

import (
	"context"
	"time"
)

// Repository persists requests, exceptions and decisions. Decisions are
// insert-only. Every method that changes a status does so with a
// compare-and-swap on the expected current status, together with the
// decision insert, in one atomic unit.
type Repository interface {
	// CreateRequest inserts req and, when non-nil, its decision. It returns
	// ErrDuplicatePendingRequest while another open request exists for the
	// same candidate and ring.
	CreateRequest(ctx context.Context, req Request, decision *Decision) error
	GetRequest(ctx context.Context, id string) (Request, error)
	LatestRequest(ctx context.Context, candidateID, ring string) (Request, bool, error)
	ListRequests(ctx context.Context, candidateID string) ([]Request, error)
	// RequestsByStatus lists requests whose stored status is status, oldest first.
	RequestsByStatus(ctx context.Context, status Status) ([]Request, error)

	// DecideRequest applies t. It returns ErrInvalidTransition when the
	// request or exception is no longer in the expected status.
	DecideRequest(ctx context.Context, t Transition) error

	// CreateException returns ErrExceptionExists when the request already has one.
	CreateException(ctx context.Context, x Exception) error
	GetException(ctx context.Context, id string) (Exception, error)
	ExceptionForRequest(ctx context.Context, requestID string) (Exception, bool, error)
	ListExceptions(ctx context.Context, candidateID string) ([]Exception, error)

	ListDecisions(ctx context.Context, candidateID string) ([]Decision, error)
}

// Transition is one atomic status change of a request, optionally with a
// matching change of its exception.
type Transition struct {
	RequestID string
	From      Status
	To        Status
	At        time.Time
	Decision  Decision

	// ExceptionExpiresAt is stored on the request when it is approved
	// through an exception.
	ExceptionExpiresAt *time.Time
	Exception          *ExceptionTransition
}

// ExceptionTransition moves an exception from one stored status to another.
type ExceptionTransition struct {
	ExceptionID string
	From        ExceptionStatus
	To          ExceptionStatus
	Reviewer    string
	Reason      string
}
