// Package cab runs the change-advisory-board workflow: routing scored
// candidates to automatic approval, human review or an exception, and
// recording every decision.
package cab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ringgate/ringgate/internal/faults"
	"github.com/ringgate/ringgate/internal/metrics"
	"github.com/ringgate/ringgate/internal/risk"
)

const (
	MinExpiryDays = 1
	MaxExpiryDays = 90
)

// Engine applies the CAB state machine on top of a Repository.
type Engine struct {
	Repo   Repository
	Models *risk.Registry
	Roles  Roles
	Now    func() time.Time
	NewID  func() string
	Logger *slog.Logger
}

func NewEngine(repo Repository, models *risk.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{Repo: repo, Models: models, Logger: logger}
}

// Route maps a risk total to the post-gate status. Scores above the
// exception threshold always need an exception; privileged tooling and
// business-critical rings never auto-approve.
func Route(total int, th risk.CABThresholds, privileged bool, ring risk.RingPolicy) (Status, Override) {
	switch {
	case total > th.ExceptionAbove:
		return StatusExceptionRequired, OverrideNone
	case total > th.AutoApproveMax:
		return StatusUnderReview, OverrideNone
	case privileged:
		return StatusUnderReview, OverridePrivilegedTooling
	case ring.BusinessCritical():
		return StatusUnderReview, OverrideBusinessCritical
	}
	return StatusAutoApproved, OverrideNone
}

type SubmitInput struct {
	Breakdown         risk.Breakdown
	Ring              string
	Requester         string
	PrivilegedTooling bool
	CorrelationID     string
}

// Submit creates a request and routes it in the same write. Automatic
// approvals are recorded with a "system" decision.
func (e *Engine) Submit(ctx context.Context, in SubmitInput) (Request, error) {
	req, err := e.submit(ctx, in)
	return req, e.observe("submit", in.CorrelationID, err)
}

func (e *Engine) submit(ctx context.Context, in SubmitInput) (Request, error) {
	const op = "submit"
	ring := strings.TrimSpace(in.Ring)
	requester := strings.TrimSpace(in.Requester)
	b := in.Breakdown

	if b.ID == "" || b.EvidenceID == "" || strings.TrimSpace(b.CandidateID) == "" {
		return Request{}, &Error{Err: ErrInvalidBreakdown, Op: op, CandidateID: b.CandidateID, Ring: ring}
	}
	if requester == "" {
		return Request{}, &Error{Err: ErrMissingActor, Op: op, CandidateID: b.CandidateID, Ring: ring, Detail: "requester"}
	}
	m, err := e.Models.Lookup(b.ModelVersion)
	if err != nil {
		return Request{}, fmt.Errorf("cab submit: candidate %q: %w", b.CandidateID, err)
	}
	policy, ok := m.Ring(ring)
	if !ok {
		return Request{}, &Error{Err: ErrUnknownRing, Op: op, CandidateID: b.CandidateID, Ring: ring,
			Detail: fmt.Sprintf("model %s defines %s", m.Version, ringNames(m))}
	}

	status, override := Route(b.Total, m.CAB, in.PrivilegedTooling, policy)
	now := e.now()
	req := Request{
		ID:            e.newID(),
		CandidateID:   b.CandidateID,
		Ring:          policy.Name,
		EvidenceID:    b.EvidenceID,
		BreakdownID:   b.ID,
		ModelVersion:  m.Version,
		RiskTotal:     b.Total,
		Status:        status,
		Override:      override,
		Requester:     requester,
		CreatedAt:     now,
		CorrelationID: in.CorrelationID,
	}

	var decision *Decision
	if status == StatusAutoApproved {
		req.DecidedAt = &now
		decision = &Decision{
			ID:            e.newID(),
			RequestID:     req.ID,
			CandidateID:   req.CandidateID,
			Kind:          DecisionApproved,
			Reason:        fmt.Sprintf("risk score %d within auto-approve threshold %d", b.Total, m.CAB.AutoApproveMax),
			Actor:         SystemActor,
			CorrelationID: in.CorrelationID,
			CreatedAt:     now,
		}
	}

	if err := e.Repo.CreateRequest(ctx, req, decision); err != nil {
		if errors.Is(err, ErrDuplicatePendingRequest) {
			return Request{}, &Error{Err: err, Op: op, CandidateID: req.CandidateID, Ring: req.Ring}
		}
		return Request{}, fmt.Errorf("cab submit: candidate %q ring %q: %w", req.CandidateID, req.Ring, err)
	}

	metrics.CABTransitionsTotal.WithLabelValues(string(StatusPending), string(status)).Inc()
	e.logger().Info("cab request submitted",
		"correlation_id", in.CorrelationID,
		"candidate_id", req.CandidateID,
		"request_id", req.ID,
		"ring", req.Ring,
		"risk_total", req.RiskTotal,
		"model_version", req.ModelVersion,
		"status", req.Status,
		"override", req.Override,
	)
	return req, nil
}

// GetRequest loads a request. An EXCEPTION_REQUIRED request whose pending
// exception has lapsed is moved to EXPIRED first.
func (e *Engine) GetRequest(ctx context.Context, id, correlationID string) (Request, error) {
	req, err := e.Repo.GetRequest(ctx, strings.TrimSpace(id))
	if err != nil {
		return Request{}, fmt.Errorf("get cab request %s: %w", id, err)
	}
	return e.settle(ctx, req, correlationID)
}

// LatestRequest returns the most recent request for (candidate, ring), if any.
func (e *Engine) LatestRequest(ctx context.Context, candidateID, ring, correlationID string) (Request, bool, error) {
	req, ok, err := e.Repo.LatestRequest(ctx, strings.TrimSpace(candidateID), strings.TrimSpace(ring))
	if err != nil {
		return Request{}, false, fmt.Errorf("latest cab request for candidate %q ring %q: %w", candidateID, ring, err)
	}
	if !ok {
		return Request{}, false, nil
	}
	req, err = e.settle(ctx, req, correlationID)
	return req, err == nil, err
}

func (e *Engine) settle(ctx context.Context, req Request, correlationID string) (Request, error) {
	if req.Status != StatusExceptionRequired {
		return req, nil
	}
	x, ok, err := e.Repo.ExceptionForRequest(ctx, req.ID)
	if err != nil {
		return Request{}, fmt.Errorf("load exception for request %s: %w", req.ID, err)
	}
	now := e.now()
	if !ok || x.Status != ExceptionPending || !x.Expired(now) {
		return req, nil
	}

	t := Transition{
		RequestID: req.ID,
		From:      StatusExceptionRequired,
		To:        StatusExpired,
		At:        now,
		Decision: Decision{
			ID:            e.newID(),
			RequestID:     req.ID,
			ExceptionID:   x.ID,
			CandidateID:   req.CandidateID,
			Kind:          DecisionExpired,
			Reason:        "exception expired at " + x.ExpiresAt.UTC().Format(time.RFC3339) + " before review",
			Actor:         SystemActor,
			CorrelationID: correlationID,
			CreatedAt:     now,
		},
		Exception: &ExceptionTransition{ExceptionID: x.ID, From: ExceptionPending, To: ExceptionExpired},
	}
	if err := e.Repo.DecideRequest(ctx, t); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			// Settled or decided by a concurrent call.
			return e.Repo.GetRequest(ctx, req.ID)
		}
		return Request{}, fmt.Errorf("expire request %s: %w", req.ID, err)
	}
	e.transitioned(t, req, correlationID)
	req.Status = StatusExpired
	req.DecidedAt = &now
	return req, nil
}

// ExpireLapsed moves every EXCEPTION_REQUIRED request whose pending
// exception has lapsed to EXPIRED and returns how many it moved.
func (e *Engine) ExpireLapsed(ctx context.Context, correlationID string) (int, error) {
	open, err := e.Repo.RequestsByStatus(ctx, StatusExceptionRequired)
	if err != nil {
		return 0, fmt.Errorf("list requests awaiting exceptions: %w", err)
	}
	var expired int
	for _, req := range open {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		settled, err := e.settle(ctx, req, correlationID)
		if err != nil {
			return expired, err
		}
		if settled.Status == StatusExpired {
			expired++
		}
	}
	return expired, nil
}

type ApproveInput struct {
	RequestID     string
	Approver      string
	Conditions    []string
	CorrelationID string
}

// Approve decides an UNDER_REVIEW request. Non-empty conditions make the
// outcome CONDITIONAL.
func (e *Engine) Approve(ctx context.Context, in ApproveInput) (Decision, error) {
	d, err := e.approve(ctx, in)
	return d, e.observe("approve", in.CorrelationID, err)
}

func (e *Engine) approve(ctx context.Context, in ApproveInput) (Decision, error) {
	const op = "approve"
	approver := strings.TrimSpace(in.Approver)
	if approver == "" {
		return Decision{}, &Error{Err: ErrMissingActor, Op: op, RequestID: in.RequestID, Detail: "approver"}
	}
	req, err := e.GetRequest(ctx, in.RequestID, in.CorrelationID)
	if err != nil {
		return Decision{}, err
	}
	if req.Status != StatusUnderReview {
		return Decision{}, requestError(ErrInvalidTransition, op, req, "approval requires "+string(StatusUnderReview))
	}
	if sameActor(approver, req.Requester) {
		return Decision{}, requestError(ErrSameActorViolation, op, req, fmt.Sprintf("approver %q is the requester", approver))
	}
	if !e.hasRole(approver, RoleCABMember) {
		return Decision{}, requestError(ErrUnauthorizedActor, op, req, fmt.Sprintf("%q is not a %s", approver, RoleCABMember))
	}

	conditions := cleanList(in.Conditions)
	to, kind := StatusApproved, DecisionApproved
	if len(conditions) > 0 {
		to, kind = StatusConditional, DecisionConditional
	}
	now := e.now()
	t := Transition{
		RequestID: req.ID,
		From:      req.Status,
		To:        to,
		At:        now,
		Decision: Decision{
			ID:            e.newID(),
			RequestID:     req.ID,
			CandidateID:   req.CandidateID,
			Kind:          kind,
			Conditions:    conditions,
			Actor:         approver,
			CorrelationID: in.CorrelationID,
			CreatedAt:     now,
		},
	}
	if err := e.apply(ctx, op, req, t, in.CorrelationID); err != nil {
		return Decision{}, err
	}
	return t.Decision, nil
}

type RejectInput struct {
	RequestID     string
	Approver      string
	Reason        string
	CorrelationID string
}

// Reject decides an UNDER_REVIEW request. The reason is mandatory.
func (e *Engine) Reject(ctx context.Context, in RejectInput) (Decision, error) {
	d, err := e.reject(ctx, in)
	return d, e.observe("reject", in.CorrelationID, err)
}

func (e *Engine) reject(ctx context.Context, in RejectInput) (Decision, error) {
	const op = "reject"
	approver := strings.TrimSpace(in.Approver)
	reason := strings.TrimSpace(in.Reason)
	if approver == "" {
		return Decision{}, &Error{Err: ErrMissingActor, Op: op, RequestID: in.RequestID, Detail: "approver"}
	}
	if reason == "" {
		return Decision{}, &Error{Err: ErrMissingReason, Op: op, RequestID: in.RequestID}
	}
	req, err := e.GetRequest(ctx, in.RequestID, in.CorrelationID)
	if err != nil {
		return Decision{}, err
	}
	if req.Status != StatusUnderReview {
		return Decision{}, requestError(ErrInvalidTransition, op, req, "rejection requires "+string(StatusUnderReview))
	}
	if !e.hasRole(approver, RoleCABMember) {
		return Decision{}, requestError(ErrUnauthorizedActor, op, req, fmt.Sprintf("%q is not a %s", approver, RoleCABMember))
	}

	now := e.now()
	t := Transition{
		RequestID: req.ID,
		From:      req.Status,
		To:        StatusRejected,
		At:        now,
		Decision: Decision{
			ID:            e.newID(),
			RequestID:     req.ID,
			CandidateID:   req.CandidateID,
			Kind:          DecisionRejected,
			Reason:        reason,
			Actor:         approver,
			CorrelationID: in.CorrelationID,
			CreatedAt:     now,
		},
	}
	if err := e.apply(ctx, op, req, t, in.CorrelationID); err != nil {
		return Decision{}, err
	}
	return t.Decision, nil
}

type ExceptionInput struct {
	RequestID  string
	ExpiryDays int
	Controls   []string

	// CreatedBy defaults to the request's requester.
	CreatedBy     string
	CorrelationID string
}

// CreateException opens the only exception a request can have.
func (e *Engine) CreateException(ctx context.Context, in ExceptionInput) (Exception, error) {
	x, err := e.createException(ctx, in)
	return x, e.observe("create_exception", in.CorrelationID, err)
}

func (e *Engine) createException(ctx context.Context, in ExceptionInput) (Exception, error) {
	const op = "create_exception"
	if in.ExpiryDays < MinExpiryDays || in.ExpiryDays > MaxExpiryDays {
		return Exception{}, &Error{Err: ErrInvalidExpiry, Op: op, RequestID: in.RequestID, Detail: fmt.Sprintf("got %d days", in.ExpiryDays)}
	}
	controls := cleanList(in.Controls)
	if len(controls) == 0 {
		return Exception{}, &Error{Err: ErrNoCompensatingControls, Op: op, RequestID: in.RequestID}
	}
	req, err := e.GetRequest(ctx, in.RequestID, in.CorrelationID)
	if err != nil {
		return Exception{}, err
	}
	if req.Status != StatusExceptionRequired {
		return Exception{}, requestError(ErrInvalidTransition, op, req, "exceptions require "+string(StatusExceptionRequired))
	}
	createdBy := strings.TrimSpace(in.CreatedBy)
	if createdBy == "" {
		createdBy = req.Requester
	}

	now := e.now()
	x := Exception{
		ID:          e.newID(),
		RequestID:   req.ID,
		CandidateID: req.CandidateID,
		Controls:    controls,
		CreatedBy:   createdBy,
		ExpiresAt:   now.Add(time.Duration(in.ExpiryDays) * 24 * time.Hour),
		Status:      ExceptionPending,
		CreatedAt:   now,
	}
	if err := e.Repo.CreateException(ctx, x); err != nil {
		if errors.Is(err, ErrExceptionExists) {
			return Exception{}, requestError(err, op, req, "")
		}
		return Exception{}, fmt.Errorf("cab %s: request %s: %w", op, req.ID, err)
	}

	e.logger().Info("cab exception created",
		"correlation_id", in.CorrelationID,
		"candidate_id", req.CandidateID,
		"request_id", req.ID,
		"exception_id", x.ID,
		"ring", req.Ring,
		"expires_at", x.ExpiresAt,
		"created_by", createdBy,
	)
	return x, nil
}

// GetException loads an exception as stored; use EffectiveStatus for its
// live state.
func (e *Engine) GetException(ctx context.Context, id string) (Exception, error) {
	x, err := e.Repo.GetException(ctx, strings.TrimSpace(id))
	if err != nil {
		return Exception{}, fmt.Errorf("get cab exception %s: %w", id, err)
	}
	return x, nil
}

type ExceptionDecisionInput struct {
	ExceptionID   string
	Reviewer      string
	Reason        string
	CorrelationID string
}

// ApproveException approves a pending, unexpired exception and moves its
// request to APPROVED_VIA_EXCEPTION.
func (e *Engine) ApproveException(ctx context.Context, in ExceptionDecisionInput) (Decision, error) {
	d, err := e.decideException(ctx, "approve_exception", in, true)
	return d, e.observe("approve_exception", in.CorrelationID, err)
}

// RejectException rejects a pending exception and its request. The reason is
// mandatory.
func (e *Engine) RejectException(ctx context.Context, in ExceptionDecisionInput) (Decision, error) {
	d, err := e.decideException(ctx, "reject_exception", in, false)
	return d, e.observe("reject_exception", in.CorrelationID, err)
}

func (e *Engine) decideException(ctx context.Context, op string, in ExceptionDecisionInput, approve bool) (Decision, error) {
	reviewer := strings.TrimSpace(in.Reviewer)
	reason := strings.TrimSpace(in.Reason)
	if reviewer == "" {
		return Decision{}, &Error{Err: ErrMissingActor, Op: op, ExceptionID: in.ExceptionID, Detail: "security reviewer"}
	}
	if !approve && reason == "" {
		return Decision{}, &Error{Err: ErrMissingReason, Op: op, ExceptionID: in.ExceptionID}
	}

	x, err := e.GetException(ctx, in.ExceptionID)
	if err != nil {
		return Decision{}, err
	}
	req, err := e.Repo.GetRequest(ctx, x.RequestID)
	if err != nil {
		return Decision{}, fmt.Errorf("cab %s: exception %s: %w", op, x.ID, err)
	}
	fail := func(sentinel error, detail string) error {
		cerr := requestError(sentinel, op, req, detail)
		cerr.ExceptionID = x.ID
		return cerr
	}

	if x.Status != ExceptionPending {
		return Decision{}, fail(ErrInvalidTransition, "exception is "+string(x.Status))
	}
	now := e.now()
	if x.Expired(now) {
		if _, serr := e.settle(ctx, req, in.CorrelationID); serr != nil {
			e.logger().Warn("expire lapsed exception failed",
				"correlation_id", in.CorrelationID,
				"request_id", req.ID,
				"exception_id", x.ID,
				"error", serr,
			)
		}
		return Decision{}, fail(ErrExceptionExpired, "expired at "+x.ExpiresAt.UTC().Format(time.RFC3339))
	}
	if sameActor(reviewer, req.Requester) {
		return Decision{}, fail(ErrSameActorViolation, fmt.Sprintf("reviewer %q requested the change", reviewer))
	}
	if sameActor(reviewer, x.CreatedBy) {
		return Decision{}, fail(ErrSameActorViolation, fmt.Sprintf("reviewer %q created the exception", reviewer))
	}
	if !e.hasRole(reviewer, RoleSecurityReviewer) {
		return Decision{}, fail(ErrUnauthorizedActor, fmt.Sprintf("%q is not a %s", reviewer, RoleSecurityReviewer))
	}
	if req.Status != StatusExceptionRequired {
		return Decision{}, fail(ErrInvalidTransition, "exception decisions require "+string(StatusExceptionRequired))
	}

	t := Transition{
		RequestID: req.ID,
		From:      req.Status,
		At:        now,
		Decision: Decision{
			ID:            e.newID(),
			RequestID:     req.ID,
			ExceptionID:   x.ID,
			CandidateID:   req.CandidateID,
			Reason:        reason,
			Actor:         reviewer,
			CorrelationID: in.CorrelationID,
			CreatedAt:     now,
		},
		Exception: &ExceptionTransition{ExceptionID: x.ID, From: ExceptionPending, Reviewer: reviewer, Reason: reason},
	}
	if approve {
		expires := x.ExpiresAt
		t.To = StatusApprovedViaException
		t.ExceptionExpiresAt = &expires
		t.Decision.Kind = DecisionApprovedViaException
		t.Decision.Conditions = append([]string(nil), x.Controls...)
		t.Exception.To = ExceptionApproved
	} else {
		t.To = StatusRejected
		t.Decision.Kind = DecisionRejected
		t.Exception.To = ExceptionRejected
	}

	if err := e.apply(ctx, op, req, t, in.CorrelationID); err != nil {
		var cerr *Error
		if errors.As(err, &cerr) {
			cerr.ExceptionID = x.ID
		}
		return Decision{}, err
	}
	return t.Decision, nil
}

// History is every request, exception and decision recorded for a candidate.
type History struct {
	Requests   []Request   `json:"requests"`
	Exceptions []Exception `json:"exceptions"`
	Decisions  []Decision  `json:"decisions"`
}

func (e *Engine) History(ctx context.Context, candidateID string) (History, error) {
	candidateID = strings.TrimSpace(candidateID)
	var h History
	var err error
	if h.Requests, err = e.Repo.ListRequests(ctx, candidateID); err != nil {
		return History{}, fmt.Errorf("list cab requests for candidate %q: %w", candidateID, err)
	}
	if h.Exceptions, err = e.Repo.ListExceptions(ctx, candidateID); err != nil {
		return History{}, fmt.Errorf("list cab exceptions for candidate %q: %w", candidateID, err)
	}
	if h.Decisions, err = e.Repo.ListDecisions(ctx, candidateID); err != nil {
		return History{}, fmt.Errorf("list cab decisions for candidate %q: %w", candidateID, err)
	}
	return h, nil
}

func (e *Engine) apply(ctx context.Context, op string, req Request, t Transition, correlationID string) error {
	if !CanTransition(t.From, t.To) {
		return requestError(ErrInvalidTransition, op, req, fmt.Sprintf("%s to %s", t.From, t.To))
	}
	if err := e.Repo.DecideRequest(ctx, t); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			if current, gerr := e.Repo.GetRequest(ctx, req.ID); gerr == nil {
				req = current
			}
			return requestError(ErrInvalidTransition, op, req, "request was decided concurrently")
		}
		return fmt.Errorf("cab %s: request %s: %w", op, req.ID, err)
	}
	e.transitioned(t, req, correlationID)
	return nil
}

func (e *Engine) transitioned(t Transition, req Request, correlationID string) {
	metrics.CABTransitionsTotal.WithLabelValues(string(t.From), string(t.To)).Inc()
	attrs := []any{
		"correlation_id", correlationID,
		"candidate_id", req.CandidateID,
		"request_id", req.ID,
		"ring", req.Ring,
		"from", t.From,
		"to", t.To,
		"actor", t.Decision.Actor,
		"decision_id", t.Decision.ID,
	}
	if t.Exception != nil {
		attrs = append(attrs, "exception_id", t.Exception.ExceptionID)
	}
	e.logger().Info("cab request decided", attrs...)
}

func (e *Engine) observe(op, correlationID string, err error) error {
	if err == nil {
		return nil
	}
	class := faults.ClassOf(err)
	metrics.CABOperationFailuresTotal.WithLabelValues(op, string(class)).Inc()
	level := slog.LevelDebug
	if class == faults.ClassInternal {
		level = slog.LevelError
	}
	e.logger().Log(context.Background(), level, "cab operation failed",
		"correlation_id", correlationID,
		"operation", op,
		"class", class,
		"error", err,
	)
	return err
}

func (e *Engine) hasRole(actor string, role Role) bool {
	if e.Roles == nil {
		return true
	}
	return e.Roles.HasRole(actor, role)
}

func requestError(err error, op string, req Request, detail string) *Error {
	return &Error{
		Err:         err,
		Op:          op,
		RequestID:   req.ID,
		CandidateID: req.CandidateID,
		Ring:        req.Ring,
		Status:      req.Status,
		Detail:      detail,
	}
}

func cleanList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func ringNames(m risk.Model) string {
	names := make([]string, 0, len(m.Rings))
	for _, r := range m.Rings {
		names = append(names, r.Name)
	}
	return strings.Join(names, ", ")
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC().Truncate(time.Microsecond)
	}
	return time.Now().UTC().Truncate(time.Microsecond)
}

func (e *Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
