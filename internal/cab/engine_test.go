package cab_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ringgate/ringgate/internal/cab"
	"github.com/ringgate/ringgate/internal/faults"
	"github.com/ringgate/ringgate/internal/risk"
	"github.com/ringgate/ringgate/internal/store/memory"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	engine *cab.Engine
	store  *memory.Store
	clock  *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := risk.NewRegistry()
	if err := risk.LoadBuiltin(reg); err != nil {
		t.Fatalf("LoadBuiltin() error = %v", err)
	}
	store := memory.New()
	c := &clock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	e := cab.NewEngine(store, reg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.Now = c.Now
	return &fixture{engine: e, store: store, clock: c}
}

func breakdown(candidateID string, total int) risk.Breakdown {
	return risk.Breakdown{
		ID:           "bd-" + candidateID,
		EvidenceID:   "ev-" + candidateID,
		CandidateID:  candidateID,
		ModelVersion: "2026.1",
		Total:        total,
	}
}

func (f *fixture) submit(t *testing.T, candidateID string, total int, ring string) cab.Request {
	t.Helper()
	req, err := f.engine.Submit(context.Background(), cab.SubmitInput{
		Breakdown:     breakdown(candidateID, total),
		Ring:          ring,
		Requester:     "alice@example.com",
		CorrelationID: "corr-" + candidateID,
	})
	if err != nil {
		t.Fatalf("Submit(%s, %d) error = %v", candidateID, total, err)
	}
	return req
}

func wantErr(t *testing.T, err, sentinel error, class faults.Class) {
	t.Helper()
	if !errors.Is(err, sentinel) {
		t.Fatalf("error = %v, want %v", err, sentinel)
	}
	if got := faults.ClassOf(err); got != class {
		t.Fatalf("ClassOf(%v) = %q, want %q", err, got, class)
	}
}

func TestSubmit_RoutesByScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		total int
		want  cab.Status
	}{
		{0, cab.StatusAutoApproved},
		{50, cab.StatusAutoApproved},
		{51, cab.StatusUnderReview},
		{75, cab.StatusUnderReview},
		{76, cab.StatusExceptionRequired},
		{100, cab.StatusExceptionRequired},
	}

	f := newFixture(t)
	for _, tc := range tests {
		candidate := fmt.Sprintf("cand-%d", tc.total)
		req := f.submit(t, candidate, tc.total, "canary")
		if req.Status != tc.want {
			t.Fatalf("Submit(total=%d).Status = %s, want %s", tc.total, req.Status, tc.want)
		}

		h, err := f.engine.History(context.Background(), candidate)
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if tc.want == cab.StatusAutoApproved {
			if len(h.Decisions) != 1 || h.Decisions[0].Actor != cab.SystemActor || h.Decisions[0].Kind != cab.DecisionApproved {
				t.Fatalf("auto-approval decisions = %+v, want one system approval", h.Decisions)
			}
			if req.DecidedAt == nil {
				t.Fatal("auto-approved request has no decision time")
			}
		} else if len(h.Decisions) != 0 {
			t.Fatalf("decisions for %s = %+v, want none", tc.want, h.Decisions)
		}
	}
}

func TestSubmit_HardOverrides(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	privileged, err := f.engine.Submit(context.Background(), cab.SubmitInput{
		Breakdown:         breakdown("cand-priv", 5),
		Ring:              "canary",
		Requester:         "alice@example.com",
		PrivilegedTooling: true,
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if privileged.Status != cab.StatusUnderReview || privileged.Override != cab.OverridePrivilegedTooling {
		t.Fatalf("privileged request = %s/%q, want UNDER_REVIEW/privileged_tooling", privileged.Status, privileged.Override)
	}

	global := f.submit(t, "cand-global", 5, "global")
	if global.Status != cab.StatusUnderReview || global.Override != cab.OverrideBusinessCritical {
		t.Fatalf("global request = %s/%q, want UNDER_REVIEW/business_critical_ring", global.Status, global.Override)
	}
}

func TestSubmit_DuplicatePendingRequest(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	first := f.submit(t, "cand-1", 60, "pilot")

	_, err := f.engine.Submit(context.Background(), cab.SubmitInput{
		Breakdown: breakdown("cand-1", 60),
		Ring:      "pilot",
		Requester: "alice@example.com",
	})
	wantErr(t, err, cab.ErrDuplicatePendingRequest, faults.ClassStateConflict)

	var cerr *cab.Error
	if !errors.As(err, &cerr) || cerr.CandidateID != "cand-1" || cerr.Ring != "pilot" {
		t.Fatalf("error = %#v, want candidate and ring context", err)
	}

	f.submit(t, "cand-1", 60, "canary")

	if _, err := f.engine.Reject(context.Background(), cab.RejectInput{RequestID: first.ID, Approver: "bob@example.com", Reason: "flaky installer"}); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if again := f.submit(t, "cand-1", 60, "pilot"); again.ID == first.ID {
		t.Fatal("superseding request reused the terminal request id")
	}
}

func TestSubmit_ValidatesInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.engine.Submit(context.Background(), cab.SubmitInput{Breakdown: breakdown("cand-1", 10), Ring: "moon", Requester: "alice"})
	wantErr(t, err, cab.ErrUnknownRing, faults.ClassValidation)

	_, err = f.engine.Submit(context.Background(), cab.SubmitInput{Breakdown: breakdown("cand-1", 10), Ring: "lab"})
	wantErr(t, err, cab.ErrMissingActor, faults.ClassValidation)

	_, err = f.engine.Submit(context.Background(), cab.SubmitInput{Breakdown: risk.Breakdown{CandidateID: "cand-1"}, Ring: "lab", Requester: "alice"})
	wantErr(t, err, cab.ErrInvalidBreakdown, faults.ClassValidation)

	b := breakdown("cand-1", 10)
	b.ModelVersion = "1999.9"
	_, err = f.engine.Submit(context.Background(), cab.SubmitInput{Breakdown: b, Ring: "lab", Requester: "alice"})
	wantErr(t, err, risk.ErrUnknownModelVersion, faults.ClassConfiguration)
}

func TestApprove(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	req := f.submit(t, "cand-1", 60, "pilot")
	_, err := f.engine.Approve(ctx, cab.ApproveInput{RequestID: req.ID, Approver: " Alice@Example.com "})
	wantErr(t, err, cab.ErrSameActorViolation, faults.ClassStateConflict)

	d, err := f.engine.Approve(ctx, cab.ApproveInput{RequestID: req.ID, Approver: "bob@example.com", CorrelationID: "corr-approve"})
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if d.Kind != cab.DecisionApproved || d.Actor != "bob@example.com" || d.CorrelationID != "corr-approve" {
		t.Fatalf("Approve() decision = %+v", d)
	}
	got, err := f.engine.GetRequest(ctx, req.ID, "")
	if err != nil {
		t.Fatalf("GetRequest() error = %v", err)
	}
	if got.Status != cab.StatusApproved || got.DecidedAt == nil {
		t.Fatalf("request after approve = %+v", got)
	}

	_, err = f.engine.Approve(ctx, cab.ApproveInput{RequestID: req.ID, Approver: "carol@example.com"})
	wantErr(t, err, cab.ErrInvalidTransition, faults.ClassStateConflict)
}

func TestApprove_WithConditionsIsConditional(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	req := f.submit(t, "cand-1", 70, "department")
	d, err := f.engine.Approve(context.Background(), cab.ApproveInput{
		RequestID:  req.ID,
		Approver:   "bob@example.com",
		Conditions: []string{"deploy outside business hours", " "},
	})
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if d.Kind != cab.DecisionConditional || len(d.Conditions) != 1 {
		t.Fatalf("decision = %+v, want one condition", d)
	}
	got, _ := f.engine.GetRequest(context.Background(), req.ID, "")
	if got.Status != cab.StatusConditional {
		t.Fatalf("Status = %s, want CONDITIONAL", got.Status)
	}
}

func TestApprove_NoOrdinaryPathForExceptionRequired(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	req := f.submit(t, "cand-1", 90, "canary")
	_, err := f.engine.Approve(context.Background(), cab.ApproveInput{RequestID: req.ID, Approver: "bob@example.com"})
	wantErr(t, err, cab.ErrInvalidTransition, faults.ClassStateConflict)
}

func TestReject_ThenApproveFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t, "cand-1", 60, "pilot")

	_, err := f.engine.Reject(ctx, cab.RejectInput{RequestID: req.ID, Approver: "member-a", Reason: "  "})
	wantErr(t, err, cab.ErrMissingReason, faults.ClassValidation)

	d, err := f.engine.Reject(ctx, cab.RejectInput{RequestID: req.ID, Approver: "member-a", Reason: "insufficient test coverage"})
	if err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if d.Actor != "member-a" || d.Reason != "insufficient test coverage" || d.Kind != cab.DecisionRejected {
		t.Fatalf("Reject() decision = %+v", d)
	}

	_, err = f.engine.Approve(ctx, cab.ApproveInput{RequestID: req.ID, Approver: "member-b"})
	wantErr(t, err, cab.ErrInvalidTransition, faults.ClassStateConflict)
	var cerr *cab.Error
	if !errors.As(err, &cerr) || cerr.Status != cab.StatusRejected || cerr.RequestID != req.ID {
		t.Fatalf("error = %v, want request id and REJECTED status", err)
	}

	h, err := f.engine.History(ctx, "cand-1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(h.Decisions) != 1 {
		t.Fatalf("decisions = %d, want exactly one", len(h.Decisions))
	}
}

func TestConcurrentApproveAndReject_ExactlyOneWins(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		req := f.submit(t, fmt.Sprintf("cand-%d", i), 60, "pilot")

		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, errs[0] = f.engine.Approve(ctx, cab.ApproveInput{RequestID: req.ID, Approver: "member-b"})
		}()
		go func() {
			defer wg.Done()
			_, errs[1] = f.engine.Reject(ctx, cab.RejectInput{RequestID: req.ID, Approver: "member-a", Reason: "not yet"})
		}()
		wg.Wait()

		var wins int
		for _, err := range errs {
			switch {
			case err == nil:
				wins++
			case !errors.Is(err, cab.ErrInvalidTransition):
				t.Fatalf("loser error = %v, want ErrInvalidTransition", err)
			}
		}
		if wins != 1 {
			t.Fatalf("request %s: %d winners, want exactly 1 (errs=%v)", req.ID, wins, errs)
		}

		h, _ := f.engine.History(ctx, req.CandidateID)
		if len(h.Decisions) != 1 {
			t.Fatalf("request %s has %d decisions, want 1", req.ID, len(h.Decisions))
		}
	}
}

func TestCreateException_ExpiryBoundaries(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	for _, days := range []int{0, 91, -3} {
		req := f.submit(t, fmt.Sprintf("cand-bad-%d", days), 90, "canary")
		_, err := f.engine.CreateException(ctx, cab.ExceptionInput{RequestID: req.ID, ExpiryDays: days, Controls: []string{"manual verification"}})
		wantErr(t, err, cab.ErrInvalidExpiry, faults.ClassValidation)
	}
	for _, days := range []int{1, 90} {
		req := f.submit(t, fmt.Sprintf("cand-ok-%d", days), 90, "canary")
		x, err := f.engine.CreateException(ctx, cab.ExceptionInput{RequestID: req.ID, ExpiryDays: days, Controls: []string{"manual verification"}})
		if err != nil {
			t.Fatalf("CreateException(%d days) error = %v", days, err)
		}
		if want := f.clock.Now().Add(time.Duration(days) * 24 * time.Hour); !x.ExpiresAt.Equal(want) {
			t.Fatalf("ExpiresAt = %v, want %v", x.ExpiresAt, want)
		}
		if x.CreatedBy != "alice@example.com" || x.Status != cab.ExceptionPending {
			t.Fatalf("exception = %+v", x)
		}
	}
}

func TestCreateException_Preconditions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	high := f.submit(t, "cand-high", 90, "canary")
	_, err := f.engine.CreateException(ctx, cab.ExceptionInput{RequestID: high.ID, ExpiryDays: 30, Controls: []string{" ", ""}})
	wantErr(t, err, cab.ErrNoCompensatingControls, faults.ClassValidation)

	review := f.submit(t, "cand-review", 60, "canary")
	_, err = f.engine.CreateException(ctx, cab.ExceptionInput{RequestID: review.ID, ExpiryDays: 30, Controls: []string{"pager coverage"}})
	wantErr(t, err, cab.ErrInvalidTransition, faults.ClassStateConflict)

	if _, err := f.engine.CreateException(ctx, cab.ExceptionInput{RequestID: high.ID, ExpiryDays: 30, Controls: []string{"pager coverage"}}); err != nil {
		t.Fatalf("CreateException() error = %v", err)
	}
	_, err = f.engine.CreateException(ctx, cab.ExceptionInput{RequestID: high.ID, ExpiryDays: 10, Controls: []string{"second try"}})
	wantErr(t, err, cab.ErrExceptionExists, faults.ClassStateConflict)

	_, err = f.engine.CreateException(ctx, cab.ExceptionInput{RequestID: "missing", ExpiryDays: 10, Controls: []string{"x"}})
	if faults.ClassOf(err) != faults.ClassNotFound {
		t.Fatalf("CreateException(missing) class = %q, want not_found", faults.ClassOf(err))
	}
}

func TestException_ApprovedViaException(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	req := f.submit(t, "cand-crit", 81, "canary")
	if req.Status != cab.StatusExceptionRequired {
		t.Fatalf("Status = %s, want EXCEPTION_REQUIRED", req.Status)
	}
	x, err := f.engine.CreateException(ctx, cab.ExceptionInput{
		RequestID:  req.ID,
		ExpiryDays: 30,
		Controls:   []string{"manual verification"},
		CreatedBy:  "carol@example.com",
	})
	if err != nil {
		t.Fatalf("CreateException() error = %v", err)
	}

	_, err = f.engine.ApproveException(ctx, cab.ExceptionDecisionInput{ExceptionID: x.ID, Reviewer: "alice@example.com"})
	wantErr(t, err, cab.ErrSameActorViolation, faults.ClassStateConflict)
	_, err = f.engine.ApproveException(ctx, cab.ExceptionDecisionInput{ExceptionID: x.ID, Reviewer: "CAROL@example.com"})
	wantErr(t, err, cab.ErrSameActorViolation, faults.ClassStateConflict)

	d, err := f.engine.ApproveException(ctx, cab.ExceptionDecisionInput{ExceptionID: x.ID, Reviewer: "sec-dan@example.com", CorrelationID: "corr-x"})
	if err != nil {
		t.Fatalf("ApproveException() error = %v", err)
	}
	if d.Kind != cab.DecisionApprovedViaException || d.ExceptionID != x.ID || d.Actor != "sec-dan@example.com" {
		t.Fatalf("decision = %+v", d)
	}
	if len(d.Conditions) != 1 || d.Conditions[0] != "manual verification" {
		t.Fatalf("decision conditions = %v, want the compensating controls", d.Conditions)
	}

	got, err := f.engine.GetRequest(ctx, req.ID, "")
	if err != nil {
		t.Fatalf("GetRequest() error = %v", err)
	}
	if got.Status != cab.StatusApprovedViaException {
		t.Fatalf("Status = %s, want APPROVED_VIA_EXCEPTION", got.Status)
	}
	if got.EffectiveStatus(f.clock.Now()) != cab.StatusApprovedViaException {
		t.Fatal("approval should be effective before expiry")
	}

	_, err = f.engine.ApproveException(ctx, cab.ExceptionDecisionInput{ExceptionID: x.ID, Reviewer: "sec-erin@example.com"})
	wantErr(t, err, cab.ErrInvalidTransition, faults.ClassStateConflict)

	f.clock.Advance(30 * 24 * time.Hour)
	if got.EffectiveStatus(f.clock.Now()) != cab.StatusExpired {
		t.Fatal("approval via exception must lapse at expiry")
	}
	stored, _ := f.engine.GetException(ctx, x.ID)
	if stored.Status != cab.ExceptionApproved || stored.EffectiveStatus(f.clock.Now()) != cab.ExceptionExpired {
		t.Fatalf("exception stored=%s effective=%s", stored.Status, stored.EffectiveStatus(f.clock.Now()))
	}
}

func TestApproveException_ExpiryIsCheckedLive(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	req := f.submit(t, "cand-crit", 95, "lab")
	x, err := f.engine.CreateException(ctx, cab.ExceptionInput{RequestID: req.ID, ExpiryDays: 1, Controls: []string{"kill switch"}})
	if err != nil {
		t.Fatalf("CreateException() error = %v", err)
	}

	f.clock.Advance(24 * time.Hour)
	_, err = f.engine.ApproveException(ctx, cab.ExceptionDecisionInput{ExceptionID: x.ID, Reviewer: "sec-dan"})
	wantErr(t, err, cab.ErrExceptionExpired, faults.ClassStateConflict)

	got, err := f.engine.GetRequest(ctx, req.ID, "corr-read")
	if err != nil {
		t.Fatalf("GetRequest() error = %v", err)
	}
	if got.Status != cab.StatusExpired {
		t.Fatalf("Status = %s, want EXPIRED", got.Status)
	}
	h, _ := f.engine.History(ctx, "cand-crit")
	if len(h.Decisions) != 1 || h.Decisions[0].Kind != cab.DecisionExpired || h.Decisions[0].Actor != cab.SystemActor {
		t.Fatalf("decisions = %+v, want one system expiry", h.Decisions)
	}

	f.submit(t, "cand-crit", 95, "lab")
}

func TestExpireLapsed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	lapsing := f.submit(t, "cand-a", 90, "lab")
	if _, err := f.engine.CreateException(ctx, cab.ExceptionInput{RequestID: lapsing.ID, ExpiryDays: 1, Controls: []string{"kill switch"}}); err != nil {
		t.Fatalf("CreateException() error = %v", err)
	}
	lasting := f.submit(t, "cand-b", 90, "lab")
	if _, err := f.engine.CreateException(ctx, cab.ExceptionInput{RequestID: lasting.ID, ExpiryDays: 5, Controls: []string{"canary only"}}); err != nil {
		t.Fatalf("CreateException() error = %v", err)
	}
	bare := f.submit(t, "cand-c", 90, "lab")

	f.clock.Advance(48 * time.Hour)
	n, err := f.engine.ExpireLapsed(ctx, "corr-sweep")
	if err != nil {
		t.Fatalf("ExpireLapsed() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("ExpireLapsed() = %d, want 1", n)
	}

	want := map[string]cab.Status{
		lapsing.ID: cab.StatusExpired,
		lasting.ID: cab.StatusExceptionRequired,
		bare.ID:    cab.StatusExceptionRequired,
	}
	for id, status := range want {
		stored, err := f.store.GetRequest(ctx, id)
		if err != nil {
			t.Fatalf("GetRequest(%s) error = %v", id, err)
		}
		if stored.Status != status {
			t.Fatalf("request %s stored status = %s, want %s", id, stored.Status, status)
		}
	}

	h, _ := f.engine.History(ctx, "cand-a")
	if len(h.Decisions) != 1 || h.Decisions[0].CorrelationID != "corr-sweep" {
		t.Fatalf("decisions = %+v, want one expiry tagged corr-sweep", h.Decisions)
	}

	if n, err := f.engine.ExpireLapsed(ctx, "corr-sweep-2"); err != nil || n != 0 {
		t.Fatalf("second ExpireLapsed() = %d, %v; want 0, nil", n, err)
	}
}

func TestRejectException(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	req := f.submit(t, "cand-crit", 88, "pilot")
	x, err := f.engine.CreateException(ctx, cab.ExceptionInput{RequestID: req.ID, ExpiryDays: 14, Controls: []string{"staged to lab only"}})
	if err != nil {
		t.Fatalf("CreateException() error = %v", err)
	}

	_, err = f.engine.RejectException(ctx, cab.ExceptionDecisionInput{ExceptionID: x.ID, Reviewer: "sec-dan"})
	wantErr(t, err, cab.ErrMissingReason, faults.ClassValidation)

	d, err := f.engine.RejectException(ctx, cab.ExceptionDecisionInput{ExceptionID: x.ID, Reviewer: "sec-dan", Reason: "controls do not cover the CVE"})
	if err != nil {
		t.Fatalf("RejectException() error = %v", err)
	}
	if d.Kind != cab.DecisionRejected || d.Reason != "controls do not cover the CVE" {
		t.Fatalf("decision = %+v", d)
	}
	got, _ := f.engine.GetRequest(ctx, req.ID, "")
	stored, _ := f.engine.GetException(ctx, x.ID)
	if got.Status != cab.StatusRejected || stored.Status != cab.ExceptionRejected || stored.Reviewer != "sec-dan" {
		t.Fatalf("request=%s exception=%s reviewer=%q", got.Status, stored.Status, stored.Reviewer)
	}
}

func TestRolesAreEnforcedWhenConfigured(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.engine.Roles = cab.NewStaticRoles([]string{"bob"}, []string{"sec-dan"})
	ctx := context.Background()

	review := f.submit(t, "cand-review", 60, "pilot")
	_, err := f.engine.Approve(ctx, cab.ApproveInput{RequestID: review.ID, Approver: "mallory"})
	wantErr(t, err, cab.ErrUnauthorizedActor, faults.ClassStateConflict)
	if _, err := f.engine.Approve(ctx, cab.ApproveInput{RequestID: review.ID, Approver: "bob"}); err != nil {
		t.Fatalf("Approve(bob) error = %v", err)
	}

	high := f.submit(t, "cand-high", 99, "pilot")
	x, err := f.engine.CreateException(ctx, cab.ExceptionInput{RequestID: high.ID, ExpiryDays: 7, Controls: []string{"canary only"}})
	if err != nil {
		t.Fatalf("CreateException() error = %v", err)
	}
	_, err = f.engine.ApproveException(ctx, cab.ExceptionDecisionInput{ExceptionID: x.ID, Reviewer: "bob"})
	wantErr(t, err, cab.ErrUnauthorizedActor, faults.ClassStateConflict)
	if _, err := f.engine.ApproveException(ctx, cab.ExceptionDecisionInput{ExceptionID: x.ID, Reviewer: "sec-dan"}); err != nil {
		t.Fatalf("ApproveException(sec-dan) error = %v", err)
	}
}
