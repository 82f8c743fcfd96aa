package ring

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ringgate/ringgate/internal/cab"
	"github.com/ringgate/ringgate/internal/risk"
)

var (
	testNow = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	canary  = risk.RingPolicy{Name: "canary", BlastRadius: risk.BlastRadiusStandard, MinSuccessRate: 98, MaxTimeToCompliance: 72 * time.Hour}
)

func newGate() *Gate {
	return &Gate{
		Now:    func() time.Time { return testNow },
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func healthy() *State {
	return &State{Ring: "canary", SuccessRate: 98.5, TimeToCompliance: 10 * time.Hour, RollbackValidated: true}
}

func approved(status cab.Status) *cab.Request {
	return &cab.Request{ID: "req-1", CandidateID: "cand-1", Ring: "canary", Status: status}
}

func codes(res Result) []ReasonCode {
	out := make([]ReasonCode, 0, len(res.Reasons))
	for _, r := range res.Reasons {
		out = append(out, r.Code)
	}
	return out
}

func TestEvaluate_PromotesApprovedFamily(t *testing.T) {
	t.Parallel()

	for _, s := range []cab.Status{cab.StatusAutoApproved, cab.StatusApproved, cab.StatusConditional, cab.StatusApprovedViaException} {
		res := newGate().Evaluate(canary, healthy(), approved(s), "corr")
		if !res.Promoted() || len(res.Reasons) != 0 {
			t.Fatalf("Evaluate(%s) = %+v, want PROMOTE", s, res)
		}
	}
}

func TestEvaluate_HoldIsTheSafeDefault(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  *cab.Request
		want ReasonCode
	}{
		{name: "no decision", req: nil, want: ReasonNoDecision},
		{name: "pending", req: approved(cab.StatusPending), want: ReasonNotApproved},
		{name: "under review", req: approved(cab.StatusUnderReview), want: ReasonNotApproved},
		{name: "exception required", req: approved(cab.StatusExceptionRequired), want: ReasonNotApproved},
		{name: "rejected", req: approved(cab.StatusRejected), want: ReasonNotApproved},
		{name: "expired", req: approved(cab.StatusExpired), want: ReasonNotApproved},
		{name: "other ring", req: &cab.Request{ID: "req-2", Ring: "lab", Status: cab.StatusApproved}, want: ReasonWrongRing},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			res := newGate().Evaluate(canary, healthy(), tc.req, "corr")
			if res.Verdict != Hold {
				t.Fatalf("Verdict = %s, want HOLD", res.Verdict)
			}
			if got := codes(res); len(got) != 1 || got[0] != tc.want {
				t.Fatalf("reasons = %v, want [%s]", got, tc.want)
			}
		})
	}
}

func TestEvaluate_LapsedExceptionHolds(t *testing.T) {
	t.Parallel()

	expires := testNow.Add(-time.Minute)
	req := approved(cab.StatusApprovedViaException)
	req.ExceptionExpiresAt = &expires

	res := newGate().Evaluate(canary, healthy(), req, "corr")
	if res.Verdict != Hold || codes(res)[0] != ReasonNotApproved {
		t.Fatalf("Evaluate() = %+v, want HOLD for a lapsed exception", res)
	}
}

func TestEvaluate_ListsEveryFailedCheck(t *testing.T) {
	t.Parallel()

	state := &State{Ring: "canary", SuccessRate: 97.9, TimeToCompliance: 73 * time.Hour, OpenIncidents: 2}
	res := newGate().Evaluate(canary, state, approved(cab.StatusApproved), "corr")
	if res.Verdict != Hold {
		t.Fatalf("Verdict = %s, want HOLD", res.Verdict)
	}
	want := []ReasonCode{ReasonSuccessRate, ReasonOpenIncidents, ReasonRollback, ReasonTimeToCompliance}
	got := codes(res)
	if len(got) != len(want) {
		t.Fatalf("reasons = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("reasons = %v, want %v", got, want)
		}
	}
}

func TestEvaluate_ThresholdsAreInclusive(t *testing.T) {
	t.Parallel()

	state := &State{Ring: "canary", SuccessRate: 98, TimeToCompliance: 72 * time.Hour, RollbackValidated: true}
	if res := newGate().Evaluate(canary, state, approved(cab.StatusApproved), "corr"); !res.Promoted() {
		t.Fatalf("Evaluate(at thresholds) = %+v, want PROMOTE", res)
	}
}

func TestEvaluate_MissingTelemetryHolds(t *testing.T) {
	t.Parallel()

	res := newGate().Evaluate(canary, nil, approved(cab.StatusApproved), "corr")
	if res.Verdict != Hold || codes(res)[0] != ReasonNoTelemetry {
		t.Fatalf("Evaluate(nil state) = %+v", res)
	}
}

func TestEvaluate_TelemetryForOtherRingHolds(t *testing.T) {
	t.Parallel()

	state := &State{Ring: "lab", SuccessRate: 99.5, RollbackValidated: true}
	res := newGate().Evaluate(canary, state, approved(cab.StatusAutoApproved), "corr")
	if res.Verdict != Hold {
		t.Fatalf("Verdict = %s, want HOLD for lab telemetry", res.Verdict)
	}
	if got := codes(res); len(got) != 1 || got[0] != ReasonStateWrongRing {
		t.Fatalf("reasons = %v, want [%s]", got, ReasonStateWrongRing)
	}
}

func TestEvaluate_UnlabelledTelemetryAppliesToPolicyRing(t *testing.T) {
	t.Parallel()

	state := healthy()
	state.Ring = ""
	if res := newGate().Evaluate(canary, state, approved(cab.StatusApproved), "corr"); !res.Promoted() {
		t.Fatalf("Evaluate(unlabelled state) = %+v, want PROMOTE", res)
	}
}
