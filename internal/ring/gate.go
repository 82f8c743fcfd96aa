// Package ring decides whether a candidate may be promoted into a rollout
// ring, from its CAB outcome and the ring's live telemetry.
package ring

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ringgate/ringgate/internal/cab"
	"github.com/ringgate/ringgate/internal/metrics"
	"github.com/ringgate/ringgate/internal/risk"
)

type Verdict string

const (
	Promote Verdict = "PROMOTE"
	Hold    Verdict = "HOLD"
)

type ReasonCode string

const (
	ReasonNoDecision       ReasonCode = "cab_decision_missing"
	ReasonNotApproved      ReasonCode = "cab_not_approved"
	ReasonWrongRing        ReasonCode = "cab_decision_for_other_ring"
	ReasonNoTelemetry      ReasonCode = "ring_state_missing"
	ReasonStateWrongRing   ReasonCode = "ring_state_for_other_ring"
	ReasonSuccessRate      ReasonCode = "success_rate_below_threshold"
	ReasonOpenIncidents    ReasonCode = "open_incidents"
	ReasonRollback         ReasonCode = "rollback_not_validated"
	ReasonTimeToCompliance ReasonCode = "time_to_compliance_exceeded"
)

type Reason struct {
	Code    ReasonCode `json:"code"`
	Message string     `json:"message"`
}

type Result struct {
	Ring    string   `json:"ring"`
	Verdict Verdict  `json:"verdict"`
	Reasons []Reason `json:"reasons,omitempty"`
}

func (r Result) Promoted() bool { return r.Verdict == Promote }

// Gate evaluates promotions. Its clock decides whether an approval granted
// through an exception is still in force.
type Gate struct {
	Now    func() time.Time
	Logger *slog.Logger
}

// Evaluate returns PROMOTE only when req is an approved-family outcome for
// policy's ring and every telemetry threshold holds. Anything else is HOLD,
// listing every failed check.
func (g *Gate) Evaluate(policy risk.RingPolicy, state *State, req *cab.Request, correlationID string) Result {
	res := Result{Ring: policy.Name, Verdict: Hold}
	res.Reasons = g.cabReasons(policy, req)
	if len(res.Reasons) == 0 {
		res.Reasons = telemetryReasons(policy, state)
	}
	if len(res.Reasons) == 0 {
		res.Verdict = Promote
	}

	metrics.RingGateVerdictsTotal.WithLabelValues(policy.Name, string(res.Verdict)).Inc()
	attrs := []any{"correlation_id", correlationID, "ring", policy.Name, "verdict", res.Verdict}
	if req != nil {
		attrs = append(attrs, "candidate_id", req.CandidateID, "request_id", req.ID)
	}
	for _, r := range res.Reasons {
		attrs = append(attrs, slog.String(string(r.Code), r.Message))
	}
	g.logger().Info("ring gate evaluated", attrs...)
	return res
}

func (g *Gate) cabReasons(policy risk.RingPolicy, req *cab.Request) []Reason {
	if req == nil {
		return []Reason{{Code: ReasonNoDecision, Message: "no CAB request exists for this ring"}}
	}
	if req.Ring != policy.Name {
		return []Reason{{
			Code:    ReasonWrongRing,
			Message: fmt.Sprintf("CAB request %s targets ring %q, not %q", req.ID, req.Ring, policy.Name),
		}}
	}
	status := req.EffectiveStatus(g.now())
	if !status.Approved() {
		return []Reason{{
			Code:    ReasonNotApproved,
			Message: fmt.Sprintf("CAB request %s is %s", req.ID, status),
		}}
	}
	return nil
}

// telemetryReasons checks all four thresholds independently. A snapshot
// labelled with another ring is never measured against this ring's policy.
func telemetryReasons(policy risk.RingPolicy, state *State) []Reason {
	if state == nil {
		return []Reason{{Code: ReasonNoTelemetry, Message: "no telemetry for ring " + policy.Name}}
	}
	if name := strings.TrimSpace(state.Ring); name != "" && name != policy.Name {
		return []Reason{{
			Code:    ReasonStateWrongRing,
			Message: fmt.Sprintf("telemetry is for ring %q, not %q", name, policy.Name),
		}}
	}
	var reasons []Reason
	if state.SuccessRate < policy.MinSuccessRate {
		reasons = append(reasons, Reason{
			Code:    ReasonSuccessRate,
			Message: fmt.Sprintf("install success rate %.2f%% is below %.2f%%", state.SuccessRate, policy.MinSuccessRate),
		})
	}
	if state.OpenIncidents != 0 {
		reasons = append(reasons, Reason{
			Code:    ReasonOpenIncidents,
			Message: fmt.Sprintf("%d open incident(s)", state.OpenIncidents),
		})
	}
	if !state.RollbackValidated {
		reasons = append(reasons, Reason{Code: ReasonRollback, Message: "rollback has not been validated in this ring"})
	}
	if state.TimeToCompliance > policy.MaxTimeToCompliance {
		reasons = append(reasons, Reason{
			Code:    ReasonTimeToCompliance,
			Message: fmt.Sprintf("time to compliance %s exceeds %s", state.TimeToCompliance, policy.MaxTimeToCompliance),
		})
	}
	return reasons
}

func (g *Gate) logger() *slog.Logger {
	if g != nil && g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

func (g *Gate) now() time.Time {
	if g != nil && g.Now != nil {
		return g.Now()
	}
	return time.Now()
}
