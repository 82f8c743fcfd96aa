// Package governance answers one question for the dispatch layer: may this
// candidate be promoted into this ring now?
package governance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ringgate/ringgate/internal/cab"
	"github.com/ringgate/ringgate/internal/evidence"
	"github.com/ringgate/ringgate/internal/faults"
	"github.com/ringgate/ringgate/internal/metrics"
	"github.com/ringgate/ringgate/internal/ring"
	"github.com/ringgate/ringgate/internal/risk"
)

const defaultWorkers = 4

// Repository is everything the governance core persists.
type Repository interface {
	evidence.Repository
	risk.Repository
	cab.Repository
}

type Options struct {
	// ModelVersion is used when a call does not name one; empty means the
	// registry default.
	ModelVersion string
	Roles        cab.Roles
	Workers      int
	Now          func() time.Time
}

// Service wires the evidence store, scoring engine, CAB engine and ring gate.
type Service struct {
	Evidence *evidence.Store
	Risk     *risk.Engine
	CAB      *cab.Engine
	Gate     *ring.Gate
	Models   *risk.Registry

	ModelVersion string
	Workers      int
	Logger       *slog.Logger
}

func New(repo Repository, models *risk.Registry, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	ev := evidence.NewStore(repo, logger)
	scorer := risk.NewEngine(models, repo, logger)
	workflow := cab.NewEngine(repo, models, logger)
	workflow.Roles = opts.Roles
	gate := &ring.Gate{Logger: logger}
	if opts.Now != nil {
		ev.Now = opts.Now
		scorer.Now = opts.Now
		workflow.Now = opts.Now
		gate.Now = opts.Now
	}
	return &Service{
		Evidence:     ev,
		Risk:         scorer,
		CAB:          workflow,
		Gate:         gate,
		Models:       models,
		ModelVersion: strings.TrimSpace(opts.ModelVersion),
		Workers:      opts.Workers,
		Logger:       logger,
	}
}

type EvaluateInput struct {
	CandidateID   string      `json:"candidate_id"`
	TargetRing    string      `json:"target_ring"`
	RingState     *ring.State `json:"ring_state,omitempty"`
	Requester     string      `json:"requester"`
	ModelVersion  string      `json:"model_version,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

// Verdict is what the dispatch layer acts on: it must not dispatch unless
// Promotion.Verdict is PROMOTE.
type Verdict struct {
	CandidateID   string         `json:"candidate_id"`
	Ring          string         `json:"ring"`
	CorrelationID string         `json:"correlation_id"`
	EvidenceID    string         `json:"evidence_id"`
	Risk          risk.Breakdown `json:"risk"`
	Request       cab.Request    `json:"cab_request"`
	CABStatus     cab.Status     `json:"cab_status"`
	Promotion     ring.Result    `json:"promotion"`
}

// InputError reports a missing argument to a facade call.
type InputError struct {
	Field string
}

func (e *InputError) Error() string { return "governance: " + e.Field + " is required" }

func (e *InputError) FaultClass() faults.Class { return faults.ClassValidation }

// EvaluateCandidate loads and verifies the latest evidence, scores it,
// locates or submits the CAB request and evaluates the ring gate. It never
// waits for a human decision, and repeated calls before a decision return the
// same request. The first failure ends the evaluation.
func (s *Service) EvaluateCandidate(ctx context.Context, in EvaluateInput) (Verdict, error) {
	start := time.Now()
	v, err := s.evaluate(ctx, in)

	outcome := "error"
	if err == nil {
		outcome = strings.ToLower(string(v.Promotion.Verdict))
	}
	metrics.GovernanceEvaluationDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		level := slog.LevelWarn
		switch faults.ClassOf(err) {
		case faults.ClassIntegrity, faults.ClassConfiguration, faults.ClassInternal:
			level = slog.LevelError
		}
		s.logger().Log(ctx, level, "governance evaluation failed",
			"correlation_id", in.CorrelationID,
			"candidate_id", in.CandidateID,
			"ring", in.TargetRing,
			"class", faults.ClassOf(err),
			"error", err,
		)
		return Verdict{}, fmt.Errorf("evaluate candidate %q for ring %q: %w", in.CandidateID, in.TargetRing, err)
	}
	return v, nil
}

func (s *Service) evaluate(ctx context.Context, in EvaluateInput) (Verdict, error) {
	candidateID := strings.TrimSpace(in.CandidateID)
	ringName := strings.TrimSpace(in.TargetRing)
	switch {
	case candidateID == "":
		return Verdict{}, &InputError{Field: "candidate_id"}
	case ringName == "":
		return Verdict{}, &InputError{Field: "target_ring"}
	case strings.TrimSpace(in.Requester) == "":
		return Verdict{}, &InputError{Field: "requester"}
	}

	rec, err := s.Evidence.Latest(ctx, candidateID)
	if err != nil {
		return Verdict{}, err
	}

	version := strings.TrimSpace(in.ModelVersion)
	if version == "" {
		version = s.ModelVersion
	}
	breakdown, err := s.Risk.Score(ctx, rec, version)
	if err != nil {
		return Verdict{}, err
	}

	req, err := s.locateRequest(ctx, rec, breakdown, ringName, in)
	if err != nil {
		return Verdict{}, err
	}
	if req.ModelVersion != breakdown.ModelVersion {
		// A reused request keeps the model it was routed under.
		breakdown, err = s.Risk.Score(ctx, rec, req.ModelVersion)
		if err != nil {
			return Verdict{}, err
		}
	}

	m, err := s.Models.Lookup(req.ModelVersion)
	if err != nil {
		return Verdict{}, err
	}
	policy, ok := m.Ring(req.Ring)
	if !ok {
		return Verdict{}, &cab.Error{Err: cab.ErrUnknownRing, Op: "evaluate", RequestID: req.ID, CandidateID: req.CandidateID, Ring: req.Ring}
	}

	promotion := s.Gate.Evaluate(policy, in.RingState, &req, in.CorrelationID)
	v := Verdict{
		CandidateID:   candidateID,
		Ring:          req.Ring,
		CorrelationID: in.CorrelationID,
		EvidenceID:    rec.ID,
		Risk:          breakdown,
		Request:       req,
		CABStatus:     req.EffectiveStatus(s.now()),
		Promotion:     promotion,
	}
	s.logger().Info("governance evaluation complete",
		"correlation_id", in.CorrelationID,
		"candidate_id", candidateID,
		"ring", req.Ring,
		"request_id", req.ID,
		"risk_total", breakdown.Total,
		"cab_status", v.CABStatus,
		"verdict", promotion.Verdict,
	)
	return v, nil
}

// SubmitRequest scores the candidate's latest verified evidence and opens a
// CAB request for the ring. Unlike EvaluateCandidate it never reuses an
// existing request.
func (s *Service) SubmitRequest(ctx context.Context, in EvaluateInput) (cab.Request, error) {
	candidateID := strings.TrimSpace(in.CandidateID)
	switch {
	case candidateID == "":
		return cab.Request{}, &InputError{Field: "candidate_id"}
	case strings.TrimSpace(in.TargetRing) == "":
		return cab.Request{}, &InputError{Field: "target_ring"}
	}

	rec, err := s.Evidence.Latest(ctx, candidateID)
	if err != nil {
		return cab.Request{}, err
	}
	version := strings.TrimSpace(in.ModelVersion)
	if version == "" {
		version = s.ModelVersion
	}
	b, err := s.Risk.Score(ctx, rec, version)
	if err != nil {
		return cab.Request{}, err
	}
	return s.CAB.Submit(ctx, cab.SubmitInput{
		Breakdown:         b,
		Ring:              in.TargetRing,
		Requester:         in.Requester,
		PrivilegedTooling: rec.Artifact.PrivilegedTooling,
		CorrelationID:     in.CorrelationID,
	})
}

// locateRequest reuses the latest request for (candidate, ring) when it was
// made for the same evidence and is still in force. A terminal request for
// older evidence, or one whose exception has lapsed, is superseded.
func (s *Service) locateRequest(ctx context.Context, rec evidence.Record, b risk.Breakdown, ringName string, in EvaluateInput) (cab.Request, error) {
	latest, ok, err := s.CAB.LatestRequest(ctx, rec.CandidateID, ringName, in.CorrelationID)
	if err != nil {
		return cab.Request{}, err
	}
	if ok {
		status := latest.EffectiveStatus(s.now())
		switch {
		case latest.EvidenceID == rec.ID && status != cab.StatusExpired:
			return latest, nil
		case !status.Terminal():
			return cab.Request{}, &cab.Error{
				Err:         cab.ErrDuplicatePendingRequest,
				Op:          "evaluate",
				RequestID:   latest.ID,
				CandidateID: latest.CandidateID,
				Ring:        latest.Ring,
				Status:      latest.Status,
				Detail:      fmt.Sprintf("open request was made for evidence %s, latest evidence is %s", latest.EvidenceID, rec.ID),
			}
		}
	}

	req, err := s.CAB.Submit(ctx, cab.SubmitInput{
		Breakdown:         b,
		Ring:              ringName,
		Requester:         in.Requester,
		PrivilegedTooling: rec.Artifact.PrivilegedTooling,
		CorrelationID:     in.CorrelationID,
	})
	if errors.Is(err, cab.ErrDuplicatePendingRequest) {
		// A concurrent evaluation of the same candidate submitted first.
		latest, ok, lerr := s.CAB.LatestRequest(ctx, rec.CandidateID, ringName, in.CorrelationID)
		if lerr == nil && ok && latest.EvidenceID == rec.ID {
			return latest, nil
		}
	}
	return req, err
}

func (s *Service) now() time.Time {
	if s.CAB != nil && s.CAB.Now != nil {
		return s.CAB.Now()
	}
	return time.Now()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
