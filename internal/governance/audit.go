package governance

import (
	"context"
	"fmt"
	"strings"

	"github.com/ringgate/ringgate/internal/cab"
	"github.com/ringgate/ringgate/internal/evidence"
	"github.com/ringgate/ringgate/internal/risk"
)

// Trail is the append-only record of everything decided about a candidate.
type Trail struct {
	CandidateID string            `json:"candidate_id"`
	Evidence    []evidence.Record `json:"evidence"`
	Breakdowns  []risk.Breakdown  `json:"breakdowns"`
	cab.History
}

// AuditTrail collects a candidate's evidence, breakdowns, requests,
// exceptions and decisions. Every evidence record is verified on the way out.
func (s *Service) AuditTrail(ctx context.Context, candidateID string) (Trail, error) {
	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return Trail{}, &InputError{Field: "candidate_id"}
	}

	recs, err := s.Evidence.List(ctx, candidateID)
	if err != nil {
		return Trail{}, fmt.Errorf("audit trail for candidate %q: %w", candidateID, err)
	}
	var breakdowns []risk.Breakdown
	if s.Risk != nil && s.Risk.Repo != nil {
		if breakdowns, err = s.Risk.Repo.ListBreakdowns(ctx, candidateID); err != nil {
			return Trail{}, fmt.Errorf("audit trail for candidate %q: list breakdowns: %w", candidateID, err)
		}
	}
	history, err := s.CAB.History(ctx, candidateID)
	if err != nil {
		return Trail{}, fmt.Errorf("audit trail for candidate %q: %w", candidateID, err)
	}

	return Trail{
		CandidateID: candidateID,
		Evidence:    recs,
		Breakdowns:  breakdowns,
		History:     history,
	}, nil
}
