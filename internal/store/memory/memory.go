// Package memory keeps every governance repository in process memory. It is
// used by tests, dry-run evaluation and single-node deployments without a
// database.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ringgate/ringgate/internal/cab"
	"github.com/ringgate/ringgate/internal/evidence"
	"github.com/ringgate/ringgate/internal/faults"
	"github.com/ringgate/ringgate/internal/risk"
)

// Store implements evidence.Repository, risk.Repository and cab.Repository.
//
// mu only guards map access. Read-check-write sequences on a request, its
// exception, or a (candidate, ring) pair are serialized by per-entity locks,
// so unrelated candidates never wait on each other's decisions.
type Store struct {
	mu sync.RWMutex

	evidence         map[string]evidence.Record
	evidenceByCand   map[string][]string
	breakdowns       map[string]risk.Breakdown
	breakdownsByCand map[string][]string
	requests         map[string]cab.Request
	requestsByCand   map[string][]string
	requestsByPair   map[string][]string
	exceptions       map[string]cab.Exception
	exceptionsByCand map[string][]string
	exceptionByReq   map[string]string
	decisions        []cab.Decision

	locks keyedLocks
}

var (
	_ evidence.Repository = (*Store)(nil)
	_ risk.Repository     = (*Store)(nil)
	_ cab.Repository      = (*Store)(nil)
)

func New() *Store {
	return &Store{
		evidence:         make(map[string]evidence.Record),
		evidenceByCand:   make(map[string][]string),
		breakdowns:       make(map[string]risk.Breakdown),
		breakdownsByCand: make(map[string][]string),
		requests:         make(map[string]cab.Request),
		requestsByCand:   make(map[string][]string),
		requestsByPair:   make(map[string][]string),
		exceptions:       make(map[string]cab.Exception),
		exceptionsByCand: make(map[string][]string),
		exceptionByReq:   make(map[string]string),
	}
}

func (s *Store) lock(key string) func() {
	return s.locks.lock(key)
}

func pairKey(candidateID, ring string) string {
	return candidateID + "\x00" + ring
}

func breakdownKey(evidenceID, modelVersion string) string {
	return evidenceID + "\x00" + modelVersion
}

// Evidence

func (s *Store) InsertEvidence(ctx context.Context, rec evidence.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.evidence[rec.ID]; ok {
		return fmt.Errorf("evidence %s already exists", rec.ID)
	}
	s.evidence[rec.ID] = rec.Clone()
	s.evidenceByCand[rec.CandidateID] = append(s.evidenceByCand[rec.CandidateID], rec.ID)
	return nil
}

func (s *Store) GetEvidence(ctx context.Context, id string) (evidence.Record, error) {
	if err := ctx.Err(); err != nil {
		return evidence.Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.evidence[id]
	if !ok {
		return evidence.Record{}, faults.NotFound{Entity: "evidence", ID: id}
	}
	return rec.Clone(), nil
}

func (s *Store) LatestEvidence(ctx context.Context, candidateID string) (evidence.Record, error) {
	if err := ctx.Err(); err != nil {
		return evidence.Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.evidenceByCand[candidateID]
	if len(ids) == 0 {
		return evidence.Record{}, faults.NotFound{Entity: "evidence for candidate", ID: candidateID}
	}
	return s.evidence[ids[len(ids)-1]].Clone(), nil
}

func (s *Store) ListEvidence(ctx context.Context, candidateID string) ([]evidence.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.evidenceByCand[candidateID]
	out := make([]evidence.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.evidence[id].Clone())
	}
	return out, nil
}

// Breakdowns

func (s *Store) InsertBreakdown(ctx context.Context, b risk.Breakdown) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := breakdownKey(b.EvidenceID, b.ModelVersion)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.breakdowns[key]; ok {
		return risk.ErrBreakdownExists
	}
	b.Factors = append([]risk.FactorScore(nil), b.Factors...)
	s.breakdowns[key] = b
	s.breakdownsByCand[b.CandidateID] = append(s.breakdownsByCand[b.CandidateID], key)
	return nil
}

func (s *Store) FindBreakdown(ctx context.Context, evidenceID, modelVersion string) (risk.Breakdown, bool, error) {
	if err := ctx.Err(); err != nil {
		return risk.Breakdown{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.breakdowns[breakdownKey(evidenceID, modelVersion)]
	if !ok {
		return risk.Breakdown{}, false, nil
	}
	b.Factors = append([]risk.FactorScore(nil), b.Factors...)
	return b, true, nil
}

func (s *Store) ListBreakdowns(ctx context.Context, candidateID string) ([]risk.Breakdown, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := s.breakdownsByCand[candidateID]
	out := make([]risk.Breakdown, 0, len(keys))
	for _, key := range keys {
		b := s.breakdowns[key]
		b.Factors = append([]risk.FactorScore(nil), b.Factors...)
		out = append(out, b)
	}
	return out, nil
}
