package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ringgate/ringgate/internal/cab"
	"github.com/ringgate/ringgate/internal/faults"
)

func (s *Store) CreateRequest(ctx context.Context, req cab.Request, decision *cab.Decision) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pair := pairKey(req.CandidateID, req.Ring)
	unlock := s.lock("pair:" + pair)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[req.ID]; ok {
		return fmt.Errorf("cab request %s already exists", req.ID)
	}
	if !req.Status.Terminal() {
		for _, id := range s.requestsByPair[pair] {
			if existing := s.requests[id]; !existing.Status.Terminal() {
				return fmt.Errorf("%w: open request %s is %s", cab.ErrDuplicatePendingRequest, existing.ID, existing.Status)
			}
		}
	}

	s.requests[req.ID] = req
	s.requestsByCand[req.CandidateID] = append(s.requestsByCand[req.CandidateID], req.ID)
	s.requestsByPair[pair] = append(s.requestsByPair[pair], req.ID)
	if decision != nil {
		s.decisions = append(s.decisions, decision.Clone())
	}
	return nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (cab.Request, error) {
	if err := ctx.Err(); err != nil {
		return cab.Request{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return cab.Request{}, faults.NotFound{Entity: "cab request", ID: id}
	}
	return req, nil
}

func (s *Store) LatestRequest(ctx context.Context, candidateID, ring string) (cab.Request, bool, error) {
	if err := ctx.Err(); err != nil {
		return cab.Request{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.requestsByPair[pairKey(candidateID, ring)]
	if len(ids) == 0 {
		return cab.Request{}, false, nil
	}
	return s.requests[ids[len(ids)-1]], true, nil
}

func (s *Store) ListRequests(ctx context.Context, candidateID string) ([]cab.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.requestsByCand[candidateID]
	out := make([]cab.Request, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.requests[id])
	}
	return out, nil
}

func (s *Store) RequestsByStatus(ctx context.Context, status cab.Status) ([]cab.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []cab.Request
	for _, req := range s.requests {
		if req.Status == status {
			out = append(out, req)
		}
	}
	slices.SortFunc(out, func(a, b cab.Request) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// DecideRequest serializes on the request; exceptions are only ever changed
// while their request's lock is held.
func (s *Store) DecideRequest(ctx context.Context, t cab.Transition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.lock("request:" + t.RequestID)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[t.RequestID]
	if !ok {
		return faults.NotFound{Entity: "cab request", ID: t.RequestID}
	}
	if req.Status != t.From {
		return fmt.Errorf("%w: request %s is %s, expected %s", cab.ErrInvalidTransition, req.ID, req.Status, t.From)
	}

	var x cab.Exception
	if t.Exception != nil {
		x, ok = s.exceptions[t.Exception.ExceptionID]
		if !ok || x.RequestID != req.ID {
			return faults.NotFound{Entity: "cab exception", ID: t.Exception.ExceptionID}
		}
		if x.Status != t.Exception.From {
			return fmt.Errorf("%w: exception %s is %s, expected %s", cab.ErrInvalidTransition, x.ID, x.Status, t.Exception.From)
		}
	}

	at := t.At
	req.Status = t.To
	req.DecidedAt = &at
	if t.ExceptionExpiresAt != nil {
		expires := *t.ExceptionExpiresAt
		req.ExceptionExpiresAt = &expires
	}
	s.requests[req.ID] = req

	if t.Exception != nil {
		x.Status = t.Exception.To
		x.Reviewer = t.Exception.Reviewer
		x.Reason = t.Exception.Reason
		x.DecidedAt = &at
		s.exceptions[x.ID] = x
	}
	s.decisions = append(s.decisions, t.Decision.Clone())
	return nil
}

func (s *Store) CreateException(ctx context.Context, x cab.Exception) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.lock("request:" + x.RequestID)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[x.RequestID]; !ok {
		return faults.NotFound{Entity: "cab request", ID: x.RequestID}
	}
	if existing, ok := s.exceptionByReq[x.RequestID]; ok {
		return fmt.Errorf("%w: exception %s", cab.ErrExceptionExists, existing)
	}
	if _, ok := s.exceptions[x.ID]; ok {
		return fmt.Errorf("cab exception %s already exists", x.ID)
	}
	s.exceptions[x.ID] = x.Clone()
	s.exceptionByReq[x.RequestID] = x.ID
	s.exceptionsByCand[x.CandidateID] = append(s.exceptionsByCand[x.CandidateID], x.ID)
	return nil
}

func (s *Store) GetException(ctx context.Context, id string) (cab.Exception, error) {
	if err := ctx.Err(); err != nil {
		return cab.Exception{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	x, ok := s.exceptions[id]
	if !ok {
		return cab.Exception{}, faults.NotFound{Entity: "cab exception", ID: id}
	}
	return x.Clone(), nil
}

func (s *Store) ExceptionForRequest(ctx context.Context, requestID string) (cab.Exception, bool, error) {
	if err := ctx.Err(); err != nil {
		return cab.Exception{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.exceptionByReq[requestID]
	if !ok {
		return cab.Exception{}, false, nil
	}
	return s.exceptions[id].Clone(), true, nil
}

func (s *Store) ListExceptions(ctx context.Context, candidateID string) ([]cab.Exception, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.exceptionsByCand[candidateID]
	out := make([]cab.Exception, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.exceptions[id].Clone())
	}
	return out, nil
}

func (s *Store) ListDecisions(ctx context.Context, candidateID string) ([]cab.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []cab.Decision
	for _, d := range s.decisions {
		if d.CandidateID == candidateID {
			out = append(out, d.Clone())
		}
	}
	return slices.Clip(out), nil
}
