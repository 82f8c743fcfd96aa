package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/ringgate/ringgate/internal/cab"
	"github.com/ringgate/ringgate/internal/faults"
)

const requestColumns = `id, candidate_id, ring, evidence_id, breakdown_id, model_version, risk_total,
	status, override, requester, created_at, decided_at, exception_expires_at, correlation_id`

type requestRow struct {
	ID                 string     `db:"id"`
	CandidateID        string     `db:"candidate_id"`
	Ring               string     `db:"ring"`
	EvidenceID         string     `db:"evidence_id"`
	BreakdownID        string     `db:"breakdown_id"`
	ModelVersion       string     `db:"model_version"`
	RiskTotal          int        `db:"risk_total"`
	Status             string     `db:"status"`
	Override           string     `db:"override"`
	Requester          string     `db:"requester"`
	CreatedAt          time.Time  `db:"created_at"`
	DecidedAt          *time.Time `db:"decided_at"`
	ExceptionExpiresAt *time.Time `db:"exception_expires_at"`
	CorrelationID      string     `db:"correlation_id"`
}

func (r requestRow) request() cab.Request {
	return cab.Request{
		ID:                 r.ID,
		CandidateID:        r.CandidateID,
		Ring:               r.Ring,
		EvidenceID:         r.EvidenceID,
		BreakdownID:        r.BreakdownID,
		ModelVersion:       r.ModelVersion,
		RiskTotal:          r.RiskTotal,
		Status:             cab.Status(r.Status),
		Override:           cab.Override(r.Override),
		Requester:          r.Requester,
		CreatedAt:          r.CreatedAt.UTC(),
		DecidedAt:          utcPtr(r.DecidedAt),
		ExceptionExpiresAt: utcPtr(r.ExceptionExpiresAt),
		CorrelationID:      r.CorrelationID,
	}
}

const exceptionColumns = `id, request_id, candidate_id, controls, created_by, expires_at, status,
	reviewer, reason, created_at, decided_at`

type exceptionRow struct {
	ID          string     `db:"id"`
	RequestID   string     `db:"request_id"`
	CandidateID string     `db:"candidate_id"`
	Controls    []string   `db:"controls"`
	CreatedBy   string     `db:"created_by"`
	ExpiresAt   time.Time  `db:"expires_at"`
	Status      string     `db:"status"`
	Reviewer    string     `db:"reviewer"`
	Reason      string     `db:"reason"`
	CreatedAt   time.Time  `db:"created_at"`
	DecidedAt   *time.Time `db:"decided_at"`
}

func (r exceptionRow) exception() cab.Exception {
	return cab.Exception{
		ID:          r.ID,
		RequestID:   r.RequestID,
		CandidateID: r.CandidateID,
		Controls:    r.Controls,
		CreatedBy:   r.CreatedBy,
		ExpiresAt:   r.ExpiresAt.UTC(),
		Status:      cab.ExceptionStatus(r.Status),
		Reviewer:    r.Reviewer,
		Reason:      r.Reason,
		CreatedAt:   r.CreatedAt.UTC(),
		DecidedAt:   utcPtr(r.DecidedAt),
	}
}

const decisionColumns = `id, request_id, exception_id, candidate_id, kind, conditions, reason, actor,
	correlation_id, created_at`

type decisionRow struct {
	ID            string    `db:"id"`
	RequestID     string    `db:"request_id"`
	ExceptionID   *string   `db:"exception_id"`
	CandidateID   string    `db:"candidate_id"`
	Kind          string    `db:"kind"`
	Conditions    []string  `db:"conditions"`
	Reason        string    `db:"reason"`
	Actor         string    `db:"actor"`
	CorrelationID string    `db:"correlation_id"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r decisionRow) decision() cab.Decision {
	d := cab.Decision{
		ID:            r.ID,
		RequestID:     r.RequestID,
		CandidateID:   r.CandidateID,
		Kind:          cab.DecisionKind(r.Kind),
		Reason:        r.Reason,
		Actor:         r.Actor,
		CorrelationID: r.CorrelationID,
		CreatedAt:     r.CreatedAt.UTC(),
	}
	if r.ExceptionID != nil {
		d.ExceptionID = *r.ExceptionID
	}
	if len(r.Conditions) > 0 {
		d.Conditions = r.Conditions
	}
	return d
}

func (s *Store) CreateRequest(ctx context.Context, req cab.Request, decision *cab.Decision) error {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO cab_requests (`+requestColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			req.ID, req.CandidateID, req.Ring, req.EvidenceID, req.BreakdownID, req.ModelVersion, req.RiskTotal,
			string(req.Status), string(req.Override), req.Requester, req.CreatedAt, req.DecidedAt,
			req.ExceptionExpiresAt, req.CorrelationID,
		); err != nil {
			return err
		}
		if decision != nil {
			return insertDecision(ctx, tx, *decision)
		}
		return nil
	})
	if isUniqueViolation(err, constraintOpenRequest) {
		return fmt.Errorf("%w: candidate %q ring %q", cab.ErrDuplicatePendingRequest, req.CandidateID, req.Ring)
	}
	if err != nil {
		return fmt.Errorf("insert cab request %s: %w", req.ID, err)
	}
	return nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (cab.Request, error) {
	var row requestRow
	err := pgxscan.Get(ctx, s.db, &row, `SELECT `+requestColumns+` FROM cab_requests WHERE id = $1`, id)
	if pgxscan.NotFound(err) {
		return cab.Request{}, faults.NotFound{Entity: "cab request", ID: id}
	}
	if err != nil {
		return cab.Request{}, fmt.Errorf("get cab request %s: %w", id, err)
	}
	return row.request(), nil
}

func (s *Store) LatestRequest(ctx context.Context, candidateID, ring string) (cab.Request, bool, error) {
	var row requestRow
	err := pgxscan.Get(ctx, s.db, &row,
		`SELECT `+requestColumns+` FROM cab_requests
		WHERE candidate_id = $1 AND ring = $2 ORDER BY seq DESC LIMIT 1`,
		candidateID, ring,
	)
	if pgxscan.NotFound(err) {
		return cab.Request{}, false, nil
	}
	if err != nil {
		return cab.Request{}, false, fmt.Errorf("latest cab request for candidate %q ring %q: %w", candidateID, ring, err)
	}
	return row.request(), true, nil
}

func (s *Store) ListRequests(ctx context.Context, candidateID string) ([]cab.Request, error) {
	var rows []requestRow
	if err := pgxscan.Select(ctx, s.db, &rows,
		`SELECT `+requestColumns+` FROM cab_requests WHERE candidate_id = $1 ORDER BY seq`,
		candidateID,
	); err != nil {
		return nil, fmt.Errorf("list cab requests for candidate %q: %w", candidateID, err)
	}
	out := make([]cab.Request, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.request())
	}
	return out, nil
}

func (s *Store) RequestsByStatus(ctx context.Context, status cab.Status) ([]cab.Request, error) {
	var rows []requestRow
	if err := pgxscan.Select(ctx, s.db, &rows,
		`SELECT `+requestColumns+` FROM cab_requests WHERE status = $1 ORDER BY seq`,
		string(status),
	); err != nil {
		return nil, fmt.Errorf("list cab requests with status %s: %w", status, err)
	}
	out := make([]cab.Request, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.request())
	}
	return out, nil
}

// DecideRequest relies on the row lock taken by UPDATE: a concurrent decision
// on the same request re-checks the status predicate after the first commits
// and matches no row.
func (s *Store) DecideRequest(ctx context.Context, t cab.Transition) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE cab_requests
			SET status = $3, decided_at = $4, exception_expires_at = COALESCE($5, exception_expires_at)
			WHERE id = $1 AND status = $2`,
			t.RequestID, string(t.From), string(t.To), t.At, t.ExceptionExpiresAt,
		)
		if err != nil {
			return fmt.Errorf("update cab request %s: %w", t.RequestID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: request %s is no longer %s", cab.ErrInvalidTransition, t.RequestID, t.From)
		}

		if x := t.Exception; x != nil {
			tag, err := tx.Exec(ctx,
				`UPDATE cab_exceptions
				SET status = $4, reviewer = $5, reason = $6, decided_at = $7
				WHERE id = $1 AND request_id = $2 AND status = $3`,
				x.ExceptionID, t.RequestID, string(x.From), string(x.To), x.Reviewer, x.Reason, t.At,
			)
			if err != nil {
				return fmt.Errorf("update cab exception %s: %w", x.ExceptionID, err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("%w: exception %s is no longer %s", cab.ErrInvalidTransition, x.ExceptionID, x.From)
			}
		}
		return insertDecision(ctx, tx, t.Decision)
	})
}

func insertDecision(ctx context.Context, tx pgx.Tx, d cab.Decision) error {
	var exceptionID *string
	if d.ExceptionID != "" {
		exceptionID = &d.ExceptionID
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO cab_decisions (`+decisionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID, d.RequestID, exceptionID, d.CandidateID, string(d.Kind), orEmpty(d.Conditions), d.Reason, d.Actor,
		d.CorrelationID, d.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert cab decision %s: %w", d.ID, err)
	}
	return nil
}

func (s *Store) CreateException(ctx context.Context, x cab.Exception) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO cab_exceptions (`+exceptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		x.ID, x.RequestID, x.CandidateID, orEmpty(x.Controls), x.CreatedBy, x.ExpiresAt, string(x.Status),
		x.Reviewer, x.Reason, x.CreatedAt, x.DecidedAt,
	)
	switch {
	case isUniqueViolation(err, constraintExceptionRequest):
		return fmt.Errorf("%w: request %s", cab.ErrExceptionExists, x.RequestID)
	case isForeignKeyViolation(err):
		return faults.NotFound{Entity: "cab request", ID: x.RequestID}
	case err != nil:
		return fmt.Errorf("insert cab exception %s: %w", x.ID, err)
	}
	return nil
}

func (s *Store) GetException(ctx context.Context, id string) (cab.Exception, error) {
	var row exceptionRow
	err := pgxscan.Get(ctx, s.db, &row, `SELECT `+exceptionColumns+` FROM cab_exceptions WHERE id = $1`, id)
	if pgxscan.NotFound(err) {
		return cab.Exception{}, faults.NotFound{Entity: "cab exception", ID: id}
	}
	if err != nil {
		return cab.Exception{}, fmt.Errorf("get cab exception %s: %w", id, err)
	}
	return row.exception(), nil
}

func (s *Store) ExceptionForRequest(ctx context.Context, requestID string) (cab.Exception, bool, error) {
	var row exceptionRow
	err := pgxscan.Get(ctx, s.db, &row, `SELECT `+exceptionColumns+` FROM cab_exceptions WHERE request_id = $1`, requestID)
	if pgxscan.NotFound(err) {
		return cab.Exception{}, false, nil
	}
	if err != nil {
		return cab.Exception{}, false, fmt.Errorf("cab exception for request %s: %w", requestID, err)
	}
	return row.exception(), true, nil
}

func (s *Store) ListExceptions(ctx context.Context, candidateID string) ([]cab.Exception, error) {
	var rows []exceptionRow
	if err := pgxscan.Select(ctx, s.db, &rows,
		`SELECT `+exceptionColumns+` FROM cab_exceptions WHERE candidate_id = $1 ORDER BY seq`,
		candidateID,
	); err != nil {
		return nil, fmt.Errorf("list cab exceptions for candidate %q: %w", candidateID, err)
	}
	out := make([]cab.Exception, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.exception())
	}
	return out, nil
}

func (s *Store) ListDecisions(ctx context.Context, candidateID string) ([]cab.Decision, error) {
	var rows []decisionRow
	if err := pgxscan.Select(ctx, s.db, &rows,
		`SELECT `+decisionColumns+` FROM cab_decisions WHERE candidate_id = $1 ORDER BY seq`,
		candidateID,
	); err != nil {
		return nil, fmt.Errorf("list cab decisions for candidate %q: %w", candidateID, err)
	}
	out := make([]cab.Decision, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.decision())
	}
	return out, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
