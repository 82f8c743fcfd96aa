package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/ringgate/ringgate/internal/evidence"
	"github.com/ringgate/ringgate/internal/faults"
	"github.com/ringgate/ringgate/internal/risk"
)

const evidenceColumns = `id, candidate_id, artifact, tests, scans, rollback, hash, created_at`

type evidenceRow struct {
	ID          string    `db:"id"`
	CandidateID string    `db:"candidate_id"`
	Artifact    []byte    `db:"artifact"`
	Tests       []byte    `db:"tests"`
	Scans       []byte    `db:"scans"`
	Rollback    []byte    `db:"rollback"`
	Hash        string    `db:"hash"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r evidenceRow) record() (evidence.Record, error) {
	rec := evidence.Record{
		ID:          r.ID,
		CandidateID: r.CandidateID,
		Hash:        r.Hash,
		CreatedAt:   r.CreatedAt.UTC(),
	}
	parts := []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"artifact", r.Artifact, &rec.Artifact},
		{"tests", r.Tests, &rec.Tests},
		{"scans", r.Scans, &rec.Scans},
		{"rollback", r.Rollback, &rec.Rollback},
	}
	for _, p := range parts {
		if err := json.Unmarshal(p.raw, p.dst); err != nil {
			return evidence.Record{}, fmt.Errorf("decode %s of evidence %s: %w", p.name, r.ID, err)
		}
	}
	return rec, nil
}

func (s *Store) InsertEvidence(ctx context.Context, rec evidence.Record) error {
	artifact, err := json.Marshal(rec.Artifact)
	if err != nil {
		return err
	}
	tests, err := json.Marshal(rec.Tests)
	if err != nil {
		return err
	}
	scans, err := json.Marshal(rec.Scans)
	if err != nil {
		return err
	}
	rollback, err := json.Marshal(rec.Rollback)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO evidence_records (`+evidenceColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.CandidateID, artifact, tests, scans, rollback, rec.Hash, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert evidence %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Store) GetEvidence(ctx context.Context, id string) (evidence.Record, error) {
	var row evidenceRow
	err := pgxscan.Get(ctx, s.db, &row, `SELECT `+evidenceColumns+` FROM evidence_records WHERE id = $1`, id)
	if pgxscan.NotFound(err) {
		return evidence.Record{}, faults.NotFound{Entity: "evidence", ID: id}
	}
	if err != nil {
		return evidence.Record{}, fmt.Errorf("get evidence %s: %w", id, err)
	}
	return row.record()
}

func (s *Store) LatestEvidence(ctx context.Context, candidateID string) (evidence.Record, error) {
	var row evidenceRow
	err := pgxscan.Get(ctx, s.db, &row,
		`SELECT `+evidenceColumns+` FROM evidence_records WHERE candidate_id = $1 ORDER BY seq DESC LIMIT 1`,
		candidateID,
	)
	if pgxscan.NotFound(err) {
		return evidence.Record{}, faults.NotFound{Entity: "evidence for candidate", ID: candidateID}
	}
	if err != nil {
		return evidence.Record{}, fmt.Errorf("latest evidence for candidate %q: %w", candidateID, err)
	}
	return row.record()
}

func (s *Store) ListEvidence(ctx context.Context, candidateID string) ([]evidence.Record, error) {
	var rows []evidenceRow
	if err := pgxscan.Select(ctx, s.db, &rows,
		`SELECT `+evidenceColumns+` FROM evidence_records WHERE candidate_id = $1 ORDER BY seq`,
		candidateID,
	); err != nil {
		return nil, fmt.Errorf("list evidence for candidate %q: %w", candidateID, err)
	}
	out := make([]evidence.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Breakdowns

const breakdownColumns = `id, evidence_id, candidate_id, model_version, factors, total, computed_at`

type breakdownRow struct {
	ID           string    `db:"id"`
	EvidenceID   string    `db:"evidence_id"`
	CandidateID  string    `db:"candidate_id"`
	ModelVersion string    `db:"model_version"`
	Factors      []byte    `db:"factors"`
	Total        int       `db:"total"`
	ComputedAt   time.Time `db:"computed_at"`
}

func (r breakdownRow) breakdown() (risk.Breakdown, error) {
	b := risk.Breakdown{
		ID:           r.ID,
		EvidenceID:   r.EvidenceID,
		CandidateID:  r.CandidateID,
		ModelVersion: r.ModelVersion,
		Total:        r.Total,
		ComputedAt:   r.ComputedAt.UTC(),
	}
	if err := json.Unmarshal(r.Factors, &b.Factors); err != nil {
		return risk.Breakdown{}, fmt.Errorf("decode factors of breakdown %s: %w", r.ID, err)
	}
	return b, nil
}

func (s *Store) InsertBreakdown(ctx context.Context, b risk.Breakdown) error {
	factors, err := json.Marshal(b.Factors)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO risk_breakdowns (`+breakdownColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, b.EvidenceID, b.CandidateID, b.ModelVersion, factors, b.Total, b.ComputedAt,
	)
	if isUniqueViolation(err, constraintBreakdownVersion) {
		return risk.ErrBreakdownExists
	}
	if err != nil {
		return fmt.Errorf("insert breakdown for evidence %s (model %q): %w", b.EvidenceID, b.ModelVersion, err)
	}
	return nil
}

func (s *Store) FindBreakdown(ctx context.Context, evidenceID, modelVersion string) (risk.Breakdown, bool, error) {
	var row breakdownRow
	err := pgxscan.Get(ctx, s.db, &row,
		`SELECT `+breakdownColumns+` FROM risk_breakdowns WHERE evidence_id = $1 AND model_version = $2`,
		evidenceID, modelVersion,
	)
	if pgxscan.NotFound(err) {
		return risk.Breakdown{}, false, nil
	}
	if err != nil {
		return risk.Breakdown{}, false, fmt.Errorf("find breakdown for evidence %s (model %q): %w", evidenceID, modelVersion, err)
	}
	b, err := row.breakdown()
	if err != nil {
		return risk.Breakdown{}, false, err
	}
	return b, true, nil
}

func (s *Store) ListBreakdowns(ctx context.Context, candidateID string) ([]risk.Breakdown, error) {
	var rows []breakdownRow
	if err := pgxscan.Select(ctx, s.db, &rows,
		`SELECT `+breakdownColumns+` FROM risk_breakdowns WHERE candidate_id = $1 ORDER BY seq`,
		candidateID,
	); err != nil {
		return nil, fmt.Errorf("list breakdowns for candidate %q: %w", candidateID, err)
	}
	out := make([]risk.Breakdown, 0, len(rows))
	for _, row := range rows {
		b, err := row.breakdown()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
