// Package evidence freezes the artifact, test, scan and rollback facts of a
// deployment candidate into hash-verified, insert-only records.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ringgate/ringgate/internal/metrics"
)

// Store validates submissions and guards every read with a hash check.
type Store struct {
	Repo   Repository
	Now    func() time.Time
	NewID  func() string
	Logger *slog.Logger
}

func NewStore(repo Repository, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{Repo: repo, Logger: logger}
}

// Submit validates every category and persists a new record. It is
// all-or-nothing: an invalid submission stores nothing.
func (s *Store) Submit(ctx context.Context, sub Submission) (Record, error) {
	if s == nil || s.Repo == nil {
		return Record{}, errors.New("evidence: store is not configured")
	}

	if err := validateSubmission(sub); err != nil {
		metrics.EvidenceSubmissionsTotal.WithLabelValues("rejected").Inc()
		s.logger().Debug("evidence rejected",
			"correlation_id", sub.CorrelationID,
			"candidate_id", sub.CandidateID,
			"error", err,
		)
		return Record{}, err
	}

	rec := Record{
		ID:          s.newID(),
		CandidateID: strings.TrimSpace(sub.CandidateID),
		Artifact:    *sub.Artifact,
		Tests:       *sub.Tests,
		Scans: SeverityCounts{
			Critical: *sub.Scans.Critical,
			High:     *sub.Scans.High,
			Medium:   *sub.Scans.Medium,
			Low:      *sub.Scans.Low,
		},
		Rollback: *sub.Rollback,
		// Storage backends keep microseconds; hash what will be read back.
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}
	rec = rec.Clone()
	rec.Hash = ComputeHash(rec)

	if err := s.Repo.InsertEvidence(ctx, rec); err != nil {
		metrics.EvidenceSubmissionsTotal.WithLabelValues("error").Inc()
		return Record{}, fmt.Errorf("insert evidence for candidate %q: %w", rec.CandidateID, err)
	}

	metrics.EvidenceSubmissionsTotal.WithLabelValues("accepted").Inc()
	s.logger().Info("evidence recorded",
		"correlation_id", sub.CorrelationID,
		"candidate_id", rec.CandidateID,
		"evidence_id", rec.ID,
		"hash", rec.Hash,
	)
	return rec, nil
}

// Verify reports whether rec still matches its verification hash.
func (s *Store) Verify(rec Record) bool {
	return Verify(rec)
}

// Get loads a record by id and fails with an IntegrityError if it was altered.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	rec, err := s.Repo.GetEvidence(ctx, id)
	if err != nil {
		return Record{}, err
	}
	return s.guard(rec)
}

// Latest loads the most recent record submitted for a candidate.
func (s *Store) Latest(ctx context.Context, candidateID string) (Record, error) {
	rec, err := s.Repo.LatestEvidence(ctx, strings.TrimSpace(candidateID))
	if err != nil {
		return Record{}, err
	}
	return s.guard(rec)
}

// List returns every record for a candidate, oldest first. A single tampered
// record fails the whole listing.
func (s *Store) List(ctx context.Context, candidateID string) ([]Record, error) {
	recs, err := s.Repo.ListEvidence(ctx, strings.TrimSpace(candidateID))
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if _, err := s.guard(rec); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

func (s *Store) guard(rec Record) (Record, error) {
	if err := checkIntegrity(rec); err != nil {
		metrics.IntegrityFailuresTotal.Inc()
		s.logger().Error("evidence integrity failure",
			"candidate_id", rec.CandidateID,
			"evidence_id", rec.ID,
			"error", err,
		)
		return Record{}, err
	}
	return rec, nil
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Store) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *Store) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
