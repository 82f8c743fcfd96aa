// Package risk scores evidence records against versioned, weighted factor
// models. Scoring is a pure function of (evidence, model version).
package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ringgate/ringgate/internal/evidence"
	"github.com/ringgate/ringgate/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// FactorScore is the contribution of one factor to a total.
type FactorScore struct {
	Name         string   `json:"name"`
	Rule         RuleKind `json:"rule"`
	Weight       float64  `json:"weight"`
	Raw          float64  `json:"raw"`
	Normalized   float64  `json:"normalized"`
	Contribution float64  `json:"contribution"`
}

// Breakdown is the immutable outcome of scoring one evidence record with one
// model version.
type Breakdown struct {
	ID           string        `json:"id"`
	EvidenceID   string        `json:"evidence_id"`
	CandidateID  string        `json:"candidate_id"`
	ModelVersion string        `json:"model_version"`
	Factors      []FactorScore `json:"factors"`
	Total        int           `json:"total"`
	ComputedAt   time.Time     `json:"computed_at"`
}

// SameScore compares everything that scoring determines, ignoring the id and
// the computation timestamp.
func (b Breakdown) SameScore(o Breakdown) bool {
	if b.EvidenceID != o.EvidenceID || b.ModelVersion != o.ModelVersion || b.Total != o.Total {
		return false
	}
	if len(b.Factors) != len(o.Factors) {
		return false
	}
	for i := range b.Factors {
		if b.Factors[i] != o.Factors[i] {
			return false
		}
	}
	return true
}

func (b Breakdown) clone() Breakdown {
	out := b
	out.Factors = append([]FactorScore(nil), b.Factors...)
	return out
}

// Repository stores breakdowns insert-only, unique per (evidence id, model version).
type Repository interface {
	InsertBreakdown(ctx context.Context, b Breakdown) error
	FindBreakdown(ctx context.Context, evidenceID, modelVersion string) (Breakdown, bool, error)
	ListBreakdowns(ctx context.Context, candidateID string) ([]Breakdown, error)
}

// Compute applies every factor of m to rec. It reads no clock and no external
// state, so identical inputs always produce identical factors and total.
func Compute(rec evidence.Record, m Model) ([]FactorScore, int, error) {
	if err := m.Validate(); err != nil {
		return nil, 0, err
	}

	factors := make([]FactorScore, 0, len(m.Factors))
	var sum float64
	for _, f := range m.Factors {
		raw, normalized, err := f.Rule.evaluate(rec)
		if err != nil {
			var mf missingField
			if errors.As(err, &mf) {
				return nil, 0, &IncompleteEvidenceError{
					EvidenceID:   rec.ID,
					CandidateID:  rec.CandidateID,
					ModelVersion: m.Version,
					Factor:       f.Name,
					Field:        string(mf),
				}
			}
			return nil, 0, &ConfigError{Err: ErrInvalidModel, Version: m.Version, Reason: fmt.Sprintf("factor %q: %v", f.Name, err)}
		}
		contribution := f.Weight * normalized
		sum += contribution
		factors = append(factors, FactorScore{
			Name:         f.Name,
			Rule:         f.Rule.Kind,
			Weight:       f.Weight,
			Raw:          raw,
			Normalized:   normalized,
			Contribution: contribution,
		})
	}
	return factors, Total(sum), nil
}

// Total converts a weighted sum in [0,1] to the 0-100 score:
// clamp(0, 100, round-half-up(100 * sum)).
func Total(weightedSum float64) int {
	v := math.Floor(100*weightedSum + 0.5)
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return int(v)
}

type cacheKey struct {
	evidenceID   string
	modelVersion string
}

// Engine scores evidence and caches one breakdown per (evidence, version).
type Engine struct {
	Models *Registry
	Repo   Repository
	Now    func() time.Time
	NewID  func() string
	Logger *slog.Logger

	flight singleflight.Group
	mu     sync.RWMutex
	cache  map[cacheKey]Breakdown
}

func NewEngine(models *Registry, repo Repository, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{Models: models, Repo: repo, Logger: logger, cache: make(map[cacheKey]Breakdown)}
}

// Score verifies rec, then returns the breakdown for (rec, version). An empty
// version uses the registry default. Concurrent calls for the same pair share
// one computation.
func (e *Engine) Score(ctx context.Context, rec evidence.Record, version string) (Breakdown, error) {
	if e == nil || e.Models == nil {
		return Breakdown{}, errors.New("risk: engine is not configured")
	}
	if err := evidence.CheckIntegrity(rec); err != nil {
		metrics.IntegrityFailuresTotal.Inc()
		return Breakdown{}, err
	}

	m, err := e.Models.Lookup(version)
	if err != nil {
		return Breakdown{}, err
	}

	key := cacheKey{evidenceID: rec.ID, modelVersion: m.Version}
	if b, ok := e.cached(key); ok {
		metrics.RiskCacheHitsTotal.WithLabelValues("hit").Inc()
		return b, nil
	}
	metrics.RiskCacheHitsTotal.WithLabelValues("miss").Inc()

	v, err, _ := e.flight.Do(key.evidenceID+"\x00"+key.modelVersion, func() (any, error) {
		return e.scoreUncached(ctx, rec, m)
	})
	if err != nil {
		return Breakdown{}, err
	}
	b := v.(Breakdown)
	e.store(key, b)
	return b.clone(), nil
}

func (e *Engine) scoreUncached(ctx context.Context, rec evidence.Record, m Model) (Breakdown, error) {
	if e.Repo != nil {
		existing, ok, err := e.Repo.FindBreakdown(ctx, rec.ID, m.Version)
		if err != nil {
			return Breakdown{}, fmt.Errorf("find breakdown for evidence %s: %w", rec.ID, err)
		}
		if ok {
			return existing, nil
		}
	}

	factors, total, err := Compute(rec, m)
	if err != nil {
		return Breakdown{}, err
	}
	b := Breakdown{
		ID:           e.newID(),
		EvidenceID:   rec.ID,
		CandidateID:  rec.CandidateID,
		ModelVersion: m.Version,
		Factors:      factors,
		Total:        total,
		ComputedAt:   e.now().UTC().Truncate(time.Microsecond),
	}

	if e.Repo != nil {
		if err := e.Repo.InsertBreakdown(ctx, b); err != nil {
			if !errors.Is(err, ErrBreakdownExists) {
				return Breakdown{}, fmt.Errorf("insert breakdown for evidence %s: %w", rec.ID, err)
			}
			// Another process scored the same pair first; its record is the one of record.
			existing, ok, ferr := e.Repo.FindBreakdown(ctx, rec.ID, m.Version)
			if ferr != nil || !ok {
				return Breakdown{}, fmt.Errorf("reload breakdown for evidence %s: %w", rec.ID, errors.Join(err, ferr))
			}
			b = existing
		}
	}

	metrics.RiskScores.WithLabelValues(m.Version).Observe(float64(b.Total))
	e.logger().Info("risk scored",
		"candidate_id", rec.CandidateID,
		"evidence_id", rec.ID,
		"model_version", m.Version,
		"total", b.Total,
	)
	return b, nil
}

func (e *Engine) cached(key cacheKey) (Breakdown, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.cache[key]
	if !ok {
		return Breakdown{}, false
	}
	return b.clone(), true
}

func (e *Engine) store(key cacheKey, b Breakdown) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cache == nil {
		e.cache = make(map[cacheKey]Breakdown)
	}
	if _, ok := e.cache[key]; !ok {
		e.cache[key] = b.clone()
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
