package evidence

import (
	"context"
	"time"
)

// ArtifactIdentity identifies the exact artifact a candidate would deploy.
type ArtifactIdentity struct {
	Name              string `json:"name" validate:"required,notblank"`
	Version           string `json:"version" validate:"required,notblank"`
	ContentHash       string `json:"content_hash" validate:"required,contenthash"`
	SignatureRef      string `json:"signature_ref" validate:"required,notblank"`
	PrivilegedTooling bool   `json:"privileged_tooling"`
}

// TestResults summarises the test run of the artifact. CoveragePercent is
// optional; risk factors that need it fail scoring when it is absent. Each
// counter is capped at 1e9 so Executed cannot overflow.
type TestResults struct {
	Passed          int      `json:"passed" validate:"gte=0,lte=1000000000"`
	Failed          int      `json:"failed" validate:"gte=0,lte=1000000000"`
	Skipped         int      `json:"skipped" validate:"gte=0,lte=1000000000"`
	CoveragePercent *float64 `json:"coverage_percent,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// Executed is the number of tests that produced a pass or fail result.
func (t TestResults) Executed() int { return t.Passed + t.Failed }

// ScanResults is the submitted vulnerability summary. Every severity bucket
// must be reported, even when zero.
type ScanResults struct {
	Critical *int `json:"critical" validate:"required,gte=0"`
	High     *int `json:"high" validate:"required,gte=0"`
	Medium   *int `json:"medium" validate:"required,gte=0"`
	Low      *int `json:"low" validate:"required,gte=0"`
}

// SeverityCounts is the frozen form of ScanResults stored on a record.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

type RollbackPlan struct {
	Present     bool   `json:"present" validate:"required"`
	Description string `json:"description" validate:"required,notblank"`
	Validated   bool   `json:"validated"`
}

// Submission is the input of Store.Submit. Each category pointer must be set.
type Submission struct {
	CandidateID   string            `json:"candidate_id"`
	Artifact      *ArtifactIdentity `json:"artifact"`
	Tests         *TestResults      `json:"tests"`
	Scans         *ScanResults      `json:"scans"`
	Rollback      *RollbackPlan     `json:"rollback"`
	CorrelationID string            `json:"-"`
}

// Record is the frozen evidence for one deployment candidate. Records are
// never updated; readers must call Verify before trusting one.
type Record struct {
	ID          string           `json:"id"`
	CandidateID string           `json:"candidate_id"`
	Artifact    ArtifactIdentity `json:"artifact"`
	Tests       TestResults      `json:"tests"`
	Scans       SeverityCounts   `json:"scans"`
	Rollback    RollbackPlan     `json:"rollback"`
	Hash        string           `json:"hash"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Clone returns a deep copy so callers never share the coverage pointer.
func (r Record) Clone() Record {
	out := r
	if r.Tests.CoveragePercent != nil {
		v := *r.Tests.CoveragePercent
		out.Tests.CoveragePercent = &v
	}
	return out
}

// Repository persists evidence records. Implementations are insert-only.
type Repository interface {
	InsertEvidence(ctx context.Context, rec Record) error
	GetEvidence(ctx context.Context, id string) (Record, error)
	LatestEvidence(ctx context.Context, candidateID string) (Record, error)
	ListEvidence(ctx context.Context, candidateID string) ([]Record, error)
}
