package evidence

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"time"
)

const hashPrefix = "sha256:"

// canonicalRecord fixes the field order and time format that the verification
// hash is computed over. Changing it invalidates every stored record.
type canonicalRecord struct {
	ID          string           `json:"id"`
	CandidateID string           `json:"candidate_id"`
	Artifact    ArtifactIdentity `json:"artifact"`
	Tests       TestResults      `json:"tests"`
	Scans       SeverityCounts   `json:"scans"`
	Rollback    RollbackPlan     `json:"rollback"`
	CreatedAt   string           `json:"created_at"`
}

// ComputeHash returns the verification hash of every field of rec except Hash.
func ComputeHash(rec Record) string {
	b, err := json.Marshal(canonicalRecord{
		ID:          rec.ID,
		CandidateID: rec.CandidateID,
		Artifact:    rec.Artifact,
		Tests:       rec.Tests,
		Scans:       rec.Scans,
		Rollback:    rec.Rollback,
		CreatedAt:   rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		// Only plain strings, ints, bools and a finite float are marshalled.
		panic("evidence: canonical marshal: " + err.Error())
	}
	sum := sha256.Sum256(b)
	return hashPrefix + hex.EncodeToString(sum[:])
}

// Verify recomputes the hash of rec and compares it to the stored one.
func Verify(rec Record) bool {
	if rec.Hash == "" {
		return false
	}
	computed := ComputeHash(rec)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(rec.Hash)) == 1
}

func checkIntegrity(rec Record) error {
	if Verify(rec) {
		return nil
	}
	return &IntegrityError{
		RecordID:     rec.ID,
		CandidateID:  rec.CandidateID,
		StoredHash:   rec.Hash,
		ComputedHash: ComputeHash(rec),
	}
}

// CheckIntegrity returns an *IntegrityError when rec fails verification.
func CheckIntegrity(rec Record) error {
	return checkIntegrity(rec)
}
