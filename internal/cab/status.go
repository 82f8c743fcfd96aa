package cab

import "time"

// Status is the state of an approval request.
type Status string

const (
	StatusPending              Status = "PENDING"
	StatusAutoApproved         Status = "AUTO_APPROVED"
	StatusUnderReview          Status = "UNDER_REVIEW"
	StatusExceptionRequired    Status = "EXCEPTION_REQUIRED"
	StatusApproved             Status = "APPROVED"
	StatusRejected             Status = "REJECTED"
	StatusConditional          Status = "CONDITIONAL"
	StatusApprovedViaException Status = "APPROVED_VIA_EXCEPTION"
	StatusExpired              Status = "EXPIRED"
)

// transitions is the only place legal request moves are defined.
var transitions = map[Status][]Status{
	StatusPending:           {StatusAutoApproved, StatusUnderReview, StatusExceptionRequired},
	StatusUnderReview:       {StatusApproved, StatusRejected, StatusConditional},
	StatusExceptionRequired: {StatusApprovedViaException, StatusRejected, StatusExpired},
}

var openStatuses = []Status{StatusPending, StatusUnderReview, StatusExceptionRequired}

// OpenStatuses lists the non-terminal statuses. At most one request per
// (candidate, ring) may be in one of them.
func OpenStatuses() []Status {
	return append([]Status(nil), openStatuses...)
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAutoApproved, StatusUnderReview, StatusExceptionRequired,
		StatusApproved, StatusRejected, StatusConditional, StatusApprovedViaException, StatusExpired:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// Approved reports whether s authorizes promotion. CONDITIONAL counts as
// approved; its conditions are tracked on the decision, not enforced here.
func (s Status) Approved() bool {
	switch s {
	case StatusAutoApproved, StatusApproved, StatusConditional, StatusApprovedViaException:
		return true
	}
	return false
}

// CanTransition reports whether a request may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ExceptionStatus is the stored state of an exception. The effective state
// also depends on the current time, see Exception.EffectiveStatus.
type ExceptionStatus string

const (
	ExceptionPending  ExceptionStatus = "PENDING"
	ExceptionApproved ExceptionStatus = "APPROVED"
	ExceptionRejected ExceptionStatus = "REJECTED"
	ExceptionExpired  ExceptionStatus = "EXPIRED"
)

// DecisionKind is what a decision record says happened to its request.
type DecisionKind string

const (
	DecisionApproved             DecisionKind = "APPROVED"
	DecisionRejected             DecisionKind = "REJECTED"
	DecisionConditional          DecisionKind = "CONDITIONAL"
	DecisionApprovedViaException DecisionKind = "APPROVED_VIA_EXCEPTION"
	DecisionExpired              DecisionKind = "EXPIRED"
)

// SystemActor is the decision actor for automatic transitions.
const SystemActor = "system"

// Override names the hard rule that forced human review regardless of score.
type Override string

const (
	OverrideNone              Override = ""
	OverridePrivilegedTooling Override = "privileged_tooling"
	OverrideBusinessCritical  Override = "business_critical_ring"
)

// Request asks for approval of one candidate into one ring.
type Request struct {
	ID           string     `json:"id"`
	CandidateID  string     `json:"candidate_id"`
	Ring         string     `json:"ring"`
	EvidenceID   string     `json:"evidence_id"`
	BreakdownID  string     `json:"breakdown_id"`
	ModelVersion string     `json:"model_version"`
	RiskTotal    int        `json:"risk_total"`
	Status       Status     `json:"status"`
	Override     Override   `json:"override,omitempty"`
	Requester    string     `json:"requester"`
	CreatedAt    time.Time  `json:"created_at"`
	DecidedAt    *time.Time `json:"decided_at,omitempty"`

	// ExceptionExpiresAt is set when the request was approved through an
	// exception; the approval lapses at that instant.
	ExceptionExpiresAt *time.Time `json:"exception_expires_at,omitempty"`
	CorrelationID      string     `json:"correlation_id"`
}

// EffectiveStatus is the status as of now: an approval granted through an
// exception is EXPIRED once the exception's expiry has passed.
func (r Request) EffectiveStatus(now time.Time) Status {
	if r.Status == StatusApprovedViaException && r.ExceptionExpiresAt != nil && !now.Before(*r.ExceptionExpiresAt) {
		return StatusExpired
	}
	return r.Status
}

// Exception is a time-boxed override for a request in EXCEPTION_REQUIRED.
type Exception struct {
	ID          string          `json:"id"`
	RequestID   string          `json:"request_id"`
	CandidateID string          `json:"candidate_id"`
	Controls    []string        `json:"compensating_controls"`
	CreatedBy   string          `json:"created_by"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Status      ExceptionStatus `json:"status"`
	Reviewer    string          `json:"reviewer,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	DecidedAt   *time.Time      `json:"decided_at,omitempty"`
}

// Expired reports whether the exception's window has closed at now.
func (x Exception) Expired(now time.Time) bool {
	return !now.Before(x.ExpiresAt)
}

// EffectiveStatus never reports an expired exception as pending or approved,
// whatever its stored status says.
func (x Exception) EffectiveStatus(now time.Time) ExceptionStatus {
	switch x.Status {
	case ExceptionPending, ExceptionApproved:
		if x.Expired(now) {
			return ExceptionExpired
		}
	}
	return x.Status
}

// Active reports whether the exception currently authorizes its request.
func (x Exception) Active(now time.Time) bool {
	return x.EffectiveStatus(now) == ExceptionApproved
}

func (x Exception) Clone() Exception {
	out := x
	out.Controls = append([]string(nil), x.Controls...)
	return out
}

// Decision is the insert-only record of one decision on a request.
type Decision struct {
	ID            string       `json:"id"`
	RequestID     string       `json:"request_id"`
	ExceptionID   string       `json:"exception_id,omitempty"`
	CandidateID   string       `json:"candidate_id"`
	Kind          DecisionKind `json:"decision"`
	Conditions    []string     `json:"conditions,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Actor         string       `json:"actor"`
	CorrelationID string       `json:"correlation_id"`
	CreatedAt     time.Time    `json:"created_at"`
}

func (d Decision) Clone() Decision {
	out := d
	out.Conditions = append([]string(nil), d.Conditions...)
	return out
}
