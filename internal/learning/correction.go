// Package learning implements the learning sidecar: the correction entity,
// its durable four-directory store, the validation gates, the pipeline
// driver, and the HTTP surface.
//
// A correction is a user-submitted candidate memory. It traverses the gate
// sequence G1 (sanity) → G2a (local fact-check) → optionally G2b (external
// fact-check) → G3 (human review) before being committed to the LLM
// sidecar's memory store.
package learning

import (
	"time"

	"github.com/google/uuid"
)

// Gate statuses shared by G1, G2a, and G2b.
const (
	GatePass   = "pass"
	GateReject = "reject"
	GateError  = "error"
)

// Gate 3 review statuses.
const (
	Gate3Pending  = "pending"
	Gate3Approved = "approved"
	Gate3Rejected = "rejected"
)

// Final statuses. The status walks a DAG that terminates at StatusApplied, a
// rejected status, or StatusGate1Error.
const (
	StatusProcessing     = "processing"
	StatusRejectedGate1  = "rejected_gate1"
	StatusGate1Error     = "gate1_error"
	StatusRejectedGate2A = "rejected_gate2a"
	StatusRejectedGate2B = "rejected_gate2b"
	StatusPending        = "pending"
	StatusRejectedGate3  = "rejected_gate3"
	StatusApproved       = "approved"
	StatusApplied        = "applied"
)

// GateResult records the outcome of one automated gate.
type GateResult struct {
	// Status is pass, reject, or error.
	Status string `json:"status"`

	// Reason explains the verdict.
	Reason string `json:"reason,omitempty"`

	// Confidence is set by gate 2a only, in [0, 1].
	Confidence *float64 `json:"confidence,omitempty"`

	// ProcessedAt is the RFC3339 UTC completion time.
	ProcessedAt string `json:"processed_at,omitempty"`
}

// Gate3Details records the human review stage.
type Gate3Details struct {
	// Status is pending, approved, or rejected.
	Status string `json:"status"`

	// SubmittedAt is when the correction entered review.
	SubmittedAt string `json:"submitted_at"`

	// ReviewedAt is when an admin acted, if they have.
	ReviewedAt string `json:"reviewed_at,omitempty"`

	// Reviewer is the admin who acted.
	Reviewer string `json:"reviewer,omitempty"`

	// RejectReason is required on rejection.
	RejectReason string `json:"reject_reason,omitempty"`
}

// Correction is the central entity of the learning pipeline.
type Correction struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Content     string `json:"content"`
	Source      string `json:"source"`
	SubmittedAt string `json:"submitted_at"`

	// PersonalInfo is true iff a configured keyword appears in Content.
	// Personal corrections never leave the machine for external fact-check.
	PersonalInfo bool `json:"personal_info"`

	Gate1  *GateResult   `json:"gate1"`
	Gate2A *GateResult   `json:"gate2a"`
	Gate2B *GateResult   `json:"gate2b"`
	Gate3  *Gate3Details `json:"gate3"`

	// AppliedAt and MemoryID are populated iff the correction was committed
	// to memory.
	AppliedAt string `json:"applied_at,omitempty"`
	MemoryID  string `json:"memory_id,omitempty"`

	FinalStatus string `json:"final_status"`
}

// NewCorrection creates a correction in the processing state.
func NewCorrection(userID, content, source string) *Correction {
	if source == "" {
		source = "user_correction"
	}
	return &Correction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Content:     content,
		Source:      source,
		SubmittedAt: nowRFC3339(),
		FinalStatus: StatusProcessing,
	}
}

// nowRFC3339 returns the current UTC time in RFC3339 format.
func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
