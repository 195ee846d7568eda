package model

import (
	"time"

	"github.com/google/uuid"
)

// TimingDecision is the server's verdict on one question submission.
type TimingDecision string

const (
	TimingPending  TimingDecision = "PENDING"
	TimingAccepted TimingDecision = "ACCEPTED"
	TimingRejected TimingDecision = "REJECTED"
)

// RejectReason explains a rejected (or flagged) submission.
type RejectReason string

const (
	RejectNone        RejectReason = ""
	RejectTimeExpired RejectReason = "TIME_EXPIRED"
	RejectDiscrepancy RejectReason = "TIMING_DISCREPANCY"
)

// TimingRecord is the server-authoritative timing state for one
// (session, question) pair. ServerStartedAt is written exactly once when the
// question becomes current; the decision is written exactly once when the
// first submission for the question is evaluated. Retries read the original.
type TimingRecord struct {
	SessionID              uuid.UUID      `json:"session_id"`
	QuestionID             uuid.UUID      `json:"question_id"`
	ServerStartedAt        time.Time      `json:"server_started_at"`
	AllowedDurationSeconds int            `json:"allowed_duration_seconds"`
	Decision               TimingDecision `json:"decision"`
	RejectReason           RejectReason   `json:"reject_reason,omitempty"`
	DecidedAt              *time.Time     `json:"decided_at,omitempty"`
}

// Decided reports whether the terminal decision has been written.
func (r *TimingRecord) Decided() bool {
	return r.Decision != TimingPending
}

// TimingViolation is an audit event for a rejected or flagged submission.
// Violations never block the candidate; they are queued for operator review.
type TimingViolation struct {
	SessionID            uuid.UUID    `json:"session_id"`
	QuestionID           uuid.UUID    `json:"question_id"`
	CandidateID          int          `json:"candidate_id"`
	Reason               RejectReason `json:"reason"`
	ServerElapsedSeconds float64      `json:"server_elapsed_seconds"`
	ClientElapsedSeconds float64      `json:"client_elapsed_seconds"`
	OccurredAt           time.Time    `json:"occurred_at"`
}
