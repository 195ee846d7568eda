package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/exambuddy/exambuddy-backend/internal/model"
)

// TimingRepository persists the write-once timing records that back the
// server-authoritative validator. Each (session_id, question_id) row is a
// single-writer resource: the insert and the decision are both conditional
// writes, so duplicate submissions from retries or double-clicks collapse
// onto the first outcome.
type TimingRepository struct {
	pool *pgxpool.Pool
}

// NewTimingRepository creates a new TimingRepository.
func NewTimingRepository(pool *pgxpool.Pool) *TimingRepository {
	return &TimingRepository{pool: pool}
}

const timingColumns = `session_id, question_id, server_started_at,
	allowed_duration_seconds, decision, reject_reason, decided_at`

// StartQuestion records the server start time for a question exactly once.
// A concurrent or repeated start returns the original record unchanged.
func (r *TimingRepository) StartQuestion(ctx context.Context, rec *model.TimingRecord) (*model.TimingRecord, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO timing_records
		   (session_id, question_id, server_started_at, allowed_duration_seconds, decision)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (session_id, question_id) DO NOTHING
		 RETURNING `+timingColumns,
		rec.SessionID, rec.QuestionID, rec.ServerStartedAt,
		rec.AllowedDurationSeconds, model.TimingPending,
	)
	stored, err := scanTimingRecord(row)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	// Conflict: the row already exists, its server_started_at is
	// authoritative.
	return r.Get(ctx, rec.SessionID, rec.QuestionID)
}

// Get fetches the timing record for a (session, question) pair.
func (r *TimingRepository) Get(ctx context.Context, sessionID, questionID uuid.UUID) (*model.TimingRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+timingColumns+` FROM timing_records
		 WHERE session_id = $1 AND question_id = $2`,
		sessionID, questionID)
	return scanTimingRecord(row)
}

// Decide writes the terminal decision via compare-and-swap on "decision
// absent". Exactly one decision persists; a losing or repeated call returns
// the original decision so retried network calls are idempotent.
func (r *TimingRepository) Decide(
	ctx context.Context,
	sessionID, questionID uuid.UUID,
	decision model.TimingDecision,
	reason model.RejectReason,
	decidedAt time.Time,
) (*model.TimingRecord, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE timing_records
		 SET decision = $3, reject_reason = $4, decided_at = $5
		 WHERE session_id = $1 AND question_id = $2 AND decision = $6
		 RETURNING `+timingColumns,
		sessionID, questionID, decision, reason, decidedAt, model.TimingPending,
	)
	stored, err := scanTimingRecord(row)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	// Lost the CAS: a decision already exists, return it untouched.
	return r.Get(ctx, sessionID, questionID)
}

func scanTimingRecord(row rowScanner) (*model.TimingRecord, error) {
	rec := &model.TimingRecord{}
	var reason *string
	err := row.Scan(
		&rec.SessionID, &rec.QuestionID, &rec.ServerStartedAt,
		&rec.AllowedDurationSeconds, &rec.Decision, &reason, &rec.DecidedAt,
	)
	if err != nil {
		return nil, err
	}
	if reason != nil {
		rec.RejectReason = model.RejectReason(*reason)
	}
	return rec, nil
}
