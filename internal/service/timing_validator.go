package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/exambuddy/exambuddy-backend/internal/clock"
	"github.com/exambuddy/exambuddy-backend/internal/config"
	"github.com/exambuddy/exambuddy-backend/internal/model"
)

// Verdict is the outcome of validating one submission.
type Verdict struct {
	Accepted             bool
	TimeExpired          bool
	RejectReason         model.RejectReason
	ServerElapsedSeconds float64
}

// TimingValidator enforces server-authoritative timing. The server's start
// timestamp for each question is the only clock that matters; client-reported
// elapsed time is used solely to detect manipulation.
type TimingValidator struct {
	cfg   *config.Config
	clk   clock.Clock
	store TimingStore
	cache StartTimeCache
	audit AuditTrail
	log   zerolog.Logger
}

// NewTimingValidator creates a TimingValidator. cache and audit may be nil in
// tests; both degrade gracefully.
func NewTimingValidator(cfg *config.Config, clk clock.Clock, store TimingStore, cache StartTimeCache, audit AuditTrail, log zerolog.Logger) *TimingValidator {
	if clk == nil {
		clk = clock.System{}
	}
	return &TimingValidator{
		cfg:   cfg,
		clk:   clk,
		store: store,
		cache: cache,
		audit: audit,
		log:   log,
	}
}

// StartQuestion records the server start timestamp for a question. The write
// is once-only: re-presenting the same question returns the original record,
// so a page reload never restarts the clock.
func (v *TimingValidator) StartQuestion(ctx context.Context, sessionID, questionID uuid.UUID, allowed time.Duration) (*model.TimingRecord, error) {
	rec, err := v.store.StartQuestion(ctx, &model.TimingRecord{
		SessionID:              sessionID,
		QuestionID:             questionID,
		ServerStartedAt:        v.clk.Now(),
		AllowedDurationSeconds: int(allowed / time.Second),
		Decision:               model.TimingPending,
	})
	if err != nil {
		return nil, fmt.Errorf("start question timing: %w", err)
	}
	if v.cache != nil {
		v.cache.SetStart(ctx, sessionID, questionID, rec.ServerStartedAt,
			time.Duration(rec.AllowedDurationSeconds)*time.Second)
	}
	return rec, nil
}

// Validate evaluates a submission against the server-recorded start time and
// writes the decision. The decision write is compare-and-set on PENDING, so a
// retried submission gets the verdict of the first attempt rather than a
// second evaluation at a later timestamp.
func (v *TimingValidator) Validate(ctx context.Context, sessionID, questionID uuid.UUID, candidateID int, req *model.SubmitAnswerRequest) (*Verdict, error) {
	now := v.clk.Now()

	start, allowed, err := v.startAndBudget(ctx, sessionID, questionID)
	if err != nil {
		return nil, err
	}

	serverElapsed := now.Sub(start)
	verdict := v.evaluate(serverElapsed, allowed, req)

	decision := model.TimingAccepted
	if !verdict.Accepted {
		decision = model.TimingRejected
	}
	rec, err := v.store.Decide(ctx, sessionID, questionID, decision, verdict.RejectReason, now)
	if err != nil {
		return nil, fmt.Errorf("record timing decision: %w", err)
	}

	// A prior decision exists: this submission is a retry. Hand back the
	// original verdict so duplicates stay idempotent.
	if rec.Decision != decision || (rec.DecidedAt != nil && !rec.DecidedAt.Equal(now)) {
		return v.verdictFromRecord(rec, serverElapsed), nil
	}

	if verdict.RejectReason == model.RejectDiscrepancy {
		v.reportViolation(ctx, sessionID, questionID, candidateID, verdict, req.ClientElapsedSeconds, now)
	}

	return verdict, nil
}

// startAndBudget fetches the server start timestamp and allowed duration.
// The Redis fast lane is tried first; a hit skips the Postgres read
// entirely, a miss falls back to the timing store and re-primes the cache.
// Both sources carry the same full-precision timestamp, so the decision is
// identical either way.
func (v *TimingValidator) startAndBudget(ctx context.Context, sessionID, questionID uuid.UUID) (time.Time, time.Duration, error) {
	if v.cache != nil {
		if start, allowed, ok := v.cache.GetStart(ctx, sessionID, questionID); ok {
			return start, allowed, nil
		}
	}

	rec, err := v.store.Get(ctx, sessionID, questionID)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("load timing record: %w", err)
	}
	allowed := time.Duration(rec.AllowedDurationSeconds) * time.Second
	if v.cache != nil {
		v.cache.SetStart(ctx, sessionID, questionID, rec.ServerStartedAt, allowed)
	}
	return rec.ServerStartedAt, allowed, nil
}

// evaluate applies the timing rules to a fresh submission.
func (v *TimingValidator) evaluate(serverElapsed, allowed time.Duration, req *model.SubmitAnswerRequest) *Verdict {
	verdict := &Verdict{ServerElapsedSeconds: serverElapsed.Seconds()}

	// Over budget. A client that honestly flagged expiry gets the answer
	// recorded as expired and unanswered; one that claims an in-time answer
	// after the window closed is rejected.
	if serverElapsed > allowed+v.cfg.Timing.GracePeriod {
		if req.TimeExpired {
			verdict.Accepted = true
			verdict.TimeExpired = true
			return verdict
		}
		verdict.RejectReason = model.RejectTimeExpired
		return verdict
	}

	// Inside the window but the client clock disagrees too much.
	drift := math.Abs(serverElapsed.Seconds() - req.ClientElapsedSeconds)
	if drift > v.cfg.Timing.DiscrepancyThreshold.Seconds() {
		verdict.RejectReason = model.RejectDiscrepancy
		return verdict
	}

	verdict.Accepted = true
	verdict.TimeExpired = req.TimeExpired
	return verdict
}

// verdictFromRecord reconstructs the original verdict for a duplicate
// submission.
func (v *TimingValidator) verdictFromRecord(rec *model.TimingRecord, serverElapsed time.Duration) *Verdict {
	return &Verdict{
		Accepted:             rec.Decision == model.TimingAccepted,
		TimeExpired:          rec.Decision == model.TimingAccepted && rec.DecidedAt != nil && rec.DecidedAt.Sub(rec.ServerStartedAt) > time.Duration(rec.AllowedDurationSeconds)*time.Second+v.cfg.Timing.GracePeriod,
		RejectReason:         rec.RejectReason,
		ServerElapsedSeconds: serverElapsed.Seconds(),
	}
}

func (v *TimingValidator) reportViolation(ctx context.Context, sessionID, questionID uuid.UUID, candidateID int, verdict *Verdict, clientElapsed float64, now time.Time) {
	v.log.Warn().
		Str("session_id", sessionID.String()).
		Str("question_id", questionID.String()).
		Float64("server_elapsed", verdict.ServerElapsedSeconds).
		Float64("client_elapsed", clientElapsed).
		Msg("timing discrepancy detected")

	if v.audit == nil {
		return
	}
	err := v.audit.RecordViolation(ctx, &model.TimingViolation{
		SessionID:            sessionID,
		QuestionID:           questionID,
		CandidateID:          candidateID,
		Reason:               model.RejectDiscrepancy,
		ServerElapsedSeconds: verdict.ServerElapsedSeconds,
		ClientElapsedSeconds: clientElapsed,
		OccurredAt:           now,
	})
	if err != nil {
		v.log.Error().Err(err).Msg("failed to enqueue timing violation")
	}
}
