package service

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/exambuddy/exambuddy-backend/internal/config"
	"github.com/exambuddy/exambuddy-backend/internal/model"
)

// SessionStore persists the session aggregate. The repository implementation
// guards terminal transitions; tests use an in-memory fake.
type SessionStore interface {
	Create(ctx context.Context, s *model.ExamSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	Save(ctx context.Context, s *model.ExamSession) error
	GetActiveByCandidate(ctx context.Context, candidateID int) (*model.ExamSession, error)
	ListLapsedReviews(ctx context.Context, now time.Time) ([]model.ExamSession, error)
}

// TimingStore is the write-once timing record store. StartQuestion and
// Decide are conditional writes: a repeated call returns the original record
// rather than overwriting it.
type TimingStore interface {
	StartQuestion(ctx context.Context, rec *model.TimingRecord) (*model.TimingRecord, error)
	Get(ctx context.Context, sessionID, questionID uuid.UUID) (*model.TimingRecord, error)
	Decide(ctx context.Context, sessionID, questionID uuid.UUID, decision model.TimingDecision, reason model.RejectReason, decidedAt time.Time) (*model.TimingRecord, error)
}

// QuestionBank supplies questions for sessions. External collaborator; the
// session engine only reads from it.
type QuestionBank interface {
	RandomSelect(ctx context.Context, projectID uuid.UUID, difficulty model.Difficulty, count int) ([]model.Question, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error)
}

// AttemptQueue hands finished attempts to the persistence worker.
type AttemptQueue interface {
	EnqueueAttempt(ctx context.Context, a *model.Attempt) error
}

// AuditTrail records timing violations for operator review. Violations never
// block the candidate.
type AuditTrail interface {
	RecordViolation(ctx context.Context, v *model.TimingViolation) error
}

// StartTimeCache is the Redis fast lane for per-question timing windows. A
// hit serves both the server start timestamp and the allowed duration, so
// validation skips the Postgres read; a miss falls back to the timing store,
// which self-heals the cache. The cached start must carry full precision:
// the store's timestamp is authoritative and a truncated copy would shift
// elapsed-time decisions.
type StartTimeCache interface {
	GetStart(ctx context.Context, sessionID, questionID uuid.UUID) (time.Time, time.Duration, bool)
	SetStart(ctx context.Context, sessionID, questionID uuid.UUID, start time.Time, allowed time.Duration)
}

// AnswerCache mirrors answered questions into Redis so reconnecting clients
// can restore their answer sheet. The session row stays the source of truth;
// all three operations are best effort.
type AnswerCache interface {
	CacheAnswers(ctx context.Context, sessionID uuid.UUID, answers map[uuid.UUID]model.AnswerRecord)
	GetAnswers(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]model.AnswerRecord, bool)
	ClearSessionCache(ctx context.Context, sessionID uuid.UUID)
}

// RedisGateway implements the Redis-backed caches and queues the services
// and workers share.
type RedisGateway struct {
	rdb *redis.Client
}

// NewRedisGateway creates a RedisGateway.
func NewRedisGateway(rdb *redis.Client) *RedisGateway {
	return &RedisGateway{rdb: rdb}
}

// GetStart reads a cached (start, allowed duration) pair.
func (g *RedisGateway) GetStart(ctx context.Context, sessionID, questionID uuid.UUID) (time.Time, time.Duration, bool) {
	key := config.CacheKey.QuestionStartKey(sessionID.String(), questionID.String())
	val, err := g.rdb.Get(ctx, key).Result()
	if err != nil {
		return time.Time{}, 0, false
	}
	nanoStr, secsStr, ok := strings.Cut(val, ":")
	if !ok {
		return time.Time{}, 0, false
	}
	nano, err := strconv.ParseInt(nanoStr, 10, 64)
	if err != nil {
		return time.Time{}, 0, false
	}
	secs, err := strconv.Atoi(secsStr)
	if err != nil || secs <= 0 {
		return time.Time{}, 0, false
	}
	return time.Unix(0, nano), time.Duration(secs) * time.Second, true
}

// SetStart caches the full-precision start timestamp together with the
// allowed duration. Best effort — a failed write just means the next read
// falls back to the timing store.
func (g *RedisGateway) SetStart(ctx context.Context, sessionID, questionID uuid.UUID, start time.Time, allowed time.Duration) {
	key := config.CacheKey.QuestionStartKey(sessionID.String(), questionID.String())
	val := strconv.FormatInt(start.UnixNano(), 10) + ":" + strconv.Itoa(int(allowed/time.Second))
	_ = g.rdb.Set(ctx, key, val, 24*time.Hour).Err()
}

// EnqueueAttempt pushes a finished attempt onto the persistence queue.
func (g *RedisGateway) EnqueueAttempt(ctx context.Context, a *model.Attempt) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return g.rdb.RPush(ctx, config.WorkerKey.PersistAttemptsQueue, raw).Err()
}

// RecordViolation pushes a timing violation onto the audit queue.
func (g *RedisGateway) RecordViolation(ctx context.Context, v *model.TimingViolation) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return g.rdb.RPush(ctx, config.WorkerKey.PersistTimingAuditQueue, raw).Err()
}

// CacheAnswers mirrors a session's answered map into Redis so a page reload
// can restore state without touching Postgres.
func (g *RedisGateway) CacheAnswers(ctx context.Context, sessionID uuid.UUID, answers map[uuid.UUID]model.AnswerRecord) {
	key := config.CacheKey.SessionAnswersKey(sessionID.String())
	if len(answers) == 0 {
		return
	}
	fields := make(map[string]interface{}, len(answers))
	for qid, rec := range answers {
		raw, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		fields[qid.String()] = raw
	}
	_ = g.rdb.HSet(ctx, key, fields).Err()
}

// GetAnswers reads the mirrored answer map. Any decode problem is treated
// as a miss; the caller falls back to the session row.
func (g *RedisGateway) GetAnswers(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]model.AnswerRecord, bool) {
	key := config.CacheKey.SessionAnswersKey(sessionID.String())
	fields, err := g.rdb.HGetAll(ctx, key).Result()
	if err != nil || len(fields) == 0 {
		return nil, false
	}
	answers := make(map[uuid.UUID]model.AnswerRecord, len(fields))
	for field, raw := range fields {
		qid, err := uuid.Parse(field)
		if err != nil {
			return nil, false
		}
		var rec model.AnswerRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, false
		}
		answers[qid] = rec
	}
	return answers, true
}

// ClearSessionCache drops all cached state for a finished session.
func (g *RedisGateway) ClearSessionCache(ctx context.Context, sessionID uuid.UUID) {
	_ = g.rdb.Del(ctx, config.CacheKey.SessionAnswersKey(sessionID.String())).Err()
}
