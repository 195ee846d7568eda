package service

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/exambuddy/exambuddy-backend/internal/model"
	"github.com/exambuddy/exambuddy-backend/internal/repository"
)

// fakeSessionStore mimics the Postgres repository, including the terminal
// guard on Save.
type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*model.ExamSession
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[uuid.UUID]*model.ExamSession)}
}

func (f *fakeSessionStore) Create(_ context.Context, s *model.ExamSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeSessionStore) GetByID(_ context.Context, id uuid.UUID) (*model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionStore) Save(_ context.Context, s *model.ExamSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.sessions[s.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if stored.Terminal() {
		return repository.ErrTerminalConflict
	}
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeSessionStore) GetActiveByCandidate(_ context.Context, candidateID int) (*model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.CandidateID == candidateID && !s.Terminal() {
			cp := *s
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeSessionStore) ListLapsedReviews(_ context.Context, now time.Time) ([]model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var lapsed []model.ExamSession
	for _, s := range f.sessions {
		if s.Status != model.SessionStatusReview {
			continue
		}
		if deadline, ok := s.ReviewDeadline(); ok && !now.Before(deadline) {
			lapsed = append(lapsed, *s)
		}
	}
	return lapsed, nil
}

// fakeTimingStore mimics the write-once timing repository: the first start
// and the first decision stick. getCalls counts reads so tests can verify
// cache-hit paths skip the store.
type fakeTimingStore struct {
	mu       sync.Mutex
	records  map[[2]uuid.UUID]*model.TimingRecord
	getCalls int
}

func newFakeTimingStore() *fakeTimingStore {
	return &fakeTimingStore{records: make(map[[2]uuid.UUID]*model.TimingRecord)}
}

func (f *fakeTimingStore) StartQuestion(_ context.Context, rec *model.TimingRecord) (*model.TimingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := [2]uuid.UUID{rec.SessionID, rec.QuestionID}
	if existing, ok := f.records[key]; ok {
		cp := *existing
		return &cp, nil
	}
	cp := *rec
	f.records[key] = &cp
	out := cp
	return &out, nil
}

func (f *fakeTimingStore) Get(_ context.Context, sessionID, questionID uuid.UUID) (*model.TimingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	rec, ok := f.records[[2]uuid.UUID{sessionID, questionID}]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeTimingStore) Decide(_ context.Context, sessionID, questionID uuid.UUID, decision model.TimingDecision, reason model.RejectReason, decidedAt time.Time) (*model.TimingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[[2]uuid.UUID{sessionID, questionID}]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if rec.Decision == model.TimingPending {
		rec.Decision = decision
		rec.RejectReason = reason
		at := decidedAt
		rec.DecidedAt = &at
	}
	cp := *rec
	return &cp, nil
}

// fakeStartCache round-trips timing windows through the same encoding the
// Redis gateway uses, so precision loss in the encoding would surface here.
type fakeStartCache struct {
	mu     sync.Mutex
	values map[[2]uuid.UUID]string
}

func newFakeStartCache() *fakeStartCache {
	return &fakeStartCache{values: make(map[[2]uuid.UUID]string)}
}

func (f *fakeStartCache) GetStart(_ context.Context, sessionID, questionID uuid.UUID) (time.Time, time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	val, ok := f.values[[2]uuid.UUID{sessionID, questionID}]
	if !ok {
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

func (f *fakeStartCache) SetStart(_ context.Context, sessionID, questionID uuid.UUID, start time.Time, allowed time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	val := strconv.FormatInt(start.UnixNano(), 10) + ":" + strconv.Itoa(int(allowed/time.Second))
	f.values[[2]uuid.UUID{sessionID, questionID}] = val
}

func (f *fakeStartCache) drop(sessionID, questionID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, [2]uuid.UUID{sessionID, questionID})
}

// fakeAnswerCache mirrors the Redis answer hash, counting reads so tests can
// tell whether a snapshot was served from the mirror.
type fakeAnswerCache struct {
	mu      sync.Mutex
	answers map[uuid.UUID]map[uuid.UUID]model.AnswerRecord
	hits    int
}

func newFakeAnswerCache() *fakeAnswerCache {
	return &fakeAnswerCache{answers: make(map[uuid.UUID]map[uuid.UUID]model.AnswerRecord)}
}

func (f *fakeAnswerCache) CacheAnswers(_ context.Context, sessionID uuid.UUID, answers map[uuid.UUID]model.AnswerRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make(map[uuid.UUID]model.AnswerRecord, len(answers))
	for qid, rec := range answers {
		cp[qid] = rec
	}
	f.answers[sessionID] = cp
}

func (f *fakeAnswerCache) GetAnswers(_ context.Context, sessionID uuid.UUID) (map[uuid.UUID]model.AnswerRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.answers[sessionID]
	if !ok || len(stored) == 0 {
		return nil, false
	}
	f.hits++
	cp := make(map[uuid.UUID]model.AnswerRecord, len(stored))
	for qid, rec := range stored {
		cp[qid] = rec
	}
	return cp, true
}

func (f *fakeAnswerCache) ClearSessionCache(_ context.Context, sessionID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.answers, sessionID)
}

// fakeQuestionBank serves a fixed set of questions.
type fakeQuestionBank struct {
	questions []model.Question
}

func (f *fakeQuestionBank) RandomSelect(_ context.Context, projectID uuid.UUID, difficulty model.Difficulty, count int) ([]model.Question, error) {
	var out []model.Question
	for _, q := range f.questions {
		if q.ProjectID == projectID && q.Difficulty == difficulty && len(out) < count {
			out = append(out, q)
		}
	}
	return out, nil
}

func (f *fakeQuestionBank) GetByIDs(_ context.Context, ids []uuid.UUID) ([]model.Question, error) {
	var out []model.Question
	for _, id := range ids {
		for _, q := range f.questions {
			if q.ID == id {
				out = append(out, q)
			}
		}
	}
	return out, nil
}

// fakeAttemptQueue collects enqueued attempts.
type fakeAttemptQueue struct {
	mu       sync.Mutex
	attempts []*model.Attempt
}

func (f *fakeAttemptQueue) EnqueueAttempt(_ context.Context, a *model.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, a)
	return nil
}

// fakeAuditTrail collects recorded violations.
type fakeAuditTrail struct {
	mu         sync.Mutex
	violations []*model.TimingViolation
}

func (f *fakeAuditTrail) RecordViolation(_ context.Context, v *model.TimingViolation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.violations = append(f.violations, v)
	return nil
}
