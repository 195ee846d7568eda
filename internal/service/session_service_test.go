package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/exambuddy/exambuddy-backend/internal/clock"
	"github.com/exambuddy/exambuddy-backend/internal/model"
)

type harness struct {
	clk      *clock.Fake
	svc      *SessionService
	reviews  *ReviewCoordinator
	sessions *fakeSessionStore
	bank     *fakeQuestionBank
	queue    *fakeAttemptQueue
	cache    *fakeAnswerCache
}

// newHarness wires the full service stack against in-memory fakes. Each
// question is medium difficulty with a 60s budget.
func newHarness(projectID uuid.UUID, questionCount int) *harness {
	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	cfg := testTimingConfig()

	questions := make([]model.Question, questionCount)
	for i := range questions {
		questions[i] = model.Question{
			ID:            uuid.New(),
			ProjectID:     projectID,
			Text:          "q",
			AnswerOptions: []string{"a", "b", "c", "d"},
			CorrectIndex:  1,
			Difficulty:    model.DifficultyMedium,
		}
	}

	sessions := newFakeSessionStore()
	bank := &fakeQuestionBank{questions: questions}
	queue := &fakeAttemptQueue{}
	cache := newFakeAnswerCache()
	validator := NewTimingValidator(cfg, clk, newFakeTimingStore(), nil, &fakeAuditTrail{}, zerolog.Nop())
	svc := NewSessionService(cfg, clk, sessions, bank, validator, NewScoringEngine(), queue, cache, zerolog.Nop())
	reviews := NewReviewCoordinator(clk, sessions, bank, svc, zerolog.Nop())

	return &harness{clk: clk, svc: svc, reviews: reviews, sessions: sessions, bank: bank, queue: queue, cache: cache}
}

func (h *harness) start(t *testing.T, candidateID int, projectID uuid.UUID, mode string, count int) *StartSessionResult {
	t.Helper()
	result, err := h.svc.StartExam(context.Background(), candidateID, &model.StartSessionRequest{
		ProjectID:     projectID,
		Mode:          mode,
		Difficulty:    "medium",
		QuestionCount: count,
	})
	if err != nil {
		t.Fatalf("StartExam: %v", err)
	}
	return result
}

func (h *harness) answer(t *testing.T, candidateID int, sessionID, questionID uuid.UUID, idx int, elapsed float64) *SubmitAnswerResult {
	t.Helper()
	result, err := h.svc.SubmitAnswer(context.Background(), candidateID, sessionID, &model.SubmitAnswerRequest{
		QuestionID:           questionID,
		AnswerIndex:          &idx,
		ClientElapsedSeconds: elapsed,
	})
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	return result
}

func TestPracticeModeFullFlow(t *testing.T) {
	projectID := uuid.New()
	h := newHarness(projectID, 2)
	ctx := context.Background()

	started := h.start(t, 1, projectID, "practice", 2)
	if started.TotalAllowedSeconds != 120 {
		t.Fatalf("total allowed = %d, want 120", started.TotalAllowedSeconds)
	}

	// Correct answer to the first question with instant feedback.
	h.clk.Advance(10 * time.Second)
	r1 := h.answer(t, 1, started.SessionID, started.Question.ID, 1, 10)
	if !r1.Accepted {
		t.Fatalf("first answer not accepted: %+v", r1)
	}
	if r1.Feedback == nil || !*r1.Feedback {
		t.Fatal("practice mode should confirm a correct answer")
	}
	if r1.CorrectIndex == nil || *r1.CorrectIndex != 1 {
		t.Fatal("practice mode should reveal the correct index")
	}
	if r1.NextQuestion == nil {
		t.Fatal("expected next question")
	}
	if r1.Status != model.SessionStatusInProgress {
		t.Fatalf("status = %s, want IN_PROGRESS", r1.Status)
	}

	// Wrong answer to the last question finalizes immediately.
	h.clk.Advance(20 * time.Second)
	r2 := h.answer(t, 1, started.SessionID, r1.NextQuestion.ID, 3, 20)
	if r2.Status != model.SessionStatusSubmitted {
		t.Fatalf("status = %s, want SUBMITTED", r2.Status)
	}
	if r2.Feedback == nil || *r2.Feedback {
		t.Fatal("practice mode should flag a wrong answer")
	}

	report, err := h.svc.GetResult(ctx, 1, started.SessionID)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if report.Score != 50 {
		t.Fatalf("score = %v, want 50", report.Score)
	}
	if report.CorrectCount != 1 {
		t.Fatalf("correct = %d, want 1", report.CorrectCount)
	}

	if len(h.queue.attempts) != 1 {
		t.Fatalf("attempts enqueued = %d, want 1", len(h.queue.attempts))
	}
	if h.queue.attempts[0].Score != 50 {
		t.Fatalf("attempt score = %v, want 50", h.queue.attempts[0].Score)
	}
}

func TestExamModeEntersReviewAndFinalizes(t *testing.T) {
	projectID := uuid.New()
	h := newHarness(projectID, 2)
	ctx := context.Background()

	started := h.start(t, 1, projectID, "exam", 2)

	h.clk.Advance(5 * time.Second)
	r1 := h.answer(t, 1, started.SessionID, started.Question.ID, 1, 5)
	if r1.Feedback != nil {
		t.Fatal("exam mode must not reveal correctness mid-session")
	}

	// Wrong answer on the last question, then the session enters review.
	h.clk.Advance(5 * time.Second)
	r2 := h.answer(t, 1, started.SessionID, r1.NextQuestion.ID, 0, 5)
	if r2.Status != model.SessionStatusReview {
		t.Fatalf("status = %s, want REVIEW", r2.Status)
	}

	review, err := h.reviews.GetReview(ctx, 1, started.SessionID)
	if err != nil {
		t.Fatalf("GetReview: %v", err)
	}
	// Half of 120s.
	if review.RemainingSeconds != 60 {
		t.Fatalf("review remaining = %v, want 60", review.RemainingSeconds)
	}
	if len(review.Questions) != 2 {
		t.Fatalf("review questions = %d, want 2", len(review.Questions))
	}

	// Fix the wrong answer inside the window.
	h.clk.Advance(10 * time.Second)
	idx := 1
	err = h.reviews.EditAnswer(ctx, 1, started.SessionID, &EditAnswerRequest{
		QuestionID:  r1.NextQuestion.ID,
		AnswerIndex: &idx,
	})
	if err != nil {
		t.Fatalf("EditAnswer: %v", err)
	}

	report, err := h.reviews.SubmitReview(ctx, 1, started.SessionID)
	if err != nil {
		t.Fatalf("SubmitReview: %v", err)
	}
	if report.Score != 100 {
		t.Fatalf("score = %v, want 100", report.Score)
	}
}

func TestReviewEditRejectedAfterWindowCloses(t *testing.T) {
	projectID := uuid.New()
	h := newHarness(projectID, 1)
	ctx := context.Background()

	started := h.start(t, 1, projectID, "exam", 1)
	h.clk.Advance(5 * time.Second)
	h.answer(t, 1, started.SessionID, started.Question.ID, 0, 5)

	// Review window is 30s (half of 60). Jump past it.
	h.clk.Advance(31 * time.Second)
	idx := 1
	err := h.reviews.EditAnswer(ctx, 1, started.SessionID, &EditAnswerRequest{
		QuestionID:  started.Question.ID,
		AnswerIndex: &idx,
	})
	if !errors.Is(err, ErrReviewWindowClosed) {
		t.Fatalf("err = %v, want ErrReviewWindowClosed", err)
	}
}

func TestExpireLapsedAutoSubmits(t *testing.T) {
	projectID := uuid.New()
	h := newHarness(projectID, 1)
	ctx := context.Background()

	started := h.start(t, 1, projectID, "exam", 1)
	h.clk.Advance(5 * time.Second)
	h.answer(t, 1, started.SessionID, started.Question.ID, 1, 5)

	h.clk.Advance(31 * time.Second)
	closed, err := h.reviews.ExpireLapsed(ctx)
	if err != nil {
		t.Fatalf("ExpireLapsed: %v", err)
	}
	if closed != 1 {
		t.Fatalf("closed = %d, want 1", closed)
	}

	report, err := h.svc.GetResult(ctx, 1, started.SessionID)
	if err != nil {
		t.Fatalf("GetResult after auto-submit: %v", err)
	}
	if report.Score != 100 {
		t.Fatalf("score = %v, want 100", report.Score)
	}
	if len(h.queue.attempts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(h.queue.attempts))
	}
}

func TestCancelDiscardsSession(t *testing.T) {
	projectID := uuid.New()
	h := newHarness(projectID, 2)
	ctx := context.Background()

	started := h.start(t, 1, projectID, "exam", 2)

	if err := h.svc.Cancel(ctx, 1, started.SessionID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if _, err := h.svc.GetResult(ctx, 1, started.SessionID); !errors.Is(err, ErrResultUnavailable) {
		t.Fatalf("GetResult err = %v, want ErrResultUnavailable", err)
	}
	if len(h.queue.attempts) != 0 {
		t.Fatal("cancelled session must not produce an attempt")
	}

	// Second cancel loses against the terminal state.
	if err := h.svc.Cancel(ctx, 1, started.SessionID); !errors.Is(err, model.ErrSessionTerminal) {
		t.Fatalf("second Cancel err = %v, want ErrSessionTerminal", err)
	}
}

func TestStartExamRejectsSecondActiveSession(t *testing.T) {
	projectID := uuid.New()
	h := newHarness(projectID, 2)

	h.start(t, 1, projectID, "exam", 1)

	_, err := h.svc.StartExam(context.Background(), 1, &model.StartSessionRequest{
		ProjectID:     projectID,
		Mode:          "exam",
		Difficulty:    "medium",
		QuestionCount: 1,
	})
	if !errors.Is(err, ErrActiveSessionExists) {
		t.Fatalf("err = %v, want ErrActiveSessionExists", err)
	}
}

func TestStartExamRejectsUnmappedDifficulty(t *testing.T) {
	projectID := uuid.New()
	h := newHarness(projectID, 1)

	_, err := h.svc.StartExam(context.Background(), 1, &model.StartSessionRequest{
		ProjectID:     projectID,
		Mode:          "exam",
		Difficulty:    "nightmare",
		QuestionCount: 1,
	})
	if !errors.Is(err, ErrMissingDuration) {
		t.Fatalf("err = %v, want ErrMissingDuration", err)
	}
}

func TestSubmitAnswerOutOfOrder(t *testing.T) {
	projectID := uuid.New()
	h := newHarness(projectID, 3)
	ctx := context.Background()

	started := h.start(t, 1, projectID, "exam", 3)

	// Find a session question that is not current.
	session, err := h.sessions.GetByID(ctx, started.SessionID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	notCurrent := session.QuestionIDs[2]

	idx := 0
	_, err = h.svc.SubmitAnswer(ctx, 1, started.SessionID, &model.SubmitAnswerRequest{
		QuestionID:  notCurrent,
		AnswerIndex: &idx,
	})
	if !errors.Is(err, ErrNotCurrentQuestion) {
		t.Fatalf("err = %v, want ErrNotCurrentQuestion", err)
	}

	// A question outside the session entirely.
	_, err = h.svc.SubmitAnswer(ctx, 1, started.SessionID, &model.SubmitAnswerRequest{
		QuestionID:  uuid.New(),
		AnswerIndex: &idx,
	})
	if !errors.Is(err, model.ErrUnknownQuestion) {
		t.Fatalf("err = %v, want ErrUnknownQuestion", err)
	}
}

func TestSubmitAnswerDuplicateReplaysStoredRecord(t *testing.T) {
	projectID := uuid.New()
	h := newHarness(projectID, 2)
	ctx := context.Background()

	started := h.start(t, 1, projectID, "exam", 2)

	h.clk.Advance(5 * time.Second)
	h.answer(t, 1, started.SessionID, started.Question.ID, 1, 5)

	// The retry hits after the session advanced to the next question.
	idx := 1
	replay, err := h.svc.SubmitAnswer(ctx, 1, started.SessionID, &model.SubmitAnswerRequest{
		QuestionID:           started.Question.ID,
		AnswerIndex:          &idx,
		ClientElapsedSeconds: 5,
	})
	if err != nil {
		t.Fatalf("duplicate SubmitAnswer: %v", err)
	}
	if !replay.Accepted {
		t.Fatalf("replay = %+v, want accepted", replay)
	}
	if replay.NextQuestion != nil {
		t.Fatal("replay must not advance the session again")
	}
}

func TestGetStateReflectsRemainingTime(t *testing.T) {
	projectID := uuid.New()
	h := newHarness(projectID, 2)
	ctx := context.Background()

	started := h.start(t, 1, projectID, "exam", 2)

	h.clk.Advance(15 * time.Second)
	state, err := h.svc.GetState(ctx, 1, started.SessionID)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state.Status != model.SessionStatusInProgress {
		t.Fatalf("status = %s", state.Status)
	}
	if state.RemainingSeconds != 45 {
		t.Fatalf("remaining = %v, want 45", state.RemainingSeconds)
	}
	if state.Question == nil || state.Question.ID != started.Question.ID {
		t.Fatal("state should carry the current question")
	}
}

func TestOwnershipEnforced(t *testing.T) {
	projectID := uuid.New()
	h := newHarness(projectID, 1)
	ctx := context.Background()

	started := h.start(t, 1, projectID, "exam", 1)

	if _, err := h.svc.GetState(ctx, 2, started.SessionID); !errors.Is(err, ErrNotSessionOwner) {
		t.Fatalf("err = %v, want ErrNotSessionOwner", err)
	}
	if err := h.svc.Cancel(ctx, 2, started.SessionID); !errors.Is(err, ErrNotSessionOwner) {
		t.Fatalf("Cancel err = %v, want ErrNotSessionOwner", err)
	}
}

func TestGetStateServesAnswerSheetFromMirror(t *testing.T) {
	projectID := uuid.New()
	h := newHarness(projectID, 2)
	ctx := context.Background()

	started := h.start(t, 1, projectID, "exam", 2)
	h.clk.Advance(10 * time.Second)
	h.answer(t, 1, started.SessionID, started.Question.ID, 1, 10)

	state, err := h.svc.GetState(ctx, 1, started.SessionID)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state.AnsweredCount != 1 {
		t.Fatalf("answered = %d, want 1", state.AnsweredCount)
	}
	view, ok := state.Answers[started.Question.ID]
	if !ok {
		t.Fatal("answer sheet missing the answered question")
	}
	if view.SelectedIndex == nil || *view.SelectedIndex != 1 {
		t.Fatalf("selected index = %v, want 1", view.SelectedIndex)
	}
	if !view.Accepted {
		t.Fatal("accepted answer shown as rejected")
	}
	// Exam mode never reveals correctness before submit.
	if view.Correct != nil {
		t.Fatal("exam-mode snapshot leaked correctness")
	}
	if h.cache.hits == 0 {
		t.Fatal("snapshot was not served from the answer mirror")
	}
}

func TestGetStateSelfHealsAnswerMirror(t *testing.T) {
	projectID := uuid.New()
	h := newHarness(projectID, 2)
	ctx := context.Background()

	started := h.start(t, 1, projectID, "practice", 2)
	h.clk.Advance(10 * time.Second)
	h.answer(t, 1, started.SessionID, started.Question.ID, 1, 10)

	// Simulate a Redis flush between the submission and the reload.
	h.cache.ClearSessionCache(ctx, started.SessionID)

	state, err := h.svc.GetState(ctx, 1, started.SessionID)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	view, ok := state.Answers[started.Question.ID]
	if !ok {
		t.Fatal("snapshot lost the answered question after a cache flush")
	}
	// Practice mode already revealed feedback at submission.
	if view.Correct == nil || !*view.Correct {
		t.Fatalf("practice-mode snapshot correctness = %v, want true", view.Correct)
	}

	if _, ok := h.cache.GetAnswers(ctx, started.SessionID); !ok {
		t.Fatal("mirror not re-primed from the session row")
	}
}

func TestReviewEditRefreshesAnswerMirror(t *testing.T) {
	projectID := uuid.New()
	h := newHarness(projectID, 1)
	ctx := context.Background()

	started := h.start(t, 1, projectID, "exam", 1)
	h.clk.Advance(10 * time.Second)
	h.answer(t, 1, started.SessionID, started.Question.ID, 3, 10)

	newIdx := 1
	err := h.reviews.EditAnswer(ctx, 1, started.SessionID, &EditAnswerRequest{
		QuestionID:  started.Question.ID,
		AnswerIndex: &newIdx,
	})
	if err != nil {
		t.Fatalf("EditAnswer: %v", err)
	}

	mirrored, ok := h.cache.GetAnswers(ctx, started.SessionID)
	if !ok {
		t.Fatal("mirror empty after review edit")
	}
	rec := mirrored[started.Question.ID]
	if rec.SelectedIndex == nil || *rec.SelectedIndex != 1 {
		t.Fatalf("mirrored selected index = %v, want the edited answer", rec.SelectedIndex)
	}
}
