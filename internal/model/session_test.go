package model

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestSession(mode ExamMode) *ExamSession {
	return &ExamSession{
		ID:          uuid.New(),
		CandidateID: 1,
		ProjectID:   uuid.New(),
		Mode:        mode,
		Difficulty:  DifficultyMedium,
		Status:      SessionStatusConfiguring,
	}
}

func questionIDs(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return ids
}

func TestBeginTransitionsToInProgress(t *testing.T) {
	s := newTestSession(ModeExam)
	ids := questionIDs(3)
	now := time.Now()

	if err := s.Begin(ids, 180, now); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if s.Status != SessionStatusInProgress {
		t.Fatalf("status = %s, want IN_PROGRESS", s.Status)
	}
	if got, ok := s.CurrentQuestionID(); !ok || got != ids[0] {
		t.Fatalf("current question = %v, want %v", got, ids[0])
	}
	if _, seen := s.PresentedTimes[ids[0]]; !seen {
		t.Fatal("first question was not presented")
	}
}

func TestBeginRejectedOutsideConfiguring(t *testing.T) {
	s := newTestSession(ModeExam)
	ids := questionIDs(2)
	now := time.Now()

	if err := s.Begin(ids, 120, now); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := s.Begin(ids, 120, now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second Begin err = %v, want ErrInvalidTransition", err)
	}
}

func TestPresentedTimeIsWriteOnce(t *testing.T) {
	s := newTestSession(ModeExam)
	ids := questionIDs(2)
	first := time.Now()

	if err := s.Begin(ids, 120, first); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	// A reload re-presents the same question much later.
	s.Present(ids[0], first.Add(45*time.Second))

	if got := s.PresentedTimes[ids[0]]; !got.Equal(first) {
		t.Fatalf("presented time moved to %v, want original %v", got, first)
	}
}

func TestAdvanceWalksQuestionOrder(t *testing.T) {
	s := newTestSession(ModeExam)
	ids := questionIDs(3)
	now := time.Now()

	if err := s.Begin(ids, 180, now); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := s.Advance(now.Add(time.Second)); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if got, _ := s.CurrentQuestionID(); got != ids[1] {
		t.Fatalf("current = %v, want %v", got, ids[1])
	}
	if err := s.Advance(now.Add(2 * time.Second)); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if !s.OnLastQuestion() {
		t.Fatal("expected to be on last question")
	}
	if err := s.Advance(now.Add(3 * time.Second)); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Advance past end err = %v, want ErrInvalidTransition", err)
	}
}

func TestRecordAnswerRejectsUnknownQuestion(t *testing.T) {
	s := newTestSession(ModeExam)
	now := time.Now()
	if err := s.Begin(questionIDs(2), 120, now); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	err := s.RecordAnswer(uuid.New(), AnswerRecord{SubmittedAt: now})
	if !errors.Is(err, ErrUnknownQuestion) {
		t.Fatalf("err = %v, want ErrUnknownQuestion", err)
	}
}

func TestEnterReviewHalvesBudget(t *testing.T) {
	s := newTestSession(ModeExam)
	now := time.Now()
	if err := s.Begin(questionIDs(3), 181, now); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	if err := s.EnterReview(now.Add(time.Minute)); err != nil {
		t.Fatalf("EnterReview: %v", err)
	}
	if s.Status != SessionStatusReview {
		t.Fatalf("status = %s, want REVIEW", s.Status)
	}
	// Integer halving: 181 -> 90.
	if s.ReviewDurationSeconds != 90 {
		t.Fatalf("review duration = %d, want 90", s.ReviewDurationSeconds)
	}
	deadline, ok := s.ReviewDeadline()
	if !ok {
		t.Fatal("no review deadline")
	}
	want := now.Add(time.Minute).Add(90 * time.Second)
	if !deadline.Equal(want) {
		t.Fatalf("deadline = %v, want %v", deadline, want)
	}
}

func TestEnterReviewRejectedInPracticeMode(t *testing.T) {
	s := newTestSession(ModePractice)
	now := time.Now()
	if err := s.Begin(questionIDs(2), 120, now); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	if err := s.EnterReview(now); !errors.Is(err, ErrReviewUnavailable) {
		t.Fatalf("err = %v, want ErrReviewUnavailable", err)
	}
}

func TestSubmitFromReview(t *testing.T) {
	s := newTestSession(ModeExam)
	now := time.Now()
	if err := s.Begin(questionIDs(2), 120, now); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := s.EnterReview(now); err != nil {
		t.Fatalf("EnterReview: %v", err)
	}

	if err := s.Submit(85.5, now.Add(time.Minute)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if s.Status != SessionStatusSubmitted {
		t.Fatalf("status = %s, want SUBMITTED", s.Status)
	}
	if s.FinalScore == nil || *s.FinalScore != 85.5 {
		t.Fatalf("final score = %v, want 85.5", s.FinalScore)
	}
	if !s.Terminal() {
		t.Fatal("submitted session should be terminal")
	}
}

func TestSubmitRejectedWhenTerminal(t *testing.T) {
	s := newTestSession(ModePractice)
	now := time.Now()
	if err := s.Begin(questionIDs(1), 60, now); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := s.Submit(100, now); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := s.Submit(0, now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second Submit err = %v, want ErrInvalidTransition", err)
	}
}

func TestCancelFromEveryNonTerminalState(t *testing.T) {
	now := time.Now()

	for _, status := range []SessionStatus{SessionStatusConfiguring, SessionStatusInProgress, SessionStatusReview} {
		s := newTestSession(ModeExam)
		s.Status = status
		if err := s.Cancel(now); err != nil {
			t.Fatalf("Cancel from %s: %v", status, err)
		}
		if s.Status != SessionStatusCancelled {
			t.Fatalf("status after cancel = %s", s.Status)
		}
	}
}

func TestCancelLosesAgainstTerminalState(t *testing.T) {
	now := time.Now()

	for _, status := range []SessionStatus{SessionStatusSubmitted, SessionStatusCancelled} {
		s := newTestSession(ModeExam)
		s.Status = status
		if err := s.Cancel(now); !errors.Is(err, ErrSessionTerminal) {
			t.Fatalf("Cancel from %s err = %v, want ErrSessionTerminal", status, err)
		}
		if s.Status != status {
			t.Fatalf("terminal status changed from %s to %s", status, s.Status)
		}
	}
}

func TestRecordAnswerRejectedAfterSubmit(t *testing.T) {
	s := newTestSession(ModeExam)
	now := time.Now()
	ids := questionIDs(1)
	if err := s.Begin(ids, 60, now); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := s.EnterReview(now); err != nil {
		t.Fatalf("EnterReview: %v", err)
	}
	if err := s.Submit(0, now); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	err := s.RecordAnswer(ids[0], AnswerRecord{SubmittedAt: now})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}
