package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionStatusConfiguring SessionStatus = "CONFIGURING"
	SessionStatusInProgress  SessionStatus = "IN_PROGRESS"
	SessionStatusReview      SessionStatus = "REVIEW"
	SessionStatusSubmitted   SessionStatus = "SUBMITTED"
	SessionStatusCancelled   SessionStatus = "CANCELLED"
)

// ExamMode selects the session flow. Exam mode ends with a review phase at
// half the original time budget; practice mode submits directly and reveals
// the correct answer after each question.
type ExamMode string

const (
	ModeExam     ExamMode = "exam"
	ModePractice ExamMode = "practice"
)

// Session domain errors.
var (
	ErrInvalidTransition = errors.New("invalid session state transition")
	ErrUnknownQuestion   = errors.New("question is not part of this session")
	ErrSessionTerminal   = errors.New("session is already in a terminal state")
	ErrReviewUnavailable = errors.New("review phase is only available in exam mode")
)

// AnswerRecord captures one submitted answer and the timing verdict it
// received. Rejected or expired submissions keep their record so the score
// breakdown can show why a question counted as incorrect.
type AnswerRecord struct {
	SelectedIndex    *int      `json:"selected_index,omitempty"`
	SubmittedAt      time.Time `json:"submitted_at"`
	TimeSpentSeconds float64   `json:"time_spent_seconds"`
	IsCorrect        bool      `json:"is_correct"`
	Accepted         bool      `json:"accepted"`
	TimeExpired      bool      `json:"time_expired"`
	RejectReason     string    `json:"reject_reason,omitempty"`
}

// ExamSession is one candidate's attempt at a configured exam. It is owned
// exclusively by the session service; nothing else mutates it.
type ExamSession struct {
	ID                    uuid.UUID                  `json:"id"`
	CandidateID           int                        `json:"candidate_id"`
	ProjectID             uuid.UUID                  `json:"project_id"`
	Mode                  ExamMode                   `json:"mode"`
	Difficulty            Difficulty                 `json:"difficulty"`
	Status                SessionStatus              `json:"status"`
	QuestionIDs           []uuid.UUID                `json:"question_ids"`
	CurrentQuestionIndex  int                        `json:"current_question_index"`
	StartedAt             time.Time                  `json:"started_at"`
	LastActionAt          time.Time                  `json:"last_action_at"`
	PresentedTimes        map[uuid.UUID]time.Time    `json:"presented_times"`
	Answers               map[uuid.UUID]AnswerRecord `json:"answers"`
	TotalAllowedSeconds   int                        `json:"total_allowed_seconds"`
	ReviewStartedAt       *time.Time                 `json:"review_started_at,omitempty"`
	ReviewDurationSeconds int                        `json:"review_duration_seconds"`
	DiscrepancyCount      int                        `json:"discrepancy_count"`
	FinalScore            *float64                   `json:"final_score,omitempty"`
	SubmittedAt           *time.Time                 `json:"submitted_at,omitempty"`
}

// Terminal reports whether the session reached SUBMITTED or CANCELLED.
func (s *ExamSession) Terminal() bool {
	return s.Status == SessionStatusSubmitted || s.Status == SessionStatusCancelled
}

// CurrentQuestionID returns the ID of the question the candidate is on.
func (s *ExamSession) CurrentQuestionID() (uuid.UUID, bool) {
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.QuestionIDs) {
		return uuid.Nil, false
	}
	return s.QuestionIDs[s.CurrentQuestionIndex], true
}

// OnLastQuestion reports whether the current question is the final one.
func (s *ExamSession) OnLastQuestion() bool {
	return s.CurrentQuestionIndex == len(s.QuestionIDs)-1
}

// Contains reports whether a question belongs to this session.
func (s *ExamSession) Contains(questionID uuid.UUID) bool {
	for _, id := range s.QuestionIDs {
		if id == questionID {
			return true
		}
	}
	return false
}

// Begin moves the session from CONFIGURING to IN_PROGRESS with its question
// order fixed, and presents the first question.
func (s *ExamSession) Begin(questionIDs []uuid.UUID, totalAllowedSeconds int, now time.Time) error {
	if s.Status != SessionStatusConfiguring {
		return ErrInvalidTransition
	}
	s.QuestionIDs = questionIDs
	s.TotalAllowedSeconds = totalAllowedSeconds
	s.CurrentQuestionIndex = 0
	s.StartedAt = now
	s.Status = SessionStatusInProgress
	s.Present(questionIDs[0], now)
	return nil
}

// Present records the timestamp a question first became current. The first
// write wins; re-presenting (page reload, reconnect) never moves it.
func (s *ExamSession) Present(questionID uuid.UUID, now time.Time) {
	if s.PresentedTimes == nil {
		s.PresentedTimes = make(map[uuid.UUID]time.Time)
	}
	if _, seen := s.PresentedTimes[questionID]; !seen {
		s.PresentedTimes[questionID] = now
	}
	s.LastActionAt = now
}

// RecordAnswer stores an answer record. Answers are mutable only while the
// session is IN_PROGRESS or in REVIEW.
func (s *ExamSession) RecordAnswer(questionID uuid.UUID, rec AnswerRecord) error {
	if s.Status != SessionStatusInProgress && s.Status != SessionStatusReview {
		return ErrInvalidTransition
	}
	if !s.Contains(questionID) {
		return ErrUnknownQuestion
	}
	if s.Answers == nil {
		s.Answers = make(map[uuid.UUID]AnswerRecord)
	}
	s.Answers[questionID] = rec
	s.LastActionAt = rec.SubmittedAt
	return nil
}

// Advance moves to the next question and presents it. The caller must have
// checked OnLastQuestion first.
func (s *ExamSession) Advance(now time.Time) error {
	if s.Status != SessionStatusInProgress {
		return ErrInvalidTransition
	}
	if s.OnLastQuestion() {
		return ErrInvalidTransition
	}
	s.CurrentQuestionIndex++
	s.Present(s.QuestionIDs[s.CurrentQuestionIndex], now)
	return nil
}

// EnterReview transitions IN_PROGRESS → REVIEW after the final question in
// exam mode. The review window is half the original total budget.
func (s *ExamSession) EnterReview(now time.Time) error {
	if s.Status != SessionStatusInProgress {
		return ErrInvalidTransition
	}
	if s.Mode != ModeExam {
		return ErrReviewUnavailable
	}
	started := now
	s.ReviewStartedAt = &started
	s.ReviewDurationSeconds = s.TotalAllowedSeconds / 2
	s.Status = SessionStatusReview
	s.LastActionAt = now
	return nil
}

// ReviewDeadline returns the instant the review window closes.
func (s *ExamSession) ReviewDeadline() (time.Time, bool) {
	if s.ReviewStartedAt == nil {
		return time.Time{}, false
	}
	return s.ReviewStartedAt.Add(time.Duration(s.ReviewDurationSeconds) * time.Second), true
}

// Submit finalizes the session with its score. Valid from IN_PROGRESS
// (practice mode, last question answered) and from REVIEW.
func (s *ExamSession) Submit(score float64, now time.Time) error {
	switch s.Status {
	case SessionStatusInProgress, SessionStatusReview:
	default:
		return ErrInvalidTransition
	}
	s.FinalScore = &score
	s.SubmittedAt = &now
	s.Status = SessionStatusSubmitted
	s.LastActionAt = now
	return nil
}

// Cancel discards the session from any non-terminal state. Cancelling an
// already-terminal session is the caller's race to lose; it gets an error
// and the terminal state stands.
func (s *ExamSession) Cancel(now time.Time) error {
	if s.Terminal() {
		return ErrSessionTerminal
	}
	s.Status = SessionStatusCancelled
	s.LastActionAt = now
	return nil
}

// StartSessionRequest is the payload for starting a new exam session.
type StartSessionRequest struct {
	ProjectID     uuid.UUID `json:"project_id" binding:"required"`
	Mode          string    `json:"mode" binding:"required,oneof=exam practice"`
	Difficulty    string    `json:"difficulty" binding:"required,oneof=easy medium hard expert"`
	QuestionCount int       `json:"question_count" binding:"required,min=1,max=100"`
}

// SubmitAnswerRequest is the payload for answering the current question.
// ClientElapsedSeconds is advisory only — it feeds discrepancy detection and
// is never trusted for the accept/reject decision.
type SubmitAnswerRequest struct {
	QuestionID           uuid.UUID `json:"question_id" binding:"required"`
	AnswerIndex          *int      `json:"answer_index" binding:"omitempty,min=0"`
	ClientElapsedSeconds float64   `json:"client_elapsed_seconds" binding:"min=0"`
	TimeExpired          bool      `json:"time_expired"`
}
