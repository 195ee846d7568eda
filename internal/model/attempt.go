package model

import (
	"time"

	"github.com/google/uuid"
)

// Attempt is the immutable record written once a session is SUBMITTED.
// Cancelled sessions never produce one.
type Attempt struct {
	ID               uuid.UUID       `json:"id"`
	SessionID        uuid.UUID       `json:"session_id"`
	CandidateID      int             `json:"candidate_id"`
	ProjectID        uuid.UUID       `json:"project_id"`
	Mode             ExamMode        `json:"mode"`
	Difficulty       Difficulty      `json:"difficulty"`
	QuestionCount    int             `json:"question_count"`
	Score            float64         `json:"score"`
	CorrectCount     int             `json:"correct_count"`
	TotalTimeSeconds int             `json:"total_time_seconds"`
	StartedAt        time.Time       `json:"started_at"`
	CompletedAt      time.Time       `json:"completed_at"`
	Answers          []AttemptAnswer `json:"answers"`
}

// AttemptAnswer is one per-question line in an attempt record.
type AttemptAnswer struct {
	QuestionID       uuid.UUID `json:"question_id"`
	SelectedIndex    *int      `json:"selected_index,omitempty"`
	CorrectIndex     int       `json:"correct_index"`
	IsCorrect        bool      `json:"is_correct"`
	Accepted         bool      `json:"accepted"`
	TimeSpentSeconds float64   `json:"time_spent_seconds"`
}
