package model

import (
	"time"

	"github.com/google/uuid"
)

// Difficulty enumerates question difficulty levels. The per-question time
// budget is derived from this via the configured difficulty→seconds mapping.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyExpert Difficulty = "expert"
)

// Question represents a single exam question within a project's bank.
type Question struct {
	ID            uuid.UUID  `json:"id"`
	ProjectID     uuid.UUID  `json:"project_id"`
	Text          string     `json:"text"`
	AnswerOptions []string   `json:"answer_options"`
	CorrectIndex  int        `json:"correct_index"`
	Difficulty    Difficulty `json:"difficulty"`
	Source        string     `json:"source"`
	CreatedAt     time.Time  `json:"created_at"`
}

// QuestionForCandidate is a question without the correct answer, as presented
// to the candidate during a session.
type QuestionForCandidate struct {
	ID            uuid.UUID  `json:"id"`
	Text          string     `json:"text"`
	AnswerOptions []string   `json:"answer_options"`
	Difficulty    Difficulty `json:"difficulty"`
}

// ForCandidate strips the correct answer from a question.
func (q *Question) ForCandidate() QuestionForCandidate {
	return QuestionForCandidate{
		ID:            q.ID,
		Text:          q.Text,
		AnswerOptions: q.AnswerOptions,
		Difficulty:    q.Difficulty,
	}
}

// CreateQuestionRequest is the payload for adding a question to a project.
type CreateQuestionRequest struct {
	Text          string   `json:"text" binding:"required,min=1,max=2000"`
	AnswerOptions []string `json:"answer_options" binding:"required,min=2,max=6,dive,required"`
	CorrectIndex  int      `json:"correct_index" binding:"min=0"`
	Difficulty    string   `json:"difficulty" binding:"required,oneof=easy medium hard expert"`
}
