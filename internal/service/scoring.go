package service

import (
	"math"

	"github.com/google/uuid"

	"github.com/exambuddy/exambuddy-backend/internal/model"
)

// QuestionResult is one row of a score breakdown.
type QuestionResult struct {
	QuestionID       uuid.UUID `json:"question_id"`
	SelectedIndex    *int      `json:"selected_index,omitempty"`
	CorrectIndex     int       `json:"correct_index"`
	Correct          bool      `json:"correct"`
	TimeExpired      bool      `json:"time_expired"`
	RejectReason     string    `json:"reject_reason,omitempty"`
	TimeSpentSeconds float64   `json:"time_spent_seconds"`
}

// ScoreReport is the full scoring outcome for a finished session.
type ScoreReport struct {
	Score            float64          `json:"score"`
	CorrectCount     int              `json:"correct_count"`
	TotalQuestions   int              `json:"total_questions"`
	TotalTimeSeconds float64          `json:"total_time_seconds"`
	Breakdown        []QuestionResult `json:"breakdown"`
}

// ScoringEngine computes final scores. It is pure: no clock, no storage, no
// side effects, so the same session always scores the same.
type ScoringEngine struct{}

// NewScoringEngine creates a ScoringEngine.
func NewScoringEngine() *ScoringEngine {
	return &ScoringEngine{}
}

// Score grades a session against its questions. A question counts as correct
// only when its answer was accepted by timing validation, arrived before
// expiry, and selected the right option. Unanswered, rejected, and expired
// questions count as incorrect.
func (e *ScoringEngine) Score(session *model.ExamSession, questions []model.Question) *ScoreReport {
	byID := make(map[uuid.UUID]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	report := &ScoreReport{
		TotalQuestions: len(session.QuestionIDs),
		Breakdown:      make([]QuestionResult, 0, len(session.QuestionIDs)),
	}

	for _, qid := range session.QuestionIDs {
		q, known := byID[qid]
		result := QuestionResult{QuestionID: qid}
		if known {
			result.CorrectIndex = q.CorrectIndex
		}

		if rec, answered := session.Answers[qid]; answered {
			result.SelectedIndex = rec.SelectedIndex
			result.TimeExpired = rec.TimeExpired
			result.RejectReason = rec.RejectReason
			result.TimeSpentSeconds = rec.TimeSpentSeconds
			report.TotalTimeSeconds += rec.TimeSpentSeconds

			result.Correct = known &&
				rec.Accepted &&
				!rec.TimeExpired &&
				rec.SelectedIndex != nil &&
				*rec.SelectedIndex == q.CorrectIndex
		}

		if result.Correct {
			report.CorrectCount++
		}
		report.Breakdown = append(report.Breakdown, result)
	}

	if report.TotalQuestions > 0 {
		raw := float64(report.CorrectCount) / float64(report.TotalQuestions) * 100
		report.Score = math.Round(raw*100) / 100
	}
	return report
}
