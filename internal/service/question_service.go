package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/exambuddy/exambuddy-backend/internal/clock"
	"github.com/exambuddy/exambuddy-backend/internal/model"
	"github.com/exambuddy/exambuddy-backend/internal/repository"
)

// ErrCorrectIndexOutOfRange rejects a question whose answer key does not
// point at one of its options.
var ErrCorrectIndexOutOfRange = errors.New("correct_index is out of range")

// QuestionService manages a project's question bank.
type QuestionService struct {
	clk  clock.Clock
	repo *repository.QuestionRepository
}

// NewQuestionService creates a QuestionService.
func NewQuestionService(clk clock.Clock, repo *repository.QuestionRepository) *QuestionService {
	if clk == nil {
		clk = clock.System{}
	}
	return &QuestionService{clk: clk, repo: repo}
}

// Create adds a question to a project.
func (s *QuestionService) Create(ctx context.Context, projectID uuid.UUID, req *model.CreateQuestionRequest) (*model.Question, error) {
	if req.CorrectIndex < 0 || req.CorrectIndex >= len(req.AnswerOptions) {
		return nil, ErrCorrectIndexOutOfRange
	}
	q := &model.Question{
		ID:            uuid.New(),
		ProjectID:     projectID,
		Text:          req.Text,
		AnswerOptions: req.AnswerOptions,
		CorrectIndex:  req.CorrectIndex,
		Difficulty:    model.Difficulty(req.Difficulty),
		Source:        "manual",
		CreatedAt:     s.clk.Now().UTC().Truncate(time.Second),
	}
	if err := s.repo.Create(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// ListByProject returns every question in a project's bank, answer key
// included. This is an operator surface, not a candidate one.
func (s *QuestionService) ListByProject(ctx context.Context, projectID uuid.UUID) ([]model.Question, error) {
	return s.repo.ListByProject(ctx, projectID)
}
