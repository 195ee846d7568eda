package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/exambuddy/exambuddy-backend/internal/model"
	"github.com/exambuddy/exambuddy-backend/internal/repository"
	"github.com/exambuddy/exambuddy-backend/internal/response"
)

// ErrAttemptNotFound means no attempt exists for this candidate and ID.
var ErrAttemptNotFound = errors.New("attempt not found")

// AttemptService serves a candidate's attempt history. Attempts are written
// by the persistence worker; this surface only reads.
type AttemptService struct {
	repo *repository.AttemptRepository
}

// NewAttemptService creates an AttemptService.
func NewAttemptService(repo *repository.AttemptRepository) *AttemptService {
	return &AttemptService{repo: repo}
}

// Get returns one attempt, scoped to the owning candidate.
func (s *AttemptService) Get(ctx context.Context, id uuid.UUID, candidateID int) (*model.Attempt, error) {
	attempt, err := s.repo.GetByID(ctx, id, candidateID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, err
	}
	return attempt, nil
}

// List returns one page of the candidate's attempt history, newest first.
func (s *AttemptService) List(ctx context.Context, candidateID, page, perPage int) ([]model.Attempt, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 10
	}

	attempts, total, err := s.repo.ListByCandidate(ctx, candidateID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if attempts == nil {
		attempts = []model.Attempt{}
	}

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	}
	return attempts, pagination, nil
}
