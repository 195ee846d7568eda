package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/exambuddy/exambuddy-backend/internal/model"
)

// AttemptRepository reads the immutable attempt records written by the
// attempt worker. Writes go through the Redis queue, not through here.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, session_id, candidate_id, project_id, mode, difficulty,
	question_count, score, correct_count, total_time_seconds, started_at,
	completed_at, answers`

// GetByID retrieves one attempt. The candidate ID scopes the lookup so a
// candidate cannot read someone else's attempt.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID, candidateID int) (*model.Attempt, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE id = $1 AND candidate_id = $2`, id, candidateID)
	return scanAttempt(row)
}

// ListByCandidate retrieves one page of a candidate's attempt history,
// newest first, together with the total count.
func (r *AttemptRepository) ListByCandidate(ctx context.Context, candidateID, limit, offset int) ([]model.Attempt, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE candidate_id = $1`, candidateID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE candidate_id = $1
		 ORDER BY completed_at DESC
		 LIMIT $2 OFFSET $3`, candidateID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, 0, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, total, rows.Err()
}

func scanAttempt(row rowScanner) (*model.Attempt, error) {
	a := &model.Attempt{}
	var answers []byte
	err := row.Scan(
		&a.ID, &a.SessionID, &a.CandidateID, &a.ProjectID, &a.Mode, &a.Difficulty,
		&a.QuestionCount, &a.Score, &a.CorrectCount, &a.TotalTimeSeconds,
		&a.StartedAt, &a.CompletedAt, &answers,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answers, &a.Answers); err != nil {
		return nil, fmt.Errorf("unmarshal answers: %w", err)
	}
	return a, nil
}
