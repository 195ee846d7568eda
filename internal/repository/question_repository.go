package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/exambuddy/exambuddy-backend/internal/model"
)

// QuestionRepository is the question bank data access layer.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

const questionColumns = `id, project_id, text, answer_options, correct_index,
	difficulty, source, created_at`

// Create inserts a new question into a project's bank.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (id, project_id, text, answer_options, correct_index, difficulty, source)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		q.ID, q.ProjectID, q.Text, q.AnswerOptions, q.CorrectIndex, q.Difficulty, q.Source,
	).Scan(&q.CreatedAt)
}

// ListByProject retrieves all questions in a project.
func (r *QuestionRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions
		 WHERE project_id = $1
		 ORDER BY created_at ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectQuestions(rows)
}

// RandomSelect picks count random questions from a project, optionally
// filtered by difficulty.
func (r *QuestionRepository) RandomSelect(ctx context.Context, projectID uuid.UUID, difficulty model.Difficulty, count int) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions
		 WHERE project_id = $1 AND difficulty = $2
		 ORDER BY random()
		 LIMIT $3`, projectID, difficulty, count)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectQuestions(rows)
}

// GetByIDs fetches questions by ID. Order of the result is unspecified; the
// session's stored question order is the authority.
func (r *QuestionRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectQuestions(rows)
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collectQuestions(rows pgxRows) ([]model.Question, error) {
	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(
			&q.ID, &q.ProjectID, &q.Text, &q.AnswerOptions, &q.CorrectIndex,
			&q.Difficulty, &q.Source, &q.CreatedAt,
		); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
