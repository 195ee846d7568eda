package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/exambuddy/exambuddy-backend/internal/model"
)

// ErrTerminalConflict means a guarded write lost against a session that
// already reached SUBMITTED or CANCELLED. The caller should reload and treat
// its own transition as a no-op.
var ErrTerminalConflict = errors.New("session already terminal")

// SessionRepository handles exam session data access.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `id, candidate_id, project_id, mode, difficulty, status,
	question_ids, current_question_index, started_at, last_action_at,
	presented_times, answers, total_allowed_seconds, review_started_at,
	review_duration_seconds, discrepancy_count, final_score, submitted_at`

// Create inserts a freshly started session.
func (r *SessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	questionIDs, presented, answers, err := marshalSessionJSON(s)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO exam_sessions (`+sessionColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		s.ID, s.CandidateID, s.ProjectID, s.Mode, s.Difficulty, s.Status,
		questionIDs, s.CurrentQuestionIndex, s.StartedAt, s.LastActionAt,
		presented, answers, s.TotalAllowedSeconds, s.ReviewStartedAt,
		s.ReviewDurationSeconds, s.DiscrepancyCount, s.FinalScore, s.SubmittedAt,
	)
	return err
}

// GetByID retrieves a session by its UUID.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id)
	return scanSession(row)
}

// Save writes the full session state. The status guard makes terminal
// transitions first-writer-wins: once a session is SUBMITTED or CANCELLED,
// a racing save (cancel vs auto-expiry) hits zero rows and gets
// ErrTerminalConflict instead of overwriting the terminal state.
func (r *SessionRepository) Save(ctx context.Context, s *model.ExamSession) error {
	questionIDs, presented, answers, err := marshalSessionJSON(s)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET mode = $2, difficulty = $3, status = $4, question_ids = $5,
		     current_question_index = $6, started_at = $7, last_action_at = $8,
		     presented_times = $9, answers = $10, total_allowed_seconds = $11,
		     review_started_at = $12, review_duration_seconds = $13,
		     discrepancy_count = $14, final_score = $15, submitted_at = $16
		 WHERE id = $1
		   AND status IN ('CONFIGURING', 'IN_PROGRESS', 'REVIEW')`,
		s.ID, s.Mode, s.Difficulty, s.Status, questionIDs,
		s.CurrentQuestionIndex, s.StartedAt, s.LastActionAt,
		presented, answers, s.TotalAllowedSeconds,
		s.ReviewStartedAt, s.ReviewDurationSeconds,
		s.DiscrepancyCount, s.FinalScore, s.SubmittedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTerminalConflict
	}
	return nil
}

// GetActiveByCandidate returns the candidate's non-terminal session, if any.
func (r *SessionRepository) GetActiveByCandidate(ctx context.Context, candidateID int) (*model.ExamSession, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE candidate_id = $1
		   AND status IN ('CONFIGURING', 'IN_PROGRESS', 'REVIEW')
		 ORDER BY started_at DESC
		 LIMIT 1`, candidateID)
	return scanSession(row)
}

// ListLapsedReviews returns sessions whose review window closed before the
// given instant but were never explicitly submitted.
func (r *SessionRepository) ListLapsedReviews(ctx context.Context, now time.Time) ([]model.ExamSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE status = 'REVIEW'
		   AND review_started_at + make_interval(secs => review_duration_seconds) <= $1`,
		now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	var questionIDs, presented, answers []byte
	err := row.Scan(
		&s.ID, &s.CandidateID, &s.ProjectID, &s.Mode, &s.Difficulty, &s.Status,
		&questionIDs, &s.CurrentQuestionIndex, &s.StartedAt, &s.LastActionAt,
		&presented, &answers, &s.TotalAllowedSeconds, &s.ReviewStartedAt,
		&s.ReviewDurationSeconds, &s.DiscrepancyCount, &s.FinalScore, &s.SubmittedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(questionIDs, &s.QuestionIDs); err != nil {
		return nil, fmt.Errorf("unmarshal question_ids: %w", err)
	}
	if err := json.Unmarshal(presented, &s.PresentedTimes); err != nil {
		return nil, fmt.Errorf("unmarshal presented_times: %w", err)
	}
	if err := json.Unmarshal(answers, &s.Answers); err != nil {
		return nil, fmt.Errorf("unmarshal answers: %w", err)
	}
	return s, nil
}

func marshalSessionJSON(s *model.ExamSession) (questionIDs, presented, answers []byte, err error) {
	if questionIDs, err = json.Marshal(s.QuestionIDs); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal question_ids: %w", err)
	}
	pt := s.PresentedTimes
	if pt == nil {
		pt = map[uuid.UUID]time.Time{}
	}
	if presented, err = json.Marshal(pt); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal presented_times: %w", err)
	}
	ans := s.Answers
	if ans == nil {
		ans = map[uuid.UUID]model.AnswerRecord{}
	}
	if answers, err = json.Marshal(ans); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal answers: %w", err)
	}
	return questionIDs, presented, answers, nil
}
