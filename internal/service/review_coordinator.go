package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/exambuddy/exambuddy-backend/internal/clock"
	"github.com/exambuddy/exambuddy-backend/internal/model"
	"github.com/exambuddy/exambuddy-backend/internal/repository"
)

// Review errors.
var (
	ErrReviewWindowClosed = errors.New("review window has closed")
	ErrAnswerLocked       = errors.New("answer cannot be edited in review")
)

// ReviewAnswer is the candidate-visible slice of an answer record.
// Correctness stays hidden until the session is submitted.
type ReviewAnswer struct {
	SelectedIndex *int   `json:"selected_index,omitempty"`
	TimeExpired   bool   `json:"time_expired"`
	RejectReason  string `json:"reject_reason,omitempty"`
}

// ReviewQuestion pairs a question with the answer currently on record.
type ReviewQuestion struct {
	Question model.QuestionForCandidate `json:"question"`
	Answer   *ReviewAnswer              `json:"answer,omitempty"`
	Editable bool                       `json:"editable"`
}

// ReviewState is the candidate's view of the review phase.
type ReviewState struct {
	SessionID        uuid.UUID        `json:"session_id"`
	Questions        []ReviewQuestion `json:"questions"`
	RemainingSeconds float64          `json:"remaining_seconds"`
}

// EditAnswerRequest changes one answer during review.
type EditAnswerRequest struct {
	QuestionID  uuid.UUID `json:"question_id" binding:"required"`
	AnswerIndex *int      `json:"answer_index" binding:"omitempty,min=0"`
}

// ReviewCoordinator manages the exam-mode review phase: listing answers,
// applying edits inside the review window, and closing lapsed reviews. The
// window is fixed when review starts and is never extended.
type ReviewCoordinator struct {
	clk      clock.Clock
	sessions SessionStore
	bank     QuestionBank
	svc      *SessionService
	log      zerolog.Logger
}

// NewReviewCoordinator creates a ReviewCoordinator.
func NewReviewCoordinator(clk clock.Clock, sessions SessionStore, bank QuestionBank, svc *SessionService, log zerolog.Logger) *ReviewCoordinator {
	if clk == nil {
		clk = clock.System{}
	}
	return &ReviewCoordinator{
		clk:      clk,
		sessions: sessions,
		bank:     bank,
		svc:      svc,
		log:      log,
	}
}

// GetReview returns the review sheet for a session in REVIEW.
func (c *ReviewCoordinator) GetReview(ctx context.Context, candidateID int, sessionID uuid.UUID) (*ReviewState, error) {
	session, err := c.svc.loadOwned(ctx, candidateID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionStatusReview {
		return nil, model.ErrReviewUnavailable
	}

	questions, err := c.bank.GetByIDs(ctx, session.QuestionIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	state := &ReviewState{
		SessionID: sessionID,
		Questions: make([]ReviewQuestion, 0, len(session.QuestionIDs)),
	}
	for _, qid := range session.QuestionIDs {
		q := byID[qid]
		rq := ReviewQuestion{Question: q.ForCandidate()}
		if rec, ok := session.Answers[qid]; ok {
			rq.Answer = &ReviewAnswer{
				SelectedIndex: rec.SelectedIndex,
				TimeExpired:   rec.TimeExpired,
				RejectReason:  rec.RejectReason,
			}
			rq.Editable = editable(rec)
		}
		state.Questions = append(state.Questions, rq)
	}

	if deadline, ok := session.ReviewDeadline(); ok {
		remaining := deadline.Sub(c.clk.Now()).Seconds()
		if remaining < 0 {
			remaining = 0
		}
		state.RemainingSeconds = remaining
	}
	return state, nil
}

// EditAnswer changes an answer during review. The edit must land inside the
// review window; the per-question timing verdict stays untouched, so an
// answer that was rejected or expired during the exam stays locked.
func (c *ReviewCoordinator) EditAnswer(ctx context.Context, candidateID int, sessionID uuid.UUID, req *EditAnswerRequest) error {
	session, err := c.svc.loadOwned(ctx, candidateID, sessionID)
	if err != nil {
		return err
	}
	if session.Status != model.SessionStatusReview {
		return model.ErrReviewUnavailable
	}
	if !session.Contains(req.QuestionID) {
		return model.ErrUnknownQuestion
	}

	now := c.clk.Now()
	deadline, ok := session.ReviewDeadline()
	if !ok || now.After(deadline) {
		return ErrReviewWindowClosed
	}

	rec, answered := session.Answers[req.QuestionID]
	if !answered || !editable(rec) {
		return ErrAnswerLocked
	}

	question, err := c.svc.questionByID(ctx, req.QuestionID)
	if err != nil {
		return err
	}

	rec.SelectedIndex = req.AnswerIndex
	rec.IsCorrect = req.AnswerIndex != nil && *req.AnswerIndex == question.CorrectIndex
	rec.SubmittedAt = now
	if err := session.RecordAnswer(req.QuestionID, rec); err != nil {
		return err
	}
	if err := c.sessions.Save(ctx, session); err != nil {
		if errors.Is(err, repository.ErrTerminalConflict) {
			return ErrReviewWindowClosed
		}
		return err
	}
	c.svc.mirrorAnswers(ctx, session)
	return nil
}

// SubmitReview finalizes the session from REVIEW.
func (c *ReviewCoordinator) SubmitReview(ctx context.Context, candidateID int, sessionID uuid.UUID) (*ScoreReport, error) {
	session, err := c.svc.loadOwned(ctx, candidateID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionStatusReview {
		return nil, model.ErrReviewUnavailable
	}
	if err := c.svc.finalize(ctx, session, c.clk.Now()); err != nil {
		return nil, err
	}
	return c.svc.GetResult(ctx, candidateID, sessionID)
}

// ExpireLapsed auto-submits every session whose review window has closed.
// Called periodically by the expiry worker. A session cancelled or submitted
// concurrently is skipped via the terminal guard.
func (c *ReviewCoordinator) ExpireLapsed(ctx context.Context) (int, error) {
	lapsed, err := c.sessions.ListLapsedReviews(ctx, c.clk.Now())
	if err != nil {
		return 0, err
	}
	closed := 0
	for i := range lapsed {
		session := &lapsed[i]
		if err := c.svc.finalize(ctx, session, c.clk.Now()); err != nil {
			c.log.Error().Err(err).Str("session_id", session.ID.String()).Msg("failed to close lapsed review")
			continue
		}
		closed++
	}
	if closed > 0 {
		c.log.Info().Int("count", closed).Msg("closed lapsed review sessions")
	}
	return closed, nil
}

// editable reports whether an answer may change in review. Rejected and
// expired answers keep their exam-time verdict.
func editable(rec model.AnswerRecord) bool {
	return rec.Accepted && !rec.TimeExpired
}
