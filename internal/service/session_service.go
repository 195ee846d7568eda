package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/exambuddy/exambuddy-backend/internal/clock"
	"github.com/exambuddy/exambuddy-backend/internal/config"
	"github.com/exambuddy/exambuddy-backend/internal/model"
	"github.com/exambuddy/exambuddy-backend/internal/repository"
)

// Session service errors.
var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrNotSessionOwner     = errors.New("session belongs to another candidate")
	ErrActiveSessionExists = errors.New("an active session already exists")
	ErrNoQuestions         = errors.New("no questions available for this project and difficulty")
	ErrNotCurrentQuestion  = errors.New("submitted question is not the current question")
	ErrResultUnavailable   = errors.New("result is only available for submitted sessions")
	ErrMissingDuration     = errors.New("no duration configured for this difficulty")
)

// StartSessionResult is what the candidate gets back when their exam begins.
type StartSessionResult struct {
	SessionID           uuid.UUID                  `json:"session_id"`
	Mode                model.ExamMode             `json:"mode"`
	Difficulty          model.Difficulty           `json:"difficulty"`
	TotalQuestions      int                        `json:"total_questions"`
	TotalAllowedSeconds int                        `json:"total_allowed_seconds"`
	PerQuestionSeconds  int                        `json:"per_question_seconds"`
	Question            model.QuestionForCandidate `json:"question"`
}

// SubmitAnswerResult reports the outcome of one answer submission. Feedback
// and CorrectIndex are only populated in practice mode.
type SubmitAnswerResult struct {
	Accepted     bool                        `json:"accepted"`
	TimeExpired  bool                        `json:"time_expired"`
	RejectReason string                      `json:"reject_reason,omitempty"`
	Status       model.SessionStatus         `json:"status"`
	Feedback     *bool                       `json:"correct,omitempty"`
	CorrectIndex *int                        `json:"correct_index,omitempty"`
	NextQuestion *model.QuestionForCandidate `json:"next_question,omitempty"`
}

// AnswerView is what a reconnecting client sees of a recorded answer.
// Correctness is included only in practice mode, where feedback was already
// revealed at submission.
type AnswerView struct {
	SelectedIndex *int   `json:"selected_index,omitempty"`
	Accepted      bool   `json:"accepted"`
	TimeExpired   bool   `json:"time_expired"`
	RejectReason  string `json:"reject_reason,omitempty"`
	Correct       *bool  `json:"correct,omitempty"`
}

// SessionState is a full snapshot for reconnecting clients.
type SessionState struct {
	SessionID              uuid.UUID                   `json:"session_id"`
	Status                 model.SessionStatus         `json:"status"`
	Mode                   model.ExamMode              `json:"mode"`
	CurrentQuestionIndex   int                         `json:"current_question_index"`
	TotalQuestions         int                         `json:"total_questions"`
	AnsweredCount          int                         `json:"answered_count"`
	Answers                map[uuid.UUID]AnswerView    `json:"answers,omitempty"`
	Question               *model.QuestionForCandidate `json:"question,omitempty"`
	RemainingSeconds       float64                     `json:"remaining_seconds"`
	ReviewRemainingSeconds *float64                    `json:"review_remaining_seconds,omitempty"`
}

// SessionService drives the exam session lifecycle. All transitions funnel
// through it; the model enforces the state machine, the repository guard
// settles terminal races, and the timing validator judges every submission.
type SessionService struct {
	cfg       *config.Config
	clk       clock.Clock
	sessions  SessionStore
	questions QuestionBank
	validator *TimingValidator
	scoring   *ScoringEngine
	attempts  AttemptQueue
	cache     AnswerCache
	log       zerolog.Logger
}

// NewSessionService creates a SessionService. cache may be nil; the answer
// mirror is an optimization, not a source of truth.
func NewSessionService(cfg *config.Config, clk clock.Clock, sessions SessionStore, questions QuestionBank, validator *TimingValidator, scoring *ScoringEngine, attempts AttemptQueue, cache AnswerCache, log zerolog.Logger) *SessionService {
	if clk == nil {
		clk = clock.System{}
	}
	return &SessionService{
		cfg:       cfg,
		clk:       clk,
		sessions:  sessions,
		questions: questions,
		validator: validator,
		scoring:   scoring,
		attempts:  attempts,
		cache:     cache,
		log:       log,
	}
}

// StartExam configures and starts a new session: selects questions, fixes the
// time budget from the difficulty mapping, and presents the first question.
// The session passes through CONFIGURING in memory and is persisted already
// IN_PROGRESS, so a crash mid-start leaves nothing behind.
func (s *SessionService) StartExam(ctx context.Context, candidateID int, req *model.StartSessionRequest) (*StartSessionResult, error) {
	if existing, err := s.sessions.GetActiveByCandidate(ctx, candidateID); err == nil && existing != nil {
		return nil, ErrActiveSessionExists
	} else if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check active session: %w", err)
	}

	perQuestion, err := s.cfg.Timing.AllowedDuration(req.Difficulty)
	if err != nil {
		return nil, ErrMissingDuration
	}

	questions, err := s.questions.RandomSelect(ctx, req.ProjectID, model.Difficulty(req.Difficulty), req.QuestionCount)
	if err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	now := s.clk.Now()
	session := &model.ExamSession{
		ID:          uuid.New(),
		CandidateID: candidateID,
		ProjectID:   req.ProjectID,
		Mode:        model.ExamMode(req.Mode),
		Difficulty:  model.Difficulty(req.Difficulty),
		Status:      model.SessionStatusConfiguring,
	}

	questionIDs := make([]uuid.UUID, len(questions))
	for i, q := range questions {
		questionIDs[i] = q.ID
	}
	totalAllowed := int(perQuestion/time.Second) * len(questions)
	if err := session.Begin(questionIDs, totalAllowed, now); err != nil {
		return nil, err
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if _, err := s.validator.StartQuestion(ctx, session.ID, questionIDs[0], perQuestion); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("session_id", session.ID.String()).
		Int("candidate_id", candidateID).
		Str("mode", req.Mode).
		Str("difficulty", req.Difficulty).
		Int("questions", len(questions)).
		Msg("exam session started")

	return &StartSessionResult{
		SessionID:           session.ID,
		Mode:                session.Mode,
		Difficulty:          session.Difficulty,
		TotalQuestions:      len(questions),
		TotalAllowedSeconds: totalAllowed,
		PerQuestionSeconds:  int(perQuestion / time.Second),
		Question:            questions[0].ForCandidate(),
	}, nil
}

// SubmitAnswer validates and records an answer to the current question, then
// advances the session: next question, REVIEW (exam mode after the last
// question), or straight to SUBMITTED (practice mode).
func (s *SessionService) SubmitAnswer(ctx context.Context, candidateID int, sessionID uuid.UUID, req *model.SubmitAnswerRequest) (*SubmitAnswerResult, error) {
	session, err := s.loadOwned(ctx, candidateID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionStatusInProgress {
		return nil, model.ErrInvalidTransition
	}

	currentID, ok := session.CurrentQuestionID()
	if !ok || currentID != req.QuestionID {
		if !session.Contains(req.QuestionID) {
			return nil, model.ErrUnknownQuestion
		}
		// Retry of an already-decided question: replay the stored record.
		if rec, answered := session.Answers[req.QuestionID]; answered {
			return s.replayResult(session, req.QuestionID, rec), nil
		}
		return nil, ErrNotCurrentQuestion
	}

	verdict, err := s.validator.Validate(ctx, sessionID, req.QuestionID, candidateID, req)
	if err != nil {
		return nil, err
	}

	question, err := s.questionByID(ctx, req.QuestionID)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	rec := model.AnswerRecord{
		SubmittedAt:      now,
		TimeSpentSeconds: verdict.ServerElapsedSeconds,
		Accepted:         verdict.Accepted,
		TimeExpired:      verdict.TimeExpired,
		RejectReason:     string(verdict.RejectReason),
	}
	if verdict.Accepted && !verdict.TimeExpired {
		rec.SelectedIndex = req.AnswerIndex
		rec.IsCorrect = req.AnswerIndex != nil && *req.AnswerIndex == question.CorrectIndex
	}
	if verdict.RejectReason == model.RejectDiscrepancy {
		session.DiscrepancyCount++
	}
	if err := session.RecordAnswer(req.QuestionID, rec); err != nil {
		return nil, err
	}

	result := &SubmitAnswerResult{
		Accepted:     verdict.Accepted,
		TimeExpired:  verdict.TimeExpired,
		RejectReason: string(verdict.RejectReason),
	}
	if session.Mode == model.ModePractice {
		correct := rec.IsCorrect
		idx := question.CorrectIndex
		result.Feedback = &correct
		result.CorrectIndex = &idx
	}

	// A rejected submission still advances the flow. The decision is final,
	// the question scores as incorrect, and the candidate moves on.
	if session.OnLastQuestion() {
		if err := s.closeOutLastQuestion(ctx, session, now); err != nil {
			return nil, err
		}
	} else {
		if err := session.Advance(now); err != nil {
			return nil, err
		}
		nextID, _ := session.CurrentQuestionID()
		next, err := s.questionByID(ctx, nextID)
		if err != nil {
			return nil, err
		}
		perQuestion, err := s.cfg.Timing.AllowedDuration(string(session.Difficulty))
		if err != nil {
			return nil, ErrMissingDuration
		}
		if _, err := s.validator.StartQuestion(ctx, session.ID, nextID, perQuestion); err != nil {
			return nil, err
		}
		nq := next.ForCandidate()
		result.NextQuestion = &nq
		if err := s.sessions.Save(ctx, session); err != nil {
			return nil, s.mapSaveErr(err)
		}
	}

	s.mirrorAnswers(ctx, session)

	result.Status = session.Status
	return result, nil
}

// mirrorAnswers refreshes the Redis answer mirror after any answer change.
func (s *SessionService) mirrorAnswers(ctx context.Context, session *model.ExamSession) {
	if s.cache != nil && !session.Terminal() {
		s.cache.CacheAnswers(ctx, session.ID, session.Answers)
	}
}

// closeOutLastQuestion handles the transition after the final answer: exam
// mode enters review, practice mode finalizes immediately.
func (s *SessionService) closeOutLastQuestion(ctx context.Context, session *model.ExamSession, now time.Time) error {
	if session.Mode == model.ModeExam {
		if err := session.EnterReview(now); err != nil {
			return err
		}
		if err := s.sessions.Save(ctx, session); err != nil {
			return s.mapSaveErr(err)
		}
		return nil
	}
	return s.finalize(ctx, session, now)
}

// finalize scores the session, marks it SUBMITTED, and queues the immutable
// attempt record. If a racing writer already closed the session the terminal
// guard makes this a no-op.
func (s *SessionService) finalize(ctx context.Context, session *model.ExamSession, now time.Time) error {
	questions, err := s.questions.GetByIDs(ctx, session.QuestionIDs)
	if err != nil {
		return fmt.Errorf("load questions for scoring: %w", err)
	}
	report := s.scoring.Score(session, questions)

	if err := session.Submit(report.Score, now); err != nil {
		return err
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		if errors.Is(err, repository.ErrTerminalConflict) {
			s.log.Info().Str("session_id", session.ID.String()).Msg("finalize lost terminal race")
			return nil
		}
		return err
	}

	if s.cache != nil {
		s.cache.ClearSessionCache(ctx, session.ID)
	}

	attempt := buildAttempt(session, report)
	if err := s.attempts.EnqueueAttempt(ctx, attempt); err != nil {
		// The session itself is already SUBMITTED and rescoreable, so a
		// queue failure is logged rather than unwinding the submit.
		s.log.Error().Err(err).Str("session_id", session.ID.String()).Msg("failed to enqueue attempt")
	}

	s.log.Info().
		Str("session_id", session.ID.String()).
		Float64("score", report.Score).
		Int("correct", report.CorrectCount).
		Msg("session submitted")
	return nil
}

// GetState returns a reconnect snapshot: current question, remaining time on
// it, and review countdown when applicable.
func (s *SessionService) GetState(ctx context.Context, candidateID int, sessionID uuid.UUID) (*SessionState, error) {
	session, err := s.loadOwned(ctx, candidateID, sessionID)
	if err != nil {
		return nil, err
	}

	answers := s.answeredRecords(ctx, session)
	state := &SessionState{
		SessionID:            session.ID,
		Status:               session.Status,
		Mode:                 session.Mode,
		CurrentQuestionIndex: session.CurrentQuestionIndex,
		TotalQuestions:       len(session.QuestionIDs),
		AnsweredCount:        len(answers),
		Answers:              answerViews(session.Mode, answers),
	}

	now := s.clk.Now()
	if session.Status == model.SessionStatusInProgress {
		currentID, ok := session.CurrentQuestionID()
		if ok {
			question, err := s.questionByID(ctx, currentID)
			if err != nil {
				return nil, err
			}
			q := question.ForCandidate()
			state.Question = &q
			state.RemainingSeconds = s.remainingOnQuestion(ctx, session.ID, currentID, now)
		}
	}
	if session.Status == model.SessionStatusReview {
		if deadline, ok := session.ReviewDeadline(); ok {
			remaining := deadline.Sub(now).Seconds()
			if remaining < 0 {
				remaining = 0
			}
			state.ReviewRemainingSeconds = &remaining
		}
	}
	return state, nil
}

// GetCurrentQuestion returns the question the candidate should be answering,
// with its live remaining time.
func (s *SessionService) GetCurrentQuestion(ctx context.Context, candidateID int, sessionID uuid.UUID) (*model.QuestionForCandidate, float64, error) {
	session, err := s.loadOwned(ctx, candidateID, sessionID)
	if err != nil {
		return nil, 0, err
	}
	if session.Status != model.SessionStatusInProgress {
		return nil, 0, model.ErrInvalidTransition
	}
	currentID, ok := session.CurrentQuestionID()
	if !ok {
		return nil, 0, model.ErrUnknownQuestion
	}
	question, err := s.questionByID(ctx, currentID)
	if err != nil {
		return nil, 0, err
	}
	q := question.ForCandidate()
	return &q, s.remainingOnQuestion(ctx, sessionID, currentID, s.clk.Now()), nil
}

// Cancel discards a session. Cancelling after a racing submit or expiry
// already closed the session returns the terminal conflict to the caller.
func (s *SessionService) Cancel(ctx context.Context, candidateID int, sessionID uuid.UUID) error {
	session, err := s.loadOwned(ctx, candidateID, sessionID)
	if err != nil {
		return err
	}
	if err := session.Cancel(s.clk.Now()); err != nil {
		return err
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return s.mapSaveErr(err)
	}
	if s.cache != nil {
		s.cache.ClearSessionCache(ctx, session.ID)
	}
	s.log.Info().Str("session_id", sessionID.String()).Msg("session cancelled")
	return nil
}

// GetResult returns the score report for a SUBMITTED session. Cancelled and
// in-flight sessions have no result.
func (s *SessionService) GetResult(ctx context.Context, candidateID int, sessionID uuid.UUID) (*ScoreReport, error) {
	session, err := s.loadOwned(ctx, candidateID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionStatusSubmitted {
		return nil, ErrResultUnavailable
	}
	questions, err := s.questions.GetByIDs(ctx, session.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("load questions for result: %w", err)
	}
	return s.scoring.Score(session, questions), nil
}

// CountdownWindow returns the absolute window the candidate's countdown is
// running against: the current question's (start, budget) while IN_PROGRESS,
// or the review window while in REVIEW. Terminal and configuring sessions
// have no countdown.
func (s *SessionService) CountdownWindow(ctx context.Context, candidateID int, sessionID uuid.UUID) (time.Time, time.Duration, error) {
	session, err := s.loadOwned(ctx, candidateID, sessionID)
	if err != nil {
		return time.Time{}, 0, err
	}
	switch session.Status {
	case model.SessionStatusInProgress:
		currentID, ok := session.CurrentQuestionID()
		if !ok {
			return time.Time{}, 0, model.ErrUnknownQuestion
		}
		rec, err := s.validator.store.Get(ctx, sessionID, currentID)
		if err != nil {
			return time.Time{}, 0, fmt.Errorf("load timing record: %w", err)
		}
		return rec.ServerStartedAt, time.Duration(rec.AllowedDurationSeconds) * time.Second, nil
	case model.SessionStatusReview:
		if session.ReviewStartedAt == nil {
			return time.Time{}, 0, model.ErrReviewUnavailable
		}
		return *session.ReviewStartedAt, time.Duration(session.ReviewDurationSeconds) * time.Second, nil
	default:
		return time.Time{}, 0, model.ErrInvalidTransition
	}
}

// loadOwned loads a session and enforces candidate ownership.
func (s *SessionService) loadOwned(ctx context.Context, candidateID int, sessionID uuid.UUID) (*model.ExamSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session.CandidateID != candidateID {
		return nil, ErrNotSessionOwner
	}
	return session, nil
}

func (s *SessionService) questionByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	questions, err := s.questions.GetByIDs(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, fmt.Errorf("load question: %w", err)
	}
	if len(questions) == 0 {
		return nil, model.ErrUnknownQuestion
	}
	return &questions[0], nil
}

// answeredRecords serves the answered map from the Redis mirror when it is
// complete, falling back to the session row and re-mirroring otherwise. The
// completeness check guards against a mirror that missed a write; the row is
// always authoritative.
func (s *SessionService) answeredRecords(ctx context.Context, session *model.ExamSession) map[uuid.UUID]model.AnswerRecord {
	if s.cache == nil {
		return session.Answers
	}
	if cached, ok := s.cache.GetAnswers(ctx, session.ID); ok && len(cached) == len(session.Answers) {
		return cached
	}
	if len(session.Answers) > 0 && !session.Terminal() {
		s.cache.CacheAnswers(ctx, session.ID, session.Answers)
	}
	return session.Answers
}

func answerViews(mode model.ExamMode, answers map[uuid.UUID]model.AnswerRecord) map[uuid.UUID]AnswerView {
	if len(answers) == 0 {
		return nil
	}
	views := make(map[uuid.UUID]AnswerView, len(answers))
	for qid, rec := range answers {
		view := AnswerView{
			SelectedIndex: rec.SelectedIndex,
			Accepted:      rec.Accepted,
			TimeExpired:   rec.TimeExpired,
			RejectReason:  rec.RejectReason,
		}
		if mode == model.ModePractice {
			correct := rec.IsCorrect
			view.Correct = &correct
		}
		views[qid] = view
	}
	return views
}

// remainingOnQuestion computes live remaining time from the server-recorded
// start, never from anything the client sent.
func (s *SessionService) remainingOnQuestion(ctx context.Context, sessionID, questionID uuid.UUID, now time.Time) float64 {
	rec, err := s.validator.store.Get(ctx, sessionID, questionID)
	if err != nil {
		return 0
	}
	remaining := time.Duration(rec.AllowedDurationSeconds)*time.Second - now.Sub(rec.ServerStartedAt)
	if remaining < 0 {
		remaining = 0
	}
	return remaining.Seconds()
}

func (s *SessionService) replayResult(session *model.ExamSession, questionID uuid.UUID, rec model.AnswerRecord) *SubmitAnswerResult {
	result := &SubmitAnswerResult{
		Accepted:     rec.Accepted,
		TimeExpired:  rec.TimeExpired,
		RejectReason: rec.RejectReason,
		Status:       session.Status,
	}
	if session.Mode == model.ModePractice {
		correct := rec.IsCorrect
		result.Feedback = &correct
	}
	return result
}

func (s *SessionService) mapSaveErr(err error) error {
	if errors.Is(err, repository.ErrTerminalConflict) {
		return model.ErrSessionTerminal
	}
	return err
}

func buildAttempt(session *model.ExamSession, report *ScoreReport) *model.Attempt {
	answers := make([]model.AttemptAnswer, 0, len(report.Breakdown))
	for _, row := range report.Breakdown {
		rec := session.Answers[row.QuestionID]
		answers = append(answers, model.AttemptAnswer{
			QuestionID:       row.QuestionID,
			SelectedIndex:    row.SelectedIndex,
			CorrectIndex:     row.CorrectIndex,
			IsCorrect:        row.Correct,
			Accepted:         rec.Accepted,
			TimeSpentSeconds: row.TimeSpentSeconds,
		})
	}
	return &model.Attempt{
		ID:               uuid.New(),
		SessionID:        session.ID,
		CandidateID:      session.CandidateID,
		ProjectID:        session.ProjectID,
		Mode:             session.Mode,
		Difficulty:       session.Difficulty,
		QuestionCount:    len(session.QuestionIDs),
		Score:            report.Score,
		CorrectCount:     report.CorrectCount,
		TotalTimeSeconds: int(report.TotalTimeSeconds),
		StartedAt:        session.StartedAt,
		CompletedAt:      *session.SubmittedAt,
		Answers:          answers,
	}
}
