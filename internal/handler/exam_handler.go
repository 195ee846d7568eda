package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/exambuddy/exambuddy-backend/internal/middleware"
	"github.com/exambuddy/exambuddy-backend/internal/model"
	"github.com/exambuddy/exambuddy-backend/internal/response"
	"github.com/exambuddy/exambuddy-backend/internal/service"
	"github.com/exambuddy/exambuddy-backend/internal/validator"
)

// ExamHandler handles the exam session lifecycle endpoints.
type ExamHandler struct {
	sessions *service.SessionService
	reviews  *service.ReviewCoordinator
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(sessions *service.SessionService, reviews *service.ReviewCoordinator) *ExamHandler {
	return &ExamHandler{sessions: sessions, reviews: reviews}
}

// Start godoc
// POST /api/v1/exams/start
// Starts a new exam session and returns the first question.
func (h *ExamHandler) Start(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.StartSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.sessions.StartExam(c.Request.Context(), claims.CandidateID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrActiveSessionExists):
			response.Fail(c, http.StatusConflict, response.ErrSessionActive)
		case errors.Is(err, service.ErrNoQuestions):
			response.Fail(c, http.StatusUnprocessableEntity, response.ErrNoQuestions)
		case errors.Is(err, service.ErrMissingDuration):
			response.Fail(c, http.StatusUnprocessableEntity, response.ErrMissingDuration)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusCreated, result)
}

// CurrentQuestion godoc
// GET /api/v1/exams/:session_id/question
// Returns the current question with its live remaining time.
func (h *ExamHandler) CurrentQuestion(c *gin.Context) {
	claims, sessionID, ok := h.sessionScope(c)
	if !ok {
		return
	}

	question, remaining, err := h.sessions.GetCurrentQuestion(c.Request.Context(), claims.CandidateID, sessionID)
	if err != nil {
		h.failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"question":          question,
		"remaining_seconds": remaining,
	})
}

// SubmitAnswer godoc
// POST /api/v1/exams/:session_id/answers
// Submits an answer to the current question.
func (h *ExamHandler) SubmitAnswer(c *gin.Context) {
	claims, sessionID, ok := h.sessionScope(c)
	if !ok {
		return
	}

	var req model.SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.sessions.SubmitAnswer(c.Request.Context(), claims.CandidateID, sessionID, &req)
	if err != nil {
		h.failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// State godoc
// GET /api/v1/exams/:session_id/state
// Returns a full reconnect snapshot of the session.
func (h *ExamHandler) State(c *gin.Context) {
	claims, sessionID, ok := h.sessionScope(c)
	if !ok {
		return
	}

	state, err := h.sessions.GetState(c.Request.Context(), claims.CandidateID, sessionID)
	if err != nil {
		h.failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// Review godoc
// GET /api/v1/exams/:session_id/review
// Returns the review sheet during the review phase.
func (h *ExamHandler) Review(c *gin.Context) {
	claims, sessionID, ok := h.sessionScope(c)
	if !ok {
		return
	}

	state, err := h.reviews.GetReview(c.Request.Context(), claims.CandidateID, sessionID)
	if err != nil {
		h.failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// EditAnswer godoc
// POST /api/v1/exams/:session_id/review
// Changes one answer inside the review window.
func (h *ExamHandler) EditAnswer(c *gin.Context) {
	claims, sessionID, ok := h.sessionScope(c)
	if !ok {
		return
	}

	var req service.EditAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.reviews.EditAnswer(c.Request.Context(), claims.CandidateID, sessionID, &req); err != nil {
		h.failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// Submit godoc
// POST /api/v1/exams/:session_id/submit
// Finalizes the session from review and returns the score report.
func (h *ExamHandler) Submit(c *gin.Context) {
	claims, sessionID, ok := h.sessionScope(c)
	if !ok {
		return
	}

	report, err := h.reviews.SubmitReview(c.Request.Context(), claims.CandidateID, sessionID)
	if err != nil {
		h.failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, report)
}

// Cancel godoc
// DELETE /api/v1/exams/:session_id
// Discards a session. No attempt record is written.
func (h *ExamHandler) Cancel(c *gin.Context) {
	claims, sessionID, ok := h.sessionScope(c)
	if !ok {
		return
	}

	if err := h.sessions.Cancel(c.Request.Context(), claims.CandidateID, sessionID); err != nil {
		h.failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// Result godoc
// GET /api/v1/exams/:session_id/result
// Returns the score report for a submitted session.
func (h *ExamHandler) Result(c *gin.Context) {
	claims, sessionID, ok := h.sessionScope(c)
	if !ok {
		return
	}

	report, err := h.sessions.GetResult(c.Request.Context(), claims.CandidateID, sessionID)
	if err != nil {
		h.failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, report)
}

// sessionScope pulls the authenticated claims and the session_id path param.
func (h *ExamHandler) sessionScope(c *gin.Context) (*service.Claims, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, uuid.Nil, false
	}
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, uuid.Nil, false
	}
	return claims, sessionID, true
}

// failSession maps service errors onto the response taxonomy.
func (h *ExamHandler) failSession(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrUnknownSession)
	case errors.Is(err, service.ErrNotSessionOwner):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
	case errors.Is(err, model.ErrUnknownQuestion):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrUnknownQuestion)
	case errors.Is(err, service.ErrNotCurrentQuestion):
		response.Fail(c, http.StatusConflict, response.ErrInvalidStateTransition)
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, model.ErrSessionTerminal):
		response.Fail(c, http.StatusConflict, response.ErrInvalidStateTransition)
	case errors.Is(err, model.ErrReviewUnavailable):
		response.Fail(c, http.StatusConflict, response.ErrReviewUnavailable)
	case errors.Is(err, service.ErrReviewWindowClosed):
		response.Fail(c, http.StatusConflict, response.ErrTimeExpired)
	case errors.Is(err, service.ErrAnswerLocked):
		response.Fail(c, http.StatusConflict, response.ErrConflict)
	case errors.Is(err, service.ErrResultUnavailable):
		response.Fail(c, http.StatusConflict, response.ErrResultUnavailable)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
