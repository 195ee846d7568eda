package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"
	ErrForbidden          ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Exam session ──────────────────────────────────────────────────
	ErrUnknownSession         ErrCode = "UNKNOWN_SESSION"
	ErrUnknownQuestion        ErrCode = "UNKNOWN_QUESTION"
	ErrInvalidStateTransition ErrCode = "INVALID_STATE_TRANSITION"
	ErrTimeExpired            ErrCode = "TIME_EXPIRED"
	ErrTimingDiscrepancy      ErrCode = "TIMING_DISCREPANCY"
	ErrNoQuestions            ErrCode = "NO_QUESTIONS"
	ErrResultUnavailable      ErrCode = "RESULT_UNAVAILABLE"
	ErrReviewUnavailable      ErrCode = "REVIEW_UNAVAILABLE"
	ErrMissingDuration        ErrCode = "MISSING_DIFFICULTY_DURATION"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email or password is incorrect."
	case ErrSessionActive:
		return "You are already logged in on another device."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."
	case ErrForbidden:
		return "You do not have permission to access this resource."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."

	// ─── Exam session ──────────────────────────────────────────────────
	case ErrUnknownSession:
		return "Exam session not found."
	case ErrUnknownQuestion:
		return "Question is not part of this session."
	case ErrInvalidStateTransition:
		return "This action is not allowed in the session's current state."
	case ErrTimeExpired:
		return "Time is up for this question."
	case ErrTimingDiscrepancy:
		return "Submission timing could not be verified; the answer was not counted."
	case ErrNoQuestions:
		return "No questions are available for this configuration."
	case ErrResultUnavailable:
		return "Results are only available after the exam is submitted."
	case ErrReviewUnavailable:
		return "The review phase is only available in exam mode."
	case ErrMissingDuration:
		return "No time budget is configured for this difficulty."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
