package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/exambuddy/exambuddy-backend/internal/config"
	"github.com/exambuddy/exambuddy-backend/internal/handler"
	"github.com/exambuddy/exambuddy-backend/internal/middleware"
	"github.com/exambuddy/exambuddy-backend/internal/response"
	"github.com/exambuddy/exambuddy-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth     *handler.AuthHandler
	Exam     *handler.ExamHandler
	Attempt  *handler.AttemptHandler
	Question *handler.QuestionHandler
	WS       *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/login", handlers.Auth.Login)
		auth.POST("/logout", middleware.RequireCandidateJWT(authService), handlers.Auth.Logout)
		auth.GET("/me", middleware.RequireCandidateJWT(authService), handlers.Auth.Me)
	}

	exams := router.Group("/api/v1/exams")
	exams.Use(middleware.RequireCandidateJWT(authService))
	{
		exams.POST("/start", handlers.Exam.Start)
		exams.GET("/:session_id/question", handlers.Exam.CurrentQuestion)
		exams.POST("/:session_id/answers", handlers.Exam.SubmitAnswer)
		exams.GET("/:session_id/state", handlers.Exam.State)
		exams.GET("/:session_id/review", handlers.Exam.Review)
		exams.POST("/:session_id/review", handlers.Exam.EditAnswer)
		exams.POST("/:session_id/submit", handlers.Exam.Submit)
		exams.GET("/:session_id/result", handlers.Exam.Result)
		exams.DELETE("/:session_id", handlers.Exam.Cancel)
	}

	attempts := router.Group("/api/v1/attempts")
	attempts.Use(middleware.RequireCandidateJWT(authService))
	{
		attempts.GET("", handlers.Attempt.List)
		attempts.GET("/:attempt_id", handlers.Attempt.Get)
	}

	questions := router.Group("/api/v1/projects/:project_id/questions")
	questions.Use(middleware.RequireCandidateJWT(authService))
	{
		questions.POST("", handlers.Question.Create)
		questions.GET("", handlers.Question.List)
	}

	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireCandidateWSAuth(authService))
	{
		ws.GET("/exams/:session_id/timer", handlers.WS.TimerStream)
	}

	return router
}
