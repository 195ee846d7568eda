package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/exambuddy/exambuddy-backend/internal/clock"
	"github.com/exambuddy/exambuddy-backend/internal/config"
	"github.com/exambuddy/exambuddy-backend/internal/database"
	"github.com/exambuddy/exambuddy-backend/internal/handler"
	"github.com/exambuddy/exambuddy-backend/internal/logger"
	"github.com/exambuddy/exambuddy-backend/internal/repository"
	"github.com/exambuddy/exambuddy-backend/internal/router"
	"github.com/exambuddy/exambuddy-backend/internal/service"
	"github.com/exambuddy/exambuddy-backend/internal/timer"
	"github.com/exambuddy/exambuddy-backend/internal/validator"
	"github.com/exambuddy/exambuddy-backend/internal/worker"
)

func main() {
	cfg := config.Load()

	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExamBuddy Backend")

	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	clk := clock.System{}

	// ─── Initialize Repositories ───────────────────────────────────────
	candidateRepo := repository.NewCandidateRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	timingRepo := repository.NewTimingRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	gateway := service.NewRedisGateway(rdb)
	authService := service.NewAuthService(cfg, rdb)
	timingValidator := service.NewTimingValidator(cfg, clk, timingRepo, gateway, gateway, log)
	scoringEngine := service.NewScoringEngine()
	sessionService := service.NewSessionService(cfg, clk, sessionRepo, questionRepo, timingValidator, scoringEngine, gateway, gateway, log)
	reviewCoordinator := service.NewReviewCoordinator(clk, sessionRepo, questionRepo, sessionService, log)
	questionService := service.NewQuestionService(clk, questionRepo)
	attemptService := service.NewAttemptService(attemptRepo)

	// ─── Shared Countdown Publisher ───────────────────────────────────
	publisher := timer.NewPublisher(clk, time.Second)
	publisherCtx, publisherCancel := context.WithCancel(context.Background())
	go publisher.Run(publisherCtx)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:     handler.NewAuthHandler(authService, candidateRepo),
		Exam:     handler.NewExamHandler(sessionService, reviewCoordinator),
		Attempt:  handler.NewAttemptHandler(attemptService),
		Question: handler.NewQuestionHandler(questionService),
		WS:       handler.NewWSHandler(sessionService, publisher, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	attemptWorker := worker.NewAttemptWorker(pool, rdb, log)
	auditWorker := worker.NewAuditWorker(pool, rdb, log)
	reviewExpiryWorker := worker.NewReviewExpiryWorker(reviewCoordinator, log)

	go attemptWorker.Start(workerCtx)
	go auditWorker.Start(workerCtx)
	go reviewExpiryWorker.Start(workerCtx)

	r := router.SetupRouter(authService, handlers, cfg)

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Close countdown streams, stop workers, let queues drain.
	publisherCancel()
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
