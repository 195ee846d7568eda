package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/exambuddy/exambuddy-backend/internal/config"
	"github.com/exambuddy/exambuddy-backend/internal/model"
)

const (
	AttemptBatchSize    = 50
	AttemptBatchTimeout = 2 * time.Second
	AttemptPollTimeout  = 1 * time.Second
)

// AttemptWorker drains the attempt queue into Postgres. Sessions finalize
// on the hot path; the immutable attempt record is persisted asynchronously
// here so submission latency never includes an extra insert.
type AttemptWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewAttemptWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AttemptWorker {
	return &AttemptWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "attempt_worker").Logger(),
	}
}

func (w *AttemptWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AttemptWorker started")

	batch := make([]*model.Attempt, 0, AttemptBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= AttemptBatchSize || time.Since(lastFlush) >= AttemptBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.flushSafe(shutdownCtx, batch)
			cancel()
			return

		default:
			item, err := w.rdb.BLPop(ctx, AttemptPollTimeout, config.WorkerKey.PersistAttemptsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var a model.Attempt
			if err := json.Unmarshal([]byte(item[1]), &a); err != nil {
				w.log.Error().Err(err).Msg("Discarding malformed attempt payload")
				continue
			}

			batch = append(batch, &a)
		}
	}
}

// flushSafe tries the bulk path, then row-by-row with requeue on failure.
func (w *AttemptWorker) flushSafe(ctx context.Context, batch []*model.Attempt) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk attempt insert failed, attempting row-by-row recovery")

		for _, a := range batch {
			if err := w.persistSingle(ctx, a); err != nil {
				w.log.Error().Err(err).Str("session_id", a.SessionID.String()).Msg("Insert failed, requeueing")
				raw, _ := json.Marshal(a)
				w.rdb.RPush(ctx, config.WorkerKey.PersistAttemptsQueue, raw)
			}
		}
	}
}

// bulkInsert writes the whole batch in one statement via UNNEST. The
// ON CONFLICT guard keeps a requeued duplicate from inserting twice.
func (w *AttemptWorker) bulkInsert(ctx context.Context, batch []*model.Attempt) error {
	n := len(batch)

	ids := make([]uuid.UUID, 0, n)
	sessionIDs := make([]uuid.UUID, 0, n)
	candidateIDs := make([]int, 0, n)
	projectIDs := make([]uuid.UUID, 0, n)
	modes := make([]string, 0, n)
	difficulties := make([]string, 0, n)
	questionCounts := make([]int, 0, n)
	scores := make([]float64, 0, n)
	correctCounts := make([]int, 0, n)
	totalTimes := make([]int, 0, n)
	startedAts := make([]time.Time, 0, n)
	completedAts := make([]time.Time, 0, n)
	answers := make([]string, 0, n)

	for _, a := range batch {
		raw, err := json.Marshal(a.Answers)
		if err != nil {
			return err
		}
		ids = append(ids, a.ID)
		sessionIDs = append(sessionIDs, a.SessionID)
		candidateIDs = append(candidateIDs, a.CandidateID)
		projectIDs = append(projectIDs, a.ProjectID)
		modes = append(modes, string(a.Mode))
		difficulties = append(difficulties, string(a.Difficulty))
		questionCounts = append(questionCounts, a.QuestionCount)
		scores = append(scores, a.Score)
		correctCounts = append(correctCounts, a.CorrectCount)
		totalTimes = append(totalTimes, a.TotalTimeSeconds)
		startedAts = append(startedAts, a.StartedAt)
		completedAts = append(completedAts, a.CompletedAt)
		answers = append(answers, string(raw))
	}

	query := `
		INSERT INTO attempts (
			id, session_id, candidate_id, project_id, mode, difficulty,
			question_count, score, correct_count, total_time_seconds,
			started_at, completed_at, answers
		)
		SELECT
			u.id, u.session_id, u.candidate_id, u.project_id, u.mode, u.difficulty,
			u.question_count, u.score, u.correct_count, u.total_time_seconds,
			u.started_at, u.completed_at, u.answers::jsonb
		FROM UNNEST(
			$1::uuid[],
			$2::uuid[],
			$3::int[],
			$4::uuid[],
			$5::text[],
			$6::text[],
			$7::int[],
			$8::float8[],
			$9::int[],
			$10::int[],
			$11::timestamptz[],
			$12::timestamptz[],
			$13::text[]
		) AS u (
			id, session_id, candidate_id, project_id, mode, difficulty,
			question_count, score, correct_count, total_time_seconds,
			started_at, completed_at, answers
		)
		ON CONFLICT (session_id) DO NOTHING
	`

	_, err := w.pool.Exec(ctx, query,
		ids, sessionIDs, candidateIDs, projectIDs, modes, difficulties,
		questionCounts, scores, correctCounts, totalTimes,
		startedAts, completedAts, answers,
	)
	return err
}

func (w *AttemptWorker) persistSingle(ctx context.Context, a *model.Attempt) error {
	raw, err := json.Marshal(a.Answers)
	if err != nil {
		return err
	}

	_, err = w.pool.Exec(ctx,
		`INSERT INTO attempts (
			id, session_id, candidate_id, project_id, mode, difficulty,
			question_count, score, correct_count, total_time_seconds,
			started_at, completed_at, answers
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13::jsonb)
		ON CONFLICT (session_id) DO NOTHING`,
		a.ID, a.SessionID, a.CandidateID, a.ProjectID, a.Mode, a.Difficulty,
		a.QuestionCount, a.Score, a.CorrectCount, a.TotalTimeSeconds,
		a.StartedAt, a.CompletedAt, string(raw),
	)
	return err
}
