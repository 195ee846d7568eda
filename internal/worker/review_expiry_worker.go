package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/exambuddy/exambuddy-backend/internal/service"
)

const ReviewSweepInterval = 5 * time.Second

// ReviewExpiryWorker sweeps for sessions whose review window closed without
// an explicit submit and finalizes them. The sweep is coarse on purpose: the
// review deadline itself is enforced server-side on every edit, so this only
// settles abandoned sessions.
type ReviewExpiryWorker struct {
	reviews *service.ReviewCoordinator
	log     zerolog.Logger
}

func NewReviewExpiryWorker(reviews *service.ReviewCoordinator, log zerolog.Logger) *ReviewExpiryWorker {
	return &ReviewExpiryWorker{
		reviews: reviews,
		log:     log.With().Str("component", "review_expiry_worker").Logger(),
	}
}

func (w *ReviewExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ReviewExpiryWorker started")

	ticker := time.NewTicker(ReviewSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.reviews.ExpireLapsed(ctx); err != nil && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("Lapsed review sweep failed")
			}
		}
	}
}
