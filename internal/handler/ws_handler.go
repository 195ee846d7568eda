package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/exambuddy/exambuddy-backend/internal/middleware"
	"github.com/exambuddy/exambuddy-backend/internal/service"
	"github.com/exambuddy/exambuddy-backend/internal/timer"
)

const wsWriteTimeout = 5 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// tickPayload is one countdown frame pushed to the client.
type tickPayload struct {
	RemainingSeconds float64 `json:"remaining_seconds"`
	Warning          bool    `json:"warning"`
	Expired          bool    `json:"expired"`
}

// WSHandler streams live countdowns over WebSocket. All connections share
// one ticking publisher; each connection only carries its own session's
// remaining time.
type WSHandler struct {
	sessions  *service.SessionService
	publisher *timer.Publisher
	log       zerolog.Logger
	upgrader  websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions *service.SessionService, publisher *timer.Publisher, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions:  sessions,
		publisher: publisher,
		log:       log.With().Str("component", "ws_handler").Logger(),
		upgrader:  buildUpgrader(allowedOrigins),
	}
}

// TimerStream godoc
// WS /ws/v1/exams/:session_id/timer
// Streams countdown ticks for the session's active window. The stream ends
// with an expired tick, after which the client should hit the state endpoint.
func (h *WSHandler) TimerStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return
	}

	start, duration, err := h.sessions.CountdownWindow(c.Request.Context(), claims.CandidateID, sessionID)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no active countdown for this session"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("candidate_id", claims.CandidateID).
		Str("session_id", sessionID.String()).
		Logger()
	wsLog.Info().Msg("Countdown stream connected")

	sub := h.publisher.Subscribe(start, duration)
	defer h.publisher.Unsubscribe(sub)

	// Reader goroutine: the client never sends data, but reading is the only
	// way to notice a closed connection promptly.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			wsLog.Debug().Msg("Client disconnected")
			return
		case tick, ok := <-sub.C():
			if !ok {
				return
			}
			payload := tickPayload{
				RemainingSeconds: tick.Remaining.Seconds(),
				Warning:          tick.Warning,
				Expired:          tick.Expired,
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(payload); err != nil {
				wsLog.Debug().Err(err).Msg("Write failed, closing stream")
				return
			}
			if tick.Expired {
				wsLog.Info().Msg("Countdown expired, closing stream")
				_ = conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "expired"),
					time.Now().Add(wsWriteTimeout),
				)
				return
			}
		}
	}
}
