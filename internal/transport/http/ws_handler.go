package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"timed-quiz/internal/app"
	"timed-quiz/internal/domain"
	"timed-quiz/internal/timer"
)

const writeWait = 5 * time.Second

// WSHandler streams an attempt's countdown over a websocket.
type WSHandler struct {
	service  *app.AttemptService
	upgrader websocket.Upgrader
	interval time.Duration
	logger   *zap.Logger
}

func NewWSHandler(service *app.AttemptService, interval time.Duration, logger *zap.Logger) *WSHandler {
	if interval <= 0 {
		interval = timer.DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		service:  service,
		interval: interval,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type tickPayload struct {
	SecondsRemaining int `json:"seconds_remaining"`
}

// ServeWS sends a tick per interval until the attempt's deadline, then "expired" and closes.
// Attempts that are no longer active get their terminal status immediately.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	attempt, err := h.service.Attempt(r.Context(), chi.URLParam(r, "attemptID"), user)
	if err != nil {
		writeDetail(w, statusFor(err), err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	switch attempt.Status {
	case domain.AttemptSubmitted:
		h.finish(conn, outboundMessage{Type: "submitted"})
		return
	case domain.AttemptExpired:
		h.finish(conn, outboundMessage{Type: "expired"})
		return
	}

	countdown := timer.New(timer.WithClock(h.service.Now), timer.WithInterval(h.interval))
	expired := make(chan struct{})
	if err := countdown.Start(attempt.Deadline(), func() { close(expired) }); err != nil {
		h.finish(conn, outboundMessage{Type: "error", Payload: errorBody{Detail: err.Error()}})
		return
	}
	defer countdown.Stop()

	// The reader only watches for the client going away.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case secs := <-countdown.Ticks():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(outboundMessage{Type: "tick", Payload: tickPayload{SecondsRemaining: secs}}); err != nil {
				h.logger.Debug("ws write error", zap.Error(err))
				return
			}
		case <-expired:
			h.finish(conn, outboundMessage{Type: "expired"})
			return
		case <-clientGone:
			return
		}
	}
}

func (h *WSHandler) finish(conn *websocket.Conn, msg outboundMessage) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Debug("ws write error", zap.Error(err))
		return
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, msg.Type))
}
