package dashboard

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Handler serves the dashboard feed over websocket.
type Handler struct {
	publisher *Publisher
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

// NewHandler returns the websocket endpoint. Any origin is accepted; the feed
// carries no per-user secrets.
func NewHandler(p *Publisher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		publisher: p,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	sub := h.publisher.Hub().Subscribe()
	defer sub.Close()
	h.logger.Info("dashboard subscriber connected", "remote_addr", r.RemoteAddr, "subscribers", h.publisher.Hub().Len())

	if err := h.write(conn, ConnectedFrame(time.Now())); err != nil {
		return
	}
	frame, err := h.publisher.UpdateFrame(r.Context())
	if err != nil {
		frame = ErrorFrame("snapshot unavailable")
	}
	if err := h.write(conn, frame); err != nil {
		return
	}

	// Reads only detect the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.logger.Debug("dashboard subscriber read error", "error", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			h.logger.Info("dashboard subscriber disconnected", "remote_addr", r.RemoteAddr)
			return
		case frame, ok := <-sub.C():
			if !ok {
				h.logger.Info("dashboard subscriber dropped", "remote_addr", r.RemoteAddr)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"),
					time.Now().Add(time.Second))
				return
			}
			if err := h.write(conn, frame); err != nil {
				return
			}
		}
	}
}

func (h *Handler) write(conn *websocket.Conn, frame []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		h.logger.Debug("dashboard write failed", "error", err)
		return err
	}
	return nil
}
