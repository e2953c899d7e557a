package ws

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"chat-relay/runtime"
)

// Handler upgrades HTTP requests to WebSocket connections and hands each
// one to a Client. Origins are not restricted: the relay has no
// authentication layer.
type Handler struct {
	orch     *runtime.Orchestrator
	log      *slog.Logger
	opts     Options
	upgrader websocket.Upgrader
}

func NewHandler(orch *runtime.Orchestrator, log *slog.Logger, opts Options) *Handler {
	return &Handler{
		orch: orch,
		log:  log,
		opts: opts,
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
		h.log.Warn("Upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	h.log.Info("Connection established", "remote", conn.RemoteAddr().String())
	go NewClient(conn, h.orch, h.log, h.opts).Run()
}
