package handler

import (
	"net/http"
	"strings"

	"sheetnotes/internal/logging"
	"sheetnotes/internal/middleware"
	"sheetnotes/internal/websocket"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	manager  *websocket.Manager
	sessions middleware.SessionValidator
	upgrader ws.Upgrader
	logger   logging.Logger
}

func NewWebSocketHandler(manager *websocket.Manager, sessions middleware.SessionValidator, readBuf, writeBuf int, logger logging.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		manager:  manager,
		sessions: sessions,
		logger:   logger,
		upgrader: ws.Upgrader{
			ReadBufferSize:  readBuf,
			WriteBufferSize: writeBuf,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	if token == "" {
		http.Error(w, "missing authorization token", http.StatusUnauthorized)
		return
	}

	user, err := h.sessions.RequireSession(token)
	if err != nil {
		h.logger.Warn(r.Context(), "websocket session rejected", "error", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error(r.Context(), "websocket upgrade failed", "user", user.Subject, "error", err)
		return
	}

	client := websocket.NewClient(uuid.New().String(), user.Subject, conn, h.manager)
	h.manager.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
