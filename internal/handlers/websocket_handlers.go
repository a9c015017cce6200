package handlers

import (
	"errors"
	"net/http"

	"chat-relay/internal/auth"
	"chat-relay/internal/models"
	ws "chat-relay/internal/websocket"
	"chat-relay/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	authService *auth.Service
	manager     *ws.Manager
	upgrader    websocket.Upgrader
}

func NewWebSocketHandlers(authService *auth.Service, manager *ws.Manager, origins *OriginPolicy) *WebSocketHandlers {
	return &WebSocketHandlers{
		authService: authService,
		manager:     manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.Check,
		},
	}
}

// HandleWebSocket serves GET /ws/{group}. The group comes from the path and
// is bound to the session for its whole lifetime.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	group := r.PathValue("group")
	if err := models.ValidateGroupName(group); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	identity, err := h.authService.IdentityFromRequest(r)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		logger.Warn("websocket upgrade failed", "group", group, "error", err)
		return
	}

	session := h.manager.NewSession(conn, group, identity)
	if err := h.manager.Serve(session); err != nil {
		if errors.Is(err, ws.ErrRegistryClosed) {
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			_ = conn.WriteMessage(websocket.CloseMessage, msg)
		} else {
			logger.Error("failed to start session", "group", group, "error", err)
		}
		conn.Close()
		return
	}
	logger.Debug("session ended",
		"session_id", session.ID(),
		"group", session.Group(),
		"user", session.Identity().DisplayName(),
	)
}
