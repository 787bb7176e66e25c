package ws

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"messenger-service/internal/auth"
	"messenger-service/internal/observability"
	"messenger-service/internal/presence"
	"messenger-service/internal/repositories"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ChatSocketHandler serves the per-chat broadcast channel. A user may
// subscribe only while a current member; membership is re-checked at
// subscribe time, never cached.
type ChatSocketHandler struct {
	hub       *Hub
	chatRepo  repositories.ChatRepository
	presence  *presence.Store
	jwtSecret string
	log       *zap.SugaredLogger
}

// NewChatSocketHandler constructs a ChatSocketHandler.
func NewChatSocketHandler(hub *Hub, chatRepo repositories.ChatRepository, presence *presence.Store, jwtSecret string, log *zap.SugaredLogger) *ChatSocketHandler {
	return &ChatSocketHandler{hub: hub, chatRepo: chatRepo, presence: presence, jwtSecret: jwtSecret, log: log}
}

// Handle upgrades the connection and registers the client in the chat room.
func (h *ChatSocketHandler) Handle(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	ctx, span := otel.Tracer("messenger-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := validateToken(h.jwtSecret, bearerToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	member, err := h.chatRepo.IsMember(ctx, chatID, userID)
	if err != nil || !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for chat"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	meta := observability.MetaFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    meta.DeviceID,
		IP:          meta.IP,
		RequestID:   meta.RequestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.hub.AddChatClient(chatID, conn, info)

	observability.IncWSActive("chat")
	observability.IncWSEvent("chat", "ws_connect")
	publishConnEvent(ctx, "chat", chatID, info, "ws_connect", "")
	if err := h.presence.Connected(ctx, userID); err != nil {
		h.log.Warnw("presence update failed", "user_id", userID, "error", err)
	}

	go h.readLoop(ctx, chatID, conn, info)
}

func (h *ChatSocketHandler) readLoop(ctx context.Context, chatID int, conn *websocket.Conn, info ConnInfo) {
	var closeReason string
	defer func() {
		h.hub.RemoveChatClient(chatID, conn)
		observability.DecWSActive("chat")
		observability.IncWSEvent("chat", "ws_disconnect")
		publishConnEvent(ctx, "chat", chatID, info, "ws_disconnect", closeReason)
		if err := h.presence.Disconnected(context.Background(), info.UserID); err != nil {
			h.log.Warnw("presence update failed", "user_id", info.UserID, "error", err)
		}
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("chat", "ws_error")
				publishConnEvent(ctx, "chat", chatID, info, "ws_error", closeReason)
			}
			return
		}
	}
}

func validateToken(secret, header string) (int, error) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 {
		return 0, errors.New("invalid token")
	}
	claims, err := auth.ParseToken(secret, parts[1])
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}

func publishConnEvent(ctx context.Context, kind string, resourceID int, info ConnInfo, event, reason string) {
	duration := int64(0)
	if event != "ws_connect" {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	envelope := observability.NewEnvelope("ws_events", event, map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        kind,
			"resource_id": resourceID,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": duration,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	})
	_ = observability.PublishEvent(ctx, wsRoutingKey(kind), envelope,
		observability.BuildHeaders(info.RequestID, info.TraceID))
}
