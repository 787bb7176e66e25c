package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"messenger-service/internal/observability"
	"messenger-service/internal/presence"
)

// UserSocketHandler serves a user's private channel. The channel is
// authorized by identity: the token's user is the only possible
// subscriber.
type UserSocketHandler struct {
	hub       *Hub
	presence  *presence.Store
	jwtSecret string
	log       *zap.SugaredLogger
}

// NewUserSocketHandler constructs a UserSocketHandler.
func NewUserSocketHandler(hub *Hub, presence *presence.Store, jwtSecret string, log *zap.SugaredLogger) *UserSocketHandler {
	return &UserSocketHandler{hub: hub, presence: presence, jwtSecret: jwtSecret, log: log}
}

// Handle upgrades and registers a connection on the caller's own channel.
func (h *UserSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messenger-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := validateToken(h.jwtSecret, bearerToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
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
	h.hub.AddUserClient(userID, conn, info)

	observability.IncWSActive("user")
	observability.IncWSEvent("user", "ws_connect")
	publishConnEvent(ctx, "user", userID, info, "ws_connect", "")
	if err := h.presence.Connected(ctx, userID); err != nil {
		h.log.Warnw("presence update failed", "user_id", userID, "error", err)
	}

	go h.readLoop(ctx, userID, conn, info)
}

func (h *UserSocketHandler) readLoop(ctx context.Context, userID int, conn *websocket.Conn, info ConnInfo) {
	var closeReason string
	defer func() {
		h.hub.RemoveUserClient(userID, conn)
		observability.DecWSActive("user")
		observability.IncWSEvent("user", "ws_disconnect")
		publishConnEvent(ctx, "user", userID, info, "ws_disconnect", closeReason)
		if err := h.presence.Disconnected(context.Background(), userID); err != nil {
			h.log.Warnw("presence update failed", "user_id", userID, "error", err)
		}
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("user", "ws_error")
				publishConnEvent(ctx, "user", userID, info, "ws_error", closeReason)
			}
			return
		}
	}
}
