package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"messenger-service/internal/models"
	"messenger-service/internal/observability"
)

// client wraps a websocket connection with a write lock. Gorilla allows
// only one concurrent writer per connection, and broadcasts for
// different messages can run on different goroutines.
type client struct {
	conn *websocket.Conn
	info ConnInfo
	mu   sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub maintains active websocket rooms: one per chat and one private
// room per user.
type Hub struct {
	chatRooms map[int]map[*websocket.Conn]*client
	userRooms map[int]map[*websocket.Conn]*client
	log       *zap.SugaredLogger
	mu        sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		chatRooms: make(map[int]map[*websocket.Conn]*client),
		userRooms: make(map[int]map[*websocket.Conn]*client),
		log:       log,
	}
}

// AddChatClient registers a websocket connection to a chat room.
func (h *Hub) AddChatClient(chatID int, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.chatRooms[chatID]; !ok {
		h.chatRooms[chatID] = make(map[*websocket.Conn]*client)
	}
	h.chatRooms[chatID][conn] = &client{conn: conn, info: info}
}

// RemoveChatClient removes a chat websocket connection.
func (h *Hub) RemoveChatClient(chatID int, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.chatRooms[chatID]; ok {
		delete(clients, conn)
		if len(clients) == 0 {
			delete(h.chatRooms, chatID)
		}
	}
}

// AddUserClient registers a websocket connection to a user's private room.
func (h *Hub) AddUserClient(userID int, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.userRooms[userID]; !ok {
		h.userRooms[userID] = make(map[*websocket.Conn]*client)
	}
	h.userRooms[userID][conn] = &client{conn: conn, info: info}
}

// RemoveUserClient removes a user websocket connection.
func (h *Hub) RemoveUserClient(userID int, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.userRooms[userID]; ok {
		delete(clients, conn)
		if len(clients) == 0 {
			delete(h.userRooms, userID)
		}
	}
}

// BroadcastChatEvent sends the event to every connection in the chat's
// room. Delivery is at-most-once per live connection; a failed write
// drops the connection and is never retried.
func (h *Hub) BroadcastChatEvent(chatID int, event models.ChatEvent) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.chatRooms[chatID]))
	for _, cl := range h.chatRooms[chatID] {
		clients = append(clients, cl)
	}
	h.mu.RUnlock()

	payload, _ := json.Marshal(event)
	for _, cl := range clients {
		if err := cl.write(payload); err != nil {
			h.log.Warnw("websocket write error", "chat_id", chatID, "error", err)
			cl.conn.Close()
			h.RemoveChatClient(chatID, cl.conn)
			h.publishWSError("chat", chatID, cl, err)
		}
	}
}

// SendUserEvent sends the event to every connection in the user's
// private room.
func (h *Hub) SendUserEvent(userID int, event models.ChatEvent) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.userRooms[userID]))
	for _, cl := range h.userRooms[userID] {
		clients = append(clients, cl)
	}
	h.mu.RUnlock()

	payload, _ := json.Marshal(event)
	for _, cl := range clients {
		if err := cl.write(payload); err != nil {
			h.log.Warnw("websocket write error", "user_id", userID, "error", err)
			cl.conn.Close()
			h.RemoveUserClient(userID, cl.conn)
			h.publishWSError("user", userID, cl, err)
		}
	}
}

// BroadcastDeletion notifies a chat room of a delete-for-everyone event.
func (h *Hub) BroadcastDeletion(chatID int, messageID int) {
	h.BroadcastChatEvent(chatID, models.ChatEvent{Type: "delete_for_all", MessageID: messageID})
}

func (h *Hub) publishWSError(kind string, resourceID int, cl *client, err error) {
	info := cl.info

	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        kind,
			"resource_id": resourceID,
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), wsRoutingKey(kind),
		observability.NewEnvelope("ws_events", "ws_error", payload), headers)
	observability.IncWSEvent(kind, "ws_error")
}

func wsRoutingKey(kind string) string {
	if kind == "user" {
		return "ws_events.users"
	}
	return "ws_events.chats"
}
