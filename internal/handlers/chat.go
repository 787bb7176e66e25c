package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
	"messenger-service/internal/service"
	"messenger-service/internal/telemetry"
)

// ChatHandler manages chat endpoints.
type ChatHandler struct {
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	userRepo    repositories.UserRepository
	delivery    *service.DeliveryService
	audit       *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chatRepo repositories.ChatRepository, messageRepo repositories.MessageRepository, userRepo repositories.UserRepository, delivery *service.DeliveryService, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
		delivery:    delivery,
		audit:       audit,
	}
}

func (h *ChatHandler) emitAudit(c *gin.Context, level, text string) {
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

// ListChats returns the caller's chats with last message and unread count.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := c.GetInt("userID")

	chats, err := h.chatRepo.ListChatSummaries(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// OpenChat returns the unique private chat with another user, creating
// it on first contact.
func (h *ChatHandler) OpenChat(c *gin.Context) {
	var req struct {
		UserID int `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	if userID == req.UserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
		return
	}
	if _, err := h.userRepo.GetUser(c.Request.Context(), req.UserID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "user not found"})
		return
	}

	chat, err := h.chatRepo.OpenPrivateChat(c.Request.Context(), userID, req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not open chat"})
		return
	}

	members, err := h.userRepo.BulkUsers(c.Request.Context(), []int{userID, req.UserID})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load members"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chat": chat, "users": members})
}

// CreatePrivateChats opens private chats between the caller and each of
// the given users, returning existing chats where they already exist.
func (h *ChatHandler) CreatePrivateChats(c *gin.Context) {
	var req struct {
		OtherUserIDs []int `json:"other_user_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	for _, other := range req.OtherUserIDs {
		if other == userID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user cannot chat with himself"})
			return
		}
	}

	chats := make([]models.Chat, 0, len(req.OtherUserIDs))
	for _, other := range req.OtherUserIDs {
		chat, err := h.chatRepo.OpenPrivateChat(c.Request.Context(), userID, other)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
			return
		}
		chats = append(chats, chat)
	}

	c.JSON(http.StatusCreated, gin.H{"chats": chats})
}

// CreateGroup creates a group chat including the caller.
func (h *ChatHandler) CreateGroup(c *gin.Context) {
	var req struct {
		Name  string `json:"name" binding:"required"`
		Users []int  `json:"users" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	members, err := h.userRepo.BulkUsers(c.Request.Context(), req.Users)
	if err != nil || len(members) != countDistinct(req.Users) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown member"})
		return
	}

	chat, err := h.chatRepo.CreateGroupChat(c.Request.Context(), userID, req.Name, req.Users)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	h.emitAudit(c, "INFO", "Group created")
	c.JSON(http.StatusCreated, gin.H{"chat": chat})
}

// ListMessages returns a page of chat messages filtered for the caller.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	userID := c.GetInt("userID")
	member, err := h.chatRepo.IsMember(c.Request.Context(), chatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))
	beforeID, _ := strconv.Atoi(c.DefaultQuery("before_id", "0"))

	msgs, err := h.messageRepo.ListChatMessages(c.Request.Context(), chatID, userID, limit, beforeID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	senderIDs := make([]int, 0, len(msgs))
	seen := map[int]struct{}{}
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			senderIDs = append(senderIDs, m.SenderID)
		}
	}

	users, err := h.userRepo.BulkUsers(c.Request.Context(), senderIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load senders"})
		return
	}
	senderByID := map[int]models.User{}
	for _, u := range users {
		senderByID[u.ID] = u
	}

	type messageResponse struct {
		models.Message
		Sender *models.User `json:"sender,omitempty"`
	}

	resp := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		item := messageResponse{Message: m}
		if sender, ok := senderByID[m.SenderID]; ok {
			item.Sender = &sender
		}
		resp = append(resp, item)
	}

	c.JSON(http.StatusOK, gin.H{"messages": resp})
}

// DeleteChats removes whole chats along with their messages.
func (h *ChatHandler) DeleteChats(c *gin.Context) {
	var req struct {
		ChatIDs []int `json:"chat_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.chatRepo.DeleteChats(c.Request.Context(), req.ChatIDs); err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete chats"})
		return
	}

	h.emitAudit(c, "INFO", "Chats deleted")
	c.JSON(http.StatusOK, gin.H{"deleted_chat_ids": req.ChatIDs})
}

// MarkRead updates the caller's last_read_at for the chat.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	userID := c.GetInt("userID")
	if err := h.delivery.MarkRead(c.Request.Context(), chatID, userID); err != nil {
		c.JSON(errorStatus(err), gin.H{"error": "could not mark chat read"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func countDistinct(ids []int) int {
	set := map[int]struct{}{}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return len(set)
}
