package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/models"
	"messenger-service/internal/service"
	"messenger-service/internal/telemetry"
	"messenger-service/internal/ws"
)

// MessageHandler manages message endpoints.
type MessageHandler struct {
	messages *service.MessageService
	delivery *service.DeliveryService
	hub      *ws.Hub
	audit    *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messages *service.MessageService, delivery *service.DeliveryService, hub *ws.Hub, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{
		messages: messages,
		delivery: delivery,
		hub:      hub,
		audit:    audit,
	}
}

func (h *MessageHandler) emitAudit(c *gin.Context, level, text string) {
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

func readUpload(c *gin.Context) (*service.Upload, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		if err == http.ErrMissingFile || err == http.ErrNotMultipart {
			return nil, nil
		}
		return nil, err
	}

	f, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &service.Upload{
		Data:        data,
		ContentType: fileHeader.Header.Get("Content-Type"),
	}, nil
}

// Send creates a message in one chat and fans it out.
func (h *MessageHandler) Send(c *gin.Context) {
	var req struct {
		ChatID        int     `form:"chat_id" json:"chat_id" binding:"required"`
		Type          string  `form:"type" json:"type"`
		Body          *string `form:"body" json:"body"`
		ReplyTo       *int    `form:"reply_to" json:"reply_to"`
		ForwardedFrom *int    `form:"forwarded_from" json:"forwarded_from"`
	}
	if err := c.ShouldBind(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	file, err := readUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file upload"})
		return
	}

	userID := c.GetInt("userID")
	msg, err := h.messages.Send(c.Request.Context(), userID, service.SendInput{
		ChatID:        req.ChatID,
		Type:          models.MessageType(req.Type),
		Body:          req.Body,
		File:          file,
		ReplyTo:       req.ReplyTo,
		ForwardedFrom: req.ForwardedFrom,
	})
	if err != nil {
		h.emitAudit(c, "ERROR", "message send failed")
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	h.emitAudit(c, "INFO", "Message sent")
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// Forward copies existing messages into target chats.
func (h *MessageHandler) Forward(c *gin.Context) {
	var req struct {
		MessageIDs []int `json:"message_ids" binding:"required,min=1"`
		ChatIDs    []int `json:"chat_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	msgs, err := h.messages.Forward(c.Request.Context(), userID, req.MessageIDs, req.ChatIDs)
	if err != nil {
		h.emitAudit(c, "ERROR", "message forward failed")
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	h.emitAudit(c, "INFO", "Messages forwarded")
	c.JSON(http.StatusCreated, gin.H{"messages": msgs})
}

// Share posts the same content into several chats with a single upload.
func (h *MessageHandler) Share(c *gin.Context) {
	var req struct {
		ChatIDs       []int   `form:"chat_ids[]" json:"chat_ids" binding:"required,min=1"`
		Type          string  `form:"type" json:"type"`
		Body          *string `form:"body" json:"body"`
		ReplyTo       *int    `form:"reply_to" json:"reply_to"`
		ForwardedFrom *int    `form:"forwarded_from" json:"forwarded_from"`
	}
	if err := c.ShouldBind(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	file, err := readUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file upload"})
		return
	}

	userID := c.GetInt("userID")
	msgs, err := h.messages.Share(c.Request.Context(), userID, service.ShareInput{
		ChatIDs:       req.ChatIDs,
		Type:          models.MessageType(req.Type),
		Body:          req.Body,
		File:          file,
		ReplyTo:       req.ReplyTo,
		ForwardedFrom: req.ForwardedFrom,
	})
	if err != nil {
		h.emitAudit(c, "ERROR", "message share failed")
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	h.emitAudit(c, "INFO", "Message shared")
	c.JSON(http.StatusCreated, gin.H{"messages": msgs})
}

// DeleteMessages deletes messages for the caller or for everyone.
func (h *MessageHandler) DeleteMessages(c *gin.Context) {
	var req struct {
		MessageIDs []int  `json:"message_ids" binding:"required,min=1"`
		Mode       string `json:"mode" binding:"required,oneof=me everyone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	deleted, err := h.messages.DeleteMessages(c.Request.Context(), userID, req.MessageIDs, service.DeleteMode(req.Mode))
	if err != nil {
		h.emitAudit(c, "ERROR", "message delete failed")
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	for _, msg := range deleted {
		h.hub.BroadcastDeletion(msg.ChatID, msg.ID)
	}

	h.emitAudit(c, "INFO", "Messages deleted")
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// MarkDelivered marks every undelivered inbound message of the caller
// as delivered.
func (h *MessageHandler) MarkDelivered(c *gin.Context) {
	userID := c.GetInt("userID")
	if err := h.delivery.MarkDelivered(c.Request.Context(), userID); err != nil {
		c.JSON(errorStatus(err), gin.H{"error": "could not mark messages delivered"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "delivered"})
}

// MarkSeen marks the other members' messages in a chat as seen.
func (h *MessageHandler) MarkSeen(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	userID := c.GetInt("userID")
	if err := h.delivery.MarkSeen(c.Request.Context(), chatID, userID); err != nil {
		c.JSON(errorStatus(err), gin.H{"error": "could not mark messages seen"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "seen"})
}
