package models

import (
	"strings"
	"time"
)

// MessageType classifies the content of a message.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeVideo MessageType = "video"
	TypePDF   MessageType = "pdf"
	TypeExcel MessageType = "excel"
	TypeWord  MessageType = "word"
	TypeFile  MessageType = "file"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeVideo, TypePDF, TypeExcel, TypeWord, TypeFile:
		return true
	}
	return false
}

// ClassifyContentType maps a MIME content type to a message type. The
// mapping is total: anything unrecognized falls back to TypeFile.
func ClassifyContentType(contentType string) MessageType {
	mime := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}

	switch {
	case strings.Contains(mime, "image"):
		return TypeImage
	case strings.Contains(mime, "video"):
		return TypeVideo
	case mime == "application/pdf":
		return TypePDF
	case mime == "application/vnd.ms-excel",
		mime == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return TypeExcel
	case mime == "application/msword",
		mime == "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return TypeWord
	}
	return TypeFile
}

// Message represents a chat message.
type Message struct {
	ID            int         `db:"id" json:"id"`
	ChatID        int         `db:"chat_id" json:"chat_id"`
	SenderID      int         `db:"user_id" json:"user_id"`
	Type          MessageType `db:"type" json:"type"`
	Body          *string     `db:"body" json:"body"`
	FilePath      *string     `db:"file_path" json:"file_path"`
	ReplyTo       *int        `db:"reply_to" json:"reply_to"`
	ForwardedFrom *int        `db:"forwarded_from" json:"forwarded_from"`
	IsDelivered   bool        `db:"is_delivered" json:"is_delivered"`
	DeliveredAt   *time.Time  `db:"delivered_at" json:"delivered_at"`
	IsSeen        bool        `db:"is_seen" json:"is_seen"`
	SeenAt        *time.Time  `db:"seen_at" json:"seen_at"`
	IsDeleted     bool        `db:"is_deleted" json:"is_deleted"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
}

// MessageEvent is the materialized payload broadcast for a new message.
// Sender and ReplyTo are joined at publish time.
type MessageEvent struct {
	ID        int         `json:"id"`
	ChatID    int         `json:"chat_id"`
	Sender    *User       `json:"sender"`
	Body      *string     `json:"body"`
	Type      MessageType `json:"type"`
	FilePath  *string     `json:"file_path"`
	ReplyTo   *Message    `json:"reply_to"`
	CreatedAt time.Time   `json:"created_at"`
}

// ChatEvent is broadcasted through websockets.
type ChatEvent struct {
	Type      string        `json:"type"`
	Message   *MessageEvent `json:"message,omitempty"`
	MessageID int           `json:"message_id,omitempty"`
}
