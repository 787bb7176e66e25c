package models

import "time"

// Chat represents a conversation. Non-group chats have exactly two
// members and a canonical PairKey; group chats have a name and any
// number of members from two up.
type Chat struct {
	ID        int       `db:"id" json:"id"`
	IsGroup   bool      `db:"is_group" json:"is_group"`
	Name      *string   `db:"name" json:"name"`
	PairKey   *string   `db:"pair_key" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ChatMember is the membership row joining users to chats.
type ChatMember struct {
	ChatID     int        `db:"chat_id" json:"chat_id"`
	UserID     int        `db:"user_id" json:"user_id"`
	LastReadAt *time.Time `db:"last_read_at" json:"last_read_at"`
}

// ChatSummary provides the API-friendly view of a chat for a user.
type ChatSummary struct {
	Chat
	Members     []User   `json:"users"`
	LastMessage *Message `json:"last_message"`
	UnreadCount int      `json:"unread_count"`
}
