package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, chat_id, user_id, type, body, file_path, reply_to, forwarded_from,
    is_delivered, delivered_at, is_seen, seen_at, is_deleted, created_at`

// CreateMessageParams carries the fields of a new message row.
type CreateMessageParams struct {
	ChatID        int
	SenderID      int
	Type          models.MessageType
	Body          *string
	FilePath      *string
	ReplyTo       *int
	ForwardedFrom *int
}

// MessageRepository defines interactions for messages and their
// per-recipient delivery state.
type MessageRepository interface {
	CreateMessage(ctx context.Context, p CreateMessageParams) (models.Message, error)
	CreateMessages(ctx context.Context, params []CreateMessageParams) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	GetMessages(ctx context.Context, messageIDs []int) ([]models.Message, error)
	ListChatMessages(ctx context.Context, chatID int, userID int, limit int, beforeID int) ([]models.Message, error)
	MarkDelivered(ctx context.Context, userID int) (int64, error)
	MarkSeen(ctx context.Context, chatID int, userID int) (int64, error)
	DeleteForEveryone(ctx context.Context, messageID int, senderID int) (bool, error)
	DeleteForMe(ctx context.Context, messageID int, userID int) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const insertMessageQuery = `INSERT INTO messages
    (chat_id, user_id, type, body, file_path, reply_to, forwarded_from)
    VALUES ($1, $2, $3, $4, $5, $6, $7)
    RETURNING ` + messageColumns

// CreateMessage stores a single message with delivery flags reset.
func (r *MessageRepo) CreateMessage(ctx context.Context, p CreateMessageParams) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, insertMessageQuery,
		p.ChatID, p.SenderID, p.Type, p.Body, p.FilePath, p.ReplyTo, p.ForwardedFrom).StructScan(&msg)
	if err != nil {
		return models.Message{}, err
	}
	r.touchChat(ctx, p.ChatID)
	return msg, nil
}

// CreateMessages stores a batch of messages in one transaction; either
// all rows commit or none do.
func (r *MessageRepo) CreateMessages(ctx context.Context, params []CreateMessageParams) ([]models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	msgs := make([]models.Message, 0, len(params))
	for _, p := range params {
		var msg models.Message
		if err = tx.QueryRowxContext(ctx, insertMessageQuery,
			p.ChatID, p.SenderID, p.Type, p.Body, p.FilePath, p.ReplyTo, p.ForwardedFrom).StructScan(&msg); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	for _, p := range params {
		r.touchChat(ctx, p.ChatID)
	}
	return msgs, nil
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// GetMessages retrieves a set of messages by id, ordered by id.
func (r *MessageRepo) GetMessages(ctx context.Context, messageIDs []int) ([]models.Message, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+messageColumns+` FROM messages WHERE id IN (?) ORDER BY id`, messageIDs)
	if err != nil {
		return nil, err
	}
	var msgs []models.Message
	err = r.db.SelectContext(ctx, &msgs, r.db.Rebind(query), args...)
	return msgs, err
}

// ListChatMessages returns messages newest first, hiding rows the viewer
// has deleted for themselves. Rows deleted for everyone remain as
// tombstones with cleared body and file.
func (r *MessageRepo) ListChatMessages(ctx context.Context, chatID int, userID int, limit int, beforeID int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 30
	}
	query := `SELECT ` + messageColumns + ` FROM messages m
        WHERE m.chat_id=$1
        AND NOT EXISTS (SELECT 1 FROM message_deletions d WHERE d.message_id = m.id AND d.user_id=$2)
        AND ($3 = 0 OR m.id < $3)
        ORDER BY m.id DESC
        LIMIT $4`
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, chatID, userID, beforeID, limit)
	return msgs, err
}

// MarkDelivered flips every undelivered, unseen message authored by
// someone else in any of the user's chats. The predicate makes the call
// idempotent and the transition one-way; delivered_at is set only on the
// first transition.
func (r *MessageRepo) MarkDelivered(ctx context.Context, userID int) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_delivered = TRUE, delivered_at = NOW()
         WHERE chat_id IN (SELECT chat_id FROM chat_members WHERE user_id=$1)
         AND user_id<>$1
         AND is_delivered = FALSE
         AND is_seen = FALSE`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkSeen flips unseen messages authored by someone else in the chat.
// It intentionally does not require or set is_delivered: a message can
// end up seen with delivered_at still null.
func (r *MessageRepo) MarkSeen(ctx context.Context, chatID int, userID int) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_seen = TRUE, seen_at = NOW()
         WHERE chat_id=$1
         AND user_id<>$2
         AND is_seen = FALSE`, chatID, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteForEveryone marks the message deleted and clears its content,
// guarded on sender ownership. Returns false when the guard did not
// match (non-owned or already deleted row).
func (r *MessageRepo) DeleteForEveryone(ctx context.Context, messageID int, senderID int) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_deleted = TRUE, body = NULL, file_path = NULL
         WHERE id=$1 AND user_id=$2 AND is_deleted = FALSE`, messageID, senderID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// DeleteForMe records that the user has hidden the message for
// themselves. Repeated calls are no-ops.
func (r *MessageRepo) DeleteForMe(ctx context.Context, messageID int, userID int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO message_deletions (message_id, user_id) VALUES ($1, $2)
         ON CONFLICT (message_id, user_id) DO NOTHING`, messageID, userID)
	return err
}

func (r *MessageRepo) touchChat(ctx context.Context, chatID int) {
	// Best effort; listing order degrades gracefully if this fails.
	r.db.ExecContext(ctx, `UPDATE chats SET updated_at = NOW() WHERE id=$1`, chatID)
}
