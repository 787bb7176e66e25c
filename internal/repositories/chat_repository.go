package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

var ErrChatNotFound = errors.New("chat not found")

const chatColumns = `id, is_group, name, pair_key, created_at, updated_at`

// ChatRepository abstracts chat and membership persistence.
type ChatRepository interface {
	OpenPrivateChat(ctx context.Context, userID int, otherID int) (models.Chat, error)
	CreateGroupChat(ctx context.Context, ownerID int, name string, memberIDs []int) (models.Chat, error)
	GetChat(ctx context.Context, chatID int) (models.Chat, error)
	IsMember(ctx context.Context, chatID int, userID int) (bool, error)
	ResolveRecipients(ctx context.Context, chatID int, actorID int) ([]int, error)
	ResolveMembers(ctx context.Context, chatID int) ([]int, error)
	ListChatSummaries(ctx context.Context, userID int) ([]models.ChatSummary, error)
	DeleteChats(ctx context.Context, chatIDs []int) error
	MarkRead(ctx context.Context, chatID int, userID int) error
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// pairKey is the canonical identity of a private chat between two users.
func pairKey(a, b int) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// OpenPrivateChat returns the unique non-group chat between the two users,
// creating it if absent. The pair_key unique constraint makes concurrent
// opens converge on a single row.
func (r *ChatRepo) OpenPrivateChat(ctx context.Context, userID int, otherID int) (models.Chat, error) {
	if userID == otherID {
		return models.Chat{}, errors.New("cannot open chat with self")
	}
	key := pairKey(userID, otherID)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var chat models.Chat
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO chats (is_group, pair_key) VALUES (FALSE, $1)
         ON CONFLICT (pair_key) DO NOTHING
         RETURNING `+chatColumns, key).StructScan(&chat)
	if errors.Is(err, sql.ErrNoRows) {
		// Lost the race or the chat already existed.
		if err = tx.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE pair_key=$1`, key); err != nil {
			return models.Chat{}, err
		}
		return chat, tx.Commit()
	}
	if err != nil {
		return models.Chat{}, err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO chat_members (chat_id, user_id, last_read_at) VALUES ($1, $2, NOW())`, chat.ID, userID); err != nil {
		return models.Chat{}, err
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO chat_members (chat_id, user_id, last_read_at) VALUES ($1, $2, NULL)`, chat.ID, otherID); err != nil {
		return models.Chat{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// CreateGroupChat creates a group chat and its members atomically. The
// owner is always included and member ids are deduplicated.
func (r *ChatRepo) CreateGroupChat(ctx context.Context, ownerID int, name string, memberIDs []int) (models.Chat, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var chat models.Chat
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO chats (is_group, name) VALUES (TRUE, $1) RETURNING `+chatColumns, name).StructScan(&chat); err != nil {
		return models.Chat{}, err
	}

	memberSet := map[int]struct{}{ownerID: {}}
	for _, id := range memberIDs {
		memberSet[id] = struct{}{}
	}
	for id := range memberSet {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2)`, chat.ID, id); err != nil {
			return models.Chat{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// IsMember checks whether a user belongs to the chat.
func (r *ChatRepo) IsMember(ctx context.Context, chatID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM chat_members WHERE chat_id=$1 AND user_id=$2)`, chatID, userID)
	return exists, err
}

// ResolveRecipients returns the chat's member ids excluding the actor.
// Membership is read at call time; it is never cached across requests.
func (r *ChatRepo) ResolveRecipients(ctx context.Context, chatID int, actorID int) ([]int, error) {
	if _, err := r.GetChat(ctx, chatID); err != nil {
		return nil, err
	}
	var ids []int
	err := r.db.SelectContext(ctx, &ids,
		`SELECT user_id FROM chat_members WHERE chat_id=$1 AND user_id<>$2 ORDER BY user_id`, chatID, actorID)
	return ids, err
}

// ResolveMembers returns the full member set of the chat.
func (r *ChatRepo) ResolveMembers(ctx context.Context, chatID int) ([]int, error) {
	if _, err := r.GetChat(ctx, chatID); err != nil {
		return nil, err
	}
	var ids []int
	err := r.db.SelectContext(ctx, &ids,
		`SELECT user_id FROM chat_members WHERE chat_id=$1 ORDER BY user_id`, chatID)
	return ids, err
}

// ListChatSummaries returns the user's chats with members, last message
// and unread count, most recently active first.
func (r *ChatRepo) ListChatSummaries(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	var chats []models.Chat
	err := r.db.SelectContext(ctx, &chats,
		`SELECT c.id, c.is_group, c.name, c.pair_key, c.created_at, c.updated_at FROM chats c
         INNER JOIN chat_members cm ON cm.chat_id = c.id
         WHERE cm.user_id=$1
         ORDER BY c.updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.ChatSummary, 0, len(chats))
	for _, chat := range chats {
		summary := models.ChatSummary{Chat: chat}

		if err := r.db.SelectContext(ctx, &summary.Members,
			`SELECT u.id, u.name, u.avatar, u.status FROM users u
             INNER JOIN chat_members cm ON cm.user_id = u.id
             WHERE cm.chat_id=$1 ORDER BY u.id`, chat.ID); err != nil {
			return nil, err
		}

		var last models.Message
		err := r.db.GetContext(ctx, &last,
			`SELECT `+messageColumns+` FROM messages WHERE chat_id=$1 ORDER BY id DESC LIMIT 1`, chat.ID)
		if err == nil {
			summary.LastMessage = &last
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		if err := r.db.GetContext(ctx, &summary.UnreadCount,
			`SELECT COUNT(*) FROM messages WHERE chat_id=$1 AND user_id<>$2 AND is_seen = FALSE`,
			chat.ID, userID); err != nil {
			return nil, err
		}

		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// DeleteChats removes chats and, via cascade, their memberships and
// messages, in one transaction.
func (r *ChatRepo) DeleteChats(ctx context.Context, chatIDs []int) error {
	if len(chatIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM chats WHERE id IN (?)`, chatIDs)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	return err
}

// MarkRead updates the caller's last_read_at on the membership row only.
func (r *ChatRepo) MarkRead(ctx context.Context, chatID int, userID int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chat_members SET last_read_at = NOW() WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrChatNotFound
	}
	return nil
}
