package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"messenger-service/internal/repositories"
)

// DeliveryService mutates per-message delivery state. All transitions
// are predicate-guarded single statements in the repository, so
// concurrent calls from different recipients converge without lost
// updates and repeat calls change nothing.
type DeliveryService struct {
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	log      *zap.SugaredLogger
}

// NewDeliveryService wires the tracker.
func NewDeliveryService(chats repositories.ChatRepository, messages repositories.MessageRepository, log *zap.SugaredLogger) *DeliveryService {
	return &DeliveryService{chats: chats, messages: messages, log: log}
}

// MarkDelivered marks every undelivered, unseen message addressed to the
// user across all their chats.
func (s *DeliveryService) MarkDelivered(ctx context.Context, userID int) error {
	n, err := s.messages.MarkDelivered(ctx, userID)
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Debugw("messages marked delivered", "user_id", userID, "count", n)
	}
	return nil
}

// MarkSeen marks every unseen message addressed to the user in the chat.
// Seen does not imply delivered: delivered_at stays null when MarkSeen
// runs before MarkDelivered, and MarkDelivered will not touch seen rows.
func (s *DeliveryService) MarkSeen(ctx context.Context, chatID int, userID int) error {
	if _, err := s.chats.GetChat(ctx, chatID); err != nil {
		if errors.Is(err, repositories.ErrChatNotFound) {
			return fmt.Errorf("%w: chat %d", ErrNotFound, chatID)
		}
		return err
	}
	_, err := s.messages.MarkSeen(ctx, chatID, userID)
	return err
}

// MarkRead updates only the membership's last_read_at; message flags are
// untouched.
func (s *DeliveryService) MarkRead(ctx context.Context, chatID int, userID int) error {
	err := s.chats.MarkRead(ctx, chatID, userID)
	if errors.Is(err, repositories.ErrChatNotFound) {
		return fmt.Errorf("%w: chat %d", ErrNotFound, chatID)
	}
	return err
}
