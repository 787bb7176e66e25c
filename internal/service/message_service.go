package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
	"messenger-service/internal/storage"
)

// Dispatcher pushes a committed message to its recipients. It is
// best-effort and must never fail the surrounding request.
type Dispatcher interface {
	Publish(ctx context.Context, msg models.Message, recipientIDs []int)
}

// Upload is an attachment handed in by the transport layer.
type Upload struct {
	Data        []byte
	ContentType string
}

// SendInput carries a single-chat send request.
type SendInput struct {
	ChatID        int
	Type          models.MessageType
	Body          *string
	File          *Upload
	ReplyTo       *int
	ForwardedFrom *int
}

// ShareInput carries a multi-chat share request.
type ShareInput struct {
	ChatIDs       []int
	Type          models.MessageType
	Body          *string
	File          *Upload
	ReplyTo       *int
	ForwardedFrom *int
}

// DeleteMode selects the deletion semantics of DeleteMessages.
type DeleteMode string

const (
	DeleteForMe       DeleteMode = "me"
	DeleteForEveryone DeleteMode = "everyone"
)

// MessageService orchestrates message creation, forwarding, sharing and
// deletion. Every operation persists first and publishes strictly after
// commit, so a recipient who receives the event always finds the row.
type MessageService struct {
	chats      repositories.ChatRepository
	messages   repositories.MessageRepository
	blobs      storage.BlobStore
	dispatcher Dispatcher
	log        *zap.SugaredLogger
}

// NewMessageService wires the lifecycle manager.
func NewMessageService(chats repositories.ChatRepository, messages repositories.MessageRepository, blobs storage.BlobStore, dispatcher Dispatcher, log *zap.SugaredLogger) *MessageService {
	return &MessageService{
		chats:      chats,
		messages:   messages,
		blobs:      blobs,
		dispatcher: dispatcher,
		log:        log,
	}
}

// Send creates one message in one chat. With a file attached the type is
// derived from the file's content type, overriding the client's; without
// one the client type is used verbatim. At least one of body and file
// must be present.
func (s *MessageService) Send(ctx context.Context, actorID int, in SendInput) (models.Message, error) {
	chat, err := s.chats.GetChat(ctx, in.ChatID)
	if err != nil {
		if errors.Is(err, repositories.ErrChatNotFound) {
			return models.Message{}, fmt.Errorf("%w: chat %d", ErrNotFound, in.ChatID)
		}
		return models.Message{}, err
	}
	member, err := s.chats.IsMember(ctx, chat.ID, actorID)
	if err != nil {
		return models.Message{}, err
	}
	if !member {
		return models.Message{}, fmt.Errorf("%w: not a chat member", ErrForbidden)
	}

	msgType, filePath, err := s.prepareContent(ctx, in.Type, in.Body, in.File)
	if err != nil {
		return models.Message{}, err
	}

	// Resolve recipients before insert so fan-out sees membership as of
	// the request.
	recipients, err := s.chats.ResolveRecipients(ctx, chat.ID, actorID)
	if err != nil {
		return models.Message{}, err
	}

	msg, err := s.messages.CreateMessage(ctx, repositories.CreateMessageParams{
		ChatID:        chat.ID,
		SenderID:      actorID,
		Type:          msgType,
		Body:          in.Body,
		FilePath:      filePath,
		ReplyTo:       in.ReplyTo,
		ForwardedFrom: in.ForwardedFrom,
	})
	if err != nil {
		return models.Message{}, err
	}

	s.dispatcher.Publish(ctx, msg, recipients)
	return msg, nil
}

// Forward copies each live source message into each target chat. Deleted
// sources are skipped silently; a missing target chat aborts the whole
// batch before anything commits. All inserts share one transaction and
// fan-out happens only after it commits.
func (s *MessageService) Forward(ctx context.Context, actorID int, messageIDs []int, targetChatIDs []int) ([]models.Message, error) {
	if len(messageIDs) == 0 || len(targetChatIDs) == 0 {
		return nil, fmt.Errorf("%w: message_ids and target_chat_ids are required", ErrValidation)
	}

	// Repeated ids count once; the IN query returns each row once anyway.
	ids := make([]int, 0, len(messageIDs))
	idSet := make(map[int]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		if _, ok := idSet[id]; ok {
			continue
		}
		idSet[id] = struct{}{}
		ids = append(ids, id)
	}

	sources, err := s.messages.GetMessages(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(sources) != len(ids) {
		return nil, fmt.Errorf("%w: unknown message id", ErrNotFound)
	}

	recipientsByChat := make(map[int][]int, len(targetChatIDs))
	for _, chatID := range targetChatIDs {
		recipients, err := s.chats.ResolveRecipients(ctx, chatID, actorID)
		if err != nil {
			if errors.Is(err, repositories.ErrChatNotFound) {
				return nil, fmt.Errorf("%w: chat %d", ErrNotFound, chatID)
			}
			return nil, err
		}
		recipientsByChat[chatID] = recipients
	}

	var params []repositories.CreateMessageParams
	for _, chatID := range targetChatIDs {
		for _, src := range sources {
			if src.IsDeleted {
				continue
			}
			origin := src.ID
			params = append(params, repositories.CreateMessageParams{
				ChatID:        chatID,
				SenderID:      actorID,
				Type:          src.Type,
				Body:          src.Body,
				FilePath:      src.FilePath,
				ForwardedFrom: &origin,
			})
		}
	}
	if len(params) == 0 {
		return []models.Message{}, nil
	}

	msgs, err := s.messages.CreateMessages(ctx, params)
	if err != nil {
		return nil, err
	}

	for _, msg := range msgs {
		s.dispatcher.Publish(ctx, msg, recipientsByChat[msg.ChatID])
	}
	return msgs, nil
}

// Share creates the same message in every target chat, uploading an
// attached file at most once and reusing its path. Persistence is
// all-or-nothing; fan-out runs strictly after the commit, to every
// member of each chat except the actor.
func (s *MessageService) Share(ctx context.Context, actorID int, in ShareInput) ([]models.Message, error) {
	if len(in.ChatIDs) == 0 {
		return nil, fmt.Errorf("%w: chat_ids is required", ErrValidation)
	}

	recipientsByChat := make(map[int][]int, len(in.ChatIDs))
	for _, chatID := range in.ChatIDs {
		members, err := s.chats.ResolveMembers(ctx, chatID)
		if err != nil {
			if errors.Is(err, repositories.ErrChatNotFound) {
				return nil, fmt.Errorf("%w: chat %d", ErrNotFound, chatID)
			}
			return nil, err
		}
		recipients := make([]int, 0, len(members))
		for _, id := range members {
			if id != actorID {
				recipients = append(recipients, id)
			}
		}
		recipientsByChat[chatID] = recipients
	}

	msgType, filePath, err := s.prepareContent(ctx, in.Type, in.Body, in.File)
	if err != nil {
		// An already-uploaded file stays orphaned on later failures;
		// prepareContent itself fails before any row exists.
		return nil, err
	}

	params := make([]repositories.CreateMessageParams, 0, len(in.ChatIDs))
	for _, chatID := range in.ChatIDs {
		params = append(params, repositories.CreateMessageParams{
			ChatID:        chatID,
			SenderID:      actorID,
			Type:          msgType,
			Body:          in.Body,
			FilePath:      filePath,
			ReplyTo:       in.ReplyTo,
			ForwardedFrom: in.ForwardedFrom,
		})
	}

	msgs, err := s.messages.CreateMessages(ctx, params)
	if err != nil {
		return nil, err
	}

	for _, msg := range msgs {
		s.dispatcher.Publish(ctx, msg, recipientsByChat[msg.ChatID])
	}
	return msgs, nil
}

// DeleteMessages applies the requested deletion mode per message; each
// message's outcome is independent and there is no batch rollback.
// In everyone mode, messages the actor did not send are skipped; the
// returned slice holds the messages actually hard-deleted so the caller
// can notify their chat rooms.
func (s *MessageService) DeleteMessages(ctx context.Context, actorID int, messageIDs []int, mode DeleteMode) ([]models.Message, error) {
	if mode != DeleteForMe && mode != DeleteForEveryone {
		return nil, fmt.Errorf("%w: mode must be me or everyone", ErrValidation)
	}
	if len(messageIDs) == 0 {
		return nil, fmt.Errorf("%w: message_ids is required", ErrValidation)
	}

	var deleted []models.Message
	for _, id := range messageIDs {
		msg, err := s.messages.GetMessage(ctx, id)
		if err != nil {
			if errors.Is(err, repositories.ErrMessageNotFound) {
				continue
			}
			return deleted, err
		}

		switch mode {
		case DeleteForEveryone:
			if msg.SenderID != actorID {
				continue
			}
			if msg.FilePath != nil {
				if err := s.blobs.Delete(ctx, *msg.FilePath); err != nil {
					s.log.Warnw("blob delete failed", "path", *msg.FilePath, "error", err)
				}
			}
			ok, err := s.messages.DeleteForEveryone(ctx, msg.ID, actorID)
			if err != nil {
				return deleted, err
			}
			if ok {
				deleted = append(deleted, msg)
			}
		case DeleteForMe:
			if err := s.messages.DeleteForMe(ctx, msg.ID, actorID); err != nil {
				return deleted, err
			}
		}
	}
	return deleted, nil
}

// prepareContent validates body/file presence and resolves the stored
// type and file path. The upload happens before any row is written, so
// a storage failure leaves no message behind.
func (s *MessageService) prepareContent(ctx context.Context, clientType models.MessageType, body *string, file *Upload) (models.MessageType, *string, error) {
	hasBody := body != nil && *body != ""
	if !hasBody && file == nil {
		return "", nil, fmt.Errorf("%w: message needs a body or a file", ErrValidation)
	}

	if file == nil {
		if !clientType.Valid() {
			return "", nil, fmt.Errorf("%w: unknown message type %q", ErrValidation, clientType)
		}
		return clientType, nil, nil
	}

	path, err := s.blobs.Store(ctx, file.Data, file.ContentType)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return models.ClassifyContentType(file.ContentType), &path, nil
}
