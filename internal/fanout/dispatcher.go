package fanout

import (
	"context"

	"go.uber.org/zap"

	"messenger-service/internal/models"
	"messenger-service/internal/observability"
	"messenger-service/internal/repositories"
	"messenger-service/internal/ws"
)

// Dispatcher pushes committed messages to live subscribers: once to the
// chat's broadcast room and once to each recipient's private room.
// Delivery is best-effort and at-most-once per connection; there is no
// outbox or replay. Offline recipients recover the message from the
// store on their next list. Callers must invoke Publish only after the
// message row has durably committed.
type Dispatcher struct {
	hub      *ws.Hub
	users    repositories.UserRepository
	messages repositories.MessageRepository
	log      *zap.SugaredLogger
}

// NewDispatcher wires the fan-out dispatcher.
func NewDispatcher(hub *ws.Hub, users repositories.UserRepository, messages repositories.MessageRepository, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{hub: hub, users: users, messages: messages, log: log}
}

// Publish materializes the event and emits it. Failures are logged and
// counted, never returned: the message is already durable and the
// request must not fail on transport problems.
func (d *Dispatcher) Publish(ctx context.Context, msg models.Message, recipientIDs []int) {
	event := models.ChatEvent{Type: "message", Message: d.materialize(ctx, msg)}

	d.hub.BroadcastChatEvent(msg.ChatID, event)
	observability.IncFanoutEvent("chat")

	for _, userID := range recipientIDs {
		d.hub.SendUserEvent(userID, event)
		observability.IncFanoutEvent("user")
	}
	observability.AddFanoutRecipients(len(recipientIDs))

	envelope := observability.NewEnvelope("message_events", "message_created", map[string]interface{}{
		"message_id": msg.ID,
		"chat_id":    msg.ChatID,
		"sender_id":  msg.SenderID,
		"recipients": recipientIDs,
	})
	if err := observability.PublishEvent(ctx, "message_events.created", envelope, nil); err != nil {
		d.log.Warnw("event mirror publish failed", "message_id", msg.ID, "error", err)
	}
}

// materialize joins the sender identity and, when present, the
// replied-to message into the broadcast payload.
func (d *Dispatcher) materialize(ctx context.Context, msg models.Message) *models.MessageEvent {
	event := &models.MessageEvent{
		ID:        msg.ID,
		ChatID:    msg.ChatID,
		Body:      msg.Body,
		Type:      msg.Type,
		FilePath:  msg.FilePath,
		CreatedAt: msg.CreatedAt,
	}

	if sender, err := d.users.GetUser(ctx, msg.SenderID); err == nil {
		event.Sender = &sender
	} else {
		d.log.Warnw("sender join failed", "user_id", msg.SenderID, "error", err)
	}

	if msg.ReplyTo != nil {
		if reply, err := d.messages.GetMessage(ctx, *msg.ReplyTo); err == nil {
			event.ReplyTo = &reply
		}
	}
	return event
}
