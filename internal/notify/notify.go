// Package notify dispatches out-of-band notifications for new messages
// through the task queue. Dispatch is best effort: the chat service logs
// and drops any error returned here.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pelusa-v/scout-chat/internal/chat"
	"github.com/pelusa-v/scout-chat/internal/queue"
)

const (
	TaskMessageSent = "chat:message_sent"
	Queue           = "notifications"
)

// MessageSent is the task payload.
type MessageSent struct {
	ConversationID uuid.UUID        `json:"conversation_id"`
	MessageID      uuid.UUID        `json:"message_id"`
	SenderID       uuid.UUID        `json:"sender_id"`
	ScoutID        uuid.UUID        `json:"scout_id"`
	ClubID         uuid.UUID        `json:"club_id"`
	MessageType    chat.MessageType `json:"message_type"`
	CreatedAt      time.Time        `json:"created_at"`
}

// RecipientIsClub reports whether the scout sent the message.
func (n MessageSent) RecipientIsClub() bool {
	return n.SenderID == n.ScoutID
}

// QueueNotifier implements chat.Notifier by enqueueing one task per message.
type QueueNotifier struct {
	client queue.Client
}

var _ chat.Notifier = (*QueueNotifier)(nil)

func NewQueueNotifier(client queue.Client) *QueueNotifier {
	return &QueueNotifier{client: client}
}

func (q *QueueNotifier) MessageSent(ctx context.Context, c chat.Conversation, m chat.Message) error {
	if m.SenderID == nil {
		return nil
	}
	payload, err := json.Marshal(MessageSent{
		ConversationID: c.ID,
		MessageID:      m.ID,
		SenderID:       *m.SenderID,
		ScoutID:        c.ScoutID,
		ClubID:         c.ClubID,
		MessageType:    m.MessageType,
		CreatedAt:      m.CreatedAt,
	})
	if err != nil {
		return err
	}
	_, err = q.client.Enqueue(ctx, queue.Task{Type: TaskMessageSent, Payload: payload}, queue.EnqueueOption{
		Queue:    Queue,
		MaxRetry: 5,
		TaskID:   "message:" + m.ID.String(),
	})
	if errors.Is(err, queue.ErrDuplicateTask) {
		return nil
	}
	return err
}
