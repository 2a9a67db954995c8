package chat

import (
	"context"

	"github.com/google/uuid"
)

// Send validates p and appends it to the conversation as actor.
func (s *Service) Send(ctx context.Context, actor Actor, conversationID uuid.UUID, p Payload) (Message, error) {
	if err := requireActor(actor); err != nil {
		return Message{}, err
	}
	if p == nil {
		return Message{}, invalidInput("payload is required")
	}
	c, err := s.conversationFor(ctx, actor, conversationID, CodeUnauthorized)
	if err != nil {
		return Message{}, err
	}
	if err := p.validate(); err != nil {
		return Message{}, err
	}
	if ref, ok := p.(PlayerRefPayload); ok {
		exists, err := s.directory.PlayerExists(ctx, ref.ReferencedPlayerID)
		if err != nil {
			return Message{}, internal("lookup player", err)
		}
		if !exists {
			return Message{}, invalidInput("referenced player does not exist")
		}
	}
	if err := s.checkSendable(ctx, actor, c, p.messageType()); err != nil {
		return Message{}, err
	}
	return s.insert(ctx, actor, c, p)
}

// SendAttachment stores u and then sends it as a file message. The message
// row is written only after both the upload and URL signing succeeded.
func (s *Service) SendAttachment(ctx context.Context, actor Actor, conversationID uuid.UUID, u Upload) (Message, error) {
	if err := requireActor(actor); err != nil {
		return Message{}, err
	}
	c, err := s.conversationFor(ctx, actor, conversationID, CodeUnauthorized)
	if err != nil {
		return Message{}, err
	}
	if err := s.attachments.Validate(u); err != nil {
		return Message{}, err
	}
	if err := s.checkSendable(ctx, actor, c, MessageFile); err != nil {
		return Message{}, err
	}

	uploadCtx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
	defer cancel()
	p, err := s.attachments.Store(uploadCtx, c.ID, u)
	if err != nil {
		s.log.Warn().Err(err).Str("conversation_id", c.ID.String()).Msg("attachment upload failed")
		return Message{}, err
	}
	if err := p.validate(); err != nil {
		return Message{}, err
	}
	return s.insert(ctx, actor, c, p)
}

// checkSendable enforces the block and the per-sender quotas.
func (s *Service) checkSendable(ctx context.Context, actor Actor, c Conversation, t MessageType) error {
	b, err := s.store.GetBlock(ctx, c.ID)
	if err != nil {
		return internal("load block", err)
	}
	if b != nil {
		return newError(CodeBlocked, "conversation is blocked")
	}
	if err := s.limiter.Check(ctx, actor.ID, QuotaMessagesPerHour); err != nil {
		return err
	}
	if t == MessageFile {
		if err := s.limiter.Check(ctx, actor.ID, QuotaUploadsPerDay); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) insert(ctx context.Context, actor Actor, c Conversation, p Payload) (Message, error) {
	sender := actor.ID
	m := Message{
		ID:             s.messageID(),
		ConversationID: c.ID,
		SenderID:       &sender,
		CreatedAt:      s.clock(),
	}
	fill(&m, p)
	if err := s.store.InsertMessage(ctx, m); err != nil {
		return Message{}, internal("insert message", err)
	}

	s.log.Debug().Str("conversation_id", c.ID.String()).Str("message_id", m.ID.String()).
		Str("type", string(m.MessageType)).Msg("message sent")
	s.publish(ctx, Event{Kind: EventMessageCreated, ConversationID: c.ID, Payload: m})
	s.invalidateUnread(ctx, c)
	if s.notifier != nil {
		if err := s.notifier.MessageSent(ctx, c, m); err != nil {
			s.log.Warn().Err(err).Str("message_id", m.ID.String()).Msg("notification dispatch")
		}
	}
	return m, nil
}
