package chat

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// CreateOrGet returns the scout's conversation with clubID, creating it
// together with a system message when none exists. Returning an existing
// conversation charges no quota.
func (s *Service) CreateOrGet(ctx context.Context, actor Actor, clubID uuid.UUID) (Conversation, bool, error) {
	if err := requireActor(actor); err != nil {
		return Conversation{}, false, err
	}
	if actor.Role != RoleScout {
		return Conversation{}, false, newError(CodeUnauthorized, "only scouts start conversations")
	}
	if clubID == uuid.Nil {
		return Conversation{}, false, invalidInput("club_id is required")
	}

	existing, err := s.store.FindConversation(ctx, actor.ID, clubID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNoRows) {
		return Conversation{}, false, internal("find conversation", err)
	}

	ok, err := s.directory.ClubExists(ctx, clubID)
	if err != nil {
		return Conversation{}, false, internal("lookup club", err)
	}
	if !ok {
		return Conversation{}, false, newError(CodeNotFound, "club not found")
	}
	if err := s.limiter.Check(ctx, actor.ID, QuotaConversationsPerDay); err != nil {
		return Conversation{}, false, err
	}

	now := s.clock()
	c := Conversation{ID: s.newID(), ScoutID: actor.ID, ClubID: clubID, CreatedAt: now}
	content := systemConversationStarted
	opening := Message{
		ID:             s.messageID(),
		ConversationID: c.ID,
		MessageType:    MessageSystem,
		Content:        &content,
		CreatedAt:      now,
	}

	// A concurrent create for the same pair loses on the unique constraint
	// and gets the winner's row back.
	stored, created, err := s.store.CreateConversation(ctx, c, opening)
	if err != nil {
		return Conversation{}, false, internal("create conversation", err)
	}
	if !created {
		return stored, false, nil
	}

	s.log.Info().Str("conversation_id", stored.ID.String()).
		Str("scout_id", actor.ID.String()).Str("club_id", clubID.String()).Msg("conversation created")
	s.publish(ctx, Event{Kind: EventConversationCreated, ConversationID: stored.ID, Payload: stored})
	s.publish(ctx, Event{Kind: EventMessageCreated, ConversationID: stored.ID, Payload: opening})
	return stored, true, nil
}

// SetBlock blocks or unblocks a conversation. Only an academy admin of the
// conversation's club may do so; the block stops both parties from sending.
func (s *Service) SetBlock(ctx context.Context, actor Actor, conversationID uuid.UUID, blocked bool) (*ConversationBlock, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if actor.Role != RoleAcademyAdmin {
		return nil, newError(CodeUnauthorized, "only the club's academy admin may block")
	}
	c, err := s.conversationFor(ctx, actor, conversationID, CodeUnauthorized)
	if err != nil {
		return nil, err
	}

	if !blocked {
		deleted, err := s.store.DeleteBlock(ctx, c.ID)
		if err != nil {
			return nil, internal("delete block", err)
		}
		if !deleted {
			return nil, newError(CodeNotBlocked, "conversation is not blocked")
		}
		s.log.Info().Str("conversation_id", c.ID.String()).Str("actor_id", actor.ID.String()).Msg("conversation unblocked")
		s.publish(ctx, Event{Kind: EventConversationUnblocked, ConversationID: c.ID})
		return nil, nil
	}

	current, err := s.store.GetBlock(ctx, c.ID)
	if err != nil {
		return nil, internal("load block", err)
	}
	if current != nil {
		return nil, newError(CodeAlreadyBlocked, "conversation is already blocked")
	}
	b := ConversationBlock{ConversationID: c.ID, BlockedBy: actor.ID, CreatedAt: s.clock()}
	if err := s.store.InsertBlock(ctx, b); err != nil {
		if errors.Is(err, ErrDuplicateBlock) {
			return nil, newError(CodeAlreadyBlocked, "conversation is already blocked")
		}
		return nil, internal("insert block", err)
	}
	s.log.Info().Str("conversation_id", c.ID.String()).Str("actor_id", actor.ID.String()).Msg("conversation blocked")
	s.publish(ctx, Event{Kind: EventConversationBlocked, ConversationID: c.ID, Payload: b})
	return &b, nil
}
