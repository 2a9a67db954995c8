package chat

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ListConversations returns the actor's conversations, most recently active
// first. Store failures degrade to an empty list.
func (s *Service) ListConversations(ctx context.Context, actor Actor) ([]ConversationSummary, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	p, ok := participationOf(actor)
	if !ok {
		return nil, newError(CodeUnauthorized, "role cannot hold conversations")
	}
	list, err := s.store.ListConversations(ctx, p)
	if err != nil {
		s.log.Warn().Err(err).Str("actor_id", actor.ID.String()).Msg("list conversations")
		return []ConversationSummary{}, nil
	}
	s.attachCounterparts(ctx, actor, list)
	for i := range list {
		list[i].Blocked = list[i].Block != nil
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].activeAt().After(list[j].activeAt()) })
	return list, nil
}

// GetConversation returns one conversation summary. Conversations the actor
// does not take part in are reported as not found.
func (s *Service) GetConversation(ctx context.Context, actor Actor, conversationID uuid.UUID) (ConversationSummary, error) {
	if err := requireActor(actor); err != nil {
		return ConversationSummary{}, err
	}
	c, err := s.conversationFor(ctx, actor, conversationID, CodeNotFound)
	if err != nil {
		return ConversationSummary{}, err
	}
	sum := ConversationSummary{Conversation: c}

	if b, err := s.store.GetBlock(ctx, c.ID); err != nil {
		s.log.Warn().Err(err).Str("conversation_id", c.ID.String()).Msg("load block")
	} else {
		sum.Block, sum.Blocked = b, b != nil
	}
	if last, err := s.store.ListMessages(ctx, c.ID, nil, 1); err != nil {
		s.log.Warn().Err(err).Str("conversation_id", c.ID.String()).Msg("load last message")
	} else if len(last) > 0 {
		sum.LastMessage = &last[0]
	}
	if p, ok := participationOf(actor); ok {
		id := c.ID
		if n, err := s.store.CountUnread(ctx, p, &id); err != nil {
			s.log.Warn().Err(err).Str("conversation_id", c.ID.String()).Msg("count unread")
		} else {
			sum.UnreadCount = n
		}
	}
	list := []ConversationSummary{sum}
	s.attachCounterparts(ctx, actor, list)
	return list[0], nil
}

// MarkRead stamps read_at on every unread message the other side sent.
// Running it again is a no-op.
func (s *Service) MarkRead(ctx context.Context, actor Actor, conversationID uuid.UUID) (int64, error) {
	if err := requireActor(actor); err != nil {
		return 0, err
	}
	c, err := s.conversationFor(ctx, actor, conversationID, CodeUnauthorized)
	if err != nil {
		return 0, err
	}
	at := s.clock()
	n, err := s.reads.MarkRead(ctx, c.ID, actor.ID, at)
	if err != nil {
		return 0, internal("mark read", err)
	}
	if n == 0 {
		return 0, nil
	}
	s.invalidateUnread(ctx, c)
	s.publish(ctx, Event{
		Kind:           EventConversationRead,
		ConversationID: c.ID,
		Payload:        readReceipt{ReaderID: actor.ID, ReadAt: at},
	})
	return n, nil
}

type readReceipt struct {
	ReaderID uuid.UUID `json:"reader_id"`
	ReadAt   time.Time `json:"read_at"`
}

// UnreadCount is the badge number across all of the actor's conversations.
func (s *Service) UnreadCount(ctx context.Context, actor Actor) (int, error) {
	if err := requireActor(actor); err != nil {
		return 0, err
	}
	p, ok := participationOf(actor)
	if !ok {
		return 0, nil
	}
	var version int64
	cached := s.unread != nil
	if cached {
		n, v, hit, err := s.unread.Get(ctx, actor)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Msg("read unread cache")
			cached = false
		case hit:
			return n, nil
		default:
			version = v
		}
	}
	n, err := s.store.CountUnread(ctx, p, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("actor_id", actor.ID.String()).Msg("count unread")
		return 0, nil
	}
	if cached {
		if err := s.unread.Set(ctx, actor, version, n); err != nil {
			s.log.Warn().Err(err).Msg("write unread cache")
		}
	}
	return n, nil
}

// attachCounterparts fills in the other side's display identity: the club
// for scouts, the scout for academy admins.
func (s *Service) attachCounterparts(ctx context.Context, actor Actor, list []ConversationSummary) {
	if len(list) == 0 {
		return
	}
	ids := make([]uuid.UUID, 0, len(list))
	for _, c := range list {
		if actor.Role == RoleScout {
			ids = append(ids, c.ClubID)
		} else {
			ids = append(ids, c.ScoutID)
		}
	}
	var (
		parties map[uuid.UUID]Party
		err     error
	)
	if actor.Role == RoleScout {
		parties, err = s.directory.Clubs(ctx, ids)
	} else {
		parties, err = s.directory.Profiles(ctx, ids)
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("resolve counterparts")
		return
	}
	for i, id := range ids {
		if p, ok := parties[id]; ok {
			p := p
			list[i].Counterpart = &p
		}
	}
}
