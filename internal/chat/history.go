package chat

import (
	"context"

	"github.com/google/uuid"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// ClampLimit maps a requested page size into [1, MaxPageSize]; zero means default.
func ClampLimit(n int) int {
	switch {
	case n == 0:
		return DefaultPageSize
	case n < 1:
		return 1
	case n > MaxPageSize:
		return MaxPageSize
	}
	return n
}

// ListMessages returns the page of messages older than before, oldest
// first. HasMore is decided by over-fetching one row.
func (s *Service) ListMessages(ctx context.Context, actor Actor, conversationID uuid.UUID, before *Cursor, limit int) (MessagePage, error) {
	if err := requireActor(actor); err != nil {
		return MessagePage{}, err
	}
	c, err := s.conversationFor(ctx, actor, conversationID, CodeNotFound)
	if err != nil {
		return MessagePage{}, err
	}
	limit = ClampLimit(limit)

	rows, err := s.store.ListMessages(ctx, c.ID, before, limit+1)
	if err != nil {
		s.log.Warn().Err(err).Str("conversation_id", c.ID.String()).Msg("list messages")
		return MessagePage{Messages: []MessageView{}}, nil
	}
	page := MessagePage{HasMore: len(rows) > limit}
	if page.HasMore {
		rows = rows[:limit]
		page.NextCursor = CursorOf(rows[len(rows)-1]).String()
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	page.Messages = s.decorate(ctx, rows)
	return page, nil
}

// decorate joins sender identities and referenced players. A player that is
// gone or hidden resolves to nil instead of failing the page.
func (s *Service) decorate(ctx context.Context, rows []Message) []MessageView {
	var senderIDs, playerIDs []uuid.UUID
	seen := map[uuid.UUID]bool{}
	for _, m := range rows {
		if m.SenderID != nil && !seen[*m.SenderID] {
			seen[*m.SenderID] = true
			senderIDs = append(senderIDs, *m.SenderID)
		}
		if m.ReferencedPlayerID != nil && !seen[*m.ReferencedPlayerID] {
			seen[*m.ReferencedPlayerID] = true
			playerIDs = append(playerIDs, *m.ReferencedPlayerID)
		}
	}

	senders := map[uuid.UUID]Party{}
	if len(senderIDs) > 0 {
		found, err := s.directory.Profiles(ctx, senderIDs)
		if err != nil {
			s.log.Warn().Err(err).Msg("resolve senders")
		} else {
			senders = found
		}
	}
	players := map[uuid.UUID]PlayerSummary{}
	if len(playerIDs) > 0 {
		found, err := s.directory.Players(ctx, playerIDs)
		if err != nil {
			s.log.Warn().Err(err).Msg("resolve players")
		} else {
			players = found
		}
	}

	out := make([]MessageView, 0, len(rows))
	for _, m := range rows {
		v := MessageView{Message: m}
		if m.SenderID != nil {
			if p, ok := senders[*m.SenderID]; ok {
				v.Sender = &p
			}
		}
		if m.ReferencedPlayerID != nil {
			if p, ok := players[*m.ReferencedPlayerID]; ok {
				v.Player = &p
			}
		}
		out = append(out, v)
	}
	return out
}
