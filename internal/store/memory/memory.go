// Package memory is an in-process chat.Store. It enforces the same
// uniqueness rules as the Postgres schema and is used by tests and the
// memory store driver.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pelusa-v/scout-chat/internal/chat"
)

type pair struct{ scout, club uuid.UUID }

type Store struct {
	mu sync.RWMutex

	conversations map[uuid.UUID]chat.Conversation
	byPair        map[pair]uuid.UUID
	blocks        map[uuid.UUID]chat.ConversationBlock
	messages      map[uuid.UUID][]chat.Message // conversation -> insertion order
	views         []chat.PlayerView

	clubs    map[uuid.UUID]chat.Party
	profiles map[uuid.UUID]profile
	players  map[uuid.UUID]player
}

type profile struct {
	actor chat.Actor
	party chat.Party
}

type player struct {
	summary chat.PlayerSummary
	visible bool
}

var (
	_ chat.Store            = (*Store)(nil)
	_ chat.ReadStateWriter  = (*Store)(nil)
	_ chat.Directory        = (*Store)(nil)
	_ chat.IdentityProvider = (*Store)(nil)
)

func New() *Store {
	return &Store{
		conversations: map[uuid.UUID]chat.Conversation{},
		byPair:        map[pair]uuid.UUID{},
		blocks:        map[uuid.UUID]chat.ConversationBlock{},
		messages:      map[uuid.UUID][]chat.Message{},
		clubs:         map[uuid.UUID]chat.Party{},
		profiles:      map[uuid.UUID]profile{},
		players:       map[uuid.UUID]player{},
	}
}

// AddClub registers a club in the directory.
func (s *Store) AddClub(id uuid.UUID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clubs[id] = chat.Party{ID: id, Kind: "club", DisplayName: name}
}

// AddProfile registers an identity; academy admins need clubID.
func (s *Store) AddProfile(a chat.Actor, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[a.ID] = profile{actor: a, party: chat.Party{ID: a.ID, Kind: string(a.Role), DisplayName: name}}
}

// AddPlayer registers a player; hidden players exist but are not displayed.
func (s *Store) AddPlayer(p chat.PlayerSummary, visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[p.ID] = player{summary: p, visible: visible}
}

func (s *Store) RemovePlayer(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.players, id)
}

func (s *Store) FindConversation(_ context.Context, scoutID, clubID uuid.UUID) (chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPair[pair{scoutID, clubID}]
	if !ok {
		return chat.Conversation{}, chat.ErrNoRows
	}
	return s.conversations[id], nil
}

func (s *Store) GetConversation(_ context.Context, id uuid.UUID) (chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return chat.Conversation{}, chat.ErrNoRows
	}
	return c, nil
}

func (s *Store) CreateConversation(_ context.Context, c chat.Conversation, opening chat.Message) (chat.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pair{c.ScoutID, c.ClubID}
	if id, ok := s.byPair[key]; ok {
		return s.conversations[id], false, nil
	}
	s.conversations[c.ID] = c
	s.byPair[key] = c.ID
	s.messages[c.ID] = append(s.messages[c.ID], opening)
	return c, true, nil
}

func (s *Store) GetBlock(_ context.Context, conversationID uuid.UUID) (*chat.ConversationBlock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[conversationID]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (s *Store) InsertBlock(_ context.Context, b chat.ConversationBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blocks[b.ConversationID]; ok {
		return chat.ErrDuplicateBlock
	}
	s.blocks[b.ConversationID] = b
	return nil
}

func (s *Store) DeleteBlock(_ context.Context, conversationID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blocks[conversationID]; !ok {
		return false, nil
	}
	delete(s.blocks, conversationID)
	return true, nil
}

func (s *Store) InsertMessage(_ context.Context, m chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[m.ConversationID]; !ok {
		return chat.ErrNoRows
	}
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], m)
	return nil
}

// newestFirst returns a sorted copy, newest first, ties broken by id.
func newestFirst(msgs []chat.Message) []chat.Message {
	out := append([]chat.Message(nil), msgs...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return bytes.Compare(out[i].ID[:], out[j].ID[:]) > 0
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *Store) ListMessages(_ context.Context, conversationID uuid.UUID, before *chat.Cursor, limit int) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chat.Message, 0, limit)
	for _, m := range newestFirst(s.messages[conversationID]) {
		if len(out) == limit {
			break
		}
		if before != nil && !before.Before(m) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) CountEvents(_ context.Context, actorID uuid.UUID, kind chat.QuotaKind, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	switch kind {
	case chat.QuotaConversationsPerDay:
		for _, c := range s.conversations {
			if c.ScoutID == actorID && !c.CreatedAt.Before(since) {
				n++
			}
		}
	case chat.QuotaMessagesPerHour, chat.QuotaUploadsPerDay:
		for _, msgs := range s.messages {
			for _, m := range msgs {
				if !m.SentBy(actorID) || m.CreatedAt.Before(since) {
					continue
				}
				if kind == chat.QuotaUploadsPerDay && m.MessageType != chat.MessageFile {
					continue
				}
				n++
			}
		}
	}
	return n, nil
}

func unread(m chat.Message, reader uuid.UUID) bool {
	return m.ReadAt == nil && m.SenderID != nil && *m.SenderID != reader
}

func (s *Store) CountUnread(_ context.Context, p chat.Participation, conversationID *uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for id, c := range s.conversations {
		if !p.Includes(c) || (conversationID != nil && *conversationID != id) {
			continue
		}
		for _, m := range s.messages[id] {
			if unread(m, p.ActorID) {
				n++
			}
		}
	}
	return n, nil
}

func (s *Store) ListConversations(_ context.Context, p chat.Participation) ([]chat.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []chat.ConversationSummary{}
	for id, c := range s.conversations {
		if !p.Includes(c) {
			continue
		}
		sum := chat.ConversationSummary{Conversation: c}
		if msgs := newestFirst(s.messages[id]); len(msgs) > 0 {
			last := msgs[0]
			sum.LastMessage = &last
		}
		for _, m := range s.messages[id] {
			if unread(m, p.ActorID) {
				sum.UnreadCount++
			}
		}
		if b, ok := s.blocks[id]; ok {
			b := b
			sum.Block = &b
		}
		out = append(out, sum)
	}
	return out, nil
}

func (s *Store) MarkRead(_ context.Context, conversationID, readerID uuid.UUID, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	msgs := s.messages[conversationID]
	for i := range msgs {
		if unread(msgs[i], readerID) {
			t := at
			msgs[i].ReadAt = &t
			n++
		}
	}
	return n, nil
}

func (s *Store) PlayerViewedSince(_ context.Context, playerID, viewerID uuid.UUID, since time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.views {
		if v.PlayerID == playerID && v.ViewerID == viewerID && !v.ViewedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) InsertPlayerView(_ context.Context, v chat.PlayerView) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views = append(s.views, v)
	return nil
}

// PlayerViews returns every recorded view of a player.
func (s *Store) PlayerViews(playerID uuid.UUID) []chat.PlayerView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []chat.PlayerView
	for _, v := range s.views {
		if v.PlayerID == playerID {
			out = append(out, v)
		}
	}
	return out
}

func (s *Store) ClubExists(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.clubs[id]
	return ok, nil
}

func (s *Store) PlayerExists(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.players[id]
	return ok, nil
}

func (s *Store) Players(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]chat.PlayerSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]chat.PlayerSummary, len(ids))
	for _, id := range ids {
		if p, ok := s.players[id]; ok && p.visible {
			out[id] = p.summary
		}
	}
	return out, nil
}

func (s *Store) Clubs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]chat.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]chat.Party, len(ids))
	for _, id := range ids {
		if c, ok := s.clubs[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (s *Store) Profiles(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]chat.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]chat.Party, len(ids))
	for _, id := range ids {
		if p, ok := s.profiles[id]; ok {
			out[id] = p.party
		}
	}
	return out, nil
}

func (s *Store) Actor(_ context.Context, id uuid.UUID) (chat.Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return chat.Actor{}, chat.ErrNoRows
	}
	return p.actor, nil
}
