package chat

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store is the persistent store. It is the only shared mutable state and
// must give at least read-committed isolation.
type Store interface {
	// FindConversation returns ErrNoRows when the pair has no conversation.
	FindConversation(ctx context.Context, scoutID, clubID uuid.UUID) (Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (Conversation, error)
	// CreateConversation inserts c and its opening system message atomically.
	// If the (scout, club) pair already exists the stored row is returned
	// with created=false and opening is discarded.
	CreateConversation(ctx context.Context, c Conversation, opening Message) (stored Conversation, created bool, err error)

	// GetBlock returns nil when the conversation is not blocked.
	GetBlock(ctx context.Context, conversationID uuid.UUID) (*ConversationBlock, error)
	// InsertBlock returns ErrDuplicateBlock if a block already exists.
	InsertBlock(ctx context.Context, b ConversationBlock) error
	DeleteBlock(ctx context.Context, conversationID uuid.UUID) (deleted bool, err error)

	InsertMessage(ctx context.Context, m Message) error
	// ListMessages returns up to limit messages strictly older than before,
	// newest first. A nil cursor starts from the newest message.
	ListMessages(ctx context.Context, conversationID uuid.UUID, before *Cursor, limit int) ([]Message, error)

	// CountEvents counts the rows a quota kind is evaluated over.
	CountEvents(ctx context.Context, actorID uuid.UUID, kind QuotaKind, since time.Time) (int, error)
	// CountUnread counts unread messages over p's conversations, or a single
	// one when conversationID is set.
	CountUnread(ctx context.Context, p Participation, conversationID *uuid.UUID) (int, error)
	// ListConversations returns p's conversations with last message, unread
	// count and block state filled in. Counterpart is left nil.
	ListConversations(ctx context.Context, p Participation) ([]ConversationSummary, error)

	PlayerViewedSince(ctx context.Context, playerID, viewerID uuid.UUID, since time.Time) (bool, error)
	InsertPlayerView(ctx context.Context, v PlayerView) error
}

// ReadStateWriter may update read_at on rows authored by the other party.
// It is handed only to the read-state tracker.
type ReadStateWriter interface {
	MarkRead(ctx context.Context, conversationID, readerID uuid.UUID, at time.Time) (int64, error)
}

// Directory is the read-only player/club/profile lookup.
type Directory interface {
	ClubExists(ctx context.Context, id uuid.UUID) (bool, error)
	PlayerExists(ctx context.Context, id uuid.UUID) (bool, error)
	// Players returns only players that still qualify for display.
	Players(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]PlayerSummary, error)
	Clubs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Party, error)
	Profiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Party, error)
}

// IdentityProvider resolves a caller id to its role. Unknown ids yield ErrNoRows.
type IdentityProvider interface {
	Actor(ctx context.Context, id uuid.UUID) (Actor, error)
}

type ObjectStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

type EventKind string

const (
	EventConversationCreated   EventKind = "conversation.created"
	EventMessageCreated        EventKind = "message.created"
	EventConversationRead      EventKind = "conversation.read"
	EventConversationBlocked   EventKind = "conversation.blocked"
	EventConversationUnblocked EventKind = "conversation.unblocked"
)

// Event is a committed mutation relayed to realtime subscribers.
type Event struct {
	Kind           EventKind `json:"kind"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Payload        any       `json:"payload,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type Notifier interface {
	MessageSent(ctx context.Context, c Conversation, m Message) error
}

// UnreadCache memoises badges. Entries are versioned per scope: the scout,
// or the club for academy admins. Bump moves both scopes of a conversation
// to a new version, so entries written under an older one are never read.
type UnreadCache interface {
	Get(ctx context.Context, actor Actor) (n int, version int64, ok bool, err error)
	Set(ctx context.Context, actor Actor, version int64, n int) error
	Bump(ctx context.Context, c Conversation) error
}

// Participation selects the conversations an actor takes part in.
type Participation struct {
	ActorID uuid.UUID
	ScoutID *uuid.UUID
	ClubID  *uuid.UUID
}

func participationOf(a Actor) (Participation, bool) {
	p := Participation{ActorID: a.ID}
	switch a.Role {
	case RoleScout:
		id := a.ID
		p.ScoutID = &id
	case RoleAcademyAdmin:
		if a.ClubID == nil {
			return p, false
		}
		id := *a.ClubID
		p.ClubID = &id
	default:
		return p, false
	}
	return p, true
}

// Includes reports whether c is one of p's conversations.
func (p Participation) Includes(c Conversation) bool {
	if p.ScoutID != nil {
		return c.ScoutID == *p.ScoutID
	}
	return p.ClubID != nil && c.ClubID == *p.ClubID
}

// Cursor marks a position in a conversation's history.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

func CursorOf(m Message) Cursor {
	return Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
}

// Before reports whether m sorts strictly before the cursor.
func (c Cursor) Before(m Message) bool {
	if m.CreatedAt.Equal(c.CreatedAt) {
		return bytes.Compare(m.ID[:], c.ID[:]) < 0
	}
	return m.CreatedAt.Before(c.CreatedAt)
}

func (c Cursor) String() string {
	raw := strconv.FormatInt(c.CreatedAt.UnixMicro(), 10) + "." + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func ParseCursor(s string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, fmt.Errorf("cursor: %w", err)
	}
	ts, id, ok := strings.Cut(string(raw), ".")
	if !ok {
		return Cursor{}, fmt.Errorf("cursor: malformed")
	}
	micros, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("cursor: %w", err)
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return Cursor{}, fmt.Errorf("cursor: %w", err)
	}
	return Cursor{CreatedAt: time.UnixMicro(micros).UTC(), ID: uid}, nil
}
