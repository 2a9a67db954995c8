package chat

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleScout         Role = "scout"
	RoleAcademyAdmin  Role = "academy_admin"
	RolePlatformAdmin Role = "platform_admin"
)

// Actor is the caller as resolved by the identity provider.
type Actor struct {
	ID     uuid.UUID  `json:"id"`
	Role   Role       `json:"role"`
	ClubID *uuid.UUID `json:"club_id,omitempty"`
}

// Conversation is unique per (scout, club); the scout always initiates.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	ScoutID   uuid.UUID `json:"scout_id"`
	ClubID    uuid.UUID `json:"club_id"`
	CreatedAt time.Time `json:"created_at"`
}

// participant reports whether a is one of the two parties of c.
func (c *Conversation) participant(a Actor) bool {
	switch a.Role {
	case RoleScout:
		return c.ScoutID == a.ID
	case RoleAcademyAdmin:
		return a.ClubID != nil && *a.ClubID == c.ClubID
	}
	return false
}

type ConversationBlock struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	BlockedBy      uuid.UUID `json:"blocked_by"`
	CreatedAt      time.Time `json:"created_at"`
}

type MessageType string

const (
	MessageText      MessageType = "text"
	MessageFile      MessageType = "file"
	MessagePlayerRef MessageType = "player_ref"
	MessageSystem    MessageType = "system"
)

// Message is an immutable row. Which optional fields are set is decided by
// MessageType: content for text/system, file fields for file,
// ReferencedPlayerID for player_ref.
type Message struct {
	ID                 uuid.UUID   `json:"id"`
	ConversationID     uuid.UUID   `json:"conversation_id"`
	SenderID           *uuid.UUID  `json:"sender_id"`
	Content            *string     `json:"content"`
	MessageType        MessageType `json:"message_type"`
	FileURL            *string     `json:"file_url,omitempty"`
	FileName           *string     `json:"file_name,omitempty"`
	FileType           *string     `json:"file_type,omitempty"`
	FileSizeBytes      *int64      `json:"file_size_bytes,omitempty"`
	ReferencedPlayerID *uuid.UUID  `json:"referenced_player_id,omitempty"`
	ReadAt             *time.Time  `json:"read_at"`
	CreatedAt          time.Time   `json:"created_at"`
}

// SentBy reports whether id authored m. System rows have no author.
func (m *Message) SentBy(id uuid.UUID) bool {
	return m.SenderID != nil && *m.SenderID == id
}

// unreadFor mirrors `read_at IS NULL AND sender_id <> $actor` in SQL, where a
// NULL sender never compares unequal.
func (m *Message) unreadFor(id uuid.UUID) bool {
	return m.ReadAt == nil && m.SenderID != nil && *m.SenderID != id
}

// Party is the display identity of the other side of a conversation.
type Party struct {
	ID          uuid.UUID `json:"id"`
	Kind        string    `json:"kind"` // "club" or "scout"
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
}

// PlayerSummary is the card rendered for player_ref messages.
type PlayerSummary struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Position *string   `json:"position,omitempty"`
	PhotoURL *string   `json:"photo_url,omitempty"`
	ClubName *string   `json:"club_name,omitempty"`
}

// ConversationSummary is one row of the conversation list.
type ConversationSummary struct {
	Conversation
	Counterpart *Party             `json:"counterpart"`
	LastMessage *Message           `json:"last_message"`
	UnreadCount int                `json:"unread_count"`
	Block       *ConversationBlock `json:"block,omitempty"`
	Blocked     bool               `json:"blocked"`
}

// activeAt is the ordering key of the conversation list.
func (s *ConversationSummary) activeAt() time.Time {
	if s.LastMessage != nil {
		return s.LastMessage.CreatedAt
	}
	return s.CreatedAt
}

// MessageView is a message joined with display data.
type MessageView struct {
	Message
	Sender *Party         `json:"sender"`
	Player *PlayerSummary `json:"player,omitempty"`
}

type MessagePage struct {
	Messages   []MessageView `json:"messages"`
	HasMore    bool          `json:"has_more"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type PlayerView struct {
	PlayerID uuid.UUID `json:"player_id"`
	ViewerID uuid.UUID `json:"viewer_id"`
	ViewedAt time.Time `json:"viewed_at"`
}
