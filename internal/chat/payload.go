package chat

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MaxTextLength     = 5000
	MaxFileNameLength = 255
	MaxFileSizeBytes  = 10 << 20

	systemConversationStarted = "conversation_started"
)

// Payload is the content of a message a participant sends. The set of
// implementations is closed: TextPayload, FilePayload, PlayerRefPayload.
type Payload interface {
	messageType() MessageType
	validate() error
}

type TextPayload struct {
	Content string
}

type FilePayload struct {
	FileURL       string
	FileName      string
	FileType      string
	FileSizeBytes int64
}

type PlayerRefPayload struct {
	ReferencedPlayerID uuid.UUID
}

func (TextPayload) messageType() MessageType      { return MessageText }
func (FilePayload) messageType() MessageType      { return MessageFile }
func (PlayerRefPayload) messageType() MessageType { return MessagePlayerRef }

func (p TextPayload) validate() error {
	n := utf8.RuneCountInString(strings.TrimSpace(p.Content))
	if n == 0 {
		return invalidInput("content is required")
	}
	if n > MaxTextLength {
		return invalidInput("content exceeds 5000 characters")
	}
	return nil
}

func (p FilePayload) validate() error {
	if strings.TrimSpace(p.FileURL) == "" {
		return invalidInput("file_url is required")
	}
	name := strings.TrimSpace(p.FileName)
	if name == "" {
		return invalidInput("file_name is required")
	}
	if utf8.RuneCountInString(name) > MaxFileNameLength {
		return invalidInput("file_name exceeds 255 characters")
	}
	if p.FileSizeBytes < 0 || p.FileSizeBytes > MaxFileSizeBytes {
		return invalidInput("file_size_bytes out of range")
	}
	// Clients may post file messages directly, so they meet the upload allow-lists too.
	if p.FileType != "" && !allowedMIMEType(p.FileType) {
		return newError(CodeFileTypeNotAllowed, "mime type not allowed")
	}
	return checkExtension(name)
}

// validate only checks shape; existence is checked against the player directory.
func (p PlayerRefPayload) validate() error {
	if p.ReferencedPlayerID == uuid.Nil {
		return invalidInput("referenced_player_id is required")
	}
	return nil
}

// fill copies the variant's fields onto m.
func fill(m *Message, p Payload) {
	m.MessageType = p.messageType()
	switch p := p.(type) {
	case TextPayload:
		content := strings.TrimSpace(p.Content)
		m.Content = &content
	case FilePayload:
		url, name := strings.TrimSpace(p.FileURL), strings.TrimSpace(p.FileName)
		m.FileURL, m.FileName = &url, &name
		if p.FileType != "" {
			ft := p.FileType
			m.FileType = &ft
		}
		size := p.FileSizeBytes
		m.FileSizeBytes = &size
	case PlayerRefPayload:
		id := p.ReferencedPlayerID
		m.ReferencedPlayerID = &id
	}
}
