package handlers

import (
	"errors"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/pelusa-v/scout-chat/internal/chat"
	"github.com/pelusa-v/scout-chat/internal/storage"
)

func paramID(c *fiber.Ctx) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params("id"))
	return id, err == nil
}

// ListConversationsHandler GET /api/conversations
func (h *Handlers) ListConversationsHandler(c *fiber.Ctx) error {
	list, err := h.svc.ListConversations(c.UserContext(), actorOf(c))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(fiber.Map{"conversations": list})
}

type createConversationRequest struct {
	ClubID string `json:"club_id"`
}

// CreateConversationHandler POST /api/conversations {club_id}
func (h *Handlers) CreateConversationHandler(c *fiber.Ctx) error {
	var req createConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return writeCode(c, chat.CodeInvalidInput)
	}
	clubID, err := uuid.Parse(strings.TrimSpace(req.ClubID))
	if err != nil {
		return writeCode(c, chat.CodeInvalidInput)
	}
	conv, created, err := h.svc.CreateOrGet(c.UserContext(), actorOf(c), clubID)
	if err != nil {
		return h.writeError(c, err)
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"conversation": conv, "created": created})
}

// ConversationHandler GET /api/conversations/:id
func (h *Handlers) ConversationHandler(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return writeCode(c, chat.CodeNotFound)
	}
	sum, err := h.svc.GetConversation(c.UserContext(), actorOf(c), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(fiber.Map{"conversation": sum})
}

// MessagesHandler GET /api/conversations/:id/messages?before=&limit=
func (h *Handlers) MessagesHandler(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return writeCode(c, chat.CodeNotFound)
	}
	var before *chat.Cursor
	if raw := c.Query("before"); raw != "" {
		cur, err := chat.ParseCursor(raw)
		if err != nil {
			return writeCode(c, chat.CodeInvalidInput)
		}
		before = &cur
	}
	page, err := h.svc.ListMessages(c.UserContext(), actorOf(c), id, before, c.QueryInt("limit", 0))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(page)
}

// sendMessageRequest is the wire form of a message payload; Type selects
// which of the other fields apply.
type sendMessageRequest struct {
	Type               string  `json:"type"`
	Content            *string `json:"content"`
	FileURL            *string `json:"file_url"`
	FileName           *string `json:"file_name"`
	FileType           *string `json:"file_type"`
	FileSizeBytes      *int64  `json:"file_size_bytes"`
	ReferencedPlayerID *string `json:"referenced_player_id"`
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func (r sendMessageRequest) payload() (chat.Payload, bool) {
	switch chat.MessageType(r.Type) {
	case chat.MessageText:
		return chat.TextPayload{Content: deref(r.Content)}, true
	case chat.MessageFile:
		return chat.FilePayload{
			FileURL:       deref(r.FileURL),
			FileName:      deref(r.FileName),
			FileType:      deref(r.FileType),
			FileSizeBytes: deref(r.FileSizeBytes),
		}, true
	case chat.MessagePlayerRef:
		id, err := uuid.Parse(deref(r.ReferencedPlayerID))
		if err != nil {
			return nil, false
		}
		return chat.PlayerRefPayload{ReferencedPlayerID: id}, true
	}
	return nil, false
}

// SendMessageHandler POST /api/conversations/:id/messages
func (h *Handlers) SendMessageHandler(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return writeCode(c, chat.CodeNotFound)
	}
	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return writeCode(c, chat.CodeInvalidInput)
	}
	p, ok := req.payload()
	if !ok {
		return writeCode(c, chat.CodeInvalidInput)
	}
	msg, err := h.svc.Send(c.UserContext(), actorOf(c), id, p)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": msg})
}

// AttachmentHandler POST /api/conversations/:id/attachments (multipart "file")
func (h *Handlers) AttachmentHandler(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return writeCode(c, chat.CodeNotFound)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return writeCode(c, chat.CodeInvalidInput)
	}
	if fh.Size > chat.MaxFileSizeBytes {
		return writeCode(c, chat.CodeFileTooLarge)
	}
	f, err := fh.Open()
	if err != nil {
		return writeCode(c, chat.CodeInvalidInput)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, chat.MaxFileSizeBytes+1))
	if err != nil {
		return writeCode(c, chat.CodeInvalidInput)
	}
	msg, err := h.svc.SendAttachment(c.UserContext(), actorOf(c), id, chat.Upload{
		Data:     data,
		MIMEType: fh.Header.Get("Content-Type"),
		FileName: fh.Filename,
	})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": msg})
}

// MarkReadHandler POST /api/conversations/:id/read
func (h *Handlers) MarkReadHandler(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return writeCode(c, chat.CodeNotFound)
	}
	n, err := h.svc.MarkRead(c.UserContext(), actorOf(c), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(fiber.Map{"marked": n})
}

// BlockHandler POST /api/conversations/:id/block
func (h *Handlers) BlockHandler(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return writeCode(c, chat.CodeNotFound)
	}
	b, err := h.svc.SetBlock(c.UserContext(), actorOf(c), id, true)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"block": b})
}

// UnblockHandler DELETE /api/conversations/:id/block
func (h *Handlers) UnblockHandler(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return writeCode(c, chat.CodeNotFound)
	}
	if _, err := h.svc.SetBlock(c.UserContext(), actorOf(c), id, false); err != nil {
		return h.writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UnreadHandler GET /api/unread
func (h *Handlers) UnreadHandler(c *fiber.Ctx) error {
	n, err := h.svc.UnreadCount(c.UserContext(), actorOf(c))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(fiber.Map{"unread": n})
}

// PlayerViewHandler POST /api/players/:id/views
func (h *Handlers) PlayerViewHandler(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return writeCode(c, chat.CodeNotFound)
	}
	recorded, err := h.svc.RecordPlayerView(c.UserContext(), actorOf(c), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(fiber.Map{"recorded": recorded})
}

// FileHandler GET /files/*?expires=&signature=
func (h *Handlers) FileHandler(c *fiber.Ctx) error {
	full, err := h.files.Open(c.Params("*"), c.Query("expires"), c.Query("signature"))
	switch {
	case errors.Is(err, storage.ErrExpired), errors.Is(err, storage.ErrInvalidSignature):
		return c.SendStatus(fiber.StatusForbidden)
	case err != nil:
		return c.SendStatus(fiber.StatusNotFound)
	}
	return c.SendFile(full)
}
