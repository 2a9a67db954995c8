package handlers

import (
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/pelusa-v/scout-chat/internal/chat"
	"github.com/pelusa-v/scout-chat/internal/realtime"
	"github.com/pelusa-v/scout-chat/internal/storage"
)

const actorKey = "actor"

type Handlers struct {
	svc      *chat.Service
	identity chat.IdentityProvider
	hub      *realtime.Hub
	files    *storage.Local
	log      zerolog.Logger
}

// New wires the HTTP surface. hub and files may be nil to disable the
// websocket and file routes.
func New(svc *chat.Service, identity chat.IdentityProvider, hub *realtime.Hub, files *storage.Local, log zerolog.Logger) *Handlers {
	return &Handlers{svc: svc, identity: identity, hub: hub, files: files, log: log.With().Str("component", "http").Logger()}
}

// NewApp returns a fiber app sized for 10 MiB attachments.
func NewApp() *fiber.App {
	return fiber.New(fiber.Config{
		BodyLimit:             chat.MaxFileSizeBytes + 1<<20,
		DisableStartupMessage: true,
	})
}

func (h *Handlers) Register(app *fiber.App) {
	app.Use(h.RequestLogger)
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "OK"}) })
	if h.files != nil {
		app.Get("/files/*", h.FileHandler)
	}

	api := app.Group("/api", h.Authenticate)
	api.Get("/conversations", h.ListConversationsHandler)
	api.Post("/conversations", h.CreateConversationHandler)
	api.Get("/conversations/:id", h.ConversationHandler)
	api.Get("/conversations/:id/messages", h.MessagesHandler)
	api.Post("/conversations/:id/messages", h.SendMessageHandler)
	api.Post("/conversations/:id/attachments", h.AttachmentHandler)
	api.Post("/conversations/:id/read", h.MarkReadHandler)
	api.Post("/conversations/:id/block", h.BlockHandler)
	api.Delete("/conversations/:id/block", h.UnblockHandler)
	api.Get("/unread", h.UnreadHandler)
	api.Post("/players/:id/views", h.PlayerViewHandler)

	if h.hub != nil {
		api.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		api.Get("/ws", websocket.New(h.RealtimeHandler))
	}
}

var statusByCode = map[chat.Code]int{
	chat.CodeUnauthenticated:    fiber.StatusUnauthorized,
	chat.CodeUnauthorized:       fiber.StatusForbidden,
	chat.CodeNotFound:           fiber.StatusNotFound,
	chat.CodeInvalidInput:       fiber.StatusBadRequest,
	chat.CodeRateLimited:        fiber.StatusTooManyRequests,
	chat.CodeBlocked:            fiber.StatusConflict,
	chat.CodeAlreadyBlocked:     fiber.StatusConflict,
	chat.CodeNotBlocked:         fiber.StatusConflict,
	chat.CodeStorageUnavailable: fiber.StatusServiceUnavailable,
	chat.CodeFileTooLarge:       fiber.StatusRequestEntityTooLarge,
	chat.CodeFileTypeNotAllowed: fiber.StatusUnsupportedMediaType,
	chat.CodeInternal:           fiber.StatusInternalServerError,
}

type errorBody struct {
	Code  chat.Code      `json:"code"`
	Quota chat.QuotaKind `json:"quota,omitempty"`
}

func writeCode(c *fiber.Ctx, code chat.Code) error {
	return c.Status(statusByCode[code]).JSON(fiber.Map{"error": errorBody{Code: code}})
}

// writeError renders err as a stable code; internal details are logged only.
func (h *Handlers) writeError(c *fiber.Ctx, err error) error {
	code := chat.CodeOf(err)
	if code == chat.CodeInternal {
		h.log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	var ce *chat.Error
	body := errorBody{Code: code}
	if errors.As(err, &ce) {
		body.Quota = ce.Quota
	}
	return c.Status(statusByCode[code]).JSON(fiber.Map{"error": body})
}
