package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/pelusa-v/scout-chat/internal/chat"
)

// Authenticate resolves X-Actor-ID through the identity provider. Browsers
// cannot set headers on websocket upgrades, so those may pass ?actor_id=.
func (h *Handlers) Authenticate(c *fiber.Ctx) error {
	raw := c.Get("X-Actor-ID")
	if raw == "" && websocket.IsWebSocketUpgrade(c) {
		raw = c.Query("actor_id")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return writeCode(c, chat.CodeUnauthenticated)
	}
	actor, err := h.identity.Actor(c.UserContext(), id)
	if errors.Is(err, chat.ErrNoRows) {
		return writeCode(c, chat.CodeUnauthenticated)
	}
	if err != nil {
		h.log.Error().Err(err).Msg("resolve actor")
		return writeCode(c, chat.CodeInternal)
	}
	c.Locals(actorKey, actor)
	return c.Next()
}

func actorOf(c *fiber.Ctx) chat.Actor {
	a, _ := c.Locals(actorKey).(chat.Actor)
	return a
}

func (h *Handlers) RequestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	ev := h.log.Info()
	if err != nil {
		ev = h.log.Warn().Err(err)
	}
	ev = ev.Str("method", c.Method()).Str("path", c.Path()).
		Int("status", c.Response().StatusCode()).Dur("latency", time.Since(start))
	if a := actorOf(c); a.ID != uuid.Nil {
		ev = ev.Str("actor_id", a.ID.String())
	}
	ev.Msg("request")
	return err
}
