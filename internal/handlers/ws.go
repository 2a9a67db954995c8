package handlers

import (
	"context"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"github.com/pelusa-v/scout-chat/internal/chat"
	"github.com/pelusa-v/scout-chat/internal/realtime"
)

// RealtimeHandler GET /api/ws?conversation_id=
func (h *Handlers) RealtimeHandler(conn *websocket.Conn) {
	actor, _ := conn.Locals(actorKey).(chat.Actor)
	authorize := func(ctx context.Context, id uuid.UUID) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_, err := h.svc.GetConversation(ctx, actor, id)
		return err
	}
	client := realtime.NewClient(actor.ID, conn, authorize)
	h.hub.Register(client)

	if raw := conn.Query("conversation_id"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil && authorize(context.Background(), id) == nil {
			h.hub.Subscribe(client, id)
		}
	}
	go client.WritePump()
	client.ReadPump(context.Background(), h.hub)
}
