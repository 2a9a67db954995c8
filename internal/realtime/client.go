package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

type ConnLike interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	Close() error
}

// Authorizer decides whether the client may follow a conversation.
type Authorizer func(ctx context.Context, conversationID uuid.UUID) error

// Client is one websocket connection. Send is never closed; done marks the
// client as gone and stops WritePump.
type Client struct {
	ID        string
	ActorID   uuid.UUID
	Conn      ConnLike
	Send      chan []byte
	Authorize Authorizer

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(actorID uuid.UUID, conn ConnLike, authorize Authorizer) *Client {
	return &Client{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Conn:      conn,
		Send:      make(chan []byte, 16),
		Authorize: authorize,
		done:      make(chan struct{}),
	}
}

// command is what clients send: follow or stop following a conversation.
type command struct {
	Action         string    `json:"action"` // "subscribe" | "unsubscribe"
	ConversationID uuid.UUID `json:"conversation_id"`
}

type reply struct {
	Kind           string    `json:"kind"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Error          string    `json:"error,omitempty"`
}

// ReadPump handles client commands until the connection fails.
func (c *Client) ReadPump(ctx context.Context, h *Hub) {
	defer h.Unregister(c)
	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		switch cmd.Action {
		case "subscribe":
			if c.Authorize != nil {
				if err := c.Authorize(ctx, cmd.ConversationID); err != nil {
					c.reply(reply{Kind: "subscribe_failed", ConversationID: cmd.ConversationID, Error: err.Error()})
					continue
				}
			}
			h.Subscribe(c, cmd.ConversationID)
			c.reply(reply{Kind: "subscribed", ConversationID: cmd.ConversationID})
		case "unsubscribe":
			h.Unsubscribe(c, cmd.ConversationID)
			c.reply(reply{Kind: "unsubscribed", ConversationID: cmd.ConversationID})
		}
	}
}

func (c *Client) reply(r reply) {
	b, _ := json.Marshal(r)
	c.offer(b)
}

// offer queues b without blocking; a full buffer or a closed client drops it.
func (c *Client) offer(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- b:
		return true
	default:
		return false
	}
}

// WritePump writes queued frames until the client is closed, then flushes
// whatever is still buffered.
func (c *Client) WritePump() {
	for {
		select {
		case data := <-c.Send:
			if !c.write(data) {
				return
			}
		case <-c.done:
			for {
				select {
				case data := <-c.Send:
					if !c.write(data) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (c *Client) write(data []byte) bool {
	if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
		_ = c.Conn.Close()
		return false
	}
	return true
}

// Done is closed once the hub drops the client.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
