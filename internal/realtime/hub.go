// Package realtime relays committed chat mutations to websocket clients
// following the affected conversation. Delivery never blocks the publisher.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pelusa-v/scout-chat/internal/chat"
)

var ErrHubBusy = errors.New("realtime: event buffer full")

type Hub struct {
	mu             sync.RWMutex
	clients        map[string]*Client
	byConversation map[uuid.UUID]map[string]*Client

	unregisterChan chan *Client
	events         chan chat.Event
	done           chan struct{}

	log zerolog.Logger
}

var _ chat.Publisher = (*Hub)(nil)

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:        map[string]*Client{},
		byConversation: map[uuid.UUID]map[string]*Client{},
		unregisterChan: make(chan *Client),
		events:         make(chan chat.Event, 256),
		done:           make(chan struct{}),
		log:            log.With().Str("component", "realtime").Logger(),
	}
}

// Run serves registrations and events until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for _, c := range h.clients {
				c.close()
			}
			h.clients = map[string]*Client{}
			h.byConversation = map[uuid.UUID]map[string]*Client{}
			h.mu.Unlock()
			return

		case c := <-h.unregisterChan:
			h.remove(c)

		case ev := <-h.events:
			h.deliver(ev)
		}
	}
}

// Register adds c synchronously so it can subscribe right away.
func (h *Hub) Register(c *Client) {
	select {
	case <-h.done:
		c.close()
		return
	default:
	}
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.log.Debug().Str("client_id", c.ID).Str("actor_id", c.ActorID.String()).Msg("client registered")
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregisterChan <- c:
	case <-h.done:
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)
	for id, subs := range h.byConversation {
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(h.byConversation, id)
		}
	}
	c.close()
	h.log.Debug().Str("client_id", c.ID).Msg("client unregistered")
}

func (h *Hub) Subscribe(c *Client, conversationID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	subs, ok := h.byConversation[conversationID]
	if !ok {
		subs = map[string]*Client{}
		h.byConversation[conversationID] = subs
	}
	subs[c.ID] = c
}

func (h *Hub) Unsubscribe(c *Client, conversationID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.byConversation[conversationID]; ok {
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(h.byConversation, conversationID)
		}
	}
}

// Subscribers returns how many clients follow a conversation.
func (h *Hub) Subscribers(conversationID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byConversation[conversationID])
}

// Publish queues ev for delivery and returns immediately.
func (h *Hub) Publish(_ context.Context, ev chat.Event) error {
	select {
	case h.events <- ev:
		return nil
	default:
		return ErrHubBusy
	}
}

func (h *Hub) deliver(ev chat.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Str("kind", string(ev.Kind)).Msg("encode event")
		return
	}
	h.mu.RLock()
	snapshot := make([]*Client, 0, len(h.byConversation[ev.ConversationID]))
	for _, c := range h.byConversation[ev.ConversationID] {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	for _, c := range snapshot {
		if !c.offer(data) {
			h.log.Debug().Str("client_id", c.ID).Str("kind", string(ev.Kind)).Msg("dropped event for slow client")
		}
	}
}
