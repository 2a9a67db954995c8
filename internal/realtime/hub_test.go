package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pelusa-v/scout-chat/internal/chat"
)

// fakeConn feeds ReadPump from in and records writes.
type fakeConn struct {
	in      chan []byte
	mu      sync.Mutex
	written [][]byte
	closed  bool
}

func newFakeConn() *fakeConn { return &fakeConn{in: make(chan []byte, 8)} }

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	b, ok := <-f.in
	if !ok {
		return 0, nil, io.EOF
	}
	return 1, b, nil
}

func (f *fakeConn) WriteMessage(_ int, b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, b)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func receive(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case b := <-c.Send:
		var out map[string]any
		require.NoError(t, json.Unmarshal(b, &out))
		return out
	case <-time.After(time.Second):
		t.Fatal("no frame received")
		return nil
	}
}

func TestHub_DeliversToSubscribers(t *testing.T) {
	h := startHub(t)
	conv := uuid.New()
	follower := NewClient(uuid.New(), newFakeConn(), nil)
	bystander := NewClient(uuid.New(), newFakeConn(), nil)
	h.Register(follower)
	h.Register(bystander)
	h.Subscribe(follower, conv)
	assert.Equal(t, 1, h.Subscribers(conv))

	require.NoError(t, h.Publish(context.Background(), chat.Event{
		Kind: chat.EventMessageCreated, ConversationID: conv, Payload: map[string]string{"content": "hola"},
	}))
	frame := receive(t, follower)
	assert.Equal(t, string(chat.EventMessageCreated), frame["kind"])
	assert.Equal(t, conv.String(), frame["conversation_id"])

	select {
	case <-bystander.Send:
		t.Fatal("bystander received an event")
	case <-time.After(50 * time.Millisecond):
	}

	h.Unsubscribe(follower, conv)
	assert.Zero(t, h.Subscribers(conv))
}

func TestHub_SubscribeRequiresRegistration(t *testing.T) {
	h := startHub(t)
	conv := uuid.New()
	h.Subscribe(NewClient(uuid.New(), newFakeConn(), nil), conv)
	assert.Zero(t, h.Subscribers(conv))
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	h := NewHub(zerolog.Nop()) // not running
	var err error
	for i := 0; i < cap(h.events)+1; i++ {
		err = h.Publish(context.Background(), chat.Event{Kind: chat.EventMessageCreated, ConversationID: uuid.New()})
	}
	assert.ErrorIs(t, err, ErrHubBusy)
}

func TestClient_SlowConsumerDropsFrames(t *testing.T) {
	c := NewClient(uuid.New(), newFakeConn(), nil)
	for i := 0; i < cap(c.Send); i++ {
		require.True(t, c.offer([]byte("x")))
	}
	assert.False(t, c.offer([]byte("x")))
	c.close()
	assert.False(t, c.offer([]byte("x")))
}

func TestClient_OfferRacingUnregister(t *testing.T) {
	h := startHub(t)
	conv := uuid.New()
	c := NewClient(uuid.New(), newFakeConn(), nil)
	h.Register(c)
	h.Subscribe(c, conv)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			c.offer([]byte("x"))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = h.Publish(context.Background(), chat.Event{Kind: chat.EventMessageCreated, ConversationID: conv})
		}
	}()
	h.Unregister(c)
	wg.Wait()

	<-c.Done()
	assert.False(t, c.offer([]byte("x")))
}

func TestClient_ReadPump(t *testing.T) {
	h := startHub(t)
	allowed, denied := uuid.New(), uuid.New()
	conn := newFakeConn()
	c := NewClient(uuid.New(), conn, func(_ context.Context, id uuid.UUID) error {
		if id == denied {
			return errors.New("NOT_FOUND")
		}
		return nil
	})
	h.Register(c)
	done := make(chan struct{})
	go func() {
		c.ReadPump(context.Background(), h)
		close(done)
	}()

	send := func(action string, id uuid.UUID) {
		b, _ := json.Marshal(map[string]string{"action": action, "conversation_id": id.String()})
		conn.in <- b
	}

	send("subscribe", allowed)
	assert.Equal(t, "subscribed", receive(t, c)["kind"])
	assert.Equal(t, 1, h.Subscribers(allowed))

	send("subscribe", denied)
	reply := receive(t, c)
	assert.Equal(t, "subscribe_failed", reply["kind"])
	assert.Zero(t, h.Subscribers(denied))

	conn.in <- []byte("not json")
	send("unsubscribe", allowed)
	assert.Equal(t, "unsubscribed", receive(t, c)["kind"])
	assert.Zero(t, h.Subscribers(allowed))

	send("subscribe", allowed)
	receive(t, c)
	close(conn.in)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("read pump did not exit")
	}
	assert.Eventually(t, func() bool { return h.Subscribers(allowed) == 0 }, time.Second, 10*time.Millisecond)
}

func TestClient_WritePump(t *testing.T) {
	conn := newFakeConn()
	c := NewClient(uuid.New(), conn, nil)
	done := make(chan struct{})
	go func() {
		c.WritePump()
		close(done)
	}()
	c.offer([]byte("a"))
	c.offer([]byte("b"))
	c.close()
	<-done
	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, conn.written)
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	h := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	c := NewClient(uuid.New(), newFakeConn(), nil)
	h.Register(c)
	cancel()
	<-stopped

	closed := func(c *Client) bool {
		select {
		case <-c.Done():
			return true
		default:
			return false
		}
	}
	assert.True(t, closed(c))
	assert.False(t, c.offer([]byte("x")))

	// Late arrivals are closed immediately and Unregister does not block.
	late := NewClient(uuid.New(), newFakeConn(), nil)
	h.Register(late)
	assert.True(t, closed(late))
	h.Unregister(late)
}
