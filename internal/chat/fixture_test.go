package chat_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pelusa-v/scout-chat/internal/chat"
	"github.com/pelusa-v/scout-chat/internal/store/memory"
)

var errBoom = errors.New("boom")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []chat.Event
	err    error
}

func (r *recorder) Publish(_ context.Context, ev chat.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) kinds() []chat.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]chat.EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

type fixture struct {
	svc    *chat.Service
	store  *memory.Store
	clock  *fakeClock
	pub    *recorder
	scout  chat.Actor
	admin  chat.Actor
	clubID uuid.UUID
}

func newFixture(t *testing.T, opts ...chat.Option) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(), clock: newClock(), pub: &recorder{}, clubID: uuid.New()}
	f.store.AddClub(f.clubID, "Club Atlético Norte")
	f.scout = chat.Actor{ID: uuid.New(), Role: chat.RoleScout}
	f.store.AddProfile(f.scout, "Ana Scout")
	f.admin = f.adminOf(f.clubID, "Luis Admin")

	base := []chat.Option{chat.WithClock(f.clock.Now), chat.WithPublisher(f.pub)}
	f.svc = chat.NewService(f.store, f.store, f.store, append(base, opts...)...)
	return f
}

func (f *fixture) adminOf(clubID uuid.UUID, name string) chat.Actor {
	id := clubID
	a := chat.Actor{ID: uuid.New(), Role: chat.RoleAcademyAdmin, ClubID: &id}
	f.store.AddProfile(a, name)
	return a
}

func (f *fixture) newScout(name string) chat.Actor {
	a := chat.Actor{ID: uuid.New(), Role: chat.RoleScout}
	f.store.AddProfile(a, name)
	return a
}

func (f *fixture) open(t *testing.T) chat.Conversation {
	t.Helper()
	c, _, err := f.svc.CreateOrGet(context.Background(), f.scout, f.clubID)
	require.NoError(t, err)
	return c
}

func (f *fixture) text(t *testing.T, actor chat.Actor, conversationID uuid.UUID, content string) chat.Message {
	t.Helper()
	f.clock.Advance(time.Second)
	m, err := f.svc.Send(context.Background(), actor, conversationID, chat.TextPayload{Content: content})
	require.NoError(t, err)
	return m
}

type mapCache struct {
	mu       sync.Mutex
	versions map[uuid.UUID]int64
	m        map[string]int
}

func newMapCache() *mapCache {
	return &mapCache{versions: map[uuid.UUID]int64{}, m: map[string]int{}}
}

func scopeOf(a chat.Actor) uuid.UUID {
	if a.Role == chat.RoleAcademyAdmin && a.ClubID != nil {
		return *a.ClubID
	}
	return a.ID
}

func cacheKey(a chat.Actor, version int64) string {
	return fmt.Sprintf("%s:%d", a.ID, version)
}

func (c *mapCache) Get(_ context.Context, a chat.Actor) (int, int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.versions[scopeOf(a)]
	n, ok := c.m[cacheKey(a, v)]
	return n, v, ok, nil
}

func (c *mapCache) Set(_ context.Context, a chat.Actor, version int64, n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[cacheKey(a, version)] = n
	return nil
}

func (c *mapCache) Bump(_ context.Context, conv chat.Conversation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[conv.ScoutID]++
	c.versions[conv.ClubID]++
	return nil
}

func (c *mapCache) has(a chat.Actor) bool {
	_, _, ok, _ := c.Get(context.Background(), a)
	return ok
}

// racingStore runs during once, after counting and before the count is
// returned, to land a write between a cache miss and its fill.
type racingStore struct {
	*memory.Store
	once   sync.Once
	during func()
}

func (s *racingStore) CountUnread(ctx context.Context, p chat.Participation, conversationID *uuid.UUID) (int, error) {
	n, err := s.Store.CountUnread(ctx, p, conversationID)
	s.once.Do(s.during)
	return n, err
}

type fakeObjects struct {
	mu      sync.Mutex
	puts    map[string][]byte
	putErr  error
	signErr error
	hang    bool
}

func newObjects() *fakeObjects { return &fakeObjects{puts: map[string][]byte{}} }

func (o *fakeObjects) Put(ctx context.Context, p string, data []byte, _ string) error {
	if o.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if o.putErr != nil {
		return o.putErr
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.puts[p] = data
	return nil
}

func (o *fakeObjects) SignedURL(_ context.Context, p string, _ time.Duration) (string, error) {
	if o.signErr != nil {
		return "", o.signErr
	}
	return "https://files.test/" + p + "?signature=x", nil
}

func (o *fakeObjects) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.puts)
}

type notifications struct {
	mu   sync.Mutex
	sent []chat.Message
	err  error
}

func (n *notifications) MessageSent(_ context.Context, _ chat.Conversation, m chat.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, m)
	return n.err
}

// flakyStore fails the read paths that are allowed to degrade.
type flakyStore struct {
	*memory.Store
}

func (flakyStore) ListConversations(context.Context, chat.Participation) ([]chat.ConversationSummary, error) {
	return nil, errBoom
}

func (flakyStore) ListMessages(context.Context, uuid.UUID, *chat.Cursor, int) ([]chat.Message, error) {
	return nil, errBoom
}

func (flakyStore) CountUnread(context.Context, chat.Participation, *uuid.UUID) (int, error) {
	return 0, errBoom
}
