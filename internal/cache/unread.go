package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/pelusa-v/scout-chat/internal/chat"
)

const unreadPrefix = "chat:unread:"

// UnreadCounts caches per-actor unread badges on top of a Cache.
//
// Each scout and each club owns a version counter under
// chat:unread:<scope>:gen. Badges are stored as chat:unread:<actor>:<version>
// with the cache TTL; bumping the counter strands every older entry, which
// then expires on its own. The counters themselves never expire so a version
// is never reused.
type UnreadCounts struct {
	cache Cache
	ttl   time.Duration
}

var _ chat.UnreadCache = (*UnreadCounts)(nil)

func NewUnreadCounts(c Cache, ttl time.Duration) *UnreadCounts {
	return &UnreadCounts{cache: c, ttl: ttl}
}

func scoutScope(id uuid.UUID) string { return "scout:" + id.String() }
func clubScope(id uuid.UUID) string  { return "club:" + id.String() }

// scopeOf maps an actor to the scope whose version guards its badge.
func scopeOf(a chat.Actor) string {
	if a.Role == chat.RoleAcademyAdmin && a.ClubID != nil {
		return clubScope(*a.ClubID)
	}
	return scoutScope(a.ID)
}

func versionKey(scope string) string {
	return unreadPrefix + scope + ":gen"
}

func unreadKey(id uuid.UUID, version int64) string {
	return unreadPrefix + id.String() + ":" + strconv.FormatInt(version, 10)
}

func (u *UnreadCounts) version(ctx context.Context, a chat.Actor) (int64, error) {
	v, err := u.cache.Get(ctx, versionKey(scopeOf(a)))
	if errors.Is(err, ErrMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, errors.New("cache: corrupt unread version")
	}
	return n, nil
}

// Get returns the badge for a, plus the version to hand back to Set on a miss.
func (u *UnreadCounts) Get(ctx context.Context, a chat.Actor) (int, int64, bool, error) {
	version, err := u.version(ctx, a)
	if err != nil {
		return 0, 0, false, err
	}
	v, err := u.cache.Get(ctx, unreadKey(a.ID, version))
	if errors.Is(err, ErrMiss) {
		return 0, version, false, nil
	}
	if err != nil {
		return 0, 0, false, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		// Treat garbage as a miss; the next Set overwrites it.
		return 0, version, false, nil
	}
	return n, version, true, nil
}

func (u *UnreadCounts) Set(ctx context.Context, a chat.Actor, version int64, n int) error {
	return u.cache.Set(ctx, unreadKey(a.ID, version), strconv.Itoa(n), u.ttl)
}

// Bump retires the cached badges of the conversation's scout and of every
// admin of its club.
func (u *UnreadCounts) Bump(ctx context.Context, c chat.Conversation) error {
	for _, scope := range []string{scoutScope(c.ScoutID), clubScope(c.ClubID)} {
		if _, err := u.cache.Incr(ctx, versionKey(scope)); err != nil {
			return err
		}
	}
	return nil
}
