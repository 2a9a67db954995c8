package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type QuotaKind string

const (
	QuotaConversationsPerDay QuotaKind = "conversations_per_day"
	QuotaUploadsPerDay       QuotaKind = "uploads_per_day"
	QuotaMessagesPerHour     QuotaKind = "messages_per_hour"
)

type Quota struct {
	Limit  int
	Window time.Duration
}

// DefaultQuotas counts conversations created by a scout, file messages sent
// and messages of any type sent, each over its own trailing window.
var DefaultQuotas = map[QuotaKind]Quota{
	QuotaConversationsPerDay: {Limit: 10, Window: 24 * time.Hour},
	QuotaUploadsPerDay:       {Limit: 5, Window: 24 * time.Hour},
	QuotaMessagesPerHour:     {Limit: 30, Window: time.Hour},
}

// EventCounter is the part of Store the limiter reads.
type EventCounter interface {
	CountEvents(ctx context.Context, actorID uuid.UUID, kind QuotaKind, since time.Time) (int, error)
}

// RateLimiter is a sliding-window check over persisted rows. It reads then
// decides without reserving, so two concurrent callers may both pass at
// limit-1.
type RateLimiter struct {
	counter EventCounter
	quotas  map[QuotaKind]Quota
	now     func() time.Time
}

func NewRateLimiter(counter EventCounter, quotas map[QuotaKind]Quota, now func() time.Time) *RateLimiter {
	if quotas == nil {
		quotas = DefaultQuotas
	}
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{counter: counter, quotas: quotas, now: now}
}

// CountSince returns how many qualifying rows actor produced within window.
func (l *RateLimiter) CountSince(ctx context.Context, actorID uuid.UUID, kind QuotaKind, window time.Duration) (int, error) {
	return l.counter.CountEvents(ctx, actorID, kind, l.now().Add(-window))
}

// Check fails with RATE_LIMITED once actor has used up kind's quota.
func (l *RateLimiter) Check(ctx context.Context, actorID uuid.UUID, kind QuotaKind) error {
	q, ok := l.quotas[kind]
	if !ok {
		return nil
	}
	n, err := l.CountSince(ctx, actorID, kind, q.Window)
	if err != nil {
		return internal("count "+string(kind), err)
	}
	if n >= q.Limit {
		return rateLimited(kind)
	}
	return nil
}
