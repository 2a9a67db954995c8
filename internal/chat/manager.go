package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service is the messaging core. It keeps no mutable state of its own:
// quotas, block flags and read timestamps all live in Store.
type Service struct {
	store       Store
	reads       ReadStateWriter
	directory   Directory
	limiter     *RateLimiter
	attachments *AttachmentValidator

	publisher Publisher
	notifier  Notifier
	unread    UnreadCache
	objects   ObjectStore

	quotas        map[QuotaKind]Quota
	uploadTimeout time.Duration
	log           zerolog.Logger
	now           func() time.Time
	newID         func() uuid.UUID
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l.With().Str("component", "chat").Logger() }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithUnreadCache(c UnreadCache) Option {
	return func(s *Service) { s.unread = c }
}

func WithObjectStore(o ObjectStore) Option {
	return func(s *Service) { s.objects = o }
}

func WithQuotas(q map[QuotaKind]Quota) Option {
	return func(s *Service) { s.quotas = q }
}

// WithUploadTimeout bounds object storage put plus URL signing.
func WithUploadTimeout(d time.Duration) Option {
	return func(s *Service) { s.uploadTimeout = d }
}

func NewService(store Store, reads ReadStateWriter, directory Directory, opts ...Option) *Service {
	s := &Service{
		store:         store,
		reads:         reads,
		directory:     directory,
		uploadTimeout: 30 * time.Second,
		log:           zerolog.Nop(),
		now:           time.Now,
		newID:         uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.limiter = NewRateLimiter(store, s.quotas, s.now)
	s.attachments = NewAttachmentValidator(s.objects)
	return s
}

// clock returns the current time at the precision the store keeps.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// messageID returns a time-ordered id so ties on created_at still sort by
// insertion order.
func (s *Service) messageID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return s.newID()
	}
	return id
}

// conversationFor loads a conversation the actor takes part in. Missing
// conversations and foreign ones both map to notVisible.
func (s *Service) conversationFor(ctx context.Context, actor Actor, id uuid.UUID, notVisible Code) (Conversation, error) {
	c, err := s.store.GetConversation(ctx, id)
	if errors.Is(err, ErrNoRows) {
		return Conversation{}, newError(CodeNotFound, "conversation not found")
	}
	if err != nil {
		return Conversation{}, internal("load conversation", err)
	}
	if !c.participant(actor) {
		if notVisible == CodeNotFound {
			return Conversation{}, newError(CodeNotFound, "conversation not found")
		}
		return Conversation{}, newError(notVisible, "not a participant")
	}
	return c, nil
}

// publish relays ev. Failures are logged and never reach the caller.
func (s *Service) publish(ctx context.Context, ev Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("kind", string(ev.Kind)).
			Str("conversation_id", ev.ConversationID.String()).Msg("publish event")
	}
}

func (s *Service) invalidateUnread(ctx context.Context, c Conversation) {
	if s.unread == nil {
		return
	}
	if err := s.unread.Bump(ctx, c); err != nil {
		s.log.Warn().Err(err).Str("conversation_id", c.ID.String()).Msg("invalidate unread cache")
	}
}

func requireActor(actor Actor) error {
	if actor.ID == uuid.Nil {
		return newError(CodeUnauthenticated, "no caller identity")
	}
	return nil
}
