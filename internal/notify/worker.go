package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"go.uber.org/ratelimit"

	"github.com/pelusa-v/scout-chat/internal/queue"
)

// Mailer delivers a notification to the message's recipient. Address lookup
// and templating belong to the implementation.
type Mailer interface {
	Deliver(ctx context.Context, n MessageSent) error
}

// LogMailer only records what would have been sent.
type LogMailer struct {
	Log zerolog.Logger
}

func (m LogMailer) Deliver(_ context.Context, n MessageSent) error {
	recipient := "scout"
	if n.RecipientIsClub() {
		recipient = "club"
	}
	m.Log.Info().Str("conversation_id", n.ConversationID.String()).
		Str("message_id", n.MessageID.String()).Str("recipient", recipient).Msg("notification delivered")
	return nil
}

// Worker consumes message_sent tasks at a bounded rate.
type Worker struct {
	mailer  Mailer
	limiter ratelimit.Limiter
	log     zerolog.Logger
}

// NewWorker paces deliveries to perSecond; zero or less disables pacing.
func NewWorker(mailer Mailer, perSecond int, log zerolog.Logger) *Worker {
	limiter := ratelimit.NewUnlimited()
	if perSecond > 0 {
		limiter = ratelimit.New(perSecond, ratelimit.WithoutSlack)
	}
	return &Worker{mailer: mailer, limiter: limiter, log: log.With().Str("component", "notify").Logger()}
}

// Register installs the worker's handlers on srv.
func (w *Worker) Register(srv queue.Server) {
	srv.Register(TaskMessageSent, w.HandleMessageSent)
}

func (w *Worker) HandleMessageSent(ctx context.Context, t queue.Task) error {
	var n MessageSent
	if err := json.Unmarshal(t.Payload, &n); err != nil {
		// Malformed payloads never succeed; do not retry them.
		w.log.Error().Err(err).Msg("decode message_sent")
		return nil
	}
	w.limiter.Take()
	if err := w.mailer.Deliver(ctx, n); err != nil {
		return fmt.Errorf("deliver %s: %w", n.MessageID, err)
	}
	return nil
}
