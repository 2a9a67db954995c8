package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/pelusa-v/scout-chat/internal/chat"
)

const uniqueViolation = "23505"

const messageColumns = `id, conversation_id, sender_id, content, message_type, file_url, file_name,
	file_type, file_size_bytes, referenced_player_id, read_at, created_at`

// Store implements chat.Store on Postgres.
type Store struct {
	pool *pgxpool.Pool
}

var _ chat.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func noRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.ErrNoRows
	}
	return err
}

func scanConversation(row pgx.Row) (chat.Conversation, error) {
	var c chat.Conversation
	err := row.Scan(&c.ID, &c.ScoutID, &c.ClubID, &c.CreatedAt)
	return c, err
}

func scanMessage(row pgx.Row) (chat.Message, error) {
	var m chat.Message
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.MessageType, &m.FileURL,
		&m.FileName, &m.FileType, &m.FileSizeBytes, &m.ReferencedPlayerID, &m.ReadAt, &m.CreatedAt)
	return m, err
}

func (s *Store) FindConversation(ctx context.Context, scoutID, clubID uuid.UUID) (chat.Conversation, error) {
	c, err := scanConversation(s.pool.QueryRow(ctx, `
		SELECT id, scout_id, club_id, created_at FROM conversations
		WHERE scout_id = $1 AND club_id = $2`, scoutID, clubID))
	if err != nil {
		return chat.Conversation{}, errors.Wrap(noRows(err), "postgres: find conversation")
	}
	return c, nil
}

func (s *Store) GetConversation(ctx context.Context, id uuid.UUID) (chat.Conversation, error) {
	c, err := scanConversation(s.pool.QueryRow(ctx, `
		SELECT id, scout_id, club_id, created_at FROM conversations WHERE id = $1`, id))
	if err != nil {
		return chat.Conversation{}, errors.Wrap(noRows(err), "postgres: get conversation")
	}
	return c, nil
}

func (s *Store) CreateConversation(ctx context.Context, c chat.Conversation, opening chat.Message) (chat.Conversation, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return chat.Conversation{}, false, errors.Wrap(err, "postgres: begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stored, err := scanConversation(tx.QueryRow(ctx, `
		INSERT INTO conversations (id, scout_id, club_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (scout_id, club_id) DO NOTHING
		RETURNING id, scout_id, club_id, created_at`,
		c.ID, c.ScoutID, c.ClubID, c.CreatedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the race for this pair; the winner has committed by now.
		_ = tx.Rollback(ctx)
		existing, err := s.FindConversation(ctx, c.ScoutID, c.ClubID)
		return existing, false, err
	}
	if err != nil {
		return chat.Conversation{}, false, errors.Wrap(err, "postgres: insert conversation")
	}
	if err := insertMessage(ctx, tx, opening); err != nil {
		return chat.Conversation{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return chat.Conversation{}, false, errors.Wrap(err, "postgres: commit conversation")
	}
	return stored, true, nil
}

func (s *Store) GetBlock(ctx context.Context, conversationID uuid.UUID) (*chat.ConversationBlock, error) {
	var b chat.ConversationBlock
	err := s.pool.QueryRow(ctx, `
		SELECT conversation_id, blocked_by, created_at FROM conversation_blocks
		WHERE conversation_id = $1`, conversationID).Scan(&b.ConversationID, &b.BlockedBy, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "postgres: get block")
	}
	return &b, nil
}

func (s *Store) InsertBlock(ctx context.Context, b chat.ConversationBlock) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversation_blocks (conversation_id, blocked_by, created_at)
		VALUES ($1, $2, $3)`, b.ConversationID, b.BlockedBy, b.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return chat.ErrDuplicateBlock
	}
	return errors.Wrap(err, "postgres: insert block")
}

func (s *Store) DeleteBlock(ctx context.Context, conversationID uuid.UUID) (bool, error) {
	ct, err := s.pool.Exec(ctx, `DELETE FROM conversation_blocks WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return false, errors.Wrap(err, "postgres: delete block")
	}
	return ct.RowsAffected() > 0, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertMessage(ctx context.Context, db execer, m chat.Message) error {
	_, err := db.Exec(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		m.ID, m.ConversationID, m.SenderID, m.Content, m.MessageType, m.FileURL, m.FileName,
		m.FileType, m.FileSizeBytes, m.ReferencedPlayerID, m.ReadAt, m.CreatedAt)
	return errors.Wrap(err, "postgres: insert message")
}

func (s *Store) InsertMessage(ctx context.Context, m chat.Message) error {
	return insertMessage(ctx, s.pool, m)
}

func (s *Store) ListMessages(ctx context.Context, conversationID uuid.UUID, before *chat.Cursor, limit int) ([]chat.Message, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if before == nil {
		rows, err = s.pool.Query(ctx, `
			SELECT `+messageColumns+` FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2`, conversationID, limit)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT `+messageColumns+` FROM messages
			WHERE conversation_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4`, conversationID, before.CreatedAt, before.ID, limit)
	}
	if err != nil {
		return nil, errors.Wrap(err, "postgres: list messages")
	}
	defer rows.Close()

	msgs := make([]chat.Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, errors.Wrap(err, "postgres: scan message")
		}
		msgs = append(msgs, m)
	}
	return msgs, errors.Wrap(rows.Err(), "postgres: list messages")
}

func (s *Store) CountEvents(ctx context.Context, actorID uuid.UUID, kind chat.QuotaKind, since time.Time) (int, error) {
	var q string
	switch kind {
	case chat.QuotaConversationsPerDay:
		q = `SELECT count(*) FROM conversations WHERE scout_id = $1 AND created_at >= $2`
	case chat.QuotaUploadsPerDay:
		q = `SELECT count(*) FROM messages WHERE sender_id = $1 AND created_at >= $2 AND message_type = 'file'`
	case chat.QuotaMessagesPerHour:
		q = `SELECT count(*) FROM messages WHERE sender_id = $1 AND created_at >= $2`
	default:
		return 0, errors.Errorf("postgres: unknown quota %q", kind)
	}
	var n int
	if err := s.pool.QueryRow(ctx, q, actorID, since).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "postgres: count %s", kind)
	}
	return n, nil
}

// A NULL sender (system rows) never satisfies sender_id <> $3, so system
// messages are never unread.
func (s *Store) CountUnread(ctx context.Context, p chat.Participation, conversationID *uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE (c.scout_id = $1 OR c.club_id = $2)
		  AND ($4::uuid IS NULL OR c.id = $4)
		  AND m.read_at IS NULL AND m.sender_id <> $3`,
		p.ScoutID, p.ClubID, p.ActorID, conversationID).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "postgres: count unread")
	}
	return n, nil
}

func (s *Store) ListConversations(ctx context.Context, p chat.Participation) ([]chat.ConversationSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.scout_id, c.club_id, c.created_at,
		       lm.id, lm.sender_id, lm.content, lm.message_type, lm.file_url, lm.file_name,
		       lm.file_type, lm.file_size_bytes, lm.referenced_player_id, lm.read_at, lm.created_at,
		       (SELECT count(*) FROM messages u
		         WHERE u.conversation_id = c.id AND u.read_at IS NULL AND u.sender_id <> $3),
		       b.blocked_by, b.created_at
		FROM conversations c
		LEFT JOIN LATERAL (
		    SELECT * FROM messages m WHERE m.conversation_id = c.id
		    ORDER BY m.created_at DESC, m.id DESC LIMIT 1
		) lm ON true
		LEFT JOIN conversation_blocks b ON b.conversation_id = c.id
		WHERE c.scout_id = $1 OR c.club_id = $2
		ORDER BY COALESCE(lm.created_at, c.created_at) DESC`,
		p.ScoutID, p.ClubID, p.ActorID)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: list conversations")
	}
	defer rows.Close()

	out := []chat.ConversationSummary{}
	for rows.Next() {
		var (
			sum       chat.ConversationSummary
			lm        chat.Message
			lmID      *uuid.UUID
			lmType    *chat.MessageType
			lmCreated *time.Time
			blockedBy *uuid.UUID
			blockedAt *time.Time
		)
		err := rows.Scan(&sum.ID, &sum.ScoutID, &sum.ClubID, &sum.CreatedAt,
			&lmID, &lm.SenderID, &lm.Content, &lmType, &lm.FileURL, &lm.FileName,
			&lm.FileType, &lm.FileSizeBytes, &lm.ReferencedPlayerID, &lm.ReadAt, &lmCreated,
			&sum.UnreadCount, &blockedBy, &blockedAt)
		if err != nil {
			return nil, errors.Wrap(err, "postgres: scan conversation")
		}
		if lmID != nil {
			lm.ID, lm.ConversationID, lm.MessageType, lm.CreatedAt = *lmID, sum.ID, *lmType, *lmCreated
			sum.LastMessage = &lm
		}
		if blockedBy != nil {
			sum.Block = &chat.ConversationBlock{ConversationID: sum.ID, BlockedBy: *blockedBy, CreatedAt: *blockedAt}
		}
		out = append(out, sum)
	}
	return out, errors.Wrap(rows.Err(), "postgres: list conversations")
}

func (s *Store) PlayerViewedSince(ctx context.Context, playerID, viewerID uuid.UUID, since time.Time) (bool, error) {
	var seen bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM player_views
		               WHERE player_id = $1 AND viewer_id = $2 AND viewed_at >= $3)`,
		playerID, viewerID, since).Scan(&seen)
	return seen, errors.Wrap(err, "postgres: check player view")
}

func (s *Store) InsertPlayerView(ctx context.Context, v chat.PlayerView) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO player_views (player_id, viewer_id, viewed_at) VALUES ($1, $2, $3)`,
		v.PlayerID, v.ViewerID, v.ViewedAt)
	return errors.Wrap(err, "postgres: insert player view")
}

// ReadState is the read-state tracker's write capability: it updates rows
// authored by the other participant.
type ReadState struct {
	pool *pgxpool.Pool
}

var _ chat.ReadStateWriter = (*ReadState)(nil)

func NewReadState(pool *pgxpool.Pool) *ReadState {
	return &ReadState{pool: pool}
}

func (r *ReadState) MarkRead(ctx context.Context, conversationID, readerID uuid.UUID, at time.Time) (int64, error) {
	ct, err := r.pool.Exec(ctx, `
		UPDATE messages SET read_at = $3
		WHERE conversation_id = $1 AND read_at IS NULL AND sender_id <> $2`,
		conversationID, readerID, at)
	if err != nil {
		return 0, errors.Wrap(err, "postgres: mark read")
	}
	return ct.RowsAffected(), nil
}
