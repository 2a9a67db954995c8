package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/pelusa-v/scout-chat/internal/chat"
)

// Directory reads the application's clubs, players and profiles tables.
type Directory struct {
	pool *pgxpool.Pool
}

var (
	_ chat.Directory        = (*Directory)(nil)
	_ chat.IdentityProvider = (*Directory)(nil)
)

func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

func (d *Directory) exists(ctx context.Context, q string, id uuid.UUID) (bool, error) {
	var ok bool
	if err := d.pool.QueryRow(ctx, q, id).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (d *Directory) ClubExists(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := d.exists(ctx, `SELECT EXISTS (SELECT 1 FROM clubs WHERE id = $1)`, id)
	return ok, errors.Wrap(err, "postgres: club exists")
}

func (d *Directory) PlayerExists(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := d.exists(ctx, `SELECT EXISTS (SELECT 1 FROM players WHERE id = $1)`, id)
	return ok, errors.Wrap(err, "postgres: player exists")
}

func (d *Directory) Players(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]chat.PlayerSummary, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT p.id, p.name, p.position, p.photo_url, c.name
		FROM players p LEFT JOIN clubs c ON c.id = p.club_id
		WHERE p.id = ANY($1) AND p.is_public`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: players")
	}
	defer rows.Close()
	out := make(map[uuid.UUID]chat.PlayerSummary, len(ids))
	for rows.Next() {
		var p chat.PlayerSummary
		if err := rows.Scan(&p.ID, &p.Name, &p.Position, &p.PhotoURL, &p.ClubName); err != nil {
			return nil, errors.Wrap(err, "postgres: scan player")
		}
		out[p.ID] = p
	}
	return out, errors.Wrap(rows.Err(), "postgres: players")
}

func (d *Directory) parties(ctx context.Context, q, kind string, ids []uuid.UUID) (map[uuid.UUID]chat.Party, error) {
	rows, err := d.pool.Query(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]chat.Party, len(ids))
	for rows.Next() {
		p := chat.Party{Kind: kind}
		var role *string
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.AvatarURL, &role); err != nil {
			return nil, err
		}
		if role != nil {
			p.Kind = *role
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (d *Directory) Clubs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]chat.Party, error) {
	out, err := d.parties(ctx, `
		SELECT id, name, logo_url, NULL::text FROM clubs WHERE id = ANY($1)`, "club", ids)
	return out, errors.Wrap(err, "postgres: clubs")
}

func (d *Directory) Profiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]chat.Party, error) {
	out, err := d.parties(ctx, `
		SELECT id, display_name, avatar_url, role FROM profiles WHERE id = ANY($1)`, "", ids)
	return out, errors.Wrap(err, "postgres: profiles")
}

func (d *Directory) Actor(ctx context.Context, id uuid.UUID) (chat.Actor, error) {
	var a chat.Actor
	err := d.pool.QueryRow(ctx, `SELECT id, role, club_id FROM profiles WHERE id = $1`, id).
		Scan(&a.ID, &a.Role, &a.ClubID)
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.Actor{}, chat.ErrNoRows
	}
	return a, errors.Wrap(err, "postgres: actor")
}
