package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const playerViewWindow = time.Hour

// RecordPlayerView logs that viewer opened a player profile, at most once
// per pair per hour. The check and the insert are separate statements, so
// concurrent viewers can still produce a duplicate.
func (s *Service) RecordPlayerView(ctx context.Context, actor Actor, playerID uuid.UUID) (bool, error) {
	if err := requireActor(actor); err != nil {
		return false, err
	}
	exists, err := s.directory.PlayerExists(ctx, playerID)
	if err != nil {
		return false, internal("lookup player", err)
	}
	if !exists {
		return false, newError(CodeNotFound, "player not found")
	}
	now := s.clock()
	seen, err := s.store.PlayerViewedSince(ctx, playerID, actor.ID, now.Add(-playerViewWindow))
	if err != nil {
		return false, internal("check player view", err)
	}
	if seen {
		return false, nil
	}
	if err := s.store.InsertPlayerView(ctx, PlayerView{PlayerID: playerID, ViewerID: actor.ID, ViewedAt: now}); err != nil {
		return false, internal("insert player view", err)
	}
	return true, nil
}
