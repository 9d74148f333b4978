// internal/database/adapters.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rallyline/rally/internal/arena"
)

// PGIdentity resolves logins against the users table. Satisfies the
// matchmaker's Identity interface.
type PGIdentity struct{}

func (PGIdentity) Resolve(ctx context.Context, login string) (arena.PlayerRef, error) {
	u, err := GetUserByUsername(ctx, login)
	if err != nil {
		return arena.PlayerRef{}, fmt.Errorf("resolve login %q: %w", login, err)
	}
	return arena.PlayerRef{ID: u.ID, Login: u.Username}, nil
}

// PGRecords persists match rows. Satisfies the matchmaker's RecordStore
// interface.
type PGRecords struct{}

func (PGRecords) CreateMatch(ctx context.Context, roomID uuid.UUID, mode arena.Mode, players [2]arena.PlayerRef) error {
	return InsertMatch(ctx, roomID, string(mode), players[0].ID, players[1].ID)
}

func (PGRecords) RecordResult(ctx context.Context, res arena.Result) error {
	err := FinalizeMatch(ctx, res.RoomID, res.Status.String(), res.Players, res.Scores, res.Winner, res.Forfeit)
	if err != nil {
		return err
	}
	// Ranked matches with a decided winner also move ratings. A forfeit
	// counts as a loss for the forfeiting side.
	if res.Mode == arena.ModeRanked && res.Winner != uuid.Nil {
		loser := res.Players[0]
		if loser == res.Winner {
			loser = res.Players[1]
		}
		return CommitRankedOutcome(ctx, res.RoomID, res.Winner, loser)
	}
	return nil
}

func (PGRecords) ActiveMatchFor(ctx context.Context, player uuid.UUID) (uuid.UUID, bool, error) {
	return ActiveMatchFor(ctx, player)
}

// PGEligibility refuses pairings where either player blocked the other.
// Satisfies the matchmaker's Eligibility interface.
type PGEligibility struct{}

func (PGEligibility) CanPlay(ctx context.Context, a, b uuid.UUID) (bool, error) {
	blocked, err := IsBlocked(ctx, a, b)
	if err != nil {
		return false, err
	}
	return !blocked, nil
}
