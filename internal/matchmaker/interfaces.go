// internal/matchmaker/interfaces.go
package matchmaker

import (
	"context"

	"github.com/google/uuid"

	"github.com/rallyline/rally/internal/arena"
)

// Identity resolves player logins to stable references. Backed by the
// users table in production; tests swap in a map.
type Identity interface {
	Resolve(ctx context.Context, login string) (arena.PlayerRef, error)
}

// RecordStore persists match rows. A row is inserted when the room is
// created and finalized from the terminal result, so ActiveMatchFor can
// answer across process restarts.
type RecordStore interface {
	CreateMatch(ctx context.Context, roomID uuid.UUID, mode arena.Mode, players [2]arena.PlayerRef) error
	RecordResult(ctx context.Context, res arena.Result) error
	ActiveMatchFor(ctx context.Context, player uuid.UUID) (uuid.UUID, bool, error)
}

// Eligibility answers whether two players may be paired. Blocked
// relationships make a pairing ineligible in every mode.
type Eligibility interface {
	CanPlay(ctx context.Context, a, b uuid.UUID) (bool, error)
}
