package ports

import (
	"context"
	"time"

	"github.com/samirrijal/turfgrid/internal/core/domain"
)

// OwnershipStore persists per-cell claim state.
type OwnershipStore interface {
	// Get returns the cell's record, or nil when the cell has never been claimed.
	Get(ctx context.Context, cellID string) (*domain.OwnershipRecord, error)
	GetMany(ctx context.Context, cellIDs []string) (map[string]*domain.OwnershipRecord, error)
	// Apply writes rec atomically, but only while the cell's current owner is
	// expectedPriorOwner ("" for unclaimed) and that ownership is still
	// replaceable (absent, expired, or the writer's own). It reports false
	// when a concurrent write changed the cell first.
	Apply(ctx context.Context, rec *domain.OwnershipRecord, expectedPriorOwner string) (bool, error)
	// MarkContested stamps a contest mark, conditional on the cell still being
	// actively owned by ownerID and not carrying a contest newer than
	// graceCutoff. It reports false when the condition no longer holds.
	MarkContested(ctx context.Context, cellID, ownerID, attackerID string, at, graceCutoff time.Time) (bool, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.OwnershipRecord, error)
	CountByOwner(ctx context.Context, ownerID string) (int, error)
}

// PlayerStore persists players.
type PlayerStore interface {
	Get(ctx context.Context, id string) (*domain.Player, error)
	// Ensure returns the player, creating the row on first sight.
	Ensure(ctx context.Context, id, displayName string) (*domain.Player, error)
	GrantReward(ctx context.Context, playerID string, xp, gold int) error
	UpdatePresence(ctx context.Context, playerID string, loc domain.GeoPoint, cellID string, at time.Time) error
}

// ClaimLedger persists the append-only history of resolved attempts.
type ClaimLedger interface {
	Append(ctx context.Context, event *domain.ClaimEvent) error
	RecentByPlayer(ctx context.Context, playerID string, limit int) ([]domain.ClaimEvent, error)
	RecentByCell(ctx context.Context, cellID string, limit int) ([]domain.ClaimEvent, error)
}

// PositionStore persists raw player position readings.
type PositionStore interface {
	Insert(ctx context.Context, pos *domain.PlayerPosition) error
	InsertBatch(ctx context.Context, positions []domain.PlayerPosition) error
	Latest(ctx context.Context, playerID string) (*domain.PlayerPosition, error)
}
