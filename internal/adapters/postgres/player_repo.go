package postgres

import (
	"context"
	"time"

	"github.com/samirrijal/turfgrid/internal/core/domain"
)

// PlayerRepo implements ports.PlayerStore.
type PlayerRepo struct {
	db *DB
}

// NewPlayerRepo creates a new PlayerRepo.
func NewPlayerRepo(db *DB) *PlayerRepo {
	return &PlayerRepo{db: db}
}

func (r *PlayerRepo) Get(ctx context.Context, id string) (*domain.Player, error) {
	var p domain.Player
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, COALESCE(display_name, ''), COALESCE(guild_id, ''), xp, gold,
		       COALESCE(last_cell_id, ''), last_seen_at, created_at
		FROM players WHERE id = $1
	`, id).Scan(
		&p.ID, &p.DisplayName, &p.GuildID, &p.XP, &p.Gold,
		&p.LastCellID, &p.LastSeenAt, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Ensure creates the player row on first sight. An empty displayName never
// overwrites a name the player already set.
func (r *PlayerRepo) Ensure(ctx context.Context, id, displayName string) (*domain.Player, error) {
	var p domain.Player
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO players (id, display_name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE
		SET display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), players.display_name)
		RETURNING id, COALESCE(display_name, ''), COALESCE(guild_id, ''), xp, gold,
		          COALESCE(last_cell_id, ''), last_seen_at, created_at
	`, id, displayName).Scan(
		&p.ID, &p.DisplayName, &p.GuildID, &p.XP, &p.Gold,
		&p.LastCellID, &p.LastSeenAt, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PlayerRepo) GrantReward(ctx context.Context, playerID string, xp, gold int) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE players SET xp = xp + $2, gold = gold + $3 WHERE id = $1
	`, playerID, xp, gold)
	return err
}

// UpdatePresence upserts the player's last known location so a reading from a
// device we have never seen still lands.
func (r *PlayerRepo) UpdatePresence(ctx context.Context, playerID string, loc domain.GeoPoint, cellID string, at time.Time) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO players (id, display_name, last_location, last_cell_id, last_seen_at)
		VALUES ($1, '', ST_SetSRID(ST_MakePoint($2, $3), 4326)::geography, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET last_location = EXCLUDED.last_location,
		    last_cell_id = EXCLUDED.last_cell_id,
		    last_seen_at = EXCLUDED.last_seen_at
	`, playerID, loc.Lon, loc.Lat, cellID, at)
	return err
}
