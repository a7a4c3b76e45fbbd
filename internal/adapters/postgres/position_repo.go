package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/turfgrid/internal/core/domain"
)

// PositionRepo implements ports.PositionStore on the player_positions
// hypertable.
type PositionRepo struct {
	db *DB
}

// NewPositionRepo creates a new PositionRepo.
func NewPositionRepo(db *DB) *PositionRepo {
	return &PositionRepo{db: db}
}

func (r *PositionRepo) Insert(ctx context.Context, pos *domain.PlayerPosition) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO player_positions (time, player_id, location, accuracy, speed, cell_id, metadata)
		VALUES ($1, $2, ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography, $5, $6, $7, $8)
	`, pos.Time, pos.PlayerID, pos.Location.Lon, pos.Location.Lat,
		pos.Accuracy, pos.Speed, nilIfEmpty(pos.CellID), pos.Metadata)
	return err
}

// InsertBatch inserts many readings using pgx.Batch.
func (r *PositionRepo) InsertBatch(ctx context.Context, positions []domain.PlayerPosition) error {
	if len(positions) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, pos := range positions {
		batch.Queue(`
			INSERT INTO player_positions (time, player_id, location, accuracy, speed, cell_id, metadata)
			VALUES ($1, $2, ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography, $5, $6, $7, $8)
		`, pos.Time, pos.PlayerID, pos.Location.Lon, pos.Location.Lat,
			pos.Accuracy, pos.Speed, nilIfEmpty(pos.CellID), pos.Metadata)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range positions {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

// Latest returns the player's most recent reading, or nil when the player
// has never reported one.
func (r *PositionRepo) Latest(ctx context.Context, playerID string) (*domain.PlayerPosition, error) {
	var pos domain.PlayerPosition
	err := r.db.Pool.QueryRow(ctx, `
		SELECT time, player_id,
		       ST_Y(location::geometry) as lat,
		       ST_X(location::geometry) as lon,
		       accuracy, speed, COALESCE(cell_id, ''), COALESCE(metadata, '{}')
		FROM player_positions
		WHERE player_id = $1
		ORDER BY time DESC
		LIMIT 1
	`, playerID).Scan(
		&pos.Time, &pos.PlayerID, &pos.Location.Lat, &pos.Location.Lon,
		&pos.Accuracy, &pos.Speed, &pos.CellID, &pos.Metadata,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pos, nil
}
