package postgres

import (
	"context"

	"github.com/samirrijal/turfgrid/internal/core/domain"
)

// ClaimLedgerRepo implements ports.ClaimLedger.
type ClaimLedgerRepo struct {
	db *DB
}

// NewClaimLedgerRepo creates a new ClaimLedgerRepo.
func NewClaimLedgerRepo(db *DB) *ClaimLedgerRepo {
	return &ClaimLedgerRepo{db: db}
}

func (r *ClaimLedgerRepo) Append(ctx context.Context, event *domain.ClaimEvent) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO claim_events (id, cell_id, player_id, kind, prior_owner, xp_awarded, gold_awarded, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, event.ID, event.CellID, event.PlayerID, event.Kind,
		nilIfEmpty(event.PriorOwner), event.XPAwarded, event.GoldAwarded, event.OccurredAt)
	return err
}

func (r *ClaimLedgerRepo) RecentByPlayer(ctx context.Context, playerID string, limit int) ([]domain.ClaimEvent, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, cell_id, player_id, kind, COALESCE(prior_owner, ''), xp_awarded, gold_awarded, occurred_at
		FROM claim_events
		WHERE player_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`, playerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.ClaimEvent
	for rows.Next() {
		var ev domain.ClaimEvent
		if err := rows.Scan(
			&ev.ID, &ev.CellID, &ev.PlayerID, &ev.Kind,
			&ev.PriorOwner, &ev.XPAwarded, &ev.GoldAwarded, &ev.OccurredAt,
		); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (r *ClaimLedgerRepo) RecentByCell(ctx context.Context, cellID string, limit int) ([]domain.ClaimEvent, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, cell_id, player_id, kind, COALESCE(prior_owner, ''), xp_awarded, gold_awarded, occurred_at
		FROM claim_events
		WHERE cell_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`, cellID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.ClaimEvent
	for rows.Next() {
		var ev domain.ClaimEvent
		if err := rows.Scan(
			&ev.ID, &ev.CellID, &ev.PlayerID, &ev.Kind,
			&ev.PriorOwner, &ev.XPAwarded, &ev.GoldAwarded, &ev.OccurredAt,
		); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
