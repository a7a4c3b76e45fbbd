package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/turfgrid/internal/core/domain"
	"github.com/samirrijal/turfgrid/internal/pkg/metrics"
)

// OwnershipRepo implements ports.OwnershipStore.
type OwnershipRepo struct {
	db *DB
}

// NewOwnershipRepo creates a new OwnershipRepo.
func NewOwnershipRepo(db *DB) *OwnershipRepo {
	return &OwnershipRepo{db: db}
}

func (r *OwnershipRepo) Get(ctx context.Context, cellID string) (*domain.OwnershipRecord, error) {
	var rec domain.OwnershipRecord
	err := r.db.Pool.QueryRow(ctx, `
		SELECT cell_id, COALESCE(owner_id, ''), owner_kind, COALESCE(guild_id, ''),
		       claimed_at, expires_at, contested_at, COALESCE(contested_by, ''), updated_at
		FROM cell_ownership WHERE cell_id = $1
	`, cellID).Scan(
		&rec.CellID, &rec.OwnerID, &rec.OwnerKind, &rec.GuildID,
		&rec.ClaimedAt, &rec.ExpiresAt, &rec.ContestedAt, &rec.ContestedBy, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *OwnershipRepo) GetMany(ctx context.Context, cellIDs []string) (map[string]*domain.OwnershipRecord, error) {
	if len(cellIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT cell_id, COALESCE(owner_id, ''), owner_kind, COALESCE(guild_id, ''),
		       claimed_at, expires_at, contested_at, COALESCE(contested_by, ''), updated_at
		FROM cell_ownership WHERE cell_id = ANY($1)
	`, cellIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make(map[string]*domain.OwnershipRecord, len(cellIDs))
	for rows.Next() {
		var rec domain.OwnershipRecord
		if err := rows.Scan(
			&rec.CellID, &rec.OwnerID, &rec.OwnerKind, &rec.GuildID,
			&rec.ClaimedAt, &rec.ExpiresAt, &rec.ContestedAt, &rec.ContestedBy, &rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		records[rec.CellID] = &rec
	}
	return records, rows.Err()
}

// Apply upserts rec guarded by the owner observed at read time. The update
// fires only while the row's owner still equals expectedPriorOwner AND that
// ownership is replaceable: never claimed, the writer's own, or lapsed by the
// time of this write. A refresh that landed between read and write moves
// expires_at forward, so the lapsed leg stops stale takeovers.
func (r *OwnershipRepo) Apply(ctx context.Context, rec *domain.OwnershipRecord, expectedPriorOwner string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		INSERT INTO cell_ownership (cell_id, owner_id, owner_kind, guild_id, claimed_at, expires_at, contested_at, contested_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (cell_id) DO UPDATE
		SET owner_id = EXCLUDED.owner_id,
		    owner_kind = EXCLUDED.owner_kind,
		    guild_id = EXCLUDED.guild_id,
		    claimed_at = EXCLUDED.claimed_at,
		    expires_at = EXCLUDED.expires_at,
		    contested_at = EXCLUDED.contested_at,
		    contested_by = EXCLUDED.contested_by,
		    updated_at = EXCLUDED.updated_at
		WHERE COALESCE(cell_ownership.owner_id, '') = $10
		  AND (COALESCE(cell_ownership.owner_id, '') = ''
		       OR cell_ownership.owner_id = EXCLUDED.owner_id
		       OR cell_ownership.expires_at <= EXCLUDED.updated_at)
	`, rec.CellID, rec.OwnerID, rec.OwnerKind, nilIfEmpty(rec.GuildID),
		rec.ClaimedAt, rec.ExpiresAt, rec.ContestedAt, nilIfEmpty(rec.ContestedBy),
		rec.UpdatedAt, expectedPriorOwner)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		metrics.ClaimConflicts.Inc()
		return false, nil
	}
	return true, nil
}

// MarkContested stamps the contest columns, conditional on the row still
// being an active user-owned cell held by ownerID whose previous contest (if
// any) is older than graceCutoff.
func (r *OwnershipRepo) MarkContested(ctx context.Context, cellID, ownerID, attackerID string, at, graceCutoff time.Time) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE cell_ownership
		SET contested_at = $4, contested_by = $3, updated_at = $4
		WHERE cell_id = $1 AND owner_id = $2 AND owner_kind = 'user'
		  AND expires_at > $4
		  AND (contested_at IS NULL OR contested_at <= $5)
	`, cellID, ownerID, attackerID, at, graceCutoff)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListByOwner returns the owner's live cells, soonest to lapse first.
// Lapsed rows are left in place for takeover but no longer count as held.
func (r *OwnershipRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.OwnershipRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT cell_id, COALESCE(owner_id, ''), owner_kind, COALESCE(guild_id, ''),
		       claimed_at, expires_at, contested_at, COALESCE(contested_by, ''), updated_at
		FROM cell_ownership
		WHERE owner_id = $1 AND owner_kind = 'user' AND expires_at > now()
		ORDER BY expires_at ASC
		LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.OwnershipRecord
	for rows.Next() {
		var rec domain.OwnershipRecord
		if err := rows.Scan(
			&rec.CellID, &rec.OwnerID, &rec.OwnerKind, &rec.GuildID,
			&rec.ClaimedAt, &rec.ExpiresAt, &rec.ContestedAt, &rec.ContestedBy, &rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *OwnershipRepo) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM cell_ownership
		WHERE owner_id = $1 AND owner_kind = 'user' AND expires_at > now()
	`, ownerID).Scan(&count)
	return count, err
}
