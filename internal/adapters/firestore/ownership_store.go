package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/samirrijal/turfgrid/internal/core/domain"
	"github.com/samirrijal/turfgrid/internal/pkg/metrics"
)

// OwnershipStore implements ports.OwnershipStore on a Firestore collection,
// one document per cell keyed by cell ID. Conditional writes run inside
// transactions, which gives the same read-check-write guarantee the Postgres
// store gets from its guarded upsert.
type OwnershipStore struct {
	client     *firestore.Client
	collection string
}

// NewOwnershipStore creates a store over the named collection.
func NewOwnershipStore(c *Client, collection string) *OwnershipStore {
	if collection == "" {
		collection = "cell_ownership"
	}
	return &OwnershipStore{client: c.FS, collection: collection}
}

type ownershipDoc struct {
	CellID      string     `firestore:"cell_id"`
	OwnerID     string     `firestore:"owner_id"`
	OwnerKind   string     `firestore:"owner_kind"`
	GuildID     string     `firestore:"guild_id"`
	ClaimedAt   *time.Time `firestore:"claimed_at"`
	ExpiresAt   *time.Time `firestore:"expires_at"`
	ContestedAt *time.Time `firestore:"contested_at"`
	ContestedBy string     `firestore:"contested_by"`
	UpdatedAt   time.Time  `firestore:"updated_at"`
}

func toDoc(rec *domain.OwnershipRecord) ownershipDoc {
	return ownershipDoc{
		CellID:      rec.CellID,
		OwnerID:     rec.OwnerID,
		OwnerKind:   string(rec.OwnerKind),
		GuildID:     rec.GuildID,
		ClaimedAt:   rec.ClaimedAt,
		ExpiresAt:   rec.ExpiresAt,
		ContestedAt: rec.ContestedAt,
		ContestedBy: rec.ContestedBy,
		UpdatedAt:   rec.UpdatedAt,
	}
}

func (d ownershipDoc) toDomain() *domain.OwnershipRecord {
	return &domain.OwnershipRecord{
		CellID:      d.CellID,
		OwnerID:     d.OwnerID,
		OwnerKind:   domain.OwnerKind(d.OwnerKind),
		GuildID:     d.GuildID,
		ClaimedAt:   d.ClaimedAt,
		ExpiresAt:   d.ExpiresAt,
		ContestedAt: d.ContestedAt,
		ContestedBy: d.ContestedBy,
		UpdatedAt:   d.UpdatedAt,
	}
}

func (s *OwnershipStore) Get(ctx context.Context, cellID string) (*domain.OwnershipRecord, error) {
	snap, err := s.client.Collection(s.collection).Doc(cellID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var d ownershipDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, err
	}
	return d.toDomain(), nil
}

func (s *OwnershipStore) GetMany(ctx context.Context, cellIDs []string) (map[string]*domain.OwnershipRecord, error) {
	if len(cellIDs) == 0 {
		return nil, nil
	}

	refs := make([]*firestore.DocumentRef, 0, len(cellIDs))
	for _, id := range cellIDs {
		refs = append(refs, s.client.Collection(s.collection).Doc(id))
	}

	snaps, err := s.client.GetAll(ctx, refs)
	if err != nil {
		return nil, err
	}

	records := make(map[string]*domain.OwnershipRecord, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		var d ownershipDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, err
		}
		records[d.CellID] = d.toDomain()
	}
	return records, nil
}

// Apply writes rec only while the document's owner still equals
// expectedPriorOwner and that ownership is replaceable (absent, the writer's
// own, or lapsed by rec.UpdatedAt).
func (s *OwnershipStore) Apply(ctx context.Context, rec *domain.OwnershipRecord, expectedPriorOwner string) (bool, error) {
	ref := s.client.Collection(s.collection).Doc(rec.CellID)
	applied := false

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		applied = false

		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		if snap != nil && snap.Exists() {
			var cur ownershipDoc
			if err := snap.DataTo(&cur); err != nil {
				return err
			}
			if cur.OwnerID != expectedPriorOwner {
				return nil
			}
			replaceable := cur.OwnerID == "" ||
				cur.OwnerID == rec.OwnerID ||
				(cur.ExpiresAt != nil && !cur.ExpiresAt.After(rec.UpdatedAt))
			if !replaceable {
				return nil
			}
		} else if expectedPriorOwner != "" {
			return nil
		}

		applied = true
		return tx.Set(ref, toDoc(rec))
	})
	if err != nil {
		return false, err
	}
	if !applied {
		metrics.ClaimConflicts.Inc()
	}
	return applied, nil
}

// MarkContested stamps the contest fields, conditional on the document still
// being an active user-owned cell held by ownerID whose previous contest (if
// any) is older than graceCutoff.
func (s *OwnershipStore) MarkContested(ctx context.Context, cellID, ownerID, attackerID string, at, graceCutoff time.Time) (bool, error) {
	ref := s.client.Collection(s.collection).Doc(cellID)
	applied := false

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		applied = false

		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return nil
		}
		if err != nil {
			return err
		}

		var cur ownershipDoc
		if err := snap.DataTo(&cur); err != nil {
			return err
		}
		if cur.OwnerID != ownerID || cur.OwnerKind != string(domain.OwnerKindUser) {
			return nil
		}
		if cur.ExpiresAt == nil || !cur.ExpiresAt.After(at) {
			return nil
		}
		if cur.ContestedAt != nil && cur.ContestedAt.After(graceCutoff) {
			return nil
		}

		applied = true
		return tx.Update(ref, []firestore.Update{
			{Path: "contested_at", Value: at},
			{Path: "contested_by", Value: attackerID},
			{Path: "updated_at", Value: at},
		})
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (s *OwnershipStore) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.OwnershipRecord, error) {
	iter := s.client.Collection(s.collection).
		Where("owner_id", "==", ownerID).
		Where("owner_kind", "==", string(domain.OwnerKindUser)).
		Where("expires_at", ">", time.Now().UTC()).
		OrderBy("expires_at", firestore.Asc).
		Offset(offset).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var records []domain.OwnershipRecord
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		var d ownershipDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, err
		}
		records = append(records, *d.toDomain())
	}
	return records, nil
}

func (s *OwnershipStore) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	iter := s.client.Collection(s.collection).
		Where("owner_id", "==", ownerID).
		Where("owner_kind", "==", string(domain.OwnerKindUser)).
		Where("expires_at", ">", time.Now().UTC()).
		Documents(ctx)
	defer iter.Stop()

	count := 0
	for {
		_, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, err
		}
		count++
	}
	return count, nil
}
