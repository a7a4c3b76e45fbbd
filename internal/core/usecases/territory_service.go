package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/turfgrid/internal/core/arbiter"
	"github.com/samirrijal/turfgrid/internal/core/domain"
	"github.com/samirrijal/turfgrid/internal/core/ports"
	"github.com/samirrijal/turfgrid/internal/pkg/grid"
)

// TerritoryService answers the read side: single cells, neighborhoods, map
// overlays and per-player territory.
type TerritoryService struct {
	rules     arbiter.Rules
	ownership ports.OwnershipStore
	players   ports.PlayerStore
	ledger    ports.ClaimLedger
	cache     ports.CacheService
	clock     ports.Clock
	maxRadius float64
}

// NewTerritoryService creates a new TerritoryService. maxRadiusMeters caps
// map queries (200 m when zero or negative).
func NewTerritoryService(
	rules arbiter.Rules,
	ownership ports.OwnershipStore,
	players ports.PlayerStore,
	ledger ports.ClaimLedger,
	cache ports.CacheService,
	clock ports.Clock,
	maxRadiusMeters float64,
) *TerritoryService {
	if maxRadiusMeters <= 0 {
		maxRadiusMeters = 200
	}
	return &TerritoryService{
		rules:     rules,
		ownership: ownership,
		players:   players,
		ledger:    ledger,
		cache:     cache,
		clock:     clock,
		maxRadius: maxRadiusMeters,
	}
}

// CellInfo returns one cell with bounds, terrain, ownership and the state
// relative to requesterID (pass "" for a neutral view).
func (s *TerritoryService) CellInfo(ctx context.Context, cellID, requesterID string) (*domain.CellInfo, error) {
	b, err := grid.CellBounds(cellID)
	if err != nil {
		return nil, err
	}
	rec, err := s.record(ctx, cellID)
	if err != nil {
		return nil, err
	}
	info := s.view(cellID, b, rec, requesterID, s.clock.Now())
	return &info, nil
}

// CellNeighbors returns the ring around a cell with the ownership overlay.
func (s *TerritoryService) CellNeighbors(ctx context.Context, cellID, requesterID string) ([]domain.CellInfo, error) {
	ids, err := grid.Neighbors(cellID)
	if err != nil {
		return nil, err
	}
	recs, err := s.ownership.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("read ownership: %w", err)
	}

	now := s.clock.Now()
	infos := make([]domain.CellInfo, 0, len(ids))
	for _, id := range ids {
		b, err := grid.CellBounds(id)
		if err != nil {
			return nil, err
		}
		infos = append(infos, s.view(id, b, recs[id], requesterID, now))
	}
	return infos, nil
}

// CellsNearby returns the cells within radiusMeters of a point as
// requester-relative views. Unlike MapRadius this path is uncached.
func (s *TerritoryService) CellsNearby(ctx context.Context, lat, lon, radiusMeters float64, requesterID string) ([]domain.CellInfo, error) {
	if radiusMeters > s.maxRadius {
		radiusMeters = s.maxRadius
	}

	ids, err := grid.CellsInRadius(lat, lon, radiusMeters)
	if err != nil {
		return nil, err
	}
	recs, err := s.ownership.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("read ownership: %w", err)
	}

	now := s.clock.Now()
	infos := make([]domain.CellInfo, 0, len(ids))
	for _, id := range ids {
		b, err := grid.CellBounds(id)
		if err != nil {
			return nil, err
		}
		infos = append(infos, s.view(id, b, recs[id], requesterID, now))
	}
	return infos, nil
}

// MapRadius returns the cells around a point as a GeoJSON FeatureCollection
// with the ownership overlay. Features carry no requester-relative fields so
// one payload caches for every viewer; clients compare owner_id themselves.
func (s *TerritoryService) MapRadius(ctx context.Context, lat, lon, radiusMeters float64) (*geojson.FeatureCollection, error) {
	if radiusMeters > s.maxRadius {
		radiusMeters = s.maxRadius
	}

	cacheKey := fmt.Sprintf("map:%.4f:%.4f:%.0f", lat, lon, radiusMeters)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil {
				return fc, nil
			}
		}
	}

	ids, err := grid.CellsInRadius(lat, lon, radiusMeters)
	if err != nil {
		return nil, err
	}
	recs, err := s.ownership.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("read ownership: %w", err)
	}

	now := s.clock.Now()
	fc := geojson.NewFeatureCollection()
	for _, id := range ids {
		b, err := grid.CellBounds(id)
		if err != nil {
			return nil, err
		}
		f := geojson.NewFeature(orb.Polygon{{
			{b.West, b.South},
			{b.East, b.South},
			{b.East, b.North},
			{b.West, b.North},
			{b.West, b.South},
		}})
		f.ID = id
		f.Properties = geojson.Properties{
			"cell_id": id,
			"terrain": string(domain.TerrainOf(id)),
		}
		if rec := recs[id]; rec != nil && rec.OwnerID != "" {
			st := s.rules.Classify(rec, "", now)
			f.Properties["state"] = string(st.Kind)
			f.Properties["owner_id"] = rec.OwnerID
			f.Properties["owner_kind"] = string(rec.OwnerKind)
			if rec.ExpiresAt != nil {
				f.Properties["expires_at"] = rec.ExpiresAt.UTC().Format(time.RFC3339)
			}
			if rec.ContestedAt != nil {
				f.Properties["contested_at"] = rec.ContestedAt.UTC().Format(time.RFC3339)
			}
		} else {
			f.Properties["state"] = string(domain.StateUnclaimed)
		}
		fc.Append(f)
	}

	if s.cache != nil {
		// Overlays go stale fast; claims cannot enumerate map keys, so the
		// short TTL is the invalidation.
		if data, err := fc.MarshalJSON(); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 10)
		}
	}
	return fc, nil
}

// PlayerTerritory returns a page of the player's currently held cells plus
// the total count.
func (s *TerritoryService) PlayerTerritory(ctx context.Context, playerID string, limit, offset int) ([]domain.OwnershipRecord, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	recs, err := s.ownership.ListByOwner(ctx, playerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list territory: %w", err)
	}
	total, err := s.ownership.CountByOwner(ctx, playerID)
	if err != nil {
		return nil, 0, fmt.Errorf("count territory: %w", err)
	}
	return recs, total, nil
}

// PlayerStats returns the player's standing with recent ledger events.
func (s *TerritoryService) PlayerStats(ctx context.Context, playerID string) (*domain.PlayerStats, error) {
	cacheKey := "players:stats:" + playerID
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var stats domain.PlayerStats
			if err := json.Unmarshal(data, &stats); err == nil {
				return &stats, nil
			}
		}
	}

	player, err := s.players.Get(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("get player: %w", err)
	}
	owned, err := s.ownership.CountByOwner(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("count territory: %w", err)
	}
	recent, err := s.ledger.RecentByPlayer(ctx, playerID, 10)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}

	stats := &domain.PlayerStats{Player: *player, OwnedCells: owned, Recent: recent}
	if s.cache != nil {
		if data, err := json.Marshal(stats); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 60)
		}
	}
	return stats, nil
}

// CellHistory returns the recent ledger events for a cell.
func (s *TerritoryService) CellHistory(ctx context.Context, cellID string, limit int) ([]domain.ClaimEvent, error) {
	if _, _, err := grid.ParseCellID(cellID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.ledger.RecentByCell(ctx, cellID, limit)
}

// record reads one ownership record through the cache. Claim settlement
// deletes the key, so a hit is at most 30 s stale.
func (s *TerritoryService) record(ctx context.Context, cellID string) (*domain.OwnershipRecord, error) {
	cacheKey := "cells:rec:" + cellID
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var rec *domain.OwnershipRecord
			if err := json.Unmarshal(data, &rec); err == nil {
				return rec, nil
			}
		}
	}

	rec, err := s.ownership.Get(ctx, cellID)
	if err != nil {
		return nil, fmt.Errorf("read ownership: %w", err)
	}

	if s.cache != nil {
		if data, err := json.Marshal(rec); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 30)
		}
	}
	return rec, nil
}

func (s *TerritoryService) view(cellID string, b grid.Bounds, rec *domain.OwnershipRecord, requesterID string, now time.Time) domain.CellInfo {
	return domain.CellInfo{
		CellID: cellID,
		Bounds: domain.CellBounds{
			North:  b.North,
			South:  b.South,
			East:   b.East,
			West:   b.West,
			Center: domain.GeoPoint{Lat: b.CenterLat, Lon: b.CenterLon},
		},
		Terrain:   domain.TerrainOf(cellID),
		Ownership: rec,
		State:     s.rules.Classify(rec, requesterID, now),
	}
}
