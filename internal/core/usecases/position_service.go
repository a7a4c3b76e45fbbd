package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/samirrijal/turfgrid/internal/core/domain"
	"github.com/samirrijal/turfgrid/internal/core/ports"
	"github.com/samirrijal/turfgrid/internal/pkg/grid"
)

// ErrImplausibleMovement flags a position sample that would require moving
// faster than the configured ceiling since the previous accepted sample.
var ErrImplausibleMovement = errors.New("implausible movement")

// positionJitterFloor absorbs GPS scatter between rapid-fire samples so the
// speed check never trips on a stationary player.
const positionJitterFloor = 50.0 // meters

// PositionService ingests player position samples: validate, derive the
// cell, screen for teleports, update presence and hand the sample to the
// broker. The raw track is persisted asynchronously by the position consumer.
type PositionService struct {
	players   ports.PlayerStore
	publisher ports.EventPublisher
	clock     ports.Clock
	maxSpeed  float64 // m/s

	mu   sync.Mutex
	last map[string]domain.PlayerPosition
}

// NewPositionService creates a new PositionService. maxSpeedMS is the
// plausibility ceiling in m/s (50 when zero or negative).
func NewPositionService(players ports.PlayerStore, publisher ports.EventPublisher, clock ports.Clock, maxSpeedMS float64) *PositionService {
	if maxSpeedMS <= 0 {
		maxSpeedMS = 50
	}
	return &PositionService{
		players:   players,
		publisher: publisher,
		clock:     clock,
		maxSpeed:  maxSpeedMS,
		last:      make(map[string]domain.PlayerPosition),
	}
}

// Ingest accepts one sample and returns the derived cell id.
func (s *PositionService) Ingest(ctx context.Context, pos *domain.PlayerPosition) (string, error) {
	cellID, err := grid.CellID(pos.Location.Lat, pos.Location.Lon)
	if err != nil {
		return "", err
	}
	pos.CellID = cellID
	pos.Time = s.clock.Now()

	if err := s.screen(pos); err != nil {
		return "", err
	}

	if err := s.players.UpdatePresence(ctx, pos.PlayerID, pos.Location, cellID, pos.Time); err != nil {
		return "", fmt.Errorf("update presence: %w", err)
	}

	// The consumer persists the track from the broker.
	if s.publisher != nil {
		_ = s.publisher.PublishPosition(ctx, pos)
	}

	return cellID, nil
}

// screen rejects teleports against the last accepted sample and records the
// new one. Per-process state only; this is a plausibility valve, not an
// anti-cheat verdict.
func (s *PositionService) screen(pos *domain.PlayerPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.last[pos.PlayerID]
	if ok {
		if dt := pos.Time.Sub(prev.Time).Seconds(); dt > 0 {
			dist := grid.Haversine(prev.Location.Lat, prev.Location.Lon, pos.Location.Lat, pos.Location.Lon)
			if dist > s.maxSpeed*dt+positionJitterFloor {
				return fmt.Errorf("%w: %.0f m in %.1f s", ErrImplausibleMovement, dist, dt)
			}
			pos.Speed = dist / dt
		}
	}
	s.last[pos.PlayerID] = *pos
	return nil
}
