package usecases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samirrijal/turfgrid/internal/core/domain"
	"github.com/samirrijal/turfgrid/internal/core/usecases"
	"github.com/samirrijal/turfgrid/internal/pkg/grid"
)

func TestPositionService_Ingest(t *testing.T) {
	wantCell, _ := grid.CellID(43.263, -2.935)

	var presenceCell string
	var presenceAt time.Time
	players := &mockPlayerStore{
		updatePresenceFn: func(ctx context.Context, playerID string, loc domain.GeoPoint, cellID string, at time.Time) error {
			if playerID != "p1" {
				t.Errorf("player = %s, want p1", playerID)
			}
			presenceCell = cellID
			presenceAt = at
			return nil
		},
	}
	var published *domain.PlayerPosition
	pub := &mockPublisher{
		publishPositionFn: func(ctx context.Context, pos *domain.PlayerPosition) error {
			published = pos
			return nil
		},
	}

	svc := usecases.NewPositionService(players, pub, &fakeClock{t: testNow}, 50)
	cellID, err := svc.Ingest(context.Background(), &domain.PlayerPosition{
		PlayerID: "p1",
		Location: domain.GeoPoint{Lat: 43.263, Lon: -2.935},
		Accuracy: 5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cellID != wantCell {
		t.Errorf("cell = %s, want %s", cellID, wantCell)
	}
	if presenceCell != wantCell || !presenceAt.Equal(testNow) {
		t.Errorf("presence = %s at %v, want %s at %v", presenceCell, presenceAt, wantCell, testNow)
	}
	if published == nil || published.CellID != wantCell {
		t.Errorf("published = %+v, want position in %s", published, wantCell)
	}
}

func TestPositionService_Ingest_RejectsTeleport(t *testing.T) {
	presenceCalls := 0
	players := &mockPlayerStore{
		updatePresenceFn: func(ctx context.Context, playerID string, loc domain.GeoPoint, cellID string, at time.Time) error {
			presenceCalls++
			return nil
		},
	}
	clock := &fakeClock{t: testNow}
	svc := usecases.NewPositionService(players, &mockPublisher{}, clock, 50)

	if _, err := svc.Ingest(context.Background(), &domain.PlayerPosition{
		PlayerID: "p1", Location: domain.GeoPoint{Lat: 43.263, Lon: -2.935},
	}); err != nil {
		t.Fatalf("first sample: %v", err)
	}

	// 10 s later, ~80 km north. 8000 m/s is not walking.
	clock.t = clock.t.Add(10 * time.Second)
	_, err := svc.Ingest(context.Background(), &domain.PlayerPosition{
		PlayerID: "p1", Location: domain.GeoPoint{Lat: 44.0, Lon: -2.935},
	})
	if !errors.Is(err, usecases.ErrImplausibleMovement) {
		t.Fatalf("err = %v, want ErrImplausibleMovement", err)
	}
	if presenceCalls != 1 {
		t.Errorf("presence written %d times, want 1 (teleport must not land)", presenceCalls)
	}

	// The rejected sample must not become the new reference point: the
	// player is still where the first sample put them.
	clock.t = clock.t.Add(10 * time.Second)
	if _, err := svc.Ingest(context.Background(), &domain.PlayerPosition{
		PlayerID: "p1", Location: domain.GeoPoint{Lat: 43.2631, Lon: -2.935},
	}); err != nil {
		t.Fatalf("sample after rejection: %v", err)
	}
}

func TestPositionService_Ingest_WalkingPace(t *testing.T) {
	clock := &fakeClock{t: testNow}
	svc := usecases.NewPositionService(&mockPlayerStore{}, &mockPublisher{}, clock, 50)

	if _, err := svc.Ingest(context.Background(), &domain.PlayerPosition{
		PlayerID: "p1", Location: domain.GeoPoint{Lat: 43.263, Lon: -2.935},
	}); err != nil {
		t.Fatalf("first sample: %v", err)
	}

	// ~22 m north in 15 s: a brisk walk.
	clock.t = clock.t.Add(15 * time.Second)
	if _, err := svc.Ingest(context.Background(), &domain.PlayerPosition{
		PlayerID: "p1", Location: domain.GeoPoint{Lat: 43.2632, Lon: -2.935},
	}); err != nil {
		t.Fatalf("walking sample rejected: %v", err)
	}
}

func TestPositionService_Ingest_InvalidCoordinate(t *testing.T) {
	svc := usecases.NewPositionService(&mockPlayerStore{}, &mockPublisher{}, &fakeClock{t: testNow}, 50)
	_, err := svc.Ingest(context.Background(), &domain.PlayerPosition{
		PlayerID: "p1", Location: domain.GeoPoint{Lat: 120, Lon: 0},
	})
	if !errors.Is(err, grid.ErrInvalidCoordinate) {
		t.Errorf("err = %v, want ErrInvalidCoordinate", err)
	}
}
