package usecases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samirrijal/turfgrid/internal/core/arbiter"
	"github.com/samirrijal/turfgrid/internal/core/domain"
	"github.com/samirrijal/turfgrid/internal/core/usecases"
	"github.com/samirrijal/turfgrid/internal/pkg/grid"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

// --- Mock OwnershipStore ---

type mockOwnershipStore struct {
	getFn           func(ctx context.Context, cellID string) (*domain.OwnershipRecord, error)
	getManyFn       func(ctx context.Context, cellIDs []string) (map[string]*domain.OwnershipRecord, error)
	applyFn         func(ctx context.Context, rec *domain.OwnershipRecord, expected string) (bool, error)
	markContestedFn func(ctx context.Context, cellID, ownerID, attackerID string, at, cutoff time.Time) (bool, error)
	listByOwnerFn   func(ctx context.Context, ownerID string, limit, offset int) ([]domain.OwnershipRecord, error)
	countByOwnerFn  func(ctx context.Context, ownerID string) (int, error)
}

func (m *mockOwnershipStore) Get(ctx context.Context, cellID string) (*domain.OwnershipRecord, error) {
	if m.getFn != nil {
		return m.getFn(ctx, cellID)
	}
	return nil, nil
}

func (m *mockOwnershipStore) GetMany(ctx context.Context, cellIDs []string) (map[string]*domain.OwnershipRecord, error) {
	if m.getManyFn != nil {
		return m.getManyFn(ctx, cellIDs)
	}
	return map[string]*domain.OwnershipRecord{}, nil
}

func (m *mockOwnershipStore) Apply(ctx context.Context, rec *domain.OwnershipRecord, expected string) (bool, error) {
	if m.applyFn != nil {
		return m.applyFn(ctx, rec, expected)
	}
	return true, nil
}

func (m *mockOwnershipStore) MarkContested(ctx context.Context, cellID, ownerID, attackerID string, at, cutoff time.Time) (bool, error) {
	if m.markContestedFn != nil {
		return m.markContestedFn(ctx, cellID, ownerID, attackerID, at, cutoff)
	}
	return true, nil
}

func (m *mockOwnershipStore) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.OwnershipRecord, error) {
	if m.listByOwnerFn != nil {
		return m.listByOwnerFn(ctx, ownerID, limit, offset)
	}
	return nil, nil
}

func (m *mockOwnershipStore) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	if m.countByOwnerFn != nil {
		return m.countByOwnerFn(ctx, ownerID)
	}
	return 0, nil
}

// --- Mock PlayerStore ---

type mockPlayerStore struct {
	getFn            func(ctx context.Context, id string) (*domain.Player, error)
	ensureFn         func(ctx context.Context, id, displayName string) (*domain.Player, error)
	grantRewardFn    func(ctx context.Context, playerID string, xp, gold int) error
	updatePresenceFn func(ctx context.Context, playerID string, loc domain.GeoPoint, cellID string, at time.Time) error
}

func (m *mockPlayerStore) Get(ctx context.Context, id string) (*domain.Player, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return &domain.Player{ID: id}, nil
}

func (m *mockPlayerStore) Ensure(ctx context.Context, id, displayName string) (*domain.Player, error) {
	if m.ensureFn != nil {
		return m.ensureFn(ctx, id, displayName)
	}
	return &domain.Player{ID: id, DisplayName: displayName}, nil
}

func (m *mockPlayerStore) GrantReward(ctx context.Context, playerID string, xp, gold int) error {
	if m.grantRewardFn != nil {
		return m.grantRewardFn(ctx, playerID, xp, gold)
	}
	return nil
}

func (m *mockPlayerStore) UpdatePresence(ctx context.Context, playerID string, loc domain.GeoPoint, cellID string, at time.Time) error {
	if m.updatePresenceFn != nil {
		return m.updatePresenceFn(ctx, playerID, loc, cellID, at)
	}
	return nil
}

// --- Mock ClaimLedger ---

type mockClaimLedger struct {
	appendFn         func(ctx context.Context, event *domain.ClaimEvent) error
	recentByPlayerFn func(ctx context.Context, playerID string, limit int) ([]domain.ClaimEvent, error)
	recentByCellFn   func(ctx context.Context, cellID string, limit int) ([]domain.ClaimEvent, error)
}

func (m *mockClaimLedger) Append(ctx context.Context, event *domain.ClaimEvent) error {
	if m.appendFn != nil {
		return m.appendFn(ctx, event)
	}
	return nil
}

func (m *mockClaimLedger) RecentByPlayer(ctx context.Context, playerID string, limit int) ([]domain.ClaimEvent, error) {
	if m.recentByPlayerFn != nil {
		return m.recentByPlayerFn(ctx, playerID, limit)
	}
	return nil, nil
}

func (m *mockClaimLedger) RecentByCell(ctx context.Context, cellID string, limit int) ([]domain.ClaimEvent, error) {
	if m.recentByCellFn != nil {
		return m.recentByCellFn(ctx, cellID, limit)
	}
	return nil, nil
}

// --- Mock CacheService ---

type mockCache struct {
	getFn    func(ctx context.Context, key string) ([]byte, error)
	setFn    func(ctx context.Context, key string, value []byte, ttlSeconds int) error
	deleteFn func(ctx context.Context, key string) error
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, errors.New("miss")
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value, ttlSeconds)
	}
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, key)
	}
	return nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	publishClaimFn    func(ctx context.Context, event *domain.ClaimEvent) error
	publishContestFn  func(ctx context.Context, event *domain.ContestEvent) error
	publishPositionFn func(ctx context.Context, pos *domain.PlayerPosition) error
}

func (m *mockPublisher) PublishClaim(ctx context.Context, event *domain.ClaimEvent) error {
	if m.publishClaimFn != nil {
		return m.publishClaimFn(ctx, event)
	}
	return nil
}

func (m *mockPublisher) PublishContest(ctx context.Context, event *domain.ContestEvent) error {
	if m.publishContestFn != nil {
		return m.publishContestFn(ctx, event)
	}
	return nil
}

func (m *mockPublisher) PublishPosition(ctx context.Context, pos *domain.PlayerPosition) error {
	if m.publishPositionFn != nil {
		return m.publishPositionFn(ctx, pos)
	}
	return nil
}

func (m *mockPublisher) PublishBroadcast(ctx context.Context, data []byte) error { return nil }

// --- Tests ---

func newClaimService(own *mockOwnershipStore, players *mockPlayerStore, ledger *mockClaimLedger, cache *mockCache, pub *mockPublisher, clock *fakeClock) *usecases.ClaimService {
	return usecases.NewClaimService(
		arbiter.DefaultRules(),
		own, players, ledger, cache, pub, clock,
		usecases.NewClaimGuard(10*time.Second),
	)
}

func TestClaimService_AttemptClaim_Unclaimed(t *testing.T) {
	const lat, lon = 43.263, -2.935
	wantCell, err := grid.CellID(lat, lon)
	if err != nil {
		t.Fatal(err)
	}

	var applied *domain.OwnershipRecord
	var appliedExpected string
	own := &mockOwnershipStore{
		applyFn: func(ctx context.Context, rec *domain.OwnershipRecord, expected string) (bool, error) {
			applied = rec
			appliedExpected = expected
			return true, nil
		},
	}
	var xp, gold int
	players := &mockPlayerStore{
		grantRewardFn: func(ctx context.Context, playerID string, gotXP, gotGold int) error {
			xp, gold = gotXP, gotGold
			return nil
		},
	}
	var ledgered *domain.ClaimEvent
	ledger := &mockClaimLedger{
		appendFn: func(ctx context.Context, event *domain.ClaimEvent) error {
			ledgered = event
			return nil
		},
	}
	var deletedKey string
	cache := &mockCache{
		deleteFn: func(ctx context.Context, key string) error {
			deletedKey = key
			return nil
		},
	}
	var published *domain.ClaimEvent
	pub := &mockPublisher{
		publishClaimFn: func(ctx context.Context, event *domain.ClaimEvent) error {
			published = event
			return nil
		},
	}

	svc := newClaimService(own, players, ledger, cache, pub, &fakeClock{t: testNow})
	v, err := svc.AttemptClaim(context.Background(), "p1", lat, lon)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Allowed || v.Reason != domain.ReasonOK {
		t.Fatalf("verdict = %+v, want allowed/ok", v)
	}
	if v.RewardXP != 50 || v.RewardGold != 10 {
		t.Errorf("reward = %d/%d, want 50/10", v.RewardXP, v.RewardGold)
	}

	if applied == nil {
		t.Fatal("record was not applied")
	}
	if applied.CellID != wantCell || applied.OwnerID != "p1" {
		t.Errorf("applied %s owned by %s, want %s owned by p1", applied.CellID, applied.OwnerID, wantCell)
	}
	if appliedExpected != "" {
		t.Errorf("expected prior owner %q, want empty", appliedExpected)
	}
	if xp != 50 || gold != 10 {
		t.Errorf("granted %d/%d, want 50/10", xp, gold)
	}
	if ledgered == nil || ledgered.Kind != domain.ClaimEventClaim {
		t.Errorf("ledger event = %+v, want kind claim", ledgered)
	}
	if deletedKey != "cells:rec:"+wantCell {
		t.Errorf("cache delete key = %q, want cells:rec:%s", deletedKey, wantCell)
	}
	if published == nil || published.CellID != wantCell {
		t.Errorf("published = %+v, want claim event for %s", published, wantCell)
	}
}

func TestClaimService_AttemptClaim_RefreshNoReward(t *testing.T) {
	const lat, lon = 43.263, -2.935
	cellID, _ := grid.CellID(lat, lon)
	claimed := testNow.Add(-2 * time.Hour)
	expires := testNow.Add(22 * time.Hour)

	own := &mockOwnershipStore{
		getFn: func(ctx context.Context, id string) (*domain.OwnershipRecord, error) {
			return &domain.OwnershipRecord{
				CellID: cellID, OwnerID: "p1", OwnerKind: domain.OwnerKindUser,
				ClaimedAt: &claimed, ExpiresAt: &expires,
			}, nil
		},
	}
	grantCalled := false
	players := &mockPlayerStore{
		grantRewardFn: func(ctx context.Context, playerID string, xp, gold int) error {
			grantCalled = true
			return nil
		},
	}
	var ledgered *domain.ClaimEvent
	ledger := &mockClaimLedger{
		appendFn: func(ctx context.Context, event *domain.ClaimEvent) error {
			ledgered = event
			return nil
		},
	}

	svc := newClaimService(own, players, ledger, &mockCache{}, &mockPublisher{}, &fakeClock{t: testNow})
	v, err := svc.AttemptClaim(context.Background(), "p1", lat, lon)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Allowed || v.Reason != domain.ReasonRefreshed {
		t.Fatalf("verdict = %+v, want refreshed", v)
	}
	if grantCalled {
		t.Error("refresh granted a reward")
	}
	if ledgered == nil || ledgered.Kind != domain.ClaimEventRefresh {
		t.Fatalf("ledger event = %+v, want kind refresh", ledgered)
	}
	if !ledgered.OccurredAt.Equal(testNow) {
		t.Errorf("event time = %v, want %v", ledgered.OccurredAt, testNow)
	}
}

func TestClaimService_AttemptClaim_Takeover(t *testing.T) {
	const lat, lon = 43.263, -2.935
	cellID, _ := grid.CellID(lat, lon)
	claimed := testNow.Add(-30 * time.Hour)
	expires := testNow.Add(-6 * time.Hour)

	var appliedExpected string
	own := &mockOwnershipStore{
		getFn: func(ctx context.Context, id string) (*domain.OwnershipRecord, error) {
			return &domain.OwnershipRecord{
				CellID: cellID, OwnerID: "rival", OwnerKind: domain.OwnerKindUser,
				ClaimedAt: &claimed, ExpiresAt: &expires,
			}, nil
		},
		applyFn: func(ctx context.Context, rec *domain.OwnershipRecord, expected string) (bool, error) {
			appliedExpected = expected
			return true, nil
		},
	}
	var ledgered *domain.ClaimEvent
	ledger := &mockClaimLedger{
		appendFn: func(ctx context.Context, event *domain.ClaimEvent) error {
			ledgered = event
			return nil
		},
	}

	svc := newClaimService(own, &mockPlayerStore{}, ledger, &mockCache{}, &mockPublisher{}, &fakeClock{t: testNow})
	v, err := svc.AttemptClaim(context.Background(), "p1", lat, lon)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Allowed || v.RewardXP != 50 {
		t.Fatalf("verdict = %+v, want allowed full reward", v)
	}
	if appliedExpected != "rival" {
		t.Errorf("expected prior owner %q, want rival", appliedExpected)
	}
	if ledgered == nil || ledgered.Kind != domain.ClaimEventTakeover || ledgered.PriorOwner != "rival" {
		t.Errorf("ledger event = %+v, want takeover of rival", ledgered)
	}
}

func TestClaimService_AttemptClaim_DeniedDoesNotWrite(t *testing.T) {
	const lat, lon = 43.263, -2.935
	cellID, _ := grid.CellID(lat, lon)
	expires := testNow.Add(12 * time.Hour)

	applyCalled := false
	own := &mockOwnershipStore{
		getFn: func(ctx context.Context, id string) (*domain.OwnershipRecord, error) {
			return &domain.OwnershipRecord{
				CellID: cellID, OwnerID: "rival", OwnerKind: domain.OwnerKindUser, ExpiresAt: &expires,
			}, nil
		},
		applyFn: func(ctx context.Context, rec *domain.OwnershipRecord, expected string) (bool, error) {
			applyCalled = true
			return true, nil
		},
	}
	ledgerCalled := false
	ledger := &mockClaimLedger{
		appendFn: func(ctx context.Context, event *domain.ClaimEvent) error {
			ledgerCalled = true
			return nil
		},
	}

	svc := newClaimService(own, &mockPlayerStore{}, ledger, &mockCache{}, &mockPublisher{}, &fakeClock{t: testNow})
	v, err := svc.AttemptClaim(context.Background(), "p1", lat, lon)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Allowed || v.Reason != domain.ReasonAlreadyOwned {
		t.Fatalf("verdict = %+v, want already_owned", v)
	}
	if applyCalled {
		t.Error("denied attempt wrote to the store")
	}
	if ledgerCalled {
		t.Error("denied attempt appended to the ledger")
	}
}

func TestClaimService_AttemptClaim_Debounced(t *testing.T) {
	getCalls := 0
	own := &mockOwnershipStore{
		getFn: func(ctx context.Context, id string) (*domain.OwnershipRecord, error) {
			getCalls++
			return nil, nil
		},
	}

	svc := newClaimService(own, &mockPlayerStore{}, &mockClaimLedger{}, &mockCache{}, &mockPublisher{}, &fakeClock{t: testNow})

	v, err := svc.AttemptClaim(context.Background(), "p1", 43.263, -2.935)
	if err != nil || !v.Allowed {
		t.Fatalf("first attempt = %+v, %v", v, err)
	}
	v, err = svc.AttemptClaim(context.Background(), "p1", 43.263, -2.935)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Allowed || v.Reason != domain.ReasonDuplicateAttempt {
		t.Fatalf("second attempt = %+v, want duplicate_attempt", v)
	}
	if getCalls != 1 {
		t.Errorf("store read %d times, want 1 (debounced attempt must not touch it)", getCalls)
	}
}

func TestClaimService_AttemptClaim_ConflictReReads(t *testing.T) {
	const lat, lon = 43.263, -2.935
	cellID, _ := grid.CellID(lat, lon)
	expires := testNow.Add(24 * time.Hour)

	getCalls := 0
	own := &mockOwnershipStore{
		getFn: func(ctx context.Context, id string) (*domain.OwnershipRecord, error) {
			getCalls++
			if getCalls == 1 {
				return nil, nil // looked unclaimed
			}
			return &domain.OwnershipRecord{ // someone else won the race
				CellID: cellID, OwnerID: "rival", OwnerKind: domain.OwnerKindUser, ExpiresAt: &expires,
			}, nil
		},
		applyFn: func(ctx context.Context, rec *domain.OwnershipRecord, expected string) (bool, error) {
			return false, nil
		},
	}
	grantCalled := false
	players := &mockPlayerStore{
		grantRewardFn: func(ctx context.Context, playerID string, xp, gold int) error {
			grantCalled = true
			return nil
		},
	}

	svc := newClaimService(own, players, &mockClaimLedger{}, &mockCache{}, &mockPublisher{}, &fakeClock{t: testNow})
	v, err := svc.AttemptClaim(context.Background(), "p1", lat, lon)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Allowed || v.Reason != domain.ReasonAlreadyOwned {
		t.Fatalf("verdict = %+v, want already_owned after lost race", v)
	}
	if getCalls != 2 {
		t.Errorf("store read %d times, want 2 (one re-read)", getCalls)
	}
	if grantCalled {
		t.Error("lost race granted a reward")
	}
}

func TestClaimService_AttemptClaim_InvalidCoordinate(t *testing.T) {
	svc := newClaimService(&mockOwnershipStore{}, &mockPlayerStore{}, &mockClaimLedger{}, &mockCache{}, &mockPublisher{}, &fakeClock{t: testNow})
	_, err := svc.AttemptClaim(context.Background(), "p1", 91, 0)
	if !errors.Is(err, grid.ErrInvalidCoordinate) {
		t.Errorf("err = %v, want ErrInvalidCoordinate", err)
	}
}

func TestClaimService_InitiateAttack(t *testing.T) {
	cellID := "43.2630_-2.9350"
	claimed := testNow.Add(-time.Hour)
	expires := testNow.Add(23 * time.Hour)

	var markedAt, markedCutoff time.Time
	own := &mockOwnershipStore{
		getFn: func(ctx context.Context, id string) (*domain.OwnershipRecord, error) {
			return &domain.OwnershipRecord{
				CellID: cellID, OwnerID: "rival", OwnerKind: domain.OwnerKindUser,
				ClaimedAt: &claimed, ExpiresAt: &expires,
			}, nil
		},
		markContestedFn: func(ctx context.Context, id, ownerID, attackerID string, at, cutoff time.Time) (bool, error) {
			if id != cellID || ownerID != "rival" || attackerID != "p1" {
				t.Errorf("marked %s/%s/%s, want %s/rival/p1", id, ownerID, attackerID, cellID)
			}
			markedAt, markedCutoff = at, cutoff
			return true, nil
		},
	}
	var contest *domain.ContestEvent
	pub := &mockPublisher{
		publishContestFn: func(ctx context.Context, event *domain.ContestEvent) error {
			contest = event
			return nil
		},
	}
	var ledgered *domain.ClaimEvent
	ledger := &mockClaimLedger{
		appendFn: func(ctx context.Context, event *domain.ClaimEvent) error {
			ledgered = event
			return nil
		},
	}

	svc := newClaimService(own, &mockPlayerStore{}, ledger, &mockCache{}, pub, &fakeClock{t: testNow})
	v, err := svc.InitiateAttack(context.Background(), "p1", cellID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Allowed {
		t.Fatalf("verdict = %+v, want allowed", v)
	}
	if !markedAt.Equal(testNow) || !markedCutoff.Equal(testNow.Add(-time.Hour)) {
		t.Errorf("marked at %v cutoff %v, want %v / %v", markedAt, markedCutoff, testNow, testNow.Add(-time.Hour))
	}
	if contest == nil {
		t.Fatal("no contest event published")
	}
	if contest.AttackerID != "p1" || contest.DefenderID != "rival" {
		t.Errorf("contest = %+v, want p1 vs rival", contest)
	}
	if !contest.Deadline.Equal(testNow.Add(time.Hour)) {
		t.Errorf("deadline = %v, want opened+1h", contest.Deadline)
	}
	if ledgered == nil || ledgered.Kind != domain.ClaimEventAttack {
		t.Errorf("ledger event = %+v, want kind attack", ledgered)
	}
}

func TestClaimService_InitiateAttack_InvalidTargets(t *testing.T) {
	own := &mockOwnershipStore{} // unclaimed cell
	markCalled := false
	own.markContestedFn = func(ctx context.Context, id, ownerID, attackerID string, at, cutoff time.Time) (bool, error) {
		markCalled = true
		return true, nil
	}

	svc := newClaimService(own, &mockPlayerStore{}, &mockClaimLedger{}, &mockCache{}, &mockPublisher{}, &fakeClock{t: testNow})
	v, err := svc.InitiateAttack(context.Background(), "p1", "43.2630_-2.9350")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Allowed || v.Reason != domain.ReasonInvalidBlock {
		t.Fatalf("verdict = %+v, want invalid_block", v)
	}
	if markCalled {
		t.Error("invalid attack reached the store")
	}

	if _, err := svc.InitiateAttack(context.Background(), "p1", "nonsense"); !errors.Is(err, grid.ErrMalformedCellID) {
		t.Errorf("err = %v, want ErrMalformedCellID", err)
	}
}

func TestClaimService_InitiateAttack_ConflictYieldsFreshDenial(t *testing.T) {
	cellID := "43.2630_-2.9350"
	expires := testNow.Add(23 * time.Hour)
	contestedAt := testNow.Add(-time.Minute)

	getCalls := 0
	own := &mockOwnershipStore{
		getFn: func(ctx context.Context, id string) (*domain.OwnershipRecord, error) {
			getCalls++
			rec := &domain.OwnershipRecord{
				CellID: cellID, OwnerID: "rival", OwnerKind: domain.OwnerKindUser, ExpiresAt: &expires,
			}
			if getCalls > 1 { // another attacker got there first
				rec.ContestedAt = &contestedAt
				rec.ContestedBy = "p2"
			}
			return rec, nil
		},
		markContestedFn: func(ctx context.Context, id, ownerID, attackerID string, at, cutoff time.Time) (bool, error) {
			return false, nil
		},
	}

	svc := newClaimService(own, &mockPlayerStore{}, &mockClaimLedger{}, &mockCache{}, &mockPublisher{}, &fakeClock{t: testNow})
	v, err := svc.InitiateAttack(context.Background(), "p1", cellID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Allowed || v.Reason != domain.ReasonGracePeriod {
		t.Fatalf("verdict = %+v, want grace_period_active from the fresh read", v)
	}
	if getCalls != 2 {
		t.Errorf("store read %d times, want 2", getCalls)
	}
}
