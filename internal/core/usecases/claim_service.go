package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/samirrijal/turfgrid/internal/core/arbiter"
	"github.com/samirrijal/turfgrid/internal/core/domain"
	"github.com/samirrijal/turfgrid/internal/core/ports"
	"github.com/samirrijal/turfgrid/internal/pkg/grid"
)

// ClaimService resolves claim and attack attempts end to end: derive the
// cell, let the arbiter rule, persist through the conditional write, then
// settle rewards, ledger, cache and events.
type ClaimService struct {
	rules     arbiter.Rules
	ownership ports.OwnershipStore
	players   ports.PlayerStore
	ledger    ports.ClaimLedger
	cache     ports.CacheService
	publisher ports.EventPublisher
	clock     ports.Clock
	guard     *ClaimGuard
}

// NewClaimService creates a new ClaimService.
func NewClaimService(
	rules arbiter.Rules,
	ownership ports.OwnershipStore,
	players ports.PlayerStore,
	ledger ports.ClaimLedger,
	cache ports.CacheService,
	publisher ports.EventPublisher,
	clock ports.Clock,
	guard *ClaimGuard,
) *ClaimService {
	return &ClaimService{
		rules:     rules,
		ownership: ownership,
		players:   players,
		ledger:    ledger,
		cache:     cache,
		publisher: publisher,
		clock:     clock,
		guard:     guard,
	}
}

// AttemptClaim resolves a claim on the cell containing (lat, lon) for the
// requesting player. Denials come back as verdicts, not errors; the error
// path is reserved for invalid input and infrastructure failures.
func (s *ClaimService) AttemptClaim(ctx context.Context, playerID string, lat, lon float64) (*domain.Verdict, error) {
	cellID, err := grid.CellID(lat, lon)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if !s.guard.Begin(playerID, cellID, now) {
		return &domain.Verdict{Reason: domain.ReasonDuplicateAttempt}, nil
	}
	defer func() { s.guard.End(playerID, cellID, s.clock.Now()) }()

	rec, err := s.ownership.Get(ctx, cellID)
	if err != nil {
		return nil, fmt.Errorf("read ownership: %w", err)
	}
	priorOwner := ""
	if rec != nil {
		priorOwner = rec.OwnerID
	}

	verdict := s.rules.Decide(rec, playerID, now)
	if !verdict.Allowed {
		return &verdict, nil
	}
	verdict.Record.CellID = cellID

	applied, err := s.ownership.Apply(ctx, verdict.Record, priorOwner)
	if err != nil {
		return nil, fmt.Errorf("apply ownership: %w", err)
	}
	if !applied {
		// Lost the race. One re-read yields the honest denial; if the cell
		// somehow looks claimable again already, the next attempt can have it.
		fresh, err := s.ownership.Get(ctx, cellID)
		if err != nil {
			return nil, fmt.Errorf("re-read ownership: %w", err)
		}
		verdict = s.rules.Decide(fresh, playerID, now)
		if verdict.Allowed {
			verdict = domain.Verdict{Reason: domain.ReasonAlreadyOwned}
		}
		return &verdict, nil
	}

	s.settleClaim(ctx, playerID, cellID, priorOwner, &verdict, now)
	return &verdict, nil
}

// InitiateAttack opens a contest window on a cell actively held by another
// player.
func (s *ClaimService) InitiateAttack(ctx context.Context, playerID, cellID string) (*domain.Verdict, error) {
	if _, _, err := grid.ParseCellID(cellID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	rec, err := s.ownership.Get(ctx, cellID)
	if err != nil {
		return nil, fmt.Errorf("read ownership: %w", err)
	}

	verdict := s.rules.DecideAttack(rec, playerID, now)
	if !verdict.Allowed {
		return &verdict, nil
	}

	cutoff := now.Add(-s.rules.GracePeriod)
	applied, err := s.ownership.MarkContested(ctx, cellID, rec.OwnerID, playerID, now, cutoff)
	if err != nil {
		return nil, fmt.Errorf("mark contested: %w", err)
	}
	if !applied {
		fresh, err := s.ownership.Get(ctx, cellID)
		if err != nil {
			return nil, fmt.Errorf("re-read ownership: %w", err)
		}
		verdict = s.rules.DecideAttack(fresh, playerID, now)
		if verdict.Allowed {
			verdict = domain.Verdict{Reason: domain.ReasonInvalidBlock}
		}
		return &verdict, nil
	}

	s.settleAttack(ctx, playerID, rec.OwnerID, cellID, now)
	return &verdict, nil
}

// settleClaim runs the after-write bookkeeping. The ownership write already
// landed, so everything here is best-effort; the ledger row carries the
// awarded amounts for reconciliation.
func (s *ClaimService) settleClaim(ctx context.Context, playerID, cellID, priorOwner string, v *domain.Verdict, now time.Time) {
	if v.RewardXP > 0 || v.RewardGold > 0 {
		_ = s.players.GrantReward(ctx, playerID, v.RewardXP, v.RewardGold)
	}

	kind := domain.ClaimEventClaim
	switch {
	case v.Reason == domain.ReasonRefreshed:
		kind = domain.ClaimEventRefresh
	case priorOwner != "" && priorOwner != playerID:
		kind = domain.ClaimEventTakeover
	}
	event := &domain.ClaimEvent{
		ID:          uuid.NewString(),
		CellID:      cellID,
		PlayerID:    playerID,
		Kind:        kind,
		PriorOwner:  priorOwner,
		XPAwarded:   v.RewardXP,
		GoldAwarded: v.RewardGold,
		OccurredAt:  now,
	}
	_ = s.ledger.Append(ctx, event)

	if s.cache != nil {
		_ = s.cache.Delete(ctx, "cells:rec:"+cellID)
	}
	if s.publisher != nil {
		_ = s.publisher.PublishClaim(ctx, event)
	}
}

func (s *ClaimService) settleAttack(ctx context.Context, attackerID, defenderID, cellID string, now time.Time) {
	_ = s.ledger.Append(ctx, &domain.ClaimEvent{
		ID:         uuid.NewString(),
		CellID:     cellID,
		PlayerID:   attackerID,
		Kind:       domain.ClaimEventAttack,
		PriorOwner: defenderID,
		OccurredAt: now,
	})

	if s.cache != nil {
		_ = s.cache.Delete(ctx, "cells:rec:"+cellID)
	}
	if s.publisher != nil {
		_ = s.publisher.PublishContest(ctx, &domain.ContestEvent{
			ID:         uuid.NewString(),
			CellID:     cellID,
			AttackerID: attackerID,
			DefenderID: defenderID,
			OpenedAt:   now,
			Deadline:   now.Add(s.rules.GracePeriod),
		})
	}
}
