// Package arbiter decides claim and attack attempts against grid cells.
//
// All functions are pure: state comes in as an ownership record, time comes
// in as an explicit instant, and the outcome is a verdict. Expiry is lazy; a
// record is only ever interpreted here, never mutated in place.
package arbiter

import (
	"time"

	"github.com/samirrijal/turfgrid/internal/core/domain"
)

// Rules carries the tunable claim constants.
type Rules struct {
	OwnershipDuration time.Duration
	GracePeriod       time.Duration
	ClaimXP           int
	ClaimGold         int
}

// DefaultRules returns the canonical rule set: 24 h ownership, 1 h contest
// grace, 50 XP and 10 gold per successful claim.
func DefaultRules() Rules {
	return Rules{
		OwnershipDuration: 24 * time.Hour,
		GracePeriod:       time.Hour,
		ClaimXP:           50,
		ClaimGold:         10,
	}
}

// Classify computes the state of a cell relative to a requester at an
// instant. The two timers never mix: ownership runs from ExpiresAt, contest
// grace runs from ContestedAt. A lapsed cell owned by the requester counts as
// unclaimed so reclaiming it earns the full reward, and so the owner can
// defend a contested cell during its grace window.
func (r Rules) Classify(rec *domain.OwnershipRecord, requesterID string, now time.Time) domain.CellState {
	if rec == nil || rec.OwnerID == "" || rec.OwnerKind == domain.OwnerKindUnclaimed {
		return domain.CellState{Kind: domain.StateUnclaimed}
	}
	if rec.OwnerKind == domain.OwnerKindGuild {
		return domain.CellState{Kind: domain.StateGuildOwned}
	}

	// now == ExpiresAt counts as expired.
	active := rec.ExpiresAt != nil && now.Before(*rec.ExpiresAt)

	if rec.OwnerID == requesterID {
		if active {
			return domain.CellState{
				Kind:           domain.StateOwnedBySelf,
				OwnedRemaining: rec.ExpiresAt.Sub(now),
			}
		}
		return domain.CellState{Kind: domain.StateUnclaimed}
	}

	if active {
		return domain.CellState{
			Kind:           domain.StateOwnedByOtherActive,
			OwnedRemaining: rec.ExpiresAt.Sub(now),
		}
	}
	if rec.ContestedAt != nil {
		if deadline := rec.ContestedAt.Add(r.GracePeriod); now.Before(deadline) {
			return domain.CellState{
				Kind:           domain.StateOwnedByOtherGrace,
				GraceRemaining: deadline.Sub(now),
			}
		}
	}
	return domain.CellState{Kind: domain.StateOwnedByOtherExpired}
}

// Decide rules on a claim attempt. When allowed, Record holds the
// post-transition record to persist: a fresh 24 h ownership for a claim or
// takeover, a renewed ExpiresAt with ClaimedAt preserved for a self refresh.
// Both paths clear any contest mark. A self refresh earns nothing.
func (r Rules) Decide(rec *domain.OwnershipRecord, requesterID string, now time.Time) domain.Verdict {
	state := r.Classify(rec, requesterID, now)

	switch state.Kind {
	case domain.StateOwnedBySelf:
		updated := *rec
		exp := now.Add(r.OwnershipDuration)
		updated.ExpiresAt = &exp
		updated.ContestedAt = nil
		updated.ContestedBy = ""
		updated.UpdatedAt = now
		return domain.Verdict{
			Allowed: true,
			Reason:  domain.ReasonRefreshed,
			Record:  &updated,
		}

	case domain.StateUnclaimed, domain.StateOwnedByOtherExpired:
		claimed := now
		exp := now.Add(r.OwnershipDuration)
		updated := domain.OwnershipRecord{
			OwnerID:   requesterID,
			OwnerKind: domain.OwnerKindUser,
			ClaimedAt: &claimed,
			ExpiresAt: &exp,
			UpdatedAt: now,
		}
		if rec != nil {
			updated.CellID = rec.CellID
		}
		return domain.Verdict{
			Allowed:    true,
			Reason:     domain.ReasonOK,
			RewardXP:   r.ClaimXP,
			RewardGold: r.ClaimGold,
			Record:     &updated,
		}

	case domain.StateOwnedByOtherGrace:
		return domain.Verdict{
			Reason:         domain.ReasonGracePeriod,
			GraceRemaining: state.GraceRemaining,
		}

	case domain.StateGuildOwned:
		return domain.Verdict{Reason: domain.ReasonGuildTerritory}

	default:
		return domain.Verdict{Reason: domain.ReasonAlreadyOwned}
	}
}

// DecideAttack rules on a contest initiation. An attack is valid only against
// a still-active cell held by another player; it stamps the contest mark that
// opens the grace window. A live window throttles further attacks on the cell
// whatever its state.
func (r Rules) DecideAttack(rec *domain.OwnershipRecord, attackerID string, now time.Time) domain.Verdict {
	if rec != nil && rec.ContestedAt != nil {
		if deadline := rec.ContestedAt.Add(r.GracePeriod); now.Before(deadline) {
			return domain.Verdict{
				Reason:         domain.ReasonGracePeriod,
				GraceRemaining: deadline.Sub(now),
			}
		}
	}

	if state := r.Classify(rec, attackerID, now); state.Kind != domain.StateOwnedByOtherActive {
		return domain.Verdict{Reason: domain.ReasonInvalidBlock}
	}

	updated := *rec
	updated.ContestedAt = &now
	updated.ContestedBy = attackerID
	updated.UpdatedAt = now
	return domain.Verdict{
		Allowed: true,
		Reason:  domain.ReasonOK,
		Record:  &updated,
	}
}
