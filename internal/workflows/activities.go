package workflows

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/samirrijal/turfgrid/internal/core/ports"
	"github.com/samirrijal/turfgrid/internal/pkg/metrics"
)

// Outcomes of a resolved contest window.
const (
	OutcomeDefended = "defended"
	OutcomeCaptured = "captured"
	OutcomeLost     = "lost"
	OutcomeOpen     = "open"
)

// ContestActivities holds the activity implementations for the contest workflow.
type ContestActivities struct {
	Ownership ports.OwnershipStore
	Publisher ports.EventPublisher
	Clock     ports.Clock
}

// ResolveContest inspects a contested cell once its window has lapsed. The
// cell never changes hands here: capturing still takes a claim attempt from
// whoever is standing in it. The workflow only names what happened to the
// window so watchers can be told.
func (a *ContestActivities) ResolveContest(ctx context.Context, input ContestInput) (string, error) {
	rec, err := a.Ownership.Get(ctx, input.CellID)
	if err != nil {
		return "", fmt.Errorf("read cell %s: %w", input.CellID, err)
	}
	now := a.Clock.Now()

	outcome := OutcomeOpen
	switch {
	case rec == nil:
		// The record is gone; the cell sits open for whoever walks in next.
	case rec.OwnerID == input.AttackerID:
		// The attacker already claimed it during or right after the window.
		outcome = OutcomeCaptured
	case rec.OwnerID != input.DefenderID:
		// A third party took it out from under both of them.
		outcome = OutcomeLost
	case rec.ContestedAt == nil || (rec.ExpiresAt != nil && rec.ExpiresAt.After(now)):
		// The defender refreshed before the deadline.
		outcome = OutcomeDefended
	}

	metrics.ContestsResolved.WithLabelValues(outcome).Inc()
	return outcome, nil
}

// AnnounceOutcome pushes the resolution onto the broadcast subject so map
// watchers repaint the cell.
func (a *ContestActivities) AnnounceOutcome(ctx context.Context, input ContestInput, outcome string) error {
	if a.Publisher == nil {
		return nil
	}
	msg, err := json.Marshal(map[string]any{
		"type":     "contest_resolved",
		"cell_id":  input.CellID,
		"attacker": input.AttackerID,
		"defender": input.DefenderID,
		"outcome":  outcome,
	})
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	return a.Publisher.PublishBroadcast(ctx, msg)
}
