package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// ContestInput is the input for the contest resolution workflow.
type ContestInput struct {
	CellID     string
	AttackerID string
	DefenderID string
	OpenedAt   time.Time
	Deadline   time.Time
}

// ContestWorkflow sleeps out the grace window on a contested cell, then
// resolves it. The defender keeps the cell by refreshing before the deadline
// (which clears the contest marks); an untouched contest leaves the cell
// open for anyone's next claim, and watchers are told either way.
func ContestWorkflow(ctx workflow.Context, input ContestInput) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("Contest opened", "cell", input.CellID, "attacker", input.AttackerID)

	if wait := input.Deadline.Sub(workflow.Now(ctx)); wait > 0 {
		if err := workflow.Sleep(ctx, wait); err != nil {
			return err
		}
	}

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	// Step 1: Resolve the lapsed window against the current record
	var outcome string
	if err := workflow.ExecuteActivity(ctx, "ResolveContest", input).Get(ctx, &outcome); err != nil {
		return err
	}

	// Step 2: Announce the result to map watchers
	if err := workflow.ExecuteActivity(ctx, "AnnounceOutcome", input, outcome).Get(ctx, nil); err != nil {
		logger.Warn("outcome announcement failed", "error", err)
	}

	logger.Info("Contest resolved", "cell", input.CellID, "outcome", outcome)
	return nil
}
