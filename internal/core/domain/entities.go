package domain

import (
	"encoding/json"
	"time"
)

// OwnerKind distinguishes who holds a cell.
type OwnerKind string

const (
	OwnerKindUser      OwnerKind = "user"
	OwnerKindGuild     OwnerKind = "guild"
	OwnerKindUnclaimed OwnerKind = "unclaimed"
)

// Player represents a registered player.
type Player struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	GuildID     string     `json:"guild_id,omitempty"`
	XP          int64      `json:"xp"`
	Gold        int64      `json:"gold"`
	LastCellID  string     `json:"last_cell_id,omitempty"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// OwnershipRecord is the authoritative claim state of one cell. A cell with
// no record, or a record with an empty OwnerID, is unclaimed. ContestedAt is
// the single timestamp a grace window is measured from; it is set by a
// successful attack and cleared by every successful claim or refresh.
type OwnershipRecord struct {
	CellID      string     `json:"cell_id"`
	OwnerID     string     `json:"owner_id,omitempty"`
	OwnerKind   OwnerKind  `json:"owner_kind"`
	GuildID     string     `json:"guild_id,omitempty"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ContestedAt *time.Time `json:"contested_at,omitempty"`
	ContestedBy string     `json:"contested_by,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CellStateKind enumerates the requester-relative states of a cell.
type CellStateKind string

const (
	StateUnclaimed           CellStateKind = "unclaimed"
	StateOwnedBySelf         CellStateKind = "owned_by_self"
	StateOwnedByOtherActive  CellStateKind = "owned_by_other_active"
	StateOwnedByOtherExpired CellStateKind = "owned_by_other_expired"
	StateOwnedByOtherGrace   CellStateKind = "owned_by_other_grace"
	StateGuildOwned          CellStateKind = "guild_owned"
)

// CellState is the classification of a cell relative to one requester at one
// instant, computed once per decision.
type CellState struct {
	Kind           CellStateKind
	OwnedRemaining time.Duration
	GraceRemaining time.Duration
}

// MarshalJSON renders the remainders as whole seconds.
func (s CellState) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind                  CellStateKind `json:"kind"`
		OwnedRemainingSeconds int64         `json:"owned_remaining_seconds,omitempty"`
		GraceRemainingSeconds int64         `json:"grace_remaining_seconds,omitempty"`
	}{
		Kind:                  s.Kind,
		OwnedRemainingSeconds: int64(s.OwnedRemaining / time.Second),
		GraceRemainingSeconds: int64(s.GraceRemaining / time.Second),
	})
}

// Reason codes attached to claim and attack verdicts.
type Reason string

const (
	ReasonOK               Reason = "ok"
	ReasonRefreshed        Reason = "refreshed"
	ReasonAlreadyOwned     Reason = "already_owned"
	ReasonGracePeriod      Reason = "grace_period_active"
	ReasonGuildTerritory   Reason = "guild_territory"
	ReasonInvalidBlock     Reason = "invalid_block"
	ReasonDuplicateAttempt Reason = "duplicate_attempt"
)

// Verdict is the arbiter's answer to a claim or attack attempt. On an allowed
// attempt Record holds the post-transition ownership record to persist.
type Verdict struct {
	Allowed        bool             `json:"allowed"`
	Reason         Reason           `json:"reason"`
	RewardXP       int              `json:"reward_xp"`
	RewardGold     int              `json:"reward_gold"`
	GraceRemaining time.Duration    `json:"grace_remaining,omitempty"`
	Record         *OwnershipRecord `json:"record,omitempty"`
}

// ClaimEventKind enumerates ledger event kinds.
type ClaimEventKind string

const (
	ClaimEventClaim    ClaimEventKind = "claim"
	ClaimEventRefresh  ClaimEventKind = "refresh"
	ClaimEventTakeover ClaimEventKind = "takeover"
	ClaimEventAttack   ClaimEventKind = "attack"
)

// ClaimEvent records a resolved claim, refresh, takeover or attack.
type ClaimEvent struct {
	ID          string         `json:"id"`
	CellID      string         `json:"cell_id"`
	PlayerID    string         `json:"player_id"`
	Kind        ClaimEventKind `json:"kind"`
	PriorOwner  string         `json:"prior_owner,omitempty"`
	XPAwarded   int            `json:"xp_awarded"`
	GoldAwarded int            `json:"gold_awarded"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// ContestEvent announces a freshly opened contest window on a cell.
type ContestEvent struct {
	ID         string    `json:"id"`
	CellID     string    `json:"cell_id"`
	AttackerID string    `json:"attacker_id"`
	DefenderID string    `json:"defender_id"`
	OpenedAt   time.Time `json:"opened_at"`
	Deadline   time.Time `json:"deadline"`
}

// PlayerPosition is a real-time player location reading.
type PlayerPosition struct {
	Time     time.Time      `json:"time"`
	PlayerID string         `json:"player_id"`
	Location GeoPoint       `json:"location"`
	Accuracy float64        `json:"accuracy"` // meters
	Speed    float64        `json:"speed"`    // m/s
	CellID   string         `json:"cell_id,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CellInfo is the query view of a single cell.
type CellInfo struct {
	CellID    string           `json:"cell_id"`
	Bounds    CellBounds       `json:"bounds"`
	Terrain   Terrain          `json:"terrain"`
	Ownership *OwnershipRecord `json:"ownership,omitempty"`
	State     CellState        `json:"state"`
}

// PlayerStats is the query view of a player's standing.
type PlayerStats struct {
	Player     Player       `json:"player"`
	OwnedCells int          `json:"owned_cells"`
	Recent     []ClaimEvent `json:"recent_events"`
}
