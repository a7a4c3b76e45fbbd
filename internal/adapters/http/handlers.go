package http

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/turfgrid/internal/core/domain"
	"github.com/samirrijal/turfgrid/internal/core/usecases"
	"github.com/samirrijal/turfgrid/internal/pkg/grid"
	"github.com/samirrijal/turfgrid/internal/pkg/metrics"
)

// playerID pulls the caller identity from the X-Player-ID header. The
// gateway authenticates upstream; the API trusts the header.
func playerID(c *fiber.Ctx) string {
	return c.Get("X-Player-ID")
}

type claimRequest struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// claimResponse is the wire shape of a claim or attack verdict.
type claimResponse struct {
	Allowed               bool   `json:"allowed"`
	Reason                string `json:"reason"`
	CellID                string `json:"cell_id,omitempty"`
	RewardXP              int    `json:"reward_xp"`
	RewardGold            int    `json:"reward_gold"`
	ExpiresAt             string `json:"expires_at,omitempty"`
	GraceRemainingSeconds int    `json:"grace_remaining_seconds,omitempty"`
}

func verdictResponse(v *domain.Verdict) claimResponse {
	resp := claimResponse{
		Allowed:    v.Allowed,
		Reason:     string(v.Reason),
		RewardXP:   v.RewardXP,
		RewardGold: v.RewardGold,
	}
	if v.Record != nil {
		resp.CellID = v.Record.CellID
		if v.Record.ExpiresAt != nil {
			resp.ExpiresAt = v.Record.ExpiresAt.UTC().Format(time.RFC3339)
		}
	}
	if v.GraceRemaining > 0 {
		resp.GraceRemainingSeconds = retryAfterSeconds(v.GraceRemaining)
	}
	return resp
}

// retryAfterSeconds rounds a wait up to whole seconds so clients never
// retry inside the window.
func retryAfterSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}

// denialResponse maps a denied verdict to a status code. The error code
// is the verdict reason so clients can branch without parsing messages.
func denialResponse(c *fiber.Ctx, v *domain.Verdict) error {
	switch v.Reason {
	case domain.ReasonGracePeriod:
		secs := retryAfterSeconds(v.GraceRemaining)
		c.Set("Retry-After", strconv.Itoa(secs))
		return newErrorData(c, fiber.StatusConflict, string(v.Reason),
			"cell is protected while its contest plays out",
			map[string]any{"grace_remaining_seconds": secs})
	case domain.ReasonGuildTerritory:
		return newError(c, fiber.StatusForbidden, string(v.Reason), "cell is held as guild territory")
	case domain.ReasonDuplicateAttempt:
		return newError(c, fiber.StatusTooManyRequests, string(v.Reason), "claim already in flight for this cell")
	case domain.ReasonInvalidBlock:
		return newError(c, fiber.StatusConflict, string(v.Reason), "cell cannot be attacked")
	default:
		return newError(c, fiber.StatusConflict, string(v.Reason), "cell is already owned")
	}
}

// ClaimHandler resolves a claim on the cell containing the player's
// reported position.
func ClaimHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		pid := playerID(c)
		if pid == "" {
			return errUnauthorized(c, "X-Player-ID header is required")
		}

		var req claimRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		if _, err := deps.Players.Ensure(c.Context(), pid, c.Get("X-Player-Name")); err != nil {
			return errInternal(c, err.Error())
		}

		verdict, err := deps.Claims.AttemptClaim(c.Context(), pid, req.Lat, req.Lon)
		if err != nil {
			if errors.Is(err, grid.ErrInvalidCoordinate) {
				return errBadRequest(c, err.Error())
			}
			return errInternal(c, err.Error())
		}

		metrics.ClaimsProcessed.WithLabelValues(string(verdict.Reason)).Inc()
		if !verdict.Allowed {
			return denialResponse(c, verdict)
		}
		return c.JSON(verdictResponse(verdict))
	}
}

// AttackHandler opens a contest on an enemy-held cell.
func AttackHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		pid := playerID(c)
		if pid == "" {
			return errUnauthorized(c, "X-Player-ID header is required")
		}

		cellID := c.Params("id")
		if cellID == "" {
			return errBadRequest(c, "cell id is required")
		}

		if _, err := deps.Players.Ensure(c.Context(), pid, c.Get("X-Player-Name")); err != nil {
			return errInternal(c, err.Error())
		}

		verdict, err := deps.Claims.InitiateAttack(c.Context(), pid, cellID)
		if err != nil {
			if errors.Is(err, grid.ErrMalformedCellID) {
				return errBadRequest(c, err.Error())
			}
			return errInternal(c, err.Error())
		}

		if !verdict.Allowed {
			return denialResponse(c, verdict)
		}
		metrics.ContestsOpened.Inc()
		return c.JSON(verdictResponse(verdict))
	}
}

// CellInfoHandler returns a single cell with its bounds and, when the
// caller identifies itself, the ownership state relative to it.
func CellInfoHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cellID := c.Params("id")
		if cellID == "" {
			return errBadRequest(c, "cell id is required")
		}

		info, err := deps.Territory.CellInfo(c.Context(), cellID, playerID(c))
		if err != nil {
			if errors.Is(err, grid.ErrMalformedCellID) {
				return errBadRequest(c, err.Error())
			}
			return errInternal(c, err.Error())
		}
		return c.JSON(info)
	}
}

// CellNeighborsHandler returns the eight cells surrounding a cell.
func CellNeighborsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cellID := c.Params("id")
		if cellID == "" {
			return errBadRequest(c, "cell id is required")
		}

		infos, err := deps.Territory.CellNeighbors(c.Context(), cellID, playerID(c))
		if err != nil {
			if errors.Is(err, grid.ErrMalformedCellID) {
				return errBadRequest(c, err.Error())
			}
			return errInternal(c, err.Error())
		}
		return c.JSON(fiber.Map{"cell_id": cellID, "neighbors": infos})
	}
}

// CellHistoryHandler returns recent claim events for a cell, newest first.
func CellHistoryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cellID := c.Params("id")
		if cellID == "" {
			return errBadRequest(c, "cell id is required")
		}
		limit := c.QueryInt("limit", 20)
		if limit <= 0 || limit > 100 {
			limit = 20
		}

		events, err := deps.Territory.CellHistory(c.Context(), cellID, limit)
		if err != nil {
			if errors.Is(err, grid.ErrMalformedCellID) {
				return errBadRequest(c, err.Error())
			}
			return errInternal(c, err.Error())
		}
		return c.JSON(fiber.Map{"cell_id": cellID, "events": events})
	}
}

// MapHandler renders the cells around a point as a GeoJSON
// FeatureCollection.
func MapHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Query("lat") == "" || c.Query("lon") == "" {
			return errBadRequest(c, "lat and lon are required")
		}
		lat := c.QueryFloat("lat", 0)
		lon := c.QueryFloat("lon", 0)
		radius := c.QueryFloat("radius", 100)
		if radius <= 0 {
			return errBadRequest(c, "radius must be positive")
		}

		fc, err := deps.Territory.MapRadius(c.Context(), lat, lon, radius)
		if err != nil {
			if errors.Is(err, grid.ErrInvalidCoordinate) {
				return errBadRequest(c, err.Error())
			}
			return errInternal(c, err.Error())
		}

		data, err := fc.MarshalJSON()
		if err != nil {
			return errInternal(c, err.Error())
		}

		c.Set(fiber.HeaderContentType, "application/geo+json")
		c.Set("Cache-Control", "public, max-age=10")
		return c.Send(data)
	}
}

// PlayerTerritoryHandler lists the cells a player holds, soonest to
// lapse first.
func PlayerTerritoryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "player id is required")
		}

		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 50)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 200 {
			limit = 50
		}

		records, total, err := deps.Territory.PlayerTerritory(c.Context(), id, limit, offset)
		if err != nil {
			return errInternal(c, err.Error())
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: records, Pagination: pg})
	}
}

// PlayerStatsHandler returns a player's profile and holding counts.
func PlayerStatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "player id is required")
		}
		stats, err := deps.Territory.PlayerStats(c.Context(), id)
		if err != nil {
			return errNotFound(c, "player not found")
		}
		return c.JSON(stats)
	}
}

type positionRequest struct {
	Lat      float64        `json:"lat"`
	Lon      float64        `json:"lon"`
	Accuracy float64        `json:"accuracy"`
	Speed    float64        `json:"speed"`
	Metadata map[string]any `json:"metadata"`
}

// IngestPositionHandler accepts a single position report. The durable
// write rides the stream, so acceptance is 202 rather than 200.
func IngestPositionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		pid := playerID(c)
		if pid == "" {
			return errUnauthorized(c, "X-Player-ID header is required")
		}

		var req positionRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		pos := &domain.PlayerPosition{
			PlayerID: pid,
			Location: domain.GeoPoint{Lat: req.Lat, Lon: req.Lon},
			Accuracy: req.Accuracy,
			Speed:    req.Speed,
			Metadata: req.Metadata,
		}

		cellID, err := deps.Positions.Ingest(c.Context(), pos)
		if err != nil {
			if errors.Is(err, grid.ErrInvalidCoordinate) {
				return errBadRequest(c, err.Error())
			}
			if errors.Is(err, usecases.ErrImplausibleMovement) {
				metrics.PositionsRejected.Inc()
				return newError(c, fiber.StatusUnprocessableEntity, "implausible_movement",
					"position jump exceeds plausible speed")
			}
			return errInternal(c, err.Error())
		}

		metrics.PositionsIngested.WithLabelValues("api").Inc()
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": true, "cell_id": cellID})
	}
}

// CellIDHandler converts a coordinate to its cell id and bounds.
//
// Deprecated: superseded by GET /v1/cells/:id, which also carries
// ownership state. Kept for older clients; DeprecationMiddleware marks
// responses.
func CellIDHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Query("lat") == "" || c.Query("lon") == "" {
			return errBadRequest(c, "lat and lon are required")
		}
		lat := c.QueryFloat("lat", 0)
		lon := c.QueryFloat("lon", 0)

		id, err := grid.CellID(lat, lon)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		bounds, err := grid.CellBounds(id)
		if err != nil {
			return errInternal(c, err.Error())
		}
		return c.JSON(fiber.Map{"cell_id": id, "bounds": bounds})
	}
}

// GridStats holds row counts from the game tables.
type GridStats struct {
	Players     int    `json:"players"`
	CellsOnFile int    `json:"cells_on_file"`
	LiveCells   int    `json:"live_cells"`
	ClaimEvents int    `json:"claim_events"`
	LastClaim   string `json:"last_claim,omitempty"`
}

// GridStatsHandler returns aggregate counts for dashboards.
func GridStatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.DB == nil {
			return errInternal(c, "database not available")
		}

		var stats GridStats
		row := deps.DB.Pool.QueryRow(c.Context(), `
			SELECT
				(SELECT count(*) FROM players),
				(SELECT count(*) FROM cell_ownership),
				(SELECT count(*) FROM cell_ownership WHERE owner_kind = 'guild' OR expires_at > now()),
				(SELECT count(*) FROM claim_events),
				COALESCE((SELECT max(occurred_at)::text FROM claim_events), '')
		`)
		if err := row.Scan(&stats.Players, &stats.CellsOnFile, &stats.LiveCells,
			&stats.ClaimEvents, &stats.LastClaim); err != nil {
			return errInternal(c, err.Error())
		}

		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(stats)
	}
}
