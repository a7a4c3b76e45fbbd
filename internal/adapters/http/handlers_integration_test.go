//go:build integration
// +build integration

package http_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb/geojson"
	"github.com/samirrijal/turfgrid/internal/adapters/http"
	"github.com/samirrijal/turfgrid/internal/adapters/postgres"
	"github.com/samirrijal/turfgrid/internal/core/arbiter"
	"github.com/samirrijal/turfgrid/internal/core/ports"
	"github.com/samirrijal/turfgrid/internal/core/usecases"
	"github.com/samirrijal/turfgrid/internal/pkg/config"
	"github.com/samirrijal/turfgrid/internal/pkg/grid"
)

// setupTestDB connects to the test database and returns a clean DB instance.
func setupTestDB(t *testing.T) *postgres.DB {
	cfg, err := config.Load("turfgrid-test")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	dsn := cfg.Database.DSN()
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}

	db := &postgres.DB{Pool: pool}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("ping db: %v", err)
	}

	return db
}

// setupTestDeps creates dependencies with real DB repos, no cache. The claim
// guard window is shrunk to a nanosecond so sequential requests in one test
// are not debounced away.
func setupTestDeps(t *testing.T, db *postgres.DB) *http.Dependencies {
	ownership := postgres.NewOwnershipRepo(db)
	players := postgres.NewPlayerRepo(db)
	ledger := postgres.NewClaimLedgerRepo(db)

	rules := arbiter.DefaultRules()
	clock := ports.SystemClock{}
	guard := usecases.NewClaimGuard(time.Nanosecond)

	return &http.Dependencies{
		Claims:    usecases.NewClaimService(rules, ownership, players, ledger, nil, &mockPublisher{}, clock, guard),
		Territory: usecases.NewTerritoryService(rules, ownership, players, ledger, nil, clock, 200),
		Positions: usecases.NewPositionService(players, &mockPublisher{}, clock, 50),
		Players:   players,
		DB:        db,
	}
}

// resetCell removes any ownership and ledger rows left over from prior runs.
func resetCell(t *testing.T, db *postgres.DB, cellID string) {
	ctx := context.Background()
	if _, err := db.Pool.Exec(ctx, `DELETE FROM cell_ownership WHERE cell_id = $1`, cellID); err != nil {
		t.Fatalf("reset ownership: %v", err)
	}
	if _, err := db.Pool.Exec(ctx, `DELETE FROM claim_events WHERE cell_id = $1`, cellID); err != nil {
		t.Fatalf("reset ledger: %v", err)
	}
}

// uniquePlayer returns a throwaway player ID that will not collide with rows
// from earlier runs.
func uniquePlayer(prefix string) string {
	return prefix + "_" + time.Now().Format("20060102150405.000000000")
}

// TestClaimLifecycle_Integration walks a cell through claim, rival denial,
// attack and grace throttle against the real database.
func TestClaimLifecycle_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Pool.Close()

	cellID, err := grid.CellID(43.2630, -2.9350)
	if err != nil {
		t.Fatalf("cell id: %v", err)
	}
	resetCell(t, db, cellID)

	deps := setupTestDeps(t, db)
	app := setupApp(deps)

	p1 := uniquePlayer("itg_p1")
	p2 := uniquePlayer("itg_p2")

	// p1 claims the unclaimed cell.
	req := httptest.NewRequest("POST", "/v1/claims",
		strings.NewReader(`{"lat":43.2630,"lon":-2.9350}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Player-ID", p1)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("claim request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("claim: expected 200, got %d", resp.StatusCode)
	}

	var claim struct {
		Allowed bool   `json:"allowed"`
		Reason  string `json:"reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&claim); err != nil {
		t.Fatalf("decode claim: %v", err)
	}
	if !claim.Allowed || claim.Reason != "ok" {
		t.Fatalf("expected fresh claim, got allowed=%v reason=%s", claim.Allowed, claim.Reason)
	}

	// The row must be on file with p1 as owner.
	var owner string
	if err := db.Pool.QueryRow(context.Background(),
		`SELECT owner_id FROM cell_ownership WHERE cell_id = $1`, cellID).Scan(&owner); err != nil {
		t.Fatalf("read ownership row: %v", err)
	}
	if owner != p1 {
		t.Errorf("expected owner %s, got %s", p1, owner)
	}

	// A rival claim on the live cell is denied.
	req = httptest.NewRequest("POST", "/v1/claims",
		strings.NewReader(`{"lat":43.2630,"lon":-2.9350}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Player-ID", p2)
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != 409 {
		t.Fatalf("rival claim: expected 409, got %d", resp.StatusCode)
	}

	// The rival can attack instead.
	req = httptest.NewRequest("POST", "/v1/cells/"+cellID+"/attack", nil)
	req.Header.Set("X-Player-ID", p2)
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("attack: expected 200, got %d", resp.StatusCode)
	}

	var contestedBy *string
	if err := db.Pool.QueryRow(context.Background(),
		`SELECT contested_by FROM cell_ownership WHERE cell_id = $1`, cellID).Scan(&contestedBy); err != nil {
		t.Fatalf("read contested row: %v", err)
	}
	if contestedBy == nil || *contestedBy != p2 {
		t.Errorf("expected contested_by %s, got %v", p2, contestedBy)
	}

	// While the contest window is open, further attacks are throttled.
	req = httptest.NewRequest("POST", "/v1/cells/"+cellID+"/attack", nil)
	req.Header.Set("X-Player-ID", p2)
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != 409 {
		t.Fatalf("repeat attack: expected 409, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("expected Retry-After on throttled attack")
	}
}

// TestPlayerTerritory_Integration verifies claims show up in the player's
// territory listing.
func TestPlayerTerritory_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Pool.Close()

	cellID, _ := grid.CellID(43.2700, -2.9400)
	resetCell(t, db, cellID)

	deps := setupTestDeps(t, db)
	app := setupApp(deps)

	p1 := uniquePlayer("itg_terr")

	req := httptest.NewRequest("POST", "/v1/claims",
		strings.NewReader(`{"lat":43.2700,"lon":-2.9400}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Player-ID", p1)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("claim: expected 200, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest("GET", "/v1/players/"+p1+"/territory", nil)
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("territory: expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data       []struct {
			CellID string `json:"cell_id"`
		} `json:"data"`
		Pagination struct{ Total int } `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode territory: %v", err)
	}
	if result.Pagination.Total < 1 {
		t.Errorf("expected at least 1 owned cell, got %d", result.Pagination.Total)
	}
}

// TestMapRadius_Integration verifies the GeoJSON overlay picks up a fresh
// claim from the database.
func TestMapRadius_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Pool.Close()

	cellID, _ := grid.CellID(43.2750, -2.9450)
	resetCell(t, db, cellID)

	deps := setupTestDeps(t, db)
	app := setupApp(deps)

	p1 := uniquePlayer("itg_map")

	req := httptest.NewRequest("POST", "/v1/claims",
		strings.NewReader(`{"lat":43.2750,"lon":-2.9450}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Player-ID", p1)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("claim: expected 200, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest("GET", "/v1/map?lat=43.2750&lon=-2.9450&radius=50", nil)
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("map: expected 200, got %d", resp.StatusCode)
	}

	fc, err := geojson.UnmarshalFeatureCollection(readBody(t, resp.Body))
	if err != nil {
		t.Fatalf("unmarshal feature collection: %v", err)
	}

	var found bool
	for _, f := range fc.Features {
		if f.Properties.MustString("cell_id", "") == cellID &&
			f.Properties.MustString("owner_id", "") == p1 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected claimed feature for %s owned by %s", cellID, p1)
	}
}

// TestPositionIngest_Integration verifies presence lands in the players table.
func TestPositionIngest_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Pool.Close()

	deps := setupTestDeps(t, db)
	app := setupApp(deps)

	p1 := uniquePlayer("itg_pos")
	wantCell, _ := grid.CellID(43.2600, -2.9300)

	req := httptest.NewRequest("POST", "/v1/positions",
		strings.NewReader(`{"lat":43.2600,"lon":-2.9300,"accuracy":6.5}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Player-ID", p1)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 202 {
		t.Fatalf("position: expected 202, got %d", resp.StatusCode)
	}

	var lastCell *string
	if err := db.Pool.QueryRow(context.Background(),
		`SELECT last_cell_id FROM players WHERE id = $1`, p1).Scan(&lastCell); err != nil {
		t.Fatalf("read player row: %v", err)
	}
	if lastCell == nil || *lastCell != wantCell {
		t.Errorf("expected last cell %s, got %v", wantCell, lastCell)
	}
}
