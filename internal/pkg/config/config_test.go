package config_test

import (
	"strings"
	"testing"

	"github.com/samirrijal/turfgrid/internal/pkg/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("turfgrid-test")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("database.driver = %q, want postgres", cfg.Database.Driver)
	}
	if cfg.Game.OwnershipHours != 24 || cfg.Game.GraceMinutes != 60 {
		t.Errorf("game timers = %dh/%dm, want 24h/60m", cfg.Game.OwnershipHours, cfg.Game.GraceMinutes)
	}
	if cfg.Game.ClaimXP != 50 || cfg.Game.ClaimGold != 10 {
		t.Errorf("game rewards = %d/%d, want 50/10", cfg.Game.ClaimXP, cfg.Game.ClaimGold)
	}
	if cfg.Telemetry.ServiceName != "turfgrid-test" {
		t.Errorf("telemetry.service_name = %q, want turfgrid-test", cfg.Telemetry.ServiceName)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TURFGRID_SERVER_PORT", "9091")
	t.Setenv("TURFGRID_GAME_CLAIM_XP", "75")

	cfg, err := config.Load("turfgrid-test")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9091 {
		t.Errorf("server.port = %d, want 9091 from env", cfg.Server.Port)
	}
	if cfg.Game.ClaimXP != 75 {
		t.Errorf("game.claim_xp = %d, want 75 from env", cfg.Game.ClaimXP)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg, err := config.Load("turfgrid-test")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg.Database.Driver = "mongo"
	cfg.Game.OwnershipHours = 0
	cfg.NATS.URL = ""

	verr := cfg.Validate()
	if verr == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"database.driver", "game.ownership_hours", "nats.url"} {
		if !strings.Contains(verr.Error(), want) {
			t.Errorf("validation error missing %q: %v", want, verr)
		}
	}
}

func TestValidateFirestoreNeedsProject(t *testing.T) {
	cfg, err := config.Load("turfgrid-test")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg.Database.Driver = "firestore"
	cfg.Firestore.ProjectID = ""

	verr := cfg.Validate()
	if verr == nil || !strings.Contains(verr.Error(), "firestore.project_id") {
		t.Errorf("err = %v, want firestore.project_id complaint", verr)
	}
}
