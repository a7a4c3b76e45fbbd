package http

import (
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/turfgrid/internal/adapters/postgres"
	"github.com/samirrijal/turfgrid/internal/adapters/valkey"
	"github.com/samirrijal/turfgrid/internal/core/ports"
	"github.com/samirrijal/turfgrid/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers. Players is the
// port rather than the concrete repo because handlers register players on
// first sight, wherever the store lives.
type Dependencies struct {
	Claims    *usecases.ClaimService
	Territory *usecases.TerritoryService
	Positions *usecases.PositionService
	Players   ports.PlayerStore
	NATS      *nats.Conn
	DB        *postgres.DB
	Cache     *valkey.Cache
}
