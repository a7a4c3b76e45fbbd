package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/turfgrid/internal/core/domain"
)

// gqlTime formats an optional timestamp for GraphQL output.
func gqlTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// ownershipMap shapes an ownership record for GraphQL.
func ownershipMap(rec *domain.OwnershipRecord) map[string]interface{} {
	return map[string]interface{}{
		"cell_id":      rec.CellID,
		"owner_id":     rec.OwnerID,
		"owner_kind":   string(rec.OwnerKind),
		"guild_id":     rec.GuildID,
		"claimed_at":   gqlTime(rec.ClaimedAt),
		"expires_at":   gqlTime(rec.ExpiresAt),
		"contested_at": gqlTime(rec.ContestedAt),
		"contested_by": rec.ContestedBy,
	}
}

// cellMap shapes a cell view for GraphQL.
func cellMap(info *domain.CellInfo) map[string]interface{} {
	m := map[string]interface{}{
		"cell_id": info.CellID,
		"bounds":  info.Bounds,
		"terrain": string(info.Terrain),
		"state": map[string]interface{}{
			"kind":                    string(info.State.Kind),
			"owned_remaining_seconds": int(info.State.OwnedRemaining / time.Second),
			"grace_remaining_seconds": int(info.State.GraceRemaining / time.Second),
		},
	}
	if info.Ownership != nil {
		m["ownership"] = ownershipMap(info.Ownership)
	}
	return m
}

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	boundsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "CellBounds",
		Fields: graphql.Fields{
			"north":  &graphql.Field{Type: graphql.Float},
			"south":  &graphql.Field{Type: graphql.Float},
			"east":   &graphql.Field{Type: graphql.Float},
			"west":   &graphql.Field{Type: graphql.Float},
			"center": &graphql.Field{Type: geoPointType},
		},
	})

	ownershipType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Ownership",
		Fields: graphql.Fields{
			"cell_id":      &graphql.Field{Type: graphql.String},
			"owner_id":     &graphql.Field{Type: graphql.String},
			"owner_kind":   &graphql.Field{Type: graphql.String},
			"guild_id":     &graphql.Field{Type: graphql.String},
			"claimed_at":   &graphql.Field{Type: graphql.String},
			"expires_at":   &graphql.Field{Type: graphql.String},
			"contested_at": &graphql.Field{Type: graphql.String},
			"contested_by": &graphql.Field{Type: graphql.String},
		},
	})

	stateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "CellState",
		Fields: graphql.Fields{
			"kind":                    &graphql.Field{Type: graphql.String},
			"owned_remaining_seconds": &graphql.Field{Type: graphql.Int},
			"grace_remaining_seconds": &graphql.Field{Type: graphql.Int},
		},
	})

	cellType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Cell",
		Fields: graphql.Fields{
			"cell_id":   &graphql.Field{Type: graphql.String},
			"bounds":    &graphql.Field{Type: boundsType},
			"terrain":   &graphql.Field{Type: graphql.String},
			"ownership": &graphql.Field{Type: ownershipType},
			"state":     &graphql.Field{Type: stateType},
		},
	})

	playerType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Player",
		Fields: graphql.Fields{
			"id":           &graphql.Field{Type: graphql.String},
			"display_name": &graphql.Field{Type: graphql.String},
			"guild_id":     &graphql.Field{Type: graphql.String},
			"xp":           &graphql.Field{Type: graphql.Int},
			"gold":         &graphql.Field{Type: graphql.Int},
			"owned_cells":  &graphql.Field{Type: graphql.Int},
		},
	})

	claimEventType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ClaimEvent",
		Fields: graphql.Fields{
			"id":           &graphql.Field{Type: graphql.String},
			"cell_id":      &graphql.Field{Type: graphql.String},
			"player_id":    &graphql.Field{Type: graphql.String},
			"kind":         &graphql.Field{Type: graphql.String},
			"prior_owner":  &graphql.Field{Type: graphql.String},
			"xp_awarded":   &graphql.Field{Type: graphql.Int},
			"gold_awarded": &graphql.Field{Type: graphql.Int},
			"occurred_at":  &graphql.Field{Type: graphql.String},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"cell": &graphql.Field{
				Type:        cellType,
				Description: "Get one grid cell by id",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					info, err := deps.Territory.CellInfo(p.Context, id, "")
					if err != nil {
						return nil, err
					}
					return cellMap(info), nil
				},
			},
			"cellsNearby": &graphql.Field{
				Type:        graphql.NewList(cellType),
				Description: "Cells within a radius of a point",
				Args: graphql.FieldConfigArgument{
					"lat":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"radius": &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: 100.0},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					lat := p.Args["lat"].(float64)
					lon := p.Args["lon"].(float64)
					radius := p.Args["radius"].(float64)
					infos, err := deps.Territory.CellsNearby(p.Context, lat, lon, radius, "")
					if err != nil {
						return nil, err
					}
					result := make([]map[string]interface{}, 0, len(infos))
					for i := range infos {
						result = append(result, cellMap(&infos[i]))
					}
					return result, nil
				},
			},
			"player": &graphql.Field{
				Type:        playerType,
				Description: "Get a player's profile and holding count",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					stats, err := deps.Territory.PlayerStats(p.Context, id)
					if err != nil {
						return nil, err
					}
					return map[string]interface{}{
						"id":           stats.Player.ID,
						"display_name": stats.Player.DisplayName,
						"guild_id":     stats.Player.GuildID,
						"xp":           int(stats.Player.XP),
						"gold":         int(stats.Player.Gold),
						"owned_cells":  stats.OwnedCells,
					}, nil
				},
			},
			"cellHistory": &graphql.Field{
				Type:        graphql.NewList(claimEventType),
				Description: "Recent claim events for a cell, newest first",
				Args: graphql.FieldConfigArgument{
					"cell_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"limit":   &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					cellID := p.Args["cell_id"].(string)
					limit := p.Args["limit"].(int)
					events, err := deps.Territory.CellHistory(p.Context, cellID, limit)
					if err != nil {
						return nil, err
					}
					result := make([]map[string]interface{}, 0, len(events))
					for _, e := range events {
						occurred := e.OccurredAt
						result = append(result, map[string]interface{}{
							"id":           e.ID,
							"cell_id":      e.CellID,
							"player_id":    e.PlayerID,
							"kind":         string(e.Kind),
							"prior_owner":  e.PriorOwner,
							"xp_awarded":   e.XPAwarded,
							"gold_awarded": e.GoldAwarded,
							"occurred_at":  gqlTime(&occurred),
						})
					}
					return result, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.Context(),
		})

		return c.JSON(result)
	}
}
