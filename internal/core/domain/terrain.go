package domain

import "hash/fnv"

// Terrain is a cosmetic attribute rendered on the map. It is derived from the
// cell id alone so every node agrees on it without storing anything.
type Terrain string

const (
	TerrainMeadow Terrain = "meadow"
	TerrainForest Terrain = "forest"
	TerrainWater  Terrain = "water"
	TerrainRock   Terrain = "rock"
	TerrainRuins  Terrain = "ruins"
)

var terrains = [...]Terrain{TerrainMeadow, TerrainForest, TerrainWater, TerrainRock, TerrainRuins}

// TerrainOf returns the stable terrain for a cell id (FNV-1a over the id).
func TerrainOf(cellID string) Terrain {
	h := fnv.New32a()
	h.Write([]byte(cellID))
	return terrains[h.Sum32()%uint32(len(terrains))]
}
