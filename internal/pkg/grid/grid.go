// Package grid maps WGS 84 coordinates onto the fixed 20 m territory grid.
//
// Cell ids are the canonical currency of the game: every ownership record,
// claim and map query keys off the strings produced here. Snapping is
// grid-aligned (floor to a fixed-origin cell, then take the cell center), so
// any two fixes inside the same physical square yield the same id. Naive
// per-coordinate rounding would split points that straddle a rounding
// boundary even though they share a cell.
package grid

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// CellSizeMeters is the edge length of a territory cell. Changing it
	// invalidates every cell id ever issued.
	CellSizeMeters = 20.0

	// metersPerDegreeLat is the spherical-earth approximation the grid is
	// built on. Latitude degrees are constant length; longitude degrees
	// shrink with cos(lat).
	metersPerDegreeLat = 111320.0

	// idPrecision is the decimal precision of each id component. Four
	// digits is ~11.1 m of latitude, finer than half a cell.
	idPrecision = 4
)

// latCellSize is the angular height of a cell, identical at all latitudes.
const latCellSize = CellSizeMeters / metersPerDegreeLat

var (
	// ErrInvalidCoordinate reports latitude/longitude outside WGS 84 ranges
	// (or NaN/Inf), and negative radii.
	ErrInvalidCoordinate = errors.New("grid: invalid coordinate")

	// ErrMalformedCellID reports a cell id that is not two underscore-joined
	// finite decimal numbers.
	ErrMalformedCellID = errors.New("grid: malformed cell id")
)

// Bounds is the rectangle covered by a single cell. Edges are inclusive.
// The longitude extent depends on the cell's latitude, so bounds are not a
// fixed angular rectangle globally.
type Bounds struct {
	North     float64 `json:"north"`
	South     float64 `json:"south"`
	East      float64 `json:"east"`
	West      float64 `json:"west"`
	CenterLat float64 `json:"center_lat"`
	CenterLon float64 `json:"center_lon"`
}

// CellID snaps a coordinate to its territory cell and returns the canonical
// id, formatted "<lat>_<lon>" with exactly four decimal digits per part.
func CellID(lat, lon float64) (string, error) {
	if err := validateCoordinate(lat, lon); err != nil {
		return "", err
	}
	centerLat, centerLon := snap(lat, lon)
	return formatID(centerLat, centerLon), nil
}

// ParseCellID recovers the cell center encoded in an id. The check is purely
// structural: two parseable finite floats. Range enforcement belongs to
// CellID; ids for degenerate polar cells still parse.
func ParseCellID(id string) (lat, lon float64, err error) {
	parts := strings.Split(id, "_")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedCellID, id)
	}
	lat, err = strconv.ParseFloat(parts[0], 64)
	if err != nil || math.IsNaN(lat) || math.IsInf(lat, 0) {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedCellID, id)
	}
	lon, err = strconv.ParseFloat(parts[1], 64)
	if err != nil || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedCellID, id)
	}
	return lat, lon, nil
}

// CellBounds returns the true grid rectangle around an id's center.
//
// The 4-decimal center stored in the id sits at most 0.28 of a cell edge off
// the true center, always inside its own cell, so re-snapping recovers the
// exact cell. Deriving edges from the rounded center directly would shave up
// to ~5 m off one side and exclude legitimate edge points.
func CellBounds(id string) (Bounds, error) {
	lat, lon, err := ParseCellID(id)
	if err != nil {
		return Bounds{}, err
	}
	centerLat, centerLon := snap(lat, lon)
	halfLat := latCellSize / 2
	halfLon := lonCellSizeAt(centerLat) / 2
	return Bounds{
		North:     centerLat + halfLat,
		South:     centerLat - halfLat,
		East:      centerLon + halfLon,
		West:      centerLon - halfLon,
		CenterLat: centerLat,
		CenterLon: centerLon,
	}, nil
}

// neighborOffsets orders the compass ring N, NE, E, SE, S, SW, W, NW as
// (latSteps, lonSteps) pairs.
var neighborOffsets = [8][2]float64{
	{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1},
}

// Neighbors returns the ids of the up-to-8 cells ringing the given cell.
// Offsets step from the parsed center by one cell size per axis and re-round
// directly rather than snapping again: a second grid snap on an already
// rounded center drifts across rows. Longitude wraps through ±180;
// latitudes leaving [-90, 90] are omitted, so polar cells return fewer ids.
func Neighbors(id string) ([]string, error) {
	lat, lon, err := ParseCellID(id)
	if err != nil {
		return nil, err
	}
	lonSize := lonCellSizeAt(lat)
	out := make([]string, 0, 8)
	for _, off := range neighborOffsets {
		nLat := lat + off[0]*latCellSize
		if nLat > 90 || nLat < -90 {
			continue
		}
		nLon := wrapLon(lon + off[1]*lonSize)
		out = append(out, formatID(nLat, nLon))
	}
	return out, nil
}

// CellsInRadius returns every cell whose center lies within radiusMeters of
// the query point, the query point's own cell first. Candidates come from a
// square lattice ceil(r/20) steps wide, then are filtered by true
// great-circle distance to their snapped centers: a disk by distance, not by
// lattice step count. Duplicates are suppressed.
func CellsInRadius(lat, lon, radiusMeters float64) ([]string, error) {
	if err := validateCoordinate(lat, lon); err != nil {
		return nil, err
	}
	if math.IsNaN(radiusMeters) || radiusMeters < 0 {
		return nil, fmt.Errorf("%w: radius %v", ErrInvalidCoordinate, radiusMeters)
	}

	steps := int(math.Ceil(radiusMeters / CellSizeMeters))
	lonSize := lonCellSizeAt(lat)

	centerLat, centerLon := snap(lat, lon)
	center := formatID(centerLat, centerLon)
	out := []string{center}
	seen := map[string]struct{}{center: {}}

	for dy := -steps; dy <= steps; dy++ {
		candLat := lat + float64(dy)*latCellSize
		if candLat > 90 || candLat < -90 {
			continue
		}
		for dx := -steps; dx <= steps; dx++ {
			candLon := wrapLon(lon + float64(dx)*lonSize)
			if candLon > 180 || candLon < -180 {
				continue
			}
			cLat, cLon := snap(candLat, candLon)
			id := formatID(cLat, cLon)
			if _, ok := seen[id]; ok {
				continue
			}
			if Haversine(lat, lon, cLat, cLon) <= radiusMeters {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	return out, nil
}

// PointInCell reports whether the point lies inside the cell's bounds.
// All four edges are inclusive.
func PointInCell(lat, lon float64, id string) (bool, error) {
	if err := validateCoordinate(lat, lon); err != nil {
		return false, err
	}
	b, err := CellBounds(id)
	if err != nil {
		return false, err
	}
	return lat >= b.South && lat <= b.North && lon >= b.West && lon <= b.East, nil
}

// snap returns the true (unrounded) center of the cell containing the point.
// Latitude snaps first; the longitude grid is sized at the snapped cell-row
// latitude so CellID, CellBounds and radius queries share one grid and a
// parsed center always snaps back into its own cell.
func snap(lat, lon float64) (centerLat, centerLon float64) {
	latIdx := math.Floor(lat / latCellSize)
	centerLat = (latIdx + 0.5) * latCellSize
	// 90/latCellSize divides exactly, so lat == ±90 lands on a row whose
	// center sits past the pole. Fold it back into the outermost real row.
	if centerLat > 90 {
		centerLat -= latCellSize
	} else if centerLat < -90 {
		centerLat += latCellSize
	}

	lonSize := lonCellSizeAt(centerLat)
	lonIdx := math.Floor(lon / lonSize)
	// A row whose width divides 180 exactly puts lon == 180 in the cell
	// straddling the antimeridian; its center is the wrapped one.
	centerLon = wrapLon((lonIdx + 0.5) * lonSize)
	return centerLat, centerLon
}

// lonCellSizeAt returns the angular width of a cell at the given latitude.
// cos of a float64 at ±90° is tiny but positive, so polar cells degenerate
// to enormous finite widths instead of dividing by zero. Row centers snapped
// a hair past a pole clamp back so the width stays positive.
func lonCellSizeAt(lat float64) float64 {
	if lat > 90 {
		lat = 90
	} else if lat < -90 {
		lat = -90
	}
	return CellSizeMeters / (metersPerDegreeLat * math.Cos(toRad(lat)))
}

// wrapLon normalizes a longitude through the antimeridian.
func wrapLon(lon float64) float64 {
	if lon > 180 {
		return lon - 360
	}
	if lon < -180 {
		return lon + 360
	}
	return lon
}

func formatID(lat, lon float64) string {
	return formatCoord(lat) + "_" + formatCoord(lon)
}

// formatCoord renders a coordinate at fixed 4-decimal precision. Negative
// zero normalizes to "0.0000" so ids stay canonical across the 0 meridian.
func formatCoord(v float64) string {
	s := strconv.FormatFloat(v, 'f', idPrecision, 64)
	if s == "-0.0000" {
		return "0.0000"
	}
	return s
}

func validateCoordinate(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return fmt.Errorf("%w: lat %v", ErrInvalidCoordinate, lat)
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: lon %v", ErrInvalidCoordinate, lon)
	}
	return nil
}
