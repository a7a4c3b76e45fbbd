package domain

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// CellBounds is the rectangle of a grid cell plus its center.
type CellBounds struct {
	North  float64  `json:"north"`
	South  float64  `json:"south"`
	East   float64  `json:"east"`
	West   float64  `json:"west"`
	Center GeoPoint `json:"center"`
}
