package geo

import (
	"errors"
	"math"
)

// Polygon is a GeoJSON polygon. Coordinates are [lon, lat] pairs; the first
// ring is the outer boundary and any further rings are holes.
type Polygon struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

var ErrInvalidPolygon = errors.New("polygon needs a closed outer ring of at least 4 positions")

// NewPolygon builds a single-ring polygon from points, closing the ring
// when the last point differs from the first.
func NewPolygon(points ...Point) Polygon {
	ring := make([][2]float64, 0, len(points)+1)
	for _, p := range points {
		ring = append(ring, [2]float64{p.Lon, p.Lat})
	}
	if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return Polygon{Type: "Polygon", Coordinates: [][][2]float64{ring}}
}

func (pg Polygon) Validate() error {
	if pg.Type != "" && pg.Type != "Polygon" {
		return ErrInvalidPolygon
	}
	if len(pg.Coordinates) == 0 {
		return ErrInvalidPolygon
	}
	for _, ring := range pg.Coordinates {
		if len(ring) < 4 || ring[0] != ring[len(ring)-1] {
			return ErrInvalidPolygon
		}
	}
	return nil
}

// Contains reports whether p lies inside the outer ring and outside every
// hole. Points exactly on an edge may fall either way.
func (pg Polygon) Contains(p Point) bool {
	if len(pg.Coordinates) == 0 {
		return false
	}
	if !ringContains(pg.Coordinates[0], p) {
		return false
	}
	for _, hole := range pg.Coordinates[1:] {
		if ringContains(hole, p) {
			return false
		}
	}
	return true
}

// ray casting
func ringContains(ring [][2]float64, p Point) bool {
	in := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > p.Lat) != (yj > p.Lat) &&
			p.Lon < (xj-xi)*(p.Lat-yi)/(yj-yi)+xi {
			in = !in
		}
	}
	return in
}

// Centroid is the area-weighted centroid of the outer ring in lon/lat
// space. Degenerate rings fall back to the mean of their vertices.
func (pg Polygon) Centroid() Point {
	if len(pg.Coordinates) == 0 || len(pg.Coordinates[0]) == 0 {
		return Point{}
	}
	ring := pg.Coordinates[0]

	var a, cx, cy float64
	for i := 0; i < len(ring)-1; i++ {
		x0, y0 := ring[i][0], ring[i][1]
		x1, y1 := ring[i+1][0], ring[i+1][1]
		cross := x0*y1 - x1*y0
		a += cross
		cx += (x0 + x1) * cross
		cy += (y0 + y1) * cross
	}
	if math.Abs(a) < 1e-12 {
		return vertexMean(ring)
	}
	a *= 0.5
	return Point{Lon: cx / (6 * a), Lat: cy / (6 * a)}
}

func vertexMean(ring [][2]float64) Point {
	pts := ring
	if len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	var sx, sy float64
	for _, c := range pts {
		sx += c[0]
		sy += c[1]
	}
	n := float64(len(pts))
	return Point{Lon: sx / n, Lat: sy / n}
}

// DistanceToCentroid is the distance in km from p to the polygon centroid.
func (pg Polygon) DistanceToCentroid(p Point) float64 {
	return Distance(p, pg.Centroid())
}
