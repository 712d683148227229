// Package geo holds the planar and spherical helpers used for coverage
// checks and team distance ranking.
package geo

import (
	"fmt"
	"math"

	bgeo "github.com/blevesearch/bleve/v2/geo"
)

type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180 &&
		!math.IsNaN(p.Lat) && !math.IsNaN(p.Lon)
}

func (p Point) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", p.Lat, p.Lon)
}

// Distance is the great-circle distance between a and b in kilometres.
func Distance(a, b Point) float64 {
	return bgeo.Haversin(a.Lon, a.Lat, b.Lon, b.Lat)
}
