// Package geo converts points into geocell keys for proximity search and
// computes great-circle distances between points.
package geo

import (
	"math"
	"strings"

	"blindshake_server/models"

	"github.com/mmcloughlin/geohash"
)

// DefaultPrecision is the geocell length seekers are stored under.
const DefaultPrecision uint = 6

// earthRadiusKm is the mean Earth radius.
const earthRadiusKm = 6371.0

// Index derives geocell keys at a storage precision and the cells to scan
// at each search precision.
type Index struct {
	Precision        uint
	SearchPrecisions []uint
}

// NewIndex returns an Index. Search precisions are clamped to the storage
// precision since stored keys can only be prefix-scanned at or below it.
func NewIndex(precision uint, searchPrecisions []uint) Index {
	if precision == 0 {
		precision = DefaultPrecision
	}
	clamped := make([]uint, 0, len(searchPrecisions))
	for _, p := range searchPrecisions {
		if p == 0 {
			continue
		}
		if p > precision {
			p = precision
		}
		clamped = append(clamped, p)
	}
	return Index{Precision: precision, SearchPrecisions: clamped}
}

// Key returns the geocell a seeker at loc is stored under.
func (ix Index) Key(loc models.Location) string {
	return Cell(loc, ix.Precision)
}

// SearchCells returns the cell containing loc at precision plus its eight
// neighbours, so a seeker just across a cell edge is still found.
func (ix Index) SearchCells(loc models.Location, precision uint) []string {
	center := Cell(loc, precision)
	cells := []string{center}
	seen := map[string]bool{center: true}
	for _, n := range geohash.Neighbors(center) {
		if !seen[n] {
			seen[n] = true
			cells = append(cells, n)
		}
	}
	return cells
}

// Cell encodes loc as a geohash of the given length.
func Cell(loc models.Location, precision uint) string {
	return geohash.EncodeWithPrecision(loc.Latitude, loc.Longitude, precision)
}

// InCell reports whether key lies inside the cell named by prefix.
func InCell(key, prefix string) bool {
	return strings.HasPrefix(key, prefix)
}

// Distance returns the haversine distance between a and b in kilometres.
func Distance(a, b models.Location) float64 {
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Latitude))*math.Cos(toRadians(b.Latitude))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Round reduces loc to the given number of decimal places.
func Round(loc models.Location, decimals int) models.Location {
	scale := math.Pow(10, float64(decimals))
	return models.Location{
		Latitude:  math.Round(loc.Latitude*scale) / scale,
		Longitude: math.Round(loc.Longitude*scale) / scale,
	}
}

// PrecisionForRadius picks the coarsest geocell length whose cell is
// still no wider than the radius.
func PrecisionForRadius(radiusKm float64) uint {
	switch {
	case radiusKm <= 1:
		return 9
	case radiusKm <= 5:
		return 8
	case radiusKm <= 20:
		return 7
	case radiusKm <= 80:
		return 6
	case radiusKm <= 300:
		return 5
	case radiusKm <= 1000:
		return 4
	}
	return 3
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
