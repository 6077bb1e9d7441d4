// Package geo recovers usable Chilean coordinates from export cells.
package geo

import (
	"github.com/paulmach/orb"

	"tinsa/importer/internal/locale"
)

// ChileBound is the accepted area for repaired coordinates: latitude in
// [-60, -15] and longitude in [-80, -60]. Points are [lon, lat] as in orb.
var ChileBound = orb.Bound{
	Min: orb.Point{-80, -60},
	Max: orb.Point{-60, -15},
}

// Exports drop or misplace the decimal point, so both values are tried at
// every scale until they land inside ChileBound.
var divisors = []float64{1, 10, 100, 1000, 10000, 100000}

const precision = 6

// Repair parses a raw latitude/longitude pair and returns the first scaling
// that puts the point inside Chile, trying the columns swapped when the
// original order never fits. ok is false when no combination is in bounds.
func Repair(latRaw, lonRaw string) (p orb.Point, ok bool) {
	lat := locale.Number(latRaw)
	lon := locale.Number(lonRaw)
	if lat == nil || lon == nil {
		return orb.Point{}, false
	}
	if p, ok := rescale(*lat, *lon); ok {
		return p, true
	}
	return rescale(*lon, *lat)
}

// InChile reports whether an already decoded point is inside ChileBound.
func InChile(p orb.Point) bool {
	return ChileBound.Contains(p)
}

func rescale(lat, lon float64) (orb.Point, bool) {
	for _, d := range divisors {
		p := orb.Point{lon / d, lat / d}
		if ChileBound.Contains(p) {
			return orb.Point{locale.Round(p.Lon(), precision), locale.Round(p.Lat(), precision)}, true
		}
	}
	return orb.Point{}, false
}
