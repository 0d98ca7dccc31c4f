// Package geo provides great-circle distance on a spherical Earth and the
// fixed longitude/latitude grid the MUF field is sampled on.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used to convert between angular
// distance and kilometres.
const EarthRadiusKm = 6371.0

// LonLat is a point in radians.
type LonLat struct {
	Lon float64
	Lat float64
}

// FromDegrees converts a degree pair to radians.
func FromDegrees(lonDeg, latDeg float64) LonLat {
	return LonLat{Lon: Radians(lonDeg), Lat: Radians(latDeg)}
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 { return deg * math.Pi / 180 }

// KmToRadians converts a surface distance to the angle it subtends.
func KmToRadians(km float64) float64 { return km / EarthRadiusKm }

// Haversine returns the great-circle angle (radians) between two points given
// in radians. The longitude difference is folded onto [0, pi] before use so
// points either side of the antimeridian are close; the haversine term only
// depends on its magnitude.
//
// Coincident points return exactly 0 and antipodal points exactly pi.
func Haversine(lon1, lat1, lon2, lat2 float64) float64 {
	dlon := lonDelta(lon1, lon2)
	dlat := lat2 - lat1

	sdlat := math.Sin(dlat / 2)
	sdlon := math.Sin(dlon / 2)
	a := sdlat*sdlat + math.Cos(lat1)*math.Cos(lat2)*sdlon*sdlon

	// Rounding can push a a hair outside [0, 1] at the antipode.
	if a > 1 {
		a = 1
	} else if a < 0 {
		a = 0
	}
	return 2 * math.Asin(math.Sqrt(a))
}

// Distance is Haversine on LonLat values.
func Distance(a, b LonLat) float64 {
	return Haversine(a.Lon, a.Lat, b.Lon, b.Lat)
}

// Distances broadcasts Haversine over every (query, ref) pair and returns a
// len(queries) x len(refs) matrix of angles.
func Distances(queries, refs []LonLat) [][]float64 {
	out := make([][]float64, len(queries))
	for i, q := range queries {
		row := make([]float64, len(refs))
		for j, r := range refs {
			row[j] = Haversine(q.Lon, q.Lat, r.Lon, r.Lat)
		}
		out[i] = row
	}
	return out
}

// lonDelta is |lon2 - lon1| wrapped onto [0, pi]. Taking the magnitude first
// keeps Haversine exactly symmetric in its arguments.
func lonDelta(lon1, lon2 float64) float64 {
	d := FloorMod(math.Abs(lon2-lon1), 2*math.Pi)
	if d > math.Pi {
		d = 2*math.Pi - d
	}
	return d
}

// FloorMod is the modulo whose result takes the sign of m, so negative inputs
// wrap into [0, m).
func FloorMod(x, m float64) float64 {
	r := math.Mod(x, m)
	if r < 0 {
		r += m
	}
	return r
}

// NormalizeLon maps a longitude in degrees into [-180, 180).
func NormalizeLon(lonDeg float64) float64 {
	return FloorMod(lonDeg+180, 360) - 180
}
