// Package solar provides a low-precision solar ephemeris for day/night
// weighting of ionospheric soundings.
//
// Accuracy is a few tenths of a degree, which is plenty to shade a
// propagation map and nowhere near good enough for astronomy.
package solar

import (
	"math"
	"time"
)

// Ephemeris constants (degrees unless noted).
const (
	unixEpochJD = 2440587.5 // Julian date of 1970-01-01T00:00Z
	j2000JD     = 2451545.0 // Julian date of 2000-01-01T12:00Z
	obliquity   = 23.439    // Mean obliquity of the ecliptic
)

// Position is the Sun's apparent place at an instant.
type Position struct {
	Declination float64 // Radians
	GMST        float64 // Greenwich mean sidereal time, degrees in [0, 360)
}

// JulianDate converts t to a Julian date.
func JulianDate(t time.Time) float64 {
	return float64(t.UnixNano())/86400e9 + unixEpochJD
}

// At computes the Sun's declination and Greenwich sidereal time at t.
func At(t time.Time) Position {
	n := JulianDate(t) - j2000JD

	meanLon := rad(mod360(280.46 + 0.9856474*n))
	anomaly := rad(mod360(357.528 + 0.9856003*n))

	// Ecliptic longitude with the two leading equation-of-centre terms.
	eclLon := meanLon + rad(1.915*math.Sin(anomaly)+0.020*math.Sin(2*anomaly))
	decl := math.Asin(math.Sin(rad(obliquity)) * math.Sin(eclLon))

	return Position{
		Declination: decl,
		GMST:        mod360(280.46061837 + 360.98564736629*n),
	}
}

// CosZenith returns the cosine of the solar zenith angle at (lat, lon) in
// degrees, clamped to [0, 1]. Zero means the Sun is at or below the horizon.
func CosZenith(lat, lon float64, t time.Time) float64 {
	return At(t).CosZenith(lat, lon)
}

// CosZenith evaluates the zenith cosine for a precomputed position, so a
// whole grid can share one ephemeris evaluation.
func (p Position) CosZenith(lat, lon float64) float64 {
	hourAngle := rad(mod360(lon+p.GMST+540) - 180)
	phi := rad(lat)

	mu0 := math.Sin(phi)*math.Sin(p.Declination) +
		math.Cos(phi)*math.Cos(p.Declination)*math.Cos(hourAngle)

	switch {
	case mu0 < 0:
		return 0
	case mu0 > 1:
		return 1
	}
	return mu0
}

// Subsolar returns the latitude and longitude in degrees where the Sun is
// overhead. Longitude is in [-180, 180).
func (p Position) Subsolar() (lat, lon float64) {
	lat = p.Declination * 180 / math.Pi
	lon = mod360(180-p.GMST) - 180
	return lat, lon
}

// SubsolarPoint returns where the Sun is overhead at t, in degrees.
func SubsolarPoint(t time.Time) (lat, lon float64) {
	return At(t).Subsolar()
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }

// mod360 wraps into [0, 360) for negative inputs as well.
func mod360(x float64) float64 {
	r := math.Mod(x, 360)
	if r < 0 {
		r += 360
	}
	return r
}
