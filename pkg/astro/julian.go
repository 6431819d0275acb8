// Package astro implements the closed-form local calculation routines:
// solar and lunar positions, panchanga elements, biorhythm cycles and
// numerology reductions. These are the fast approximate backends and the
// fallback routines used when the authoritative API is unavailable.
package astro

import (
	"math"
	"time"
)

// J2000 is the Julian day of the J2000.0 epoch (2000-01-01 12:00 TT).
const J2000 = 2451545.0

// JulianDay converts a UTC timestamp to a Julian day number including the
// fractional day.
func JulianDay(t time.Time) float64 {
	t = t.UTC()
	y := t.Year()
	m := int(t.Month())
	if m <= 2 {
		y--
		m += 12
	}
	a := y / 100
	b := 2 - a + a/4

	dayFrac := float64(t.Hour())/24 + float64(t.Minute())/1440 + float64(t.Second())/86400
	day := float64(t.Day()) + dayFrac

	return math.Floor(365.25*float64(y+4716)) +
		math.Floor(30.6001*float64(m+1)) +
		day + float64(b) - 1524.5
}

// JulianDate converts a civil date (midnight UTC) to its Julian day.
func JulianDate(year int, month time.Month, day int) float64 {
	return JulianDay(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// normalizeDegrees reduces an angle to [0, 360).
func normalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

func sinDeg(deg float64) float64 { return math.Sin(deg * math.Pi / 180) }
