package astro

// SolarLongitude computes the geocentric ecliptic longitude of the Sun in
// degrees for the given Julian day. Low-precision series, accurate to a
// few hundredths of a degree over the current century.
func SolarLongitude(jd float64) float64 {
	n := jd - J2000
	meanLongitude := normalizeDegrees(280.460 + 0.9856474*n)
	meanAnomaly := normalizeDegrees(357.528 + 0.9856003*n)
	return normalizeDegrees(meanLongitude +
		1.915*sinDeg(meanAnomaly) +
		0.020*sinDeg(2*meanAnomaly))
}

// LunarLongitude computes the geocentric ecliptic longitude of the Moon in
// degrees for the given Julian day. Truncated ELP series; the dominant
// evection and variation terms keep the error under half a degree.
func LunarLongitude(jd float64) float64 {
	n := jd - J2000
	meanLongitude := normalizeDegrees(218.316 + 13.176396*n)
	meanAnomaly := normalizeDegrees(134.963 + 13.064993*n)
	meanElongation := normalizeDegrees(297.850 + 12.190749*n)
	sunAnomaly := normalizeDegrees(357.528 + 0.9856003*n)

	return normalizeDegrees(meanLongitude +
		6.289*sinDeg(meanAnomaly) +
		1.274*sinDeg(2*meanElongation-meanAnomaly) +
		0.658*sinDeg(2*meanElongation) -
		0.186*sinDeg(sunAnomaly))
}

// LunarPhaseAngle returns the Moon-Sun elongation in degrees [0, 360).
// 0 is new moon, 180 full moon.
func LunarPhaseAngle(jd float64) float64 {
	return normalizeDegrees(LunarLongitude(jd) - SolarLongitude(jd))
}
