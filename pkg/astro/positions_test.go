package astro

import (
	"math"
	"testing"
	"time"
)

// angularDiff is the smallest separation between two angles in degrees.
func angularDiff(a, b float64) float64 {
	d := math.Abs(normalizeDegrees(a) - normalizeDegrees(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}

func TestJulianDayEpochs(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want float64
	}{
		{"J2000 epoch", time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC), 2451545.0},
		{"J2000 midnight", time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), 2451544.5},
		{"1999 new year", time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC), 2451179.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JulianDay(tt.in)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("JulianDay(%s) = %f, want %f", tt.in, got, tt.want)
			}
		})
	}
}

func TestJulianDayConvertsToUTC(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	if JulianDay(time.Date(2000, 1, 1, 7, 0, 0, 0, est)) != JulianDay(time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)) {
		t.Error("same instant in different zones gave different Julian days")
	}
}

func TestSolarLongitudeSeasons(t *testing.T) {
	tests := []struct {
		name string
		when time.Time
		want float64
	}{
		// Equinox and solstice instants; the low-precision series should
		// land within half a degree.
		{"march equinox 2024", time.Date(2024, 3, 20, 3, 6, 0, 0, time.UTC), 0},
		{"june solstice 2024", time.Date(2024, 6, 20, 20, 51, 0, 0, time.UTC), 90},
		{"september equinox 2024", time.Date(2024, 9, 22, 12, 44, 0, 0, time.UTC), 180},
		{"december solstice 2024", time.Date(2024, 12, 21, 9, 20, 0, 0, time.UTC), 270},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SolarLongitude(JulianDay(tt.when))
			if diff := angularDiff(got, tt.want); diff > 0.5 {
				t.Errorf("SolarLongitude = %.4f, want %.1f within 0.5 deg (off by %.4f)", got, tt.want, diff)
			}
		})
	}
}

func TestLunarPhaseAngleAtSyzygies(t *testing.T) {
	tests := []struct {
		name string
		when time.Time
		want float64
	}{
		{"full moon 2024-04-23", time.Date(2024, 4, 23, 23, 49, 0, 0, time.UTC), 180},
		{"new moon 2024-04-08", time.Date(2024, 4, 8, 18, 21, 0, 0, time.UTC), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LunarPhaseAngle(JulianDay(tt.when))
			// The truncated lunar series is good to roughly half a degree;
			// allow a full degree for the combined error.
			if diff := angularDiff(got, tt.want); diff > 1.0 {
				t.Errorf("LunarPhaseAngle = %.4f, want %.1f within 1 deg (off by %.4f)", got, tt.want, diff)
			}
		})
	}
}

func TestLongitudesNormalized(t *testing.T) {
	for n := 0; n < 1000; n++ {
		jd := J2000 + float64(n)*37.3
		for _, lon := range []float64{SolarLongitude(jd), LunarLongitude(jd)} {
			if lon < 0 || lon >= 360 {
				t.Fatalf("longitude %f out of [0, 360) at jd %f", lon, jd)
			}
		}
	}
}

func TestPanchangaFullMoon(t *testing.T) {
	p := PanchangaFor(JulianDay(time.Date(2024, 4, 23, 20, 0, 0, 0, time.UTC)))

	if p.TithiName != "Purnima" {
		t.Errorf("tithi at full moon = %s (%d), want Purnima", p.TithiName, p.Tithi)
	}
	if p.Paksha != "Shukla" {
		t.Errorf("paksha at full moon = %s, want Shukla", p.Paksha)
	}
}

func TestPanchangaRanges(t *testing.T) {
	for n := 0; n < 366; n++ {
		p := PanchangaFor(JulianDate(2024, time.January, 1) + float64(n))
		if p.Tithi < 1 || p.Tithi > 30 {
			t.Fatalf("tithi %d out of range on day %d", p.Tithi, n)
		}
		if p.Nakshatra < 1 || p.Nakshatra > 27 {
			t.Fatalf("nakshatra %d out of range on day %d", p.Nakshatra, n)
		}
		if p.Pada < 1 || p.Pada > 4 {
			t.Fatalf("pada %d out of range on day %d", p.Pada, n)
		}
		if p.Yoga < 1 || p.Yoga > 27 {
			t.Fatalf("yoga %d out of range on day %d", p.Yoga, n)
		}
		if p.Karana < 1 || p.Karana > 60 {
			t.Fatalf("karana %d out of range on day %d", p.Karana, n)
		}
		if p.Vara < 1 || p.Vara > 7 {
			t.Fatalf("vara %d out of range on day %d", p.Vara, n)
		}
	}
}

func TestPanchangaVaraWeekday(t *testing.T) {
	// 2000-01-01 was a Saturday.
	p := PanchangaFor(JulianDate(2000, time.January, 1))
	if p.VaraName != "Shanivara" {
		t.Errorf("vara for 2000-01-01 = %s, want Shanivara", p.VaraName)
	}
}

func TestBiorhythmAtBirth(t *testing.T) {
	birth := time.Date(1990, 3, 15, 0, 0, 0, 0, time.UTC)
	b := BiorhythmFor(birth, birth)

	if b.DaysAlive != 0 {
		t.Errorf("days alive at birth = %d, want 0", b.DaysAlive)
	}
	for name, v := range map[string]float64{
		"physical": b.Physical, "emotional": b.Emotional, "intellectual": b.Intellectual,
	} {
		if math.Abs(v) > 1e-9 {
			t.Errorf("%s cycle at birth = %f, want 0", name, v)
		}
	}
}

func TestBiorhythmFullCycle(t *testing.T) {
	birth := time.Date(1990, 3, 15, 0, 0, 0, 0, time.UTC)
	b := BiorhythmFor(birth, birth.AddDate(0, 0, 23))

	if b.DaysAlive != 23 {
		t.Errorf("days alive = %d, want 23", b.DaysAlive)
	}
	// One full physical cycle returns to zero.
	if math.Abs(b.Physical) > 1e-9 {
		t.Errorf("physical after one full cycle = %f, want 0", b.Physical)
	}
}

func TestLifePathReduction(t *testing.T) {
	tests := []struct {
		date   string
		number int
		master bool
	}{
		{"1990-03-15", 1, false}, // 19+3+6 = 28 -> 10 -> 1
		{"2000-01-01", 4, false}, // 2+1+1 = 4
		{"1900-05-16", 22, true}, // 10+5+7 = 22, preserved
	}

	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			birth, err := time.Parse("2006-01-02", tt.date)
			if err != nil {
				t.Fatal(err)
			}
			got := LifePathFor(birth)
			if got.Number != tt.number {
				t.Errorf("life path = %d, want %d", got.Number, tt.number)
			}
			if got.IsMaster != tt.master {
				t.Errorf("is master = %v, want %v", got.IsMaster, tt.master)
			}
		})
	}
}
