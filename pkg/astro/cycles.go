package astro

import (
	"math"
	"time"
)

// Biorhythm holds the three classic sinusoidal cycles, each in [-1, 1].
type Biorhythm struct {
	Physical     float64 `json:"physical"`
	Emotional    float64 `json:"emotional"`
	Intellectual float64 `json:"intellectual"`
	DaysAlive    int     `json:"days_alive"`
}

// BiorhythmFor evaluates the cycles for a target date given a birth date.
func BiorhythmFor(birth, target time.Time) Biorhythm {
	days := int(target.UTC().Truncate(24*time.Hour).Sub(birth.UTC().Truncate(24*time.Hour)).Hours() / 24)
	d := float64(days)
	return Biorhythm{
		Physical:     math.Sin(2 * math.Pi * d / 23),
		Emotional:    math.Sin(2 * math.Pi * d / 28),
		Intellectual: math.Sin(2 * math.Pi * d / 33),
		DaysAlive:    days,
	}
}

// LifePath holds a numerology life-path reduction.
type LifePath struct {
	Number   int  `json:"number"`
	IsMaster bool `json:"is_master"`
}

// LifePathFor reduces a birth date to its life-path number. Master
// numbers 11, 22 and 33 are preserved unreduced.
func LifePathFor(birth time.Time) LifePath {
	sum := digitSum(birth.Year()) + digitSum(int(birth.Month())) + digitSum(birth.Day())
	for sum > 9 && sum != 11 && sum != 22 && sum != 33 {
		sum = digitSum(sum)
	}
	return LifePath{Number: sum, IsMaster: sum == 11 || sum == 22 || sum == 33}
}

func digitSum(n int) int {
	s := 0
	for n > 0 {
		s += n % 10
		n /= 10
	}
	return s
}
