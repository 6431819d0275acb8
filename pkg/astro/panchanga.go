package astro

import "math"

// Panchanga holds the five limbs of the Vedic calendar for one day plus
// the longitudes they were derived from.
type Panchanga struct {
	Tithi          int     `json:"tithi"`
	TithiName      string  `json:"tithi_name"`
	Paksha         string  `json:"paksha"`
	Nakshatra      int     `json:"nakshatra"`
	NakshatraName  string  `json:"nakshatra_name"`
	Pada           int     `json:"pada"`
	Yoga           int     `json:"yoga"`
	YogaName       string  `json:"yoga_name"`
	Karana         int     `json:"karana"`
	Vara           int     `json:"vara"`
	VaraName       string  `json:"vara_name"`
	SolarLongitude float64 `json:"solar_longitude"`
	LunarLongitude float64 `json:"lunar_longitude"`
}

var tithiNames = [30]string{
	"Pratipada", "Dwitiya", "Tritiya", "Chaturthi", "Panchami",
	"Shashthi", "Saptami", "Ashtami", "Navami", "Dashami",
	"Ekadashi", "Dwadashi", "Trayodashi", "Chaturdashi", "Purnima",
	"Pratipada", "Dwitiya", "Tritiya", "Chaturthi", "Panchami",
	"Shashthi", "Saptami", "Ashtami", "Navami", "Dashami",
	"Ekadashi", "Dwadashi", "Trayodashi", "Chaturdashi", "Amavasya",
}

var nakshatraNames = [27]string{
	"Ashwini", "Bharani", "Krittika", "Rohini", "Mrigashira",
	"Ardra", "Punarvasu", "Pushya", "Ashlesha", "Magha",
	"Purva Phalguni", "Uttara Phalguni", "Hasta", "Chitra", "Swati",
	"Vishakha", "Anuradha", "Jyeshtha", "Mula", "Purva Ashadha",
	"Uttara Ashadha", "Shravana", "Dhanishta", "Shatabhisha",
	"Purva Bhadrapada", "Uttara Bhadrapada", "Revati",
}

var yogaNames = [27]string{
	"Vishkambha", "Priti", "Ayushman", "Saubhagya", "Shobhana",
	"Atiganda", "Sukarma", "Dhriti", "Shula", "Ganda",
	"Vriddhi", "Dhruva", "Vyaghata", "Harshana", "Vajra",
	"Siddhi", "Vyatipata", "Variyana", "Parigha", "Shiva",
	"Siddha", "Sadhya", "Shubha", "Shukla", "Brahma",
	"Indra", "Vaidhriti",
}

var varaNames = [7]string{
	"Ravivara", "Somavara", "Mangalavara", "Budhavara",
	"Guruvara", "Shukravara", "Shanivara",
}

// PanchangaFor computes all five limbs for the given Julian day.
func PanchangaFor(jd float64) Panchanga {
	sun := SolarLongitude(jd)
	moon := LunarLongitude(jd)
	elongation := normalizeDegrees(moon - sun)

	// One tithi spans 12 degrees of elongation, 1..30.
	tithi := int(math.Floor(elongation/12)) + 1
	if tithi > 30 {
		tithi = 30
	}
	paksha := "Shukla"
	if tithi > 15 {
		paksha = "Krishna"
	}

	// 27 nakshatras of 13°20' each, with 4 padas of 3°20'.
	nakSpan := 360.0 / 27.0
	nakshatra := int(math.Floor(moon/nakSpan)) + 1
	if nakshatra > 27 {
		nakshatra = 27
	}
	pada := int(math.Floor(math.Mod(moon, nakSpan)/(nakSpan/4))) + 1

	// Yoga: sum of longitudes over the same 13°20' division.
	yoga := int(math.Floor(normalizeDegrees(sun+moon)/nakSpan)) + 1
	if yoga > 27 {
		yoga = 27
	}

	// Karana: half a tithi, 6 degrees of elongation, 1..60.
	karana := int(math.Floor(elongation/6)) + 1
	if karana > 60 {
		karana = 60
	}

	// Weekday from the Julian day; JD 0 was a Monday noon.
	vara := int(math.Mod(math.Floor(jd+1.5), 7))

	return Panchanga{
		Tithi:          tithi,
		TithiName:      tithiNames[tithi-1],
		Paksha:         paksha,
		Nakshatra:      nakshatra,
		NakshatraName:  nakshatraNames[nakshatra-1],
		Pada:           pada,
		Yoga:           yoga,
		YogaName:       yogaNames[yoga-1],
		Karana:         karana,
		Vara:           vara + 1,
		VaraName:       varaNames[vara],
		SolarLongitude: sun,
		LunarLongitude: moon,
	}
}
