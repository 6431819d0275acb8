package astro

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/siderium/astrocalc/pkg/engine"
)

// Engine identifiers served by the local backend.
const (
	EngineSolarLongitude = "solar-longitude"
	EngineLunarLongitude = "lunar-longitude"
	EnginePanchanga      = "panchanga"
	EngineBiorhythm      = "biorhythm"
	EngineNumerology     = "numerology"
	EngineVedicClock     = "vedic-clock"
)

// Catalog lists the calculation types the local backend serves, with
// their cache freshness classes.
func Catalog() []engine.Info {
	return []engine.Info{
		{ID: EngineSolarLongitude, Name: "Solar Longitude", Freshness: engine.FreshnessImmutable},
		{ID: EngineLunarLongitude, Name: "Lunar Longitude", Freshness: engine.FreshnessImmutable},
		{ID: EnginePanchanga, Name: "Panchanga", Freshness: engine.FreshnessDaily},
		{ID: EngineBiorhythm, Name: "Biorhythm", Freshness: engine.FreshnessDaily},
		{ID: EngineNumerology, Name: "Numerology", Freshness: engine.FreshnessImmutable},
		{ID: EngineVedicClock, Name: "Vedic Clock", Freshness: engine.FreshnessShortLived},
	}
}

// Backend serves the closed-form routines in this package. It satisfies
// engine.Backend so the router can treat it like any other strategy.
type Backend struct {
	supported map[string]bool
}

// NewBackend creates the local backend serving the full catalog.
func NewBackend() *Backend {
	supported := make(map[string]bool)
	for _, info := range Catalog() {
		supported[info.ID] = true
	}
	return &Backend{supported: supported}
}

// Name implements engine.Backend.
func (b *Backend) Name() string { return "local" }

// Supports implements engine.Backend.
func (b *Backend) Supports(engineID string) bool { return b.supported[engineID] }

// Calculate implements engine.Backend. The routines are pure functions;
// the only failure mode on valid types is a malformed parameter.
func (b *Backend) Calculate(ctx context.Context, req engine.Request) (*engine.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()

	var payload any
	var err error
	switch req.EngineID {
	case EngineSolarLongitude:
		payload, err = b.solarLongitude(req)
	case EngineLunarLongitude:
		payload, err = b.lunarLongitude(req)
	case EnginePanchanga:
		payload, err = b.panchanga(req)
	case EngineBiorhythm:
		payload, err = b.biorhythm(req)
	case EngineNumerology:
		payload, err = b.numerology(req)
	case EngineVedicClock:
		payload, err = b.vedicClock(req)
	default:
		return nil, fmt.Errorf("%w: %s", engine.ErrEngineUnavailable, req.EngineID)
	}
	if err != nil {
		return nil, &engine.CalculationError{EngineID: req.EngineID, Backend: b.Name(), Err: err}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &engine.CalculationError{EngineID: req.EngineID, Backend: b.Name(), Err: err}
	}

	return &engine.Result{
		EngineID: req.EngineID,
		Data:     data,
		Meta: engine.Metadata{
			Backend:   b.Name(),
			Precision: engine.PrecisionStandard,
			Elapsed:   time.Since(start),
			Timestamp: time.Now().UTC(),
		},
	}, nil
}

type longitudeResult struct {
	Longitude float64 `json:"longitude"`
	JulianDay float64 `json:"julian_day"`
}

func (b *Backend) solarLongitude(req engine.Request) (any, error) {
	jd, err := julianDayParam(req)
	if err != nil {
		return nil, err
	}
	return longitudeResult{Longitude: SolarLongitude(jd), JulianDay: jd}, nil
}

func (b *Backend) lunarLongitude(req engine.Request) (any, error) {
	jd, err := julianDayParam(req)
	if err != nil {
		return nil, err
	}
	return longitudeResult{Longitude: LunarLongitude(jd), JulianDay: jd}, nil
}

func (b *Backend) panchanga(req engine.Request) (any, error) {
	jd, err := julianDayParam(req)
	if err != nil {
		return nil, err
	}
	return PanchangaFor(jd), nil
}

func (b *Backend) biorhythm(req engine.Request) (any, error) {
	birth, err := dateParam(req, "birth_date")
	if err != nil {
		return nil, err
	}
	target, err := dateParam(req, "date")
	if err != nil {
		return nil, err
	}
	return BiorhythmFor(birth, target), nil
}

func (b *Backend) numerology(req engine.Request) (any, error) {
	birth, err := dateParam(req, "birth_date")
	if err != nil {
		return nil, err
	}
	return LifePathFor(birth), nil
}

// horaLords is the Chaldean order used for planetary hours.
var horaLords = [7]string{"Sun", "Venus", "Mercury", "Moon", "Saturn", "Jupiter", "Mars"}

type vedicClockResult struct {
	HoraLord  string  `json:"hora_lord"`
	HourIndex int     `json:"hour_index"`
	Vara      string  `json:"vara"`
	MoonPhase float64 `json:"moon_phase_deg"`
}

func (b *Backend) vedicClock(req engine.Request) (any, error) {
	instant, err := timeParam(req, "instant")
	if err != nil {
		return nil, err
	}
	jd := JulianDay(instant)
	p := PanchangaFor(jd)

	// Planetary hours counted from local 06:00; longitude shifts local time.
	lon := 0.0
	if raw, ok := req.Params["lon"]; ok {
		if lon, err = strconv.ParseFloat(raw, 64); err != nil {
			return nil, fmt.Errorf("parameter lon: %w", err)
		}
	}
	local := instant.UTC().Add(time.Duration(lon/15.0*float64(time.Hour)) - 6*time.Hour)
	hour := local.Hour()

	dayLord := []int{0, 3, 6, 2, 5, 1, 4}[(p.Vara-1)%7]
	lord := horaLords[(dayLord+hour)%7]

	return vedicClockResult{
		HoraLord:  lord,
		HourIndex: hour,
		Vara:      p.VaraName,
		MoonPhase: normalizeDegrees(p.LunarLongitude - p.SolarLongitude),
	}, nil
}

// julianDayParam accepts either an "instant" timestamp or a "date" for
// engines keyed on a moment in time.
func julianDayParam(req engine.Request) (float64, error) {
	if _, ok := req.Params["instant"]; ok {
		t, err := timeParam(req, "instant")
		if err != nil {
			return 0, err
		}
		return JulianDay(t), nil
	}
	t, err := dateParam(req, "date")
	if err != nil {
		return 0, err
	}
	return JulianDay(t), nil
}

func timeParam(req engine.Request, key string) (time.Time, error) {
	raw, ok := req.Params[key]
	if !ok {
		return time.Time{}, fmt.Errorf("missing parameter %q", key)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parameter %q: %w", key, err)
	}
	return t, nil
}

func dateParam(req engine.Request, key string) (time.Time, error) {
	raw, ok := req.Params[key]
	if !ok {
		return time.Time{}, fmt.Errorf("missing parameter %q", key)
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parameter %q: %w", key, err)
	}
	return t, nil
}

// ExtractLongitude pulls the compared field out of a longitude result for
// cross-validation. Returns NaN when the payload has no longitude.
func ExtractLongitude(data json.RawMessage) float64 {
	var probe struct {
		Longitude      *float64 `json:"longitude"`
		SolarLongitude *float64 `json:"solar_longitude"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return math.NaN()
	}
	if probe.Longitude != nil {
		return *probe.Longitude
	}
	if probe.SolarLongitude != nil {
		return *probe.SolarLongitude
	}
	return math.NaN()
}
