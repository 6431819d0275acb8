package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/siderium/astrocalc/pkg/astro"
	"github.com/siderium/astrocalc/pkg/engine"
)

// Canonical workflow names.
const (
	BirthBlueprint  = "birth-blueprint"
	DailyPractice   = "daily-practice"
	DecisionSupport = "decision-support"
	SelfInquiry     = "self-inquiry"
	FullSpectrum    = "full-spectrum"
)

// Workflow input parameter keys. Each step picks the subset it needs and
// remaps it onto its engine's parameter names.
const (
	// ParamBirthInstant is the birth moment, RFC3339.
	ParamBirthInstant = "birth_instant"
	// ParamBirthDate is the birth date, YYYY-MM-DD.
	ParamBirthDate = "birth_date"
	// ParamDate is the target calendar date, YYYY-MM-DD.
	ParamDate = "date"
	// ParamInstant is the target moment, RFC3339.
	ParamInstant = "instant"
	// ParamLongitude is the observer longitude in degrees east.
	ParamLongitude = "lon"
)

// pick builds a step parameter function that copies the listed keys from
// the workflow input, renaming "from->to" pairs given as "from:to".
func pick(keys ...string) func(map[string]string) map[string]string {
	return func(input map[string]string) map[string]string {
		out := make(map[string]string, len(keys))
		for _, key := range keys {
			from, to := key, key
			for i := 0; i < len(key); i++ {
				if key[i] == ':' {
					from, to = key[:i], key[i+1:]
					break
				}
			}
			if v, ok := input[from]; ok {
				out[to] = v
			}
		}
		return out
	}
}

// CanonicalWorkflows returns the built-in workflow definitions.
func CanonicalWorkflows() []Spec {
	return []Spec{
		{
			Name:        BirthBlueprint,
			Description: "Natal panchanga, luminaries and life path for a birth moment",
			Steps: []Step{
				{Name: "natal-panchanga", EngineID: astro.EnginePanchanga, Params: pick("birth_instant:instant"), Required: true},
				{Name: "natal-sun", EngineID: astro.EngineSolarLongitude, Params: pick("birth_instant:instant"), Required: true},
				{Name: "natal-moon", EngineID: astro.EngineLunarLongitude, Params: pick("birth_instant:instant"), Required: true},
				{Name: "life-path", EngineID: astro.EngineNumerology, Params: pick(ParamBirthDate), Required: true},
			},
			Synthesize: synthesizeBirthBlueprint,
		},
		{
			Name:        DailyPractice,
			Description: "Panchanga and planetary hour guidance for the current day",
			Steps: []Step{
				{Name: "panchanga", EngineID: astro.EnginePanchanga, Params: pick(ParamDate), Required: true},
				{Name: "vedic-clock", EngineID: astro.EngineVedicClock, Params: pick(ParamInstant, ParamLongitude), Required: true},
				{Name: "biorhythm", EngineID: astro.EngineBiorhythm, Params: pick(ParamBirthDate, ParamDate), Required: false},
			},
			Synthesize: synthesizeDailyPractice,
		},
		{
			Name:        DecisionSupport,
			Description: "Timing quality signals for a decision moment",
			Steps: []Step{
				{Name: "panchanga", EngineID: astro.EnginePanchanga, Params: pick(ParamDate), Required: true},
				{Name: "vedic-clock", EngineID: astro.EngineVedicClock, Params: pick(ParamInstant, ParamLongitude), Required: true},
				{Name: "moon", EngineID: astro.EngineLunarLongitude, Params: pick(ParamInstant), Required: false},
				{Name: "biorhythm", EngineID: astro.EngineBiorhythm, Params: pick(ParamBirthDate, ParamDate), Required: false},
			},
		},
		{
			Name:        SelfInquiry,
			Description: "Personal cycle position from birth data",
			Steps: []Step{
				{Name: "life-path", EngineID: astro.EngineNumerology, Params: pick(ParamBirthDate), Required: true},
				{Name: "biorhythm", EngineID: astro.EngineBiorhythm, Params: pick(ParamBirthDate, ParamDate), Required: true},
				{Name: "natal-panchanga", EngineID: astro.EnginePanchanga, Params: pick("birth_instant:instant"), Required: false},
			},
		},
		{
			Name:        FullSpectrum,
			Description: "Every engine over the same birth and target data",
			MaxConcurrent: 6,
			Steps: []Step{
				{Name: "natal-panchanga", EngineID: astro.EnginePanchanga, Params: pick("birth_instant:instant"), Required: true},
				{Name: "panchanga", EngineID: astro.EnginePanchanga, Params: pick(ParamDate), Required: true},
				{Name: "sun", EngineID: astro.EngineSolarLongitude, Params: pick(ParamInstant), Required: true},
				{Name: "moon", EngineID: astro.EngineLunarLongitude, Params: pick(ParamInstant), Required: true},
				{Name: "vedic-clock", EngineID: astro.EngineVedicClock, Params: pick(ParamInstant, ParamLongitude), Required: false},
				{Name: "biorhythm", EngineID: astro.EngineBiorhythm, Params: pick(ParamBirthDate, ParamDate), Required: false},
				{Name: "life-path", EngineID: astro.EngineNumerology, Params: pick(ParamBirthDate), Required: false},
			},
		},
	}
}

func synthesizeBirthBlueprint(steps map[string]*engine.Result) (json.RawMessage, error) {
	var panchanga astro.Panchanga
	if err := decodeStep(steps, "natal-panchanga", &panchanga); err != nil {
		return nil, err
	}
	var lifePath astro.LifePath
	if err := decodeStep(steps, "life-path", &lifePath); err != nil {
		return nil, err
	}

	summary := map[string]any{
		"moon_nakshatra": panchanga.NakshatraName,
		"tithi":          panchanga.TithiName,
		"paksha":         panchanga.Paksha,
		"vara":           panchanga.VaraName,
		"life_path":      lifePath.Number,
	}
	if sun, ok := steps["natal-sun"]; ok {
		summary["sun_longitude"] = astro.ExtractLongitude(sun.Data)
	}
	if moon, ok := steps["natal-moon"]; ok {
		summary["moon_longitude"] = astro.ExtractLongitude(moon.Data)
	}
	return json.Marshal(summary)
}

func synthesizeDailyPractice(steps map[string]*engine.Result) (json.RawMessage, error) {
	var panchanga astro.Panchanga
	if err := decodeStep(steps, "panchanga", &panchanga); err != nil {
		return nil, err
	}

	summary := map[string]any{
		"tithi":     panchanga.TithiName,
		"nakshatra": panchanga.NakshatraName,
		"yoga":      panchanga.YogaName,
		"vara":      panchanga.VaraName,
	}
	if clock, ok := steps["vedic-clock"]; ok {
		var probe struct {
			HoraLord string `json:"hora_lord"`
		}
		if err := json.Unmarshal(clock.Data, &probe); err == nil {
			summary["hora_lord"] = probe.HoraLord
		}
	}
	return json.Marshal(summary)
}

// decodeStep unmarshals a required step's payload.
func decodeStep(steps map[string]*engine.Result, name string, into any) error {
	res, ok := steps[name]
	if !ok {
		return fmt.Errorf("step %q missing from synthesis input", name)
	}
	if err := json.Unmarshal(res.Data, into); err != nil {
		return fmt.Errorf("decoding step %q: %w", name, err)
	}
	return nil
}
