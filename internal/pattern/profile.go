package pattern

import (
	"sort"
	"strconv"
	"time"

	"github.com/mrcode/glucocopilot/internal/models"
)

const (
	minCorrectionSamples = 5
	minMealSamples       = 5
	defaultISF           = 2.8 // mmol/L per unit, "1800 rule" scaled fallback
	defaultCR            = 10  // g per unit, "500 rule" scaled fallback
)

type correctionObservation struct {
	ts    int64
	ratio float64 // observed mmol drop per unit
}

type mealObservation struct {
	ts    int64
	ratio float64 // observed grams per unit
}

// findCorrectionEvents pairs correction_bolus events with the glucose drop observed over the
// following 3 hours (excluding windows contaminated by carbs), grounded on the teacher's
// findCorrectionEvents.
func findCorrectionEvents(glucose []models.GlucosePoint, therapy []models.TherapyEvent) []correctionObservation {
	var out []correctionObservation
	for _, e := range therapy {
		if e.Kind != models.KindCorrectionBolus {
			continue
		}
		unitsStr, ok := e.Get("units")
		if !ok {
			continue
		}
		units, err := strconv.ParseFloat(unitsStr, 64)
		if err != nil || units <= 0 {
			continue
		}
		if hasCarbsNear(therapy, e.TsMillis, 3*time.Hour) {
			continue
		}
		before, ok1 := nearestGlucose(glucose, e.TsMillis, -15*time.Minute)
		after, ok2 := nearestGlucose(glucose, e.TsMillis, 3*time.Hour)
		if !ok1 || !ok2 {
			continue
		}
		drop := before.ValueMmol - after.ValueMmol
		if drop <= 0 {
			continue
		}
		out = append(out, correctionObservation{ts: e.TsMillis, ratio: drop / units})
	}
	return out
}

// findMealEvents collects the grams-per-unit ratio recorded on each meal_bolus event; glucose
// readings are not consulted. Grounded on the teacher's findMealEvents.
func findMealEvents(glucose []models.GlucosePoint, therapy []models.TherapyEvent) []mealObservation {
	var out []mealObservation
	for _, e := range therapy {
		if e.Kind != models.KindMealBolus {
			continue
		}
		gramsStr, ok1 := e.Get("grams")
		unitsStr, ok2 := e.Get("units")
		if !ok1 || !ok2 {
			continue
		}
		grams, err1 := strconv.ParseFloat(gramsStr, 64)
		units, err2 := strconv.ParseFloat(unitsStr, 64)
		if err1 != nil || err2 != nil || units <= 0 || grams <= 0 {
			continue
		}
		out = append(out, mealObservation{ts: e.TsMillis, ratio: grams / units})
	}
	return out
}

func hasCarbsNear(therapy []models.TherapyEvent, ts int64, window time.Duration) bool {
	w := window.Milliseconds()
	for _, e := range therapy {
		if e.Kind != models.KindCarbs && e.Kind != models.KindMealBolus {
			continue
		}
		if abs64(e.TsMillis-ts) <= w {
			return true
		}
	}
	return false
}

func nearestGlucose(glucose []models.GlucosePoint, ts int64, offset time.Duration) (models.GlucosePoint, bool) {
	target := ts + offset.Milliseconds()
	best := models.GlucosePoint{}
	bestDiff := int64(1 << 62)
	found := false
	for _, g := range glucose {
		d := abs64(g.TsMillis - target)
		if d < bestDiff && d <= 10*60*1000 {
			bestDiff = d
			best = g
			found = true
		}
	}
	return best, found
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// Estimate computes the overall ISF/CR estimate plus per-(dayType,timeSlot) segments.
func Estimate(glucose []models.GlucosePoint, therapy []models.TherapyEvent, lookbackDays int) models.ProfileEstimate {
	corrections := findCorrectionEvents(glucose, therapy)
	meals := findMealEvents(glucose, therapy)

	isf, isfConf := estimateISF(corrections)
	cr, crConf := estimateCR(meals)
	confidence := clip((isfConf+crConf)/2, 0.2, 0.99)

	segments := estimateSegments(glucose, therapy)

	return models.ProfileEstimate{
		ISF:          isf,
		CR:           cr,
		SampleCount:  len(corrections) + len(meals),
		Confidence:   confidence,
		LookbackDays: lookbackDays,
		Segments:     segments,
	}
}

func estimateISF(obs []correctionObservation) (float64, float64) {
	if len(obs) < minCorrectionSamples {
		return defaultISF, 0.2
	}
	ratios := make([]float64, len(obs))
	for i, o := range obs {
		ratios[i] = o.ratio
	}
	m := median(ratios)
	conf := clip(float64(len(obs))/30.0, 0.2, 0.95)
	return clip(m, 0.5, 10.0), conf
}

func estimateCR(obs []mealObservation) (float64, float64) {
	if len(obs) < minMealSamples {
		return defaultCR, 0.2
	}
	ratios := make([]float64, len(obs))
	for i, o := range obs {
		ratios[i] = o.ratio
	}
	m := median(ratios)
	conf := clip(float64(len(obs))/30.0, 0.2, 0.95)
	return clip(m, 3.0, 40.0), conf
}

func estimateSegments(glucose []models.GlucosePoint, therapy []models.TherapyEvent) []models.ProfileSegmentEstimate {
	type segKey struct {
		dayType models.DayType
		slot    models.TimeSlot
	}
	corrByKey := make(map[segKey][]correctionObservation)
	mealByKey := make(map[segKey][]mealObservation)

	for _, o := range findCorrectionEvents(glucose, therapy) {
		t := time.UnixMilli(o.ts).UTC()
		key := segKey{dayType: dayTypeOf(t), slot: models.TimeSlotForHour(t.Hour())}
		corrByKey[key] = append(corrByKey[key], o)
	}
	for _, o := range findMealEvents(glucose, therapy) {
		t := time.UnixMilli(o.ts).UTC()
		key := segKey{dayType: dayTypeOf(t), slot: models.TimeSlotForHour(t.Hour())}
		mealByKey[key] = append(mealByKey[key], o)
	}

	keys := make(map[segKey]bool)
	for k := range corrByKey {
		keys[k] = true
	}
	for k := range mealByKey {
		keys[k] = true
	}

	out := make([]models.ProfileSegmentEstimate, 0, len(keys))
	for k := range keys {
		isf, isfConf := estimateISF(corrByKey[k])
		cr, crConf := estimateCR(mealByKey[k])
		out = append(out, models.ProfileSegmentEstimate{
			DayType:     k.dayType,
			Slot:        k.slot,
			ISF:         isf,
			CR:          cr,
			SampleCount: len(corrByKey[k]) + len(mealByKey[k]),
			Confidence:  clip((isfConf+crConf)/2, 0.2, 0.95),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayType != out[j].DayType {
			return out[i].DayType < out[j].DayType
		}
		return out[i].Slot < out[j].Slot
	})
	return out
}
