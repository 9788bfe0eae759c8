package predict

import (
	"sort"

	"github.com/google/uuid"

	"github.com/mrcode/glucocopilot/internal/models"
	"github.com/mrcode/glucocopilot/internal/pk"
)

// LegacyEngine is the v2 engine: a weighted-linear-trend + PK-curve forecast, grounded on the
// teacher's Predictor (short/long half-life trend blending, biexponential insulin activity,
// logistic carb absorption, confidence decay).
type LegacyEngine struct{}

const (
	trendShortHalfLifeMin = 14.0
	trendLongHalfLifeMin  = 40.0
)

// Predict implements Engine for the legacy (v2) engine.
func (LegacyEngine) Predict(_ *EngineState, now int64, glucose []models.GlucosePoint, therapy []models.TherapyEvent, profile Profile) ([]models.Forecast, error) {
	if len(glucose) == 0 {
		return nil, errNoGlucose
	}
	sort.Slice(glucose, func(i, j int) bool { return glucose[i].TsMillis < glucose[j].TsMillis })
	latest := glucose[len(glucose)-1]

	trendPer5 := weightedTrend(glucose)
	isf := profile.ISF
	if isf <= 0 {
		isf = 2.3
	}
	cr := profile.CR
	if cr <= 0 {
		cr = 10
	}
	csf := isf / cr

	insulinCurve := pk.InsulinCurve(profile.InsulinProfile)

	forecasts := make([]models.Forecast, 0, 3)
	for _, h := range []int{horizon5, horizon30, horizon60} {
		therapyDelta := therapyDeltaAt(now, float64(h), therapy, insulinCurve, isf, csf)
		trendDelta := trendContribution(trendPer5, h)
		val := models.ClampGlucose(latest.ValueMmol + trendDelta + therapyDelta)

		conf := confidenceAt(h, len(glucose))
		halfWidth := legacyCIHalfWidth(h, conf)

		forecasts = append(forecasts, models.Forecast{
			ID:             uuid.NewString(),
			TsMillis:       now,
			HorizonMinutes: h,
			ValueMmol:      val,
			CILow:          models.ClampGlucose(val - halfWidth),
			CIHigh:         models.ClampGlucose(val + halfWidth),
			ModelVersion:   "local-hybrid-v2",
		})
	}
	models.SortForecastsByHorizon(forecasts)
	return forecasts, nil
}

// weightedTrend blends a short and long half-life exponentially-weighted linear regression
// over recent glucose, in mmol per 5 minutes.
func weightedTrend(glucose []models.GlucosePoint) float64 {
	shortTrend := regressionSlopePer5(glucose, trendShortHalfLifeMin)
	longTrend := regressionSlopePer5(glucose, trendLongHalfLifeMin)
	return 0.6*shortTrend + 0.4*longTrend
}

func regressionSlopePer5(glucose []models.GlucosePoint, halfLifeMin float64) float64 {
	n := len(glucose)
	if n < 2 {
		return 0
	}
	last := glucose[n-1].TsMillis
	var sumW, sumWX, sumWY, sumWXY, sumWXX float64
	for _, g := range glucose {
		ageMin := float64(last-g.TsMillis) / 60000.0
		w := halfLifeWeight(ageMin, halfLifeMin)
		x := -ageMin
		y := g.ValueMmol
		sumW += w
		sumWX += w * x
		sumWY += w * y
		sumWXY += w * x * y
		sumWXX += w * x * x
	}
	denom := sumW*sumWXX - sumWX*sumWX
	if denom == 0 {
		return 0
	}
	slopePerMin := (sumW*sumWXY - sumWX*sumWY) / denom
	return slopePerMin * stepMinutes
}

func halfLifeWeight(ageMin, halfLifeMin float64) float64 {
	if halfLifeMin <= 0 {
		return 1
	}
	return pow2(-ageMin / halfLifeMin)
}

func pow2(x float64) float64 {
	// 2^x via exp(x*ln2); kept as a tiny local helper to avoid importing math twice for one call.
	return expLn2(x)
}

func trendContribution(trendPer5 float64, horizonMinutes int) float64 {
	steps := float64(horizonMinutes) / stepMinutes
	// Trend influence decays after 30 minutes, matching the teacher's calculateTrendEffect.
	decaySteps := steps
	if horizonMinutes > 30 {
		decaySteps = 6 + (steps-6)*0.5
	}
	return clip(trendPer5*decaySteps, -6, 6)
}

func therapyDeltaAt(now int64, horizonMinutes float64, events []models.TherapyEvent, insulinCurve pk.Curve, isf, csf float64) float64 {
	var delta float64
	for _, e := range events {
		ageNow := float64(now-e.TsMillis) / 60000.0
		if ageNow < 0 {
			continue
		}
		tNow := ageNow
		tFuture := ageNow + horizonMinutes

		switch e.Kind {
		case models.KindCorrectionBolus, models.KindMealBolus, models.KindBolus:
			units, ok := floatField(e, "units")
			if ok && units > 0 && isf > 0 {
				delta -= (insulinCurve.Cumulative(tFuture) - insulinCurve.Cumulative(tNow)) * units * isf
			}
		}
		if e.Kind == models.KindCarbs || e.Kind == models.KindMealBolus {
			grams, ok := floatField(e, "grams")
			if ok && grams > 0 && csf > 0 {
				carbType, _ := e.Get("carbType")
				food, _ := e.Get("food")
				curve := pk.CarbCurve(pk.ClassifyCarbEvent(carbType, food, nil))
				delta += (curve.Cumulative(tFuture) - curve.Cumulative(tNow)) * grams * csf
			}
		}
	}
	return clip(delta, -6, 6)
}

// confidenceAt decays with horizon and grows with the amount of recent data available.
func confidenceAt(horizonMinutes, sampleCount int) float64 {
	timeDecay := 1.0 - float64(horizonMinutes)/90.0
	if timeDecay < 0.1 {
		timeDecay = 0.1
	}
	dataQuality := clip(float64(sampleCount)/24.0, 0.3, 1.0)
	return timeDecay * dataQuality
}

func legacyCIHalfWidth(horizonMinutes int, confidence float64) float64 {
	base := map[int]float64{5: 0.30, 30: 0.60, 60: 0.95}[horizonMinutes]
	return clip(base/confidence, 0.30, 3.2)
}
