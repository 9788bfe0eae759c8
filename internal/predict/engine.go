// Package predict composes the Kalman filter, residual AR(1) model, UAM estimator, and
// pharmacokinetic curves into short-horizon glucose forecasts.
package predict

import (
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/mrcode/glucocopilot/internal/kalman"
	"github.com/mrcode/glucocopilot/internal/models"
	"github.com/mrcode/glucocopilot/internal/pk"
	"github.com/mrcode/glucocopilot/internal/residual"
	"github.com/mrcode/glucocopilot/internal/uam"
)

// Profile carries the sensitivity and absorption parameters a cycle's prediction runs with.
type Profile struct {
	InsulinProfile string
	ISF            float64 // mmol/L per unit
	CR             float64 // grams per unit
	CSF            float64 // mmol/L per gram, derived as ISF/CR when zero
}

func (p Profile) csf() float64 {
	if p.CSF > 0 {
		return p.CSF
	}
	if p.CR > 0 {
		return p.ISF / p.CR
	}
	return 0
}

// EngineState is the prediction engine's cross-cycle memory: the Kalman filter state and the
// residual AR(1) history. It is owned by the coordinator and passed explicitly rather than
// held as package-level mutable state (SPEC_FULL.md §9).
type EngineState struct {
	Kalman   *kalman.State
	Residual residual.History
	uciBuckets []float64

	// LastUCI0 / LastUAMActive surface the most recent UAM estimate so the coordinator can
	// persist it as telemetry (step 18) without recomputing the detector separately.
	LastUCI0     float64
	LastUAMActive bool
}

// NewEngineState seeds engine state from the first available glucose point.
func NewEngineState(ts int64, gMmol float64) *EngineState {
	return &EngineState{Kalman: kalman.NewState(ts, gMmol)}
}

// Engine produces a forecast set from recent glucose and therapy history.
type Engine interface {
	Predict(state *EngineState, now int64, glucose []models.GlucosePoint, therapy []models.TherapyEvent, profile Profile) ([]models.Forecast, error)
}

const (
	horizon5  = 5
	horizon30 = 30
	horizon60 = 60
	stepMinutes = 5
	numSteps    = 12 // 12 * 5min = 60 min
)

// EnhancedEngine is the v3 engine: KF + AR(1) + UAM composition over a 12-step, 5-minute path.
type EnhancedEngine struct{}

// Predict implements Engine for the enhanced (v3) engine.
func (EnhancedEngine) Predict(state *EngineState, now int64, glucose []models.GlucosePoint, therapy []models.TherapyEvent, profile Profile) ([]models.Forecast, error) {
	if len(glucose) == 0 {
		return nil, errNoGlucose
	}
	sort.Slice(glucose, func(i, j int) bool { return glucose[i].TsMillis < glucose[j].TsMillis })
	latest := glucose[len(glucose)-1]

	if state.Kalman == nil {
		state.Kalman = kalman.NewState(latest.TsMillis, latest.ValueMmol)
	}
	volNorm := recentVolatility(glucose)

	var gUsed, rocPer5Used float64
	for _, g := range glucose {
		gUsed, rocPer5Used = state.Kalman.Update(g.TsMillis, g.ValueMmol, volNorm)
	}

	csf := profile.csf()
	therapySteps := therapyStepSeries(now, therapy, profile, numSteps)

	uamActive, uci0, uciSeries := computeUAM(state, now, therapy, rocPer5Used, therapySteps, csf)

	residualRoc0 := rocPer5Used - therapySteps[1] - uciSeries[1]
	residualRoc0 = clip(residualRoc0, -1.2, 1.2)
	if uamActive && residualRoc0 > 0 {
		residualRoc0 = 0
	}
	state.Residual.Append(residual.Sample{TsMillis: now, RocPer5: residualRoc0})
	fit := state.Residual.Estimate(uamActive)

	trendSteps := make([]float64, numSteps+1)
	var trendCum60 float64
	for j := 1; j <= numSteps; j++ {
		trendSteps[j] = fit.ForecastStep(residualRoc0, j)
		trendCum60 += trendSteps[j]
	}
	scale := scaleTrendSteps(trendCum60)
	for j := 1; j <= numSteps; j++ {
		trendSteps[j] *= scale
	}

	path := make([]float64, numSteps+1)
	path[0] = gUsed
	for j := 1; j <= numSteps; j++ {
		path[j] = models.ClampGlucose(path[j-1] + trendSteps[j] + therapySteps[j] + uciSeries[j])
	}

	sigmaG := state.Kalman.StdDevG()

	forecasts := make([]models.Forecast, 0, 3)
	for _, h := range []struct {
		minutes int
		stepIdx int
	}{{horizon5, 1}, {horizon30, 6}, {horizon60, 12}} {
		val := path[h.stepIdx]
		n := float64(h.stepIdx)
		halfWidth := ciHalfWidth(h.minutes, n, uci0, residualRoc0, sigmaG, fit.SigmaE)
		forecasts = append(forecasts, models.Forecast{
			ID:             uuid.NewString(),
			TsMillis:       now,
			HorizonMinutes: h.minutes,
			ValueMmol:      val,
			CILow:          models.ClampGlucose(val - halfWidth),
			CIHigh:         models.ClampGlucose(val + halfWidth),
			ModelVersion:   "enhanced-kf-ar1-uam-v3",
		})
	}
	models.SortForecastsByHorizon(forecasts)
	return forecasts, nil
}

func ciHalfWidth(horizonMinutes int, n, uci0, res0, sigmaG, sigmaE float64) float64 {
	base := map[int]float64{5: 0.30, 30: 0.55, 60: 0.85}[horizonMinutes]
	sqrtN := sqrt(n)
	w := base + 0.35*sqrtN*uci0 + 0.25*sqrtN*absF(res0) + 0.20*sqrtN*sigmaG + 0.20*sqrtN*sigmaE
	return clip(w, 0.30, 3.2)
}

// scaleTrendSteps rescales the raw 12-step AR(1) trend path so its 60-minute cumulative stays
// within the spec's bound of +-(0.55*12+0.7). Resolves REDESIGN FLAG/Open Question (a): when
// the raw cumulative is exactly zero, the scale factor is zero rather than an unguarded
// division producing +-Inf/NaN.
func scaleTrendSteps(rawCum60 float64) float64 {
	bound := 0.55*float64(numSteps) + 0.7
	if rawCum60 == 0 {
		return 0
	}
	target := clip(rawCum60, -bound, bound)
	return target / rawCum60
}

func recentVolatility(glucose []models.GlucosePoint) float64 {
	if len(glucose) < 3 {
		return 0
	}
	n := len(glucose)
	start := n - 6
	if start < 0 {
		start = 0
	}
	window := glucose[start:]
	var sum, sumSq float64
	for _, g := range window {
		sum += g.ValueMmol
		sumSq += g.ValueMmol * g.ValueMmol
	}
	m := sum / float64(len(window))
	variance := sumSq/float64(len(window)) - m*m
	if variance < 0 {
		variance = 0
	}
	sd := sqrt(variance)
	// Normalize against a "high volatility" reference stddev of 1.5 mmol/L.
	v := sd / 1.5
	return clip(v, 0, 1)
}

// therapyStepSeries returns the per-step PK-weighted mmol contribution of all recorded
// therapy events for each of the numSteps future 5-minute steps (index 0 is "now", unused).
func therapyStepSeries(now int64, events []models.TherapyEvent, profile Profile, steps int) []float64 {
	out := make([]float64, steps+1)
	insulinCurve := pk.InsulinCurve(profile.InsulinProfile)
	csf := profile.csf()

	for _, e := range events {
		ageAtNowMin := float64(now-e.TsMillis) / 60000.0
		if ageAtNowMin < 0 {
			continue
		}
		switch e.Kind {
		case models.KindCorrectionBolus, models.KindMealBolus, models.KindBolus:
			units, ok := floatField(e, "units")
			if !ok || units <= 0 || profile.ISF <= 0 {
				continue
			}
			for j := 1; j <= steps; j++ {
				t := ageAtNowMin + float64(j)*stepMinutes
				tPrev := ageAtNowMin + float64(j-1)*stepMinutes
				delta := (insulinCurve.Cumulative(t) - insulinCurve.Cumulative(tPrev)) * units * profile.ISF
				out[j] -= delta
			}
		}
		if e.Kind == models.KindCarbs || e.Kind == models.KindMealBolus {
			grams, ok := floatField(e, "grams")
			if !ok || grams <= 0 || csf <= 0 {
				continue
			}
			carbType, _ := e.Get("carbType")
			food, _ := e.Get("food")
			curve := pk.CarbCurve(pk.ClassifyCarbEvent(carbType, food, nil))
			for j := 1; j <= steps; j++ {
				t := ageAtNowMin + float64(j)*stepMinutes
				tPrev := ageAtNowMin + float64(j-1)*stepMinutes
				delta := (curve.Cumulative(t) - curve.Cumulative(tPrev)) * grams * csf
				out[j] += delta
			}
		}
	}

	// Clamp cumulative therapy contribution to +-6.0 mmol as a sanity backstop.
	cum := 0.0
	for j := 1; j <= steps; j++ {
		cum += out[j]
		if cum > 6.0 {
			out[j] -= cum - 6.0
			cum = 6.0
		}
		if cum < -6.0 {
			out[j] -= cum + 6.0
			cum = -6.0
		}
	}
	return out
}

func computeUAM(state *EngineState, now int64, events []models.TherapyEvent, observedRocPer5 float64, therapySteps []float64, csf float64) (bool, float64, []float64) {
	est := uam.Detect(observedRocPer5, therapySteps[1], csf, state.uciBuckets)
	state.uciBuckets = append(state.uciBuckets, est.UCI0)
	if len(state.uciBuckets) > 6 {
		state.uciBuckets = state.uciBuckets[len(state.uciBuckets)-6:]
	}
	state.LastUCI0 = est.UCI0
	state.LastUAMActive = est.Active

	series := make([]float64, numSteps+1)
	for j := 1; j <= numSteps; j++ {
		series[j] = est.Project(j)
	}
	return est.Active, est.UCI0, series
}

func floatField(e models.TherapyEvent, key string) (float64, bool) {
	raw, ok := e.Get(key)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
