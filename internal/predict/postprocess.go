package predict

import (
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/mrcode/glucocopilot/internal/config"
	"github.com/mrcode/glucocopilot/internal/models"
)

// CalibrationError is one past-forecast-vs-actual-outcome observation used to bias future
// forecasts toward the direction the engine has recently been wrong in.
type CalibrationError struct {
	HorizonMinutes int
	ErrorMmol      float64 // actual - predicted
	AgeMinutes     float64
}

// EnsureHorizon30 synthesizes a 30-minute forecast by interpolating between the 5 and 60
// minute forecasts when the engine did not emit one directly (e.g. a cloud merge dropped it).
func EnsureHorizon30(forecasts []models.Forecast, now int64) []models.Forecast {
	has := map[int]models.Forecast{}
	for _, f := range forecasts {
		has[f.HorizonMinutes] = f
	}
	if _, ok := has[30]; ok {
		return forecasts
	}
	f5, ok5 := has[5]
	f60, ok60 := has[60]
	if !ok5 || !ok60 {
		return forecasts
	}
	val := 0.55*f5.ValueMmol + 0.45*f60.ValueMmol
	synth := models.Forecast{
		ID:             uuid.NewString(),
		TsMillis:       now,
		HorizonMinutes: 30,
		ValueMmol:      models.ClampGlucose(val),
		CILow:          models.ClampGlucose(val - 0.8),
		CIHigh:         models.ClampGlucose(val + 0.8),
		ModelVersion:   f60.ModelVersion + "-interpolated-30m-v1",
	}
	out := append(append([]models.Forecast{}, forecasts...), synth)
	models.SortForecastsByHorizon(out)
	return out
}

// RecentBias computes a half-life-weighted mean forecast error for one horizon from recent
// calibration history, applying the configured gain and up/down caps. Returns 0 (no-op) if
// there are fewer than MinSamples errors, or if the resulting bias is below the 0.02 mmol/L
// noise floor.
func RecentBias(errors []CalibrationError, horizonMinutes int, tuning config.CalibrationTuning) float64 {
	const halfLifeMin = 90.0
	var filtered []CalibrationError
	for _, e := range errors {
		if e.HorizonMinutes == horizonMinutes {
			filtered = append(filtered, e)
		}
	}
	if len(filtered) < tuning.MinSamples {
		return 0
	}

	var sumW, sumWE float64
	for _, e := range filtered {
		w := math.Exp(-e.AgeMinutes * math.Ln2 / halfLifeMin)
		sumW += w
		sumWE += w * e.ErrorMmol
	}
	if sumW == 0 {
		return 0
	}
	meanErr := sumWE / sumW
	bias := meanErr * tuning.Gain
	if absF(bias) < 0.02 {
		return 0
	}
	if bias > 0 {
		return math.Min(bias, tuning.MaxUp)
	}
	return math.Max(bias, -tuning.MaxDown)
}

// ApplyCalibrationBias shifts each forecast by the recent-bias term for its horizon.
func ApplyCalibrationBias(forecasts []models.Forecast, errors []CalibrationError, tuning map[int]config.CalibrationTuning) []models.Forecast {
	out := make([]models.Forecast, len(forecasts))
	for i, f := range forecasts {
		t, ok := tuning[f.HorizonMinutes]
		if !ok {
			out[i] = f
			continue
		}
		bias := RecentBias(errors, f.HorizonMinutes, t)
		f.ValueMmol = models.ClampGlucose(f.ValueMmol + bias)
		f.CILow = models.ClampGlucose(f.CILow + bias)
		f.CIHigh = models.ClampGlucose(f.CIHigh + bias)
		out[i] = f
	}
	return out
}

var cobGainByHorizon = map[int]float64{5: 0.006, 30: 0.012, 60: 0.018}
var iobGainByHorizon = map[int]float64{5: 0.14, 30: 0.28, 60: 0.42}

// ApplyActivityBias shifts forecasts by a COB-up / IOB-down bias term, reflecting that active
// carbs-on-board tend to mean the engine is under-forecasting a rise, and active insulin a fall.
func ApplyActivityBias(forecasts []models.Forecast, cobGrams, iobUnits float64) []models.Forecast {
	out := make([]models.Forecast, len(forecasts))
	for i, f := range forecasts {
		cobBias := clip(cobGrams*cobGainByHorizon[f.HorizonMinutes], 0, 2.5)
		iobBias := clip(iobUnits*iobGainByHorizon[f.HorizonMinutes], 0, 4.0)
		total := clip(cobBias-iobBias, -4, 3)
		if absF(total) < 1e-6 {
			out[i] = f
			continue
		}
		f.ValueMmol = models.ClampGlucose(f.ValueMmol + total)
		f.CILow = models.ClampGlucose(f.CILow + total)
		f.CIHigh = models.ClampGlucose(f.CIHigh + total)
		out[i] = f
	}
	return out
}

// PruneOldForecasts drops persisted forecasts older than maxAgeDays, returning the survivors.
func PruneOldForecasts(forecasts []models.Forecast, now int64, maxAgeDays int) []models.Forecast {
	cutoff := now - int64(maxAgeDays)*24*60*60*1000
	out := forecasts[:0]
	for _, f := range forecasts {
		if f.TsMillis >= cutoff {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TsMillis < out[j].TsMillis })
	return out
}
