// Package pattern learns time-of-day risk windows and ISF/CR estimates from recent glucose
// and therapy history, grounded on the teacher's Analyzer (ISF/ICR via correction/meal event
// matching with median filtering) and OrefEngine's circadian-profile windowing.
package pattern

import (
	"math"
	"sort"
	"time"

	"github.com/mrcode/glucocopilot/internal/models"
)

// lowThresholdMmol / highThresholdMmol bound the time-in-range window used to flag risk hours.
const (
	lowThresholdMmol  = 3.9
	highThresholdMmol = 10.0
)

// Windows computes one PatternWindow per (dayType, hour) bucket that has at least one sample,
// from the glucose history.
func Windows(glucose []models.GlucosePoint) []models.PatternWindow {
	type bucketKey struct {
		dayType models.DayType
		hour    int
	}
	type bucketAgg struct {
		count    int
		lowCount int
		highCount int
		days     map[string]bool
	}
	buckets := make(map[bucketKey]*bucketAgg)

	for _, g := range glucose {
		t := time.UnixMilli(g.TsMillis).UTC()
		dt := dayTypeOf(t)
		key := bucketKey{dayType: dt, hour: t.Hour()}
		agg, ok := buckets[key]
		if !ok {
			agg = &bucketAgg{days: make(map[string]bool)}
			buckets[key] = agg
		}
		agg.count++
		agg.days[t.Format("2006-01-02")] = true
		if g.ValueMmol < lowThresholdMmol {
			agg.lowCount++
		}
		if g.ValueMmol > highThresholdMmol {
			agg.highCount++
		}
	}

	out := make([]models.PatternWindow, 0, len(buckets))
	for key, agg := range buckets {
		lowRate := ratio(agg.lowCount, agg.count)
		highRate := ratio(agg.highCount, agg.count)
		target := recommendedTarget(lowRate, highRate)
		out = append(out, models.PatternWindow{
			DayType:               key.dayType,
			Hour:                  key.hour,
			SampleCount:           agg.count,
			ActiveDays:            len(agg.days),
			LowRate:               lowRate,
			HighRate:              highRate,
			RecommendedTargetMmol: target,
			IsRiskWindow:          lowRate >= 0.15 || highRate >= 0.35,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayType != out[j].DayType {
			return out[i].DayType < out[j].DayType
		}
		return out[i].Hour < out[j].Hour
	})
	return out
}

func dayTypeOf(t time.Time) models.DayType {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return models.DayWeekend
	default:
		return models.DayWeekday
	}
}

func ratio(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total)
}

// recommendedTarget nudges the target up when hypo rate is elevated, down when hyper rate is
// elevated, clamped to the spec's [4.4, 8.0] recommendation band.
func recommendedTarget(lowRate, highRate float64) float64 {
	base := 5.5
	base += lowRate * 2.0
	base -= highRate * 1.0
	return clip(base, 4.4, 8.0)
}

func clip(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2.0
}

func stdDev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}
