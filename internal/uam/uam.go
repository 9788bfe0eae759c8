// Package uam estimates unannounced-meal activity: glucose rise that recorded therapy events
// do not explain, and an optional "virtual meal" reconstruction of it.
package uam

import (
	"math"

	"github.com/mrcode/glucocopilot/internal/pk"
)

const uciActiveThreshold = 0.10

// Estimate is the current unannounced-meal signal.
type Estimate struct {
	Active bool
	UCI0   float64 // mmol per 5-min step, excess over therapy-explained rate
	K      float64 // per-step growth/decay slope used for projection
	UCIMax float64
}

// Detect computes the current UAM signal from the observed and therapy-explained 5-minute
// rates of change, and the carb sensitivity factor (mmol/L per gram).
func Detect(observedRatePer5, therapyRatePer5, csf float64, recentBuckets []float64) Estimate {
	uciMax := (30.0 / 60.0 * 5.0) * csf // 30 g/h equivalent, expressed in mmol per 5-min step via CSF
	uci0 := observedRatePer5 - therapyRatePer5
	if uci0 < 0 {
		uci0 = 0
	}
	if uci0 > uciMax {
		uci0 = uciMax
	}

	k := estimateSlope(recentBuckets)

	return Estimate{
		Active: uci0 >= uciActiveThreshold,
		UCI0:   uci0,
		K:      k,
		UCIMax: uciMax,
	}
}

// estimateSlope derives a per-step growth rate from the min/max spread of recent UCI buckets:
// spread/len when the last bucket is at or above the first (meal still absorbing), and
// -spread/len when the last bucket is below the first.
func estimateSlope(buckets []float64) float64 {
	if len(buckets) < 2 {
		return 0
	}
	minV, maxV := buckets[0], buckets[0]
	for _, b := range buckets {
		if b < minV {
			minV = b
		}
		if b > maxV {
			maxV = b
		}
	}
	spread := maxV - minV
	if buckets[len(buckets)-1] >= buckets[0] {
		return spread / float64(len(buckets))
	}
	return -spread / float64(len(buckets))
}

// Project returns the UCI value j steps (5 minutes each) ahead, per the spec's bounded
// projection: grows at most linearly by K, decays to zero by step 36 (3 hours).
func (e Estimate) Project(j int) float64 {
	if !e.Active {
		return 0
	}
	grow := e.UCI0 + float64(j)*e.K
	decay := e.UCI0 * (1 - float64(j)/36.0)
	if decay < 0 {
		decay = 0
	}
	return math.Min(grow, decay)
}

// VirtualMeal is a reconstructed unannounced carb event.
type VirtualMeal struct {
	OffsetMinutes float64 // minutes before "now" the meal is estimated to have started
	Grams         float64
	Confidence    float64
}

// FitVirtualMeal sweeps hypothetical meal start times over the last hour and solves a weighted
// least-squares fit for grams against the observed residual rate series, keeping the
// lowest-SSE candidate. observedResiduals[i] is the observed-minus-therapy rate at 5-minute
// step i (i=0 is "now", earlier samples at negative i are not provided — callers pass the
// trailing window ending at now).
func FitVirtualMeal(observedResiduals []float64, carbCurve pk.Curve, csf float64) (VirtualMeal, bool) {
	n := len(observedResiduals)
	if n < 3 {
		return VirtualMeal{}, false
	}

	var ssResidual float64
	for _, r := range observedResiduals {
		ssResidual += r * r
	}
	if ssResidual < 1e-9 {
		return VirtualMeal{}, false
	}

	best := VirtualMeal{}
	bestSSE := math.MaxFloat64
	found := false

	// Sweep candidate meal start offsets: 5..60 minutes before now, in 5-minute steps.
	for offset := 5.0; offset <= 60.0; offset += 5.0 {
		// Predicted rate at step i (5*i minutes after "now" minus offset = minutes since meal).
		var sumPredSq, sumPredObs float64
		predicted := make([]float64, n)
		for i := 0; i < n; i++ {
			tSinceMeal := offset + float64(i)*5.0
			// Rate of the curve in fraction-per-5-min, converted to mmol/5min via csf*gramsAssumed=1
			// scaled later by the solved grams coefficient (linear in grams).
			fracAt := carbCurve.Cumulative(tSinceMeal)
			fracPrev := carbCurve.Cumulative(tSinceMeal - 5.0)
			predicted[i] = (fracAt - fracPrev) * csf
			sumPredSq += predicted[i] * predicted[i]
			sumPredObs += predicted[i] * observedResiduals[i]
		}
		if sumPredSq < 1e-9 {
			continue
		}
		grams := sumPredObs / sumPredSq
		if grams <= 0 {
			continue
		}
		var sse float64
		for i := 0; i < n; i++ {
			err := observedResiduals[i] - grams*predicted[i]
			sse += err * err
		}
		if sse < bestSSE {
			bestSSE = sse
			best = VirtualMeal{OffsetMinutes: offset, Grams: grams}
			found = true
		}
	}

	if !found {
		return VirtualMeal{}, false
	}

	best.Confidence = 1 - bestSSE/ssResidual
	if best.Confidence < 0.55 {
		return VirtualMeal{}, false
	}
	if best.Grams > 150 {
		best.Grams = 150
	}
	return best, true
}
