// Package residual fits a short, weighted AR(1) model over the glucose rate-of-change left
// unexplained by therapy and UAM, to forecast how that leftover drift decays.
package residual

import "math"

const (
	maxSamples  = 24
	weightTau   = 8.0
	minSamplesForFit = 8
	fallbackHalfLifeMinutes = 20.0

	muMin, muMax       = -0.30, 0.30
	phiMin, phiMax     = 0.0, 0.97
	sigmaEMin, sigmaEMax = 0.05, 0.60
)

// Sample is one bucketed residual rate-of-change observation, in mmol per 5-minute step.
type Sample struct {
	TsMillis int64
	RocPer5  float64
}

// History is the rolling window of recent residual samples, owned by the coordinator across
// cycles per the same explicit-state pattern as kalman.State.
type History struct {
	samples []Sample
}

// Append adds a new residual observation, evicting the oldest once the window is full.
func (h *History) Append(s Sample) {
	h.samples = append(h.samples, s)
	if len(h.samples) > maxSamples {
		h.samples = h.samples[len(h.samples)-maxSamples:]
	}
}

// Fit is the estimated AR(1) parameters: residual[k] = mu + phi*(residual[k-1]-mu) + noise.
type Fit struct {
	Mu     float64
	Phi    float64
	SigmaE float64
}

// Estimate fits the AR(1) model over the current window. uamActive forces mu <= 0, since an
// active unannounced-meal estimate already explains any positive residual drift.
func (h *History) Estimate(uamActive bool) Fit {
	n := len(h.samples)
	if n < minSamplesForFit {
		phi := math.Exp(-math.Ln2 * 5.0 / fallbackHalfLifeMinutes)
		return Fit{Mu: 0, Phi: clip(phi, phiMin, phiMax), SigmaE: 0.10}
	}

	// Weighted mean of residual values, recency-weighted with tau=8.
	var sumW, sumWX float64
	for i, s := range h.samples {
		w := math.Exp(-float64(n-1-i) / weightTau)
		sumW += w
		sumWX += w * s.RocPer5
	}
	mu := 0.0
	if sumW > 0 {
		mu = sumWX / sumW
	}
	if uamActive && mu > 0 {
		mu = 0
	}
	mu = clip(mu, muMin, muMax)

	// Weighted AR(1) coefficient via lag-1 weighted covariance / weighted variance.
	var sumWCov, sumWVar float64
	for i := 1; i < n; i++ {
		w := math.Exp(-float64(n-1-i) / weightTau)
		prev := h.samples[i-1].RocPer5 - mu
		cur := h.samples[i].RocPer5 - mu
		sumWCov += w * prev * cur
		sumWVar += w * prev * prev
	}
	phi := 0.0
	if sumWVar > 1e-9 {
		phi = sumWCov / sumWVar
	}
	phi = clip(phi, phiMin, phiMax)

	// Residual noise stddev from the one-step prediction errors.
	var sse float64
	count := 0
	for i := 1; i < n; i++ {
		prev := h.samples[i-1].RocPer5
		predicted := mu + phi*(prev-mu)
		err := h.samples[i].RocPer5 - predicted
		sse += err * err
		count++
	}
	sigmaE := 0.10
	if count > 0 {
		sigmaE = math.Sqrt(sse / float64(count))
	}
	sigmaE = clip(sigmaE, sigmaEMin, sigmaEMax)

	return Fit{Mu: mu, Phi: phi, SigmaE: sigmaE}
}

// ForecastStep returns the expected residual rate-of-change j steps (5 minutes each) ahead of
// the most recent observation, given a starting residual0.
func (f Fit) ForecastStep(residual0 float64, j int) float64 {
	return f.Mu + math.Pow(f.Phi, float64(j-1))*(residual0-f.Mu)
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
