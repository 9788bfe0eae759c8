package predict

import (
	"errors"
	"math"
)

var errNoGlucose = errors.New("predict: no glucose data")

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

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func sqrt(v float64) float64 {
	if v < 0 {
		return 0
	}
	return math.Sqrt(v)
}

func expLn2(x float64) float64 {
	return math.Exp(x * math.Ln2)
}
