package models

// Forecast is a single predicted glucose value at a given horizon.
type Forecast struct {
	ID             string  `json:"id"`
	TsMillis       int64   `json:"ts"`
	HorizonMinutes int     `json:"horizonMinutes"`
	ValueMmol      float64 `json:"valueMmol"`
	CILow          float64 `json:"ciLow"`
	CIHigh         float64 `json:"ciHigh"`
	ModelVersion   string  `json:"modelVersion"`
}

// Horizons are the only horizons the engine is allowed to emit.
var Horizons = []int{5, 30, 60}

// SortForecastsByHorizon orders forecasts ascending by horizon, stable on ties.
func SortForecastsByHorizon(fs []Forecast) {
	for i := 1; i < len(fs); i++ {
		for j := i; j > 0 && fs[j].HorizonMinutes < fs[j-1].HorizonMinutes; j-- {
			fs[j], fs[j-1] = fs[j-1], fs[j]
		}
	}
}
