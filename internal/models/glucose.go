// Package models contains the data structures shared across the automation pipeline.
package models

// mmolPerMgdl is the conversion divisor between mg/dL and mmol/L readings.
const mmolPerMgdl = 18.0182

// Quality describes how much a sample can be trusted.
type Quality string

const (
	QualityOK           Quality = "OK"
	QualityStale        Quality = "STALE"
	QualitySensorError  Quality = "SENSOR_ERROR"
)

// GlucosePoint is a single deduplicated glucose reading in mmol/L.
type GlucosePoint struct {
	TsMillis   int64   `json:"ts"`
	ValueMmol  float64 `json:"valueMmol"`
	Source     string  `json:"source"`
	Quality    Quality `json:"quality"`
}

// ValueMgdl returns the reading converted to mg/dL.
func (g GlucosePoint) ValueMgdl() float64 {
	return g.ValueMmol * mmolPerMgdl
}

// MgdlToMmol converts a mg/dL value to mmol/L.
func MgdlToMmol(mgdl float64) float64 {
	return mgdl / mmolPerMgdl
}

// MmolToMgdl converts an mmol/L value to mg/dL.
func MmolToMgdl(mmol float64) float64 {
	return mmol * mmolPerMgdl
}

// InRange reports whether mmol sits within the physiologically plausible glucose band.
func InRange(mmol float64) bool {
	return mmol >= 2.2 && mmol <= 22.0
}

// ClampGlucose clamps a raw glucose value into the plausible band.
func ClampGlucose(mmol float64) float64 {
	switch {
	case mmol < 2.2:
		return 2.2
	case mmol > 22.0:
		return 22.0
	default:
		return mmol
	}
}
