package models

// TelemetrySample is a single canonicalized telemetry reading, e.g. IOB, COB, step count.
type TelemetrySample struct {
	ID         string  `json:"id"`
	TsMillis   int64   `json:"ts"`
	Source     string  `json:"source"`
	Key        string  `json:"key"`
	ValueDouble *float64 `json:"valueDouble,omitempty"`
	ValueText  *string `json:"valueText,omitempty"`
	Unit       string  `json:"unit,omitempty"`
	Quality    Quality `json:"quality"`
}

// Canonical telemetry keys the coordinator understands by name.
const (
	KeyIOBUnits          = "iob_units"
	KeyCOBGrams          = "cob_grams"
	KeyCarbsGrams        = "carbs_grams"
	KeyInsulinUnits      = "insulin_units"
	KeyDIAHours          = "dia_hours"
	KeyStepsCount        = "steps_count"
	KeyActivityRatio     = "activity_ratio"
	KeyHeartRateBPM      = "heart_rate_bpm"
	KeyTempTargetLow     = "temp_target_low_mmol"
	KeyTempTargetHigh    = "temp_target_high_mmol"
	KeyTempTargetMinutes = "temp_target_duration_min"
	KeyProfilePercent    = "profile_percent"
	KeyUAMValue          = "uam_value"
	KeyISFValue          = "isf_value"
	KeyCRValue           = "cr_value"
	KeyBasalRateUH       = "basal_rate_u_h"
	KeyInsulinReqUnits   = "insulin_req_units"
)

// cumulativeKeys are resolved by taking today's max-by-value instead of the latest sample,
// since activity counters reset at local midnight but can be reported out of order.
var cumulativeKeys = map[string]bool{
	KeyStepsCount:    true,
	"distance_km":    true,
	"active_minutes": true,
	"calories_active_kcal": true,
}

// IsCumulativeKey reports whether key accumulates over the day rather than representing an
// instantaneous reading.
func IsCumulativeKey(key string) bool {
	return cumulativeKeys[key]
}
