package models

// TherapyKind enumerates the known therapy event variants. Anything the sanitizer cannot
// classify falls back to KindOther with its original payload preserved for audit purposes.
type TherapyKind string

const (
	KindBolus           TherapyKind = "bolus"
	KindCorrectionBolus TherapyKind = "correction_bolus"
	KindMealBolus       TherapyKind = "meal_bolus"
	KindCarbs           TherapyKind = "carbs"
	KindTempTarget      TherapyKind = "temp_target"
	KindSensorState     TherapyKind = "sensor_state"
	KindOther           TherapyKind = "other"
)

// TherapyEvent is a single ingested therapy record. Payload carries the raw string/string
// fields the source sent; typed accessors below parse out of it lazily so a malformed field
// in one event never blocks the rest of the pipeline.
type TherapyEvent struct {
	TsMillis int64             `json:"ts"`
	ID       string            `json:"id"`
	Source   string            `json:"source"`
	Kind     TherapyKind       `json:"kind"`
	Payload  map[string]string `json:"payload"`
}

// Get returns a raw payload field.
func (t TherapyEvent) Get(key string) (string, bool) {
	v, ok := t.Payload[key]
	return v, ok
}

// IsMutable reports whether this event type is subject to local-echo de-duplication
// (i.e. it can legitimately arrive twice: once from a local broadcast, once from Nightscout).
func (t TherapyEvent) IsMutable() bool {
	switch t.Kind {
	case KindCorrectionBolus, KindMealBolus, KindCarbs, KindTempTarget:
		return true
	default:
		return false
	}
}
