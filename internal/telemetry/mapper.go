// Package telemetry canonicalizes heterogeneous key/value telemetry inputs (devicestatus
// fields, broadcast extras, wearable exports) into the fixed set of canonical keys the
// coordinator understands.
package telemetry

import (
	"strings"

	"github.com/mrcode/glucocopilot/internal/models"
)

// sensitiveSubstrings are scrubbed from any raw key before persistence, regardless of mapping
// outcome, so credentials never end up in the telemetry table.
var sensitiveSubstrings = []string{
	"secret", "token", "password", "apikey", "api_key", "authorization", "bearer", "jwt",
}

// IsSensitiveKey reports whether key looks like it carries a credential.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveSubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// sanityRanges bound plausible values per canonical key; values outside are dropped rather
// than clamped, since a wildly out-of-range telemetry value usually indicates a unit mismatch
// rather than a real extreme reading.
var sanityRanges = map[string][2]float64{
	models.KeyIOBUnits:        {-5, 30},
	models.KeyCOBGrams:        {0, 400},
	models.KeyDIAHours:        {0.5, 24},
	models.KeyHeartRateBPM:    {25, 240},
	models.KeyISFValue:        {0.2, 18},
	models.KeyCRValue:         {2, 60},
	models.KeyUAMValue:        {0, 1.5},
	models.KeyActivityRatio:   {0, 10},
}

// InSanityRange reports whether value is plausible for the given canonical key. Keys with no
// registered range are always accepted.
func InSanityRange(key string, value float64) bool {
	r, ok := sanityRanges[key]
	if !ok {
		return true
	}
	return value >= r[0] && value <= r[1]
}

// aliasTokens maps a canonical key to the normalized tokens that identify it among unknown
// raw keys, used only when the canonical key itself was not found directly.
var aliasTokens = map[string][]string{
	models.KeyIOBUnits:      {"iob"},
	models.KeyCOBGrams:      {"cob"},
	models.KeyActivityRatio: {"activity", "ratio"},
	models.KeyUAMValue:      {"uam"},
}

func normalizeTokens(key string) string {
	replaced := strings.NewReplacer("-", "_", " ", "_", ".", "_").Replace(strings.ToLower(key))
	return replaced
}

// ResolveAlias searches raw for a key matching the alias tokens of target, when target itself
// is absent from raw. Returns the matched raw key and its value.
func ResolveAlias(raw map[string]float64, target string) (string, float64, bool) {
	if v, ok := raw[target]; ok {
		return target, v, true
	}
	tokens, ok := aliasTokens[target]
	if !ok {
		return "", 0, false
	}
	for k, v := range raw {
		norm := normalizeTokens(k)
		matched := true
		for _, tok := range tokens {
			if !strings.Contains(norm, tok) {
				matched = false
				break
			}
		}
		if matched {
			if target == models.KeyUAMValue && (v < 0 || v > 1.5) {
				continue
			}
			return k, v, true
		}
	}
	return "", 0, false
}

// Snapshot resolves the latest value per canonical key from a set of samples spanning the
// lookback window, preferring the daily max-by-value for cumulative-activity keys and the
// most recent sample otherwise.
func Snapshot(samples []models.TelemetrySample, dayStartMillis int64) map[string]models.TelemetrySample {
	latest := make(map[string]models.TelemetrySample)
	dailyMax := make(map[string]models.TelemetrySample)

	for _, s := range samples {
		if IsSensitiveKey(s.Key) {
			continue
		}
		if s.ValueDouble != nil && !InSanityRange(s.Key, *s.ValueDouble) {
			continue
		}

		if cur, ok := latest[s.Key]; !ok || s.TsMillis > cur.TsMillis {
			latest[s.Key] = s
		}

		if models.IsCumulativeKey(s.Key) && s.TsMillis >= dayStartMillis && s.ValueDouble != nil {
			if cur, ok := dailyMax[s.Key]; !ok || (cur.ValueDouble != nil && *s.ValueDouble > *cur.ValueDouble) {
				dailyMax[s.Key] = s
			}
		}
	}

	out := make(map[string]models.TelemetrySample, len(latest))
	for k, v := range latest {
		out[k] = v
	}
	for k, v := range dailyMax {
		out[k] = v
	}
	return out
}
