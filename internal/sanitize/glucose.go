// Package sanitize deduplicates and validates glucose and therapy samples arriving from
// multiple overlapping sources (Nightscout, local broadcast echoes, AAPS broadcasts).
package sanitize

import (
	"sort"
	"strings"

	"github.com/mrcode/glucocopilot/internal/models"
)

// sourcePriorityOrder scores the trustworthiness of a glucose sample's origin, highest wins on
// a timestamp collision. Checked in order so the more specific "local_nightscout_entry" prefix
// is tried before the general "local_nightscout*" one.
var sourcePriorityOrder = []struct {
	prefix string
	score  int
}{
	{"aaps_broadcast", 60},
	{"nightscout", 50},
	{"xdrip_broadcast", 45},
	{"local_nightscout_entry", 42},
	{"local_nightscout", 40},
	{"local_broadcast", 10},
}

func glucoseSourceScore(source string) int {
	for _, entry := range sourcePriorityOrder {
		if strings.HasPrefix(source, entry.prefix) {
			return entry.score
		}
	}
	return 20 // "other"
}

func qualityScore(q models.Quality) int {
	switch q {
	case models.QualityOK:
		return 3
	case models.QualityStale:
		return 2
	case models.QualitySensorError:
		return 1
	default:
		return 0
	}
}

// legacy artifact rule: a known historical unit-conversion bug produced impossibly high
// mmol/L values tagged as local_broadcast; those rows are dropped outright rather than
// clamped, since clamping would silently corrupt a real high reading.
func isLegacyArtifact(p models.GlucosePoint) bool {
	return p.Source == "local_broadcast" && p.ValueMmol >= 30
}

// NormalizeGlucose interprets a raw numeric reading, auto-detecting mg/dL vs mmol/L: values
// above 35 are assumed to already be in mg/dL (no glucose meter reports mmol/L that high).
func NormalizeGlucose(raw float64) float64 {
	if raw > 35 {
		return models.MgdlToMmol(raw)
	}
	return raw
}

// Glucose deduplicates and sorts a list of raw glucose points: for every timestamp, keeps the
// point with the highest combined (source, quality) score; drops points outside the
// physiologically plausible band and legacy unit-bug artifacts.
func Glucose(points []models.GlucosePoint) []models.GlucosePoint {
	byTs := make(map[int64]models.GlucosePoint, len(points))
	byTsScore := make(map[int64]int, len(points))

	for _, p := range points {
		p.ValueMmol = NormalizeGlucose(p.ValueMmol)
		if p.ValueMmol < 1 || p.ValueMmol > 33 {
			continue
		}
		if isLegacyArtifact(p) {
			continue
		}
		score := glucoseSourceScore(p.Source)*10 + qualityScore(p.Quality)
		existingScore, seen := byTsScore[p.TsMillis]
		if !seen || score > existingScore {
			byTs[p.TsMillis] = p
			byTsScore[p.TsMillis] = score
		}
	}

	out := make([]models.GlucosePoint, 0, len(byTs))
	for _, p := range byTs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TsMillis < out[j].TsMillis })
	return out
}
