package sanitize

import (
	"sort"
	"strconv"
	"strings"

	"github.com/mrcode/glucocopilot/internal/models"
)

// isLocalEchoDuplicate reports whether id carries a local-echo id prefix for a mutable event
// type, meaning it is very likely a duplicate of the same event Nightscout will also report.
func isLocalEchoDuplicate(e models.TherapyEvent) bool {
	if !e.IsMutable() {
		return false
	}
	return strings.HasPrefix(e.ID, "br-aaps_broadcast-") || strings.HasPrefix(e.ID, "br-local_broadcast-")
}

func floatField(e models.TherapyEvent, key string) (float64, bool) {
	raw, ok := e.Get(key)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// isValid applies the per-kind range checks from the spec's TherapyEvent invariants.
func isValid(e models.TherapyEvent) bool {
	switch e.Kind {
	case models.KindCorrectionBolus:
		units, ok := floatField(e, "units")
		return ok && units >= 0.05 && units <= 15
	case models.KindMealBolus:
		grams, gOk := floatField(e, "grams")
		units, uOk := floatField(e, "units")
		if !gOk || !uOk {
			return false
		}
		if grams < 1 || grams > 300 || units < 0.05 || units > 25 {
			return false
		}
		ratio := grams / units
		return ratio >= 1.5 && ratio <= 80
	case models.KindCarbs:
		grams, ok := floatField(e, "grams")
		return ok && grams >= 1 && grams <= 300
	case models.KindTempTarget:
		duration, ok := floatField(e, "duration")
		return ok && duration >= 5 && duration <= 720
	default:
		return true
	}
}

// Therapy deduplicates and validates a list of raw therapy events: drops local-echo
// duplicates of mutable event types, drops events failing their per-kind range invariant,
// dedupes by (ts, kind) keeping the first seen, and sorts by timestamp ascending.
func Therapy(events []models.TherapyEvent) []models.TherapyEvent {
	type dedupKey struct {
		ts   int64
		kind models.TherapyKind
	}
	seen := make(map[dedupKey]bool, len(events))
	out := make([]models.TherapyEvent, 0, len(events))

	for _, e := range events {
		if isLocalEchoDuplicate(e) {
			continue
		}
		if !isValid(e) {
			continue
		}
		key := dedupKey{ts: e.TsMillis, kind: e.Kind}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].TsMillis < out[j].TsMillis })
	return out
}
