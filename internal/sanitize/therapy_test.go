package sanitize

import (
	"testing"

	"github.com/mrcode/glucocopilot/internal/models"
)

func correctionBolus(id string, units string) models.TherapyEvent {
	return models.TherapyEvent{
		TsMillis: 1000, ID: id, Source: "nightscout", Kind: models.KindCorrectionBolus,
		Payload: map[string]string{"units": units},
	}
}

func TestTherapy_DropsLocalEchoDuplicates(t *testing.T) {
	events := []models.TherapyEvent{
		correctionBolus("br-aaps_broadcast-abc", "2.0"),
	}
	out := Therapy(events)
	if len(out) != 0 {
		t.Errorf("expected local-echo duplicate dropped, got %d", len(out))
	}
}

func TestTherapy_DropsOutOfRangeUnits(t *testing.T) {
	events := []models.TherapyEvent{
		correctionBolus("ns-1", "0.01"), // below the 0.05 floor
		correctionBolus("ns-2", "20"),   // above the 15 ceiling
		correctionBolus("ns-3", "2.5"),  // valid
	}
	out := Therapy(events)
	if len(out) != 1 {
		t.Fatalf("expected 1 valid event, got %d: %+v", len(out), out)
	}
	if out[0].ID != "ns-3" {
		t.Errorf("surviving event id = %s, want ns-3", out[0].ID)
	}
}

func TestTherapy_MealBolusRatioCheck(t *testing.T) {
	tests := []struct {
		name  string
		grams string
		units string
		valid bool
	}{
		{"plausible ratio", "40", "4", true},
		{"ratio too high", "300", "1", false},
		{"ratio too low", "2", "20", false},
	}
	for _, tt := range tests {
		e := models.TherapyEvent{
			TsMillis: 1000, ID: "m-" + tt.name, Source: "nightscout", Kind: models.KindMealBolus,
			Payload: map[string]string{"grams": tt.grams, "units": tt.units},
		}
		out := Therapy([]models.TherapyEvent{e})
		if tt.valid && len(out) != 1 {
			t.Errorf("%s: expected valid meal bolus to survive", tt.name)
		}
		if !tt.valid && len(out) != 0 {
			t.Errorf("%s: expected invalid ratio to be dropped", tt.name)
		}
	}
}

func TestTherapy_DedupesByTimestampAndKind(t *testing.T) {
	events := []models.TherapyEvent{
		correctionBolus("ns-1", "2.0"),
		correctionBolus("ns-2", "2.0"), // same ts+kind as ns-1
	}
	out := Therapy(events)
	if len(out) != 1 {
		t.Fatalf("expected dedup to 1 event, got %d", len(out))
	}
}

func TestTherapy_SortsByTimestamp(t *testing.T) {
	e1 := correctionBolus("a", "2.0")
	e1.TsMillis = 300
	e2 := correctionBolus("b", "2.0")
	e2.TsMillis = 100
	out := Therapy([]models.TherapyEvent{e1, e2})
	if len(out) != 2 || out[0].TsMillis != 100 || out[1].TsMillis != 300 {
		t.Fatalf("Therapy() not sorted: %+v", out)
	}
}

func TestTherapy_UncheckedKindPassesThrough(t *testing.T) {
	e := models.TherapyEvent{TsMillis: 1000, ID: "s-1", Source: "nightscout", Kind: models.KindSensorState,
		Payload: map[string]string{"blocked": "true"}}
	out := Therapy([]models.TherapyEvent{e})
	if len(out) != 1 {
		t.Fatalf("expected sensor_state event to pass through unchecked, got %d", len(out))
	}
}
