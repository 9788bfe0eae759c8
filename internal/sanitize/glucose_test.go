package sanitize

import (
	"testing"

	"github.com/mrcode/glucocopilot/internal/models"
)

func TestNormalizeGlucose(t *testing.T) {
	tests := []struct {
		name string
		raw  float64
		want float64
	}{
		{"mmol passthrough", 6.1, 6.1},
		{"mgdl auto-detected", 110, models.MgdlToMmol(110)},
		{"boundary stays mmol", 35, 35},
		{"just above boundary converts", 35.1, models.MgdlToMmol(35.1)},
	}
	for _, tt := range tests {
		if got := NormalizeGlucose(tt.raw); got != tt.want {
			t.Errorf("%s: NormalizeGlucose(%v) = %v, want %v", tt.name, tt.raw, got, tt.want)
		}
	}
}

func TestGlucose_DropsOutOfRangeAndLegacyArtifacts(t *testing.T) {
	points := []models.GlucosePoint{
		{TsMillis: 1, ValueMmol: 6.0, Source: "nightscout", Quality: models.QualityOK},
		{TsMillis: 2, ValueMmol: 0.5, Source: "nightscout", Quality: models.QualityOK},  // below plausible band
		{TsMillis: 3, ValueMmol: 34, Source: "nightscout", Quality: models.QualityOK},   // above plausible band (not converted: <= 35)
		{TsMillis: 4, ValueMmol: 32, Source: "local_broadcast", Quality: models.QualityOK}, // legacy artifact
	}
	out := Glucose(points)
	if len(out) != 1 {
		t.Fatalf("Glucose() returned %d points, want 1: %+v", len(out), out)
	}
	if out[0].TsMillis != 1 {
		t.Errorf("surviving point ts = %d, want 1", out[0].TsMillis)
	}
}

func TestGlucose_PrefersHigherPrioritySourceOnCollision(t *testing.T) {
	points := []models.GlucosePoint{
		{TsMillis: 100, ValueMmol: 5.0, Source: "local_broadcast", Quality: models.QualityOK},
		{TsMillis: 100, ValueMmol: 5.5, Source: "nightscout", Quality: models.QualityOK},
	}
	out := Glucose(points)
	if len(out) != 1 {
		t.Fatalf("expected dedup to 1 point, got %d", len(out))
	}
	if out[0].Source != "nightscout" {
		t.Errorf("surviving source = %s, want nightscout", out[0].Source)
	}
}

func TestGlucose_SortsByTimestamp(t *testing.T) {
	points := []models.GlucosePoint{
		{TsMillis: 300, ValueMmol: 6.0, Source: "nightscout", Quality: models.QualityOK},
		{TsMillis: 100, ValueMmol: 5.0, Source: "nightscout", Quality: models.QualityOK},
		{TsMillis: 200, ValueMmol: 5.5, Source: "nightscout", Quality: models.QualityOK},
	}
	out := Glucose(points)
	for i := 1; i < len(out); i++ {
		if out[i-1].TsMillis > out[i].TsMillis {
			t.Fatalf("Glucose() not sorted: %+v", out)
		}
	}
}
