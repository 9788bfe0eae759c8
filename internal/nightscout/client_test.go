package nightscout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrcode/glucocopilot/internal/models"
)

func TestHashSecret(t *testing.T) {
	result := hashSecret("test")
	expected := "a94a8fe5ccb19ba61c4c0873d391e987982fbbd3"

	if result != expected {
		t.Errorf("hashSecret(\"test\") = %s, want %s", result, expected)
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient("https://test.example.com", "secret", "token", true, zerolog.Nop())

	if client.baseURL != "https://test.example.com" {
		t.Errorf("baseURL = %s, want https://test.example.com", client.baseURL)
	}
	if client.apiSecret != "secret" {
		t.Errorf("apiSecret = %s, want secret", client.apiSecret)
	}
	if client.apiToken != "token" {
		t.Errorf("apiToken = %s, want token", client.apiToken)
	}
	if !client.useToken {
		t.Error("useToken should be true")
	}
}

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	client := NewClient("https://test.example.com/", "", "", false, zerolog.Nop())

	if client.baseURL != "https://test.example.com" {
		t.Errorf("baseURL = %s, should not have trailing slash", client.baseURL)
	}
}

func TestClient_GetEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/entries/sgv" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}

		entries := []rawEntry{
			{SGV: 120, Date: time.Now().UnixMilli()},
			{SGV: 115, Date: time.Now().Add(-5 * time.Minute).UnixMilli()},
			{SGV: 118, Date: time.Now().Add(-10 * time.Minute).UnixMilli()},
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entries)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "", false, zerolog.Nop())
	from := time.Now().Add(-1 * time.Hour)
	points, err := client.GetEntries(context.Background(), from, time.Time{})

	if err != nil {
		t.Fatalf("GetEntries() error = %v", err)
	}
	if len(points) != 3 {
		t.Errorf("Got %d entries, want 3", len(points))
	}
	for _, p := range points {
		if p.Source != "nightscout" {
			t.Errorf("Source = %s, want nightscout", p.Source)
		}
		if p.Quality != models.QualityOK {
			t.Errorf("Quality = %s, want OK", p.Quality)
		}
	}
}

func TestClient_GetTreatments_ClassifiesKinds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/treatments" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		carbs := 30.0
		insulin := 2.5
		raws := []rawTreatment{
			{ID: "a", EventType: "Meal Bolus", CreatedAt: time.Now().Format(time.RFC3339), Insulin: &insulin, Carbs: &carbs},
			{ID: "b", EventType: "Correction Bolus", CreatedAt: time.Now().Format(time.RFC3339), Insulin: &insulin},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(raws)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "", false, zerolog.Nop())
	events, err := client.GetTreatments(context.Background(), time.Now().Add(-1*time.Hour), time.Time{})
	if err != nil {
		t.Fatalf("GetTreatments() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Got %d treatments, want 2", len(events))
	}
	if events[0].Kind != models.KindMealBolus {
		t.Errorf("Kind = %s, want meal_bolus", events[0].Kind)
	}
	if events[1].Kind != models.KindCorrectionBolus {
		t.Errorf("Kind = %s, want correction_bolus", events[1].Kind)
	}
}

func TestClient_GetStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/status" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "", false, zerolog.Nop())
	if err := client.GetStatus(context.Background()); err != nil {
		t.Errorf("GetStatus() error = %v, want nil", err)
	}
}

func TestClient_AuthHeaders_Token(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader != "Bearer testtoken123" {
			t.Errorf("Authorization header = %s, want Bearer testtoken123", authHeader)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "testtoken123", true, zerolog.Nop())
	_ = client.GetStatus(context.Background())
}

func TestClient_AuthHeaders_Secret(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secretHeader := r.Header.Get("API-SECRET")
		expectedHash := hashSecret("mysecret")
		if secretHeader != expectedHash {
			t.Errorf("API-SECRET header = %s, want %s", secretHeader, expectedHash)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "mysecret", "", false, zerolog.Nop())
	_ = client.GetStatus(context.Background())
}

func TestClient_ErrorHandling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("Unauthorized"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "", false, zerolog.Nop())
	if err := client.GetStatus(context.Background()); err == nil {
		t.Error("Expected error for 401 response")
	}
}

func TestClient_PostTempTarget(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Method = %s, want POST", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "", false, zerolog.Nop())
	cmd := models.ActionCommand{
		IdempotencyKey: "key-1",
		Params:         map[string]string{"targetMmol": "7.5", "durationMinutes": "90"},
	}
	if err := client.PostTempTarget(context.Background(), cmd); err != nil {
		t.Fatalf("PostTempTarget() error = %v", err)
	}
	if received["eventType"] != "Temporary Target" {
		t.Errorf("eventType = %v, want Temporary Target", received["eventType"])
	}
}
