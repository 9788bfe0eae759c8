// Package nightscout is the REST client for Nightscout ingestion (SGV entries, treatments)
// and outbound treatment POST dispatch. Grounded on the teacher's nightscout/client.go
// (pagination loop, hashSecret, buildRequest/doRequest), adapted to take a context.Context on
// every call, emit structured zerolog lines instead of fmt.Printf debug output, and to post
// treatments (the teacher was read-only).
package nightscout

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec // required for the legacy Nightscout API-secret hashing scheme
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrcode/glucocopilot/internal/models"
)

const maxPerRequest = 10000

// Client handles communication with the Nightscout REST API.
type Client struct {
	baseURL    string
	apiSecret  string
	apiToken   string
	useToken   bool
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a new Nightscout client.
func NewClient(baseURL, apiSecret, apiToken string, useToken bool, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiSecret: apiSecret,
		apiToken:  apiToken,
		useToken:  useToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("component", "nightscout").Logger(),
	}
}

func hashSecret(secret string) string {
	hasher := sha1.New() //nolint:gosec // required for the legacy Nightscout API-secret hashing scheme
	hasher.Write([]byte(secret))
	return hex.EncodeToString(hasher.Sum(nil))
}

func (c *Client) buildRequest(ctx context.Context, method, endpoint string, params url.Values, body io.Reader) (*http.Request, error) {
	fullURL := c.baseURL + endpoint
	if params != nil {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	if c.useToken && c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	} else if c.apiSecret != "" {
		req.Header.Set("API-SECRET", hashSecret(c.apiSecret))
	}

	return req, nil
}

func (c *Client) doRequest(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("nightscout API error %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// rawEntry is the wire shape of a Nightscout SGV entry.
type rawEntry struct {
	ID     string `json:"_id"`
	SGV    float64 `json:"sgv"`
	Date   int64  `json:"date"`
	Device string `json:"device"`
}

// GetEntries retrieves glucose entries in [from, to], paginated by walking the oldest
// timestamp of each page backward, mirroring the teacher's GetEntries.
func (c *Client) GetEntries(ctx context.Context, from, to time.Time) ([]models.GlucosePoint, error) {
	var all []models.GlucosePoint
	currentTo := to
	if currentTo.IsZero() {
		currentTo = time.Now()
	}

	for page := 1; ; page++ {
		params := url.Values{}
		if !from.IsZero() {
			params.Set("find[date][$gte]", strconv.FormatInt(from.UnixMilli(), 10))
		}
		params.Set("find[date][$lte]", strconv.FormatInt(currentTo.UnixMilli(), 10))
		params.Set("count", strconv.Itoa(maxPerRequest))

		req, err := c.buildRequest(ctx, "GET", "/api/v1/entries/sgv", params, nil)
		if err != nil {
			return nil, err
		}
		body, err := c.doRequest(req)
		if err != nil {
			return nil, err
		}
		var entries []rawEntry
		if err := json.Unmarshal(body, &entries); err != nil {
			return nil, fmt.Errorf("parsing entries: %w", err)
		}
		c.log.Debug().Int("page", page).Int("count", len(entries)).Msg("fetched entries page")
		if len(entries) == 0 {
			break
		}

		oldest := currentTo
		for _, e := range entries {
			all = append(all, models.GlucosePoint{
				TsMillis:  normalizeTs(e.Date),
				ValueMmol: models.MgdlToMmol(e.SGV),
				Source:    "nightscout",
				Quality:   models.QualityOK,
			})
			t := time.UnixMilli(normalizeTs(e.Date))
			if t.Before(oldest) {
				oldest = t
			}
		}

		if len(entries) < maxPerRequest {
			break
		}
		currentTo = oldest.Add(-time.Millisecond)
		if !from.IsZero() && currentTo.Before(from) {
			break
		}
	}
	return all, nil
}

// GetEntriesHours retrieves glucose entries for the last N hours.
func (c *Client) GetEntriesHours(ctx context.Context, hours int) ([]models.GlucosePoint, error) {
	return c.GetEntries(ctx, time.Now().Add(-time.Duration(hours)*time.Hour), time.Time{})
}

// rawTreatment is the wire shape of a Nightscout treatment document, flattened into the
// generic payload a models.TherapyEvent carries.
type rawTreatment struct {
	ID        string  `json:"_id"`
	EventType string  `json:"eventType"`
	CreatedAt string  `json:"created_at"`
	Insulin   *float64 `json:"insulin"`
	Carbs     *float64 `json:"carbs"`
	Duration  *float64 `json:"duration"`
	TargetTop *float64 `json:"targetTop"`
	TargetBottom *float64 `json:"targetBottom"`
	Notes     string  `json:"notes"`
}

func classifyEventType(eventType string, insulin, carbs *float64) models.TherapyKind {
	lower := strings.ToLower(eventType)
	switch {
	case strings.Contains(lower, "temporary target"):
		return models.KindTempTarget
	case strings.Contains(lower, "carb"):
		return models.KindCarbs
	case strings.Contains(lower, "meal"):
		return models.KindMealBolus
	case strings.Contains(lower, "correction"):
		return models.KindCorrectionBolus
	case strings.Contains(lower, "bolus"):
		if insulin != nil && carbs != nil && *carbs > 0 {
			return models.KindMealBolus
		}
		return models.KindBolus
	case strings.Contains(lower, "sensor"):
		return models.KindSensorState
	default:
		return models.KindOther
	}
}

// GetTreatments retrieves therapy events in [from, to], paginated like GetEntries.
func (c *Client) GetTreatments(ctx context.Context, from, to time.Time) ([]models.TherapyEvent, error) {
	var all []models.TherapyEvent
	currentTo := to
	if currentTo.IsZero() {
		currentTo = time.Now()
	}

	for {
		params := url.Values{}
		if !from.IsZero() {
			params.Set("find[created_at][$gte]", from.Format(time.RFC3339))
		}
		params.Set("find[created_at][$lte]", currentTo.Format(time.RFC3339))
		params.Set("count", strconv.Itoa(maxPerRequest))

		req, err := c.buildRequest(ctx, "GET", "/api/v1/treatments", params, nil)
		if err != nil {
			return nil, err
		}
		body, err := c.doRequest(req)
		if err != nil {
			return nil, err
		}
		var raws []rawTreatment
		if err := json.Unmarshal(body, &raws); err != nil {
			return nil, fmt.Errorf("parsing treatments: %w", err)
		}
		if len(raws) == 0 {
			break
		}

		oldest := currentTo
		for _, t := range raws {
			ts := parseTreatmentTime(t.CreatedAt)
			payload := map[string]string{}
			if t.Insulin != nil {
				payload["units"] = strconv.FormatFloat(*t.Insulin, 'f', -1, 64)
			}
			if t.Carbs != nil {
				payload["grams"] = strconv.FormatFloat(*t.Carbs, 'f', -1, 64)
			}
			if t.Duration != nil {
				payload["duration"] = strconv.FormatFloat(*t.Duration, 'f', -1, 64)
			}
			if t.TargetTop != nil {
				payload["targetTopMmol"] = strconv.FormatFloat(models.MgdlToMmol(*t.TargetTop), 'f', -1, 64)
			}
			if t.TargetBottom != nil {
				payload["targetBottomMmol"] = strconv.FormatFloat(models.MgdlToMmol(*t.TargetBottom), 'f', -1, 64)
			}
			payload["notes"] = t.Notes

			all = append(all, models.TherapyEvent{
				TsMillis: ts,
				ID:       t.ID,
				Source:   "nightscout",
				Kind:     classifyEventType(t.EventType, t.Insulin, t.Carbs),
				Payload:  payload,
			})
			et := time.UnixMilli(ts)
			if et.Before(oldest) {
				oldest = et
			}
		}

		if len(raws) < maxPerRequest {
			break
		}
		currentTo = oldest.Add(-time.Second)
		if !from.IsZero() && currentTo.Before(from) {
			break
		}
	}
	return all, nil
}

// GetTreatmentsHours retrieves therapy events for the last N hours.
func (c *Client) GetTreatmentsHours(ctx context.Context, hours int) ([]models.TherapyEvent, error) {
	return c.GetTreatments(ctx, time.Now().Add(-time.Duration(hours)*time.Hour), time.Time{})
}

// PostTempTarget sends a temp-target treatment, implementing dispatch.PrimaryChannel.
func (c *Client) PostTempTarget(ctx context.Context, cmd models.ActionCommand) error {
	targetMgdl := models.MmolToMgdl(numericParam(cmd.Params, "targetMmol"))
	doc := map[string]interface{}{
		"eventType":    "Temporary Target",
		"createdAt":    time.Now().UTC().Format(time.RFC3339),
		"duration":     numericParam(cmd.Params, "durationMinutes"),
		"targetTop":    targetMgdl,
		"targetBottom": targetMgdl,
		"notes":        "copilot:" + cmd.IdempotencyKey,
	}
	return c.postTreatment(ctx, doc)
}

// PostCarbs sends a carb-correction treatment, implementing dispatch.PrimaryChannel.
func (c *Client) PostCarbs(ctx context.Context, cmd models.ActionCommand) error {
	doc := map[string]interface{}{
		"eventType": "Carb Correction",
		"createdAt": time.Now().UTC().Format(time.RFC3339),
		"carbs":     numericParam(cmd.Params, "grams"),
		"notes":     "copilot:" + cmd.IdempotencyKey,
	}
	return c.postTreatment(ctx, doc)
}

func numericParam(params map[string]string, key string) float64 {
	v, err := strconv.ParseFloat(params[key], 64)
	if err != nil {
		return 0
	}
	return v
}

func (c *Client) postTreatment(ctx context.Context, doc map[string]interface{}) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal treatment: %w", err)
	}
	req, err := c.buildRequest(ctx, "POST", "/api/v1/treatments", nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	_, err = c.doRequest(req)
	return err
}

// GetStatus retrieves the Nightscout server status, used as a cheap reachability probe.
func (c *Client) GetStatus(ctx context.Context) error {
	req, err := c.buildRequest(ctx, "GET", "/api/v1/status", nil, nil)
	if err != nil {
		return err
	}
	_, err = c.doRequest(req)
	return err
}

// normalizeTs applies the spec's epoch-seconds and future-skew timestamp normalization.
func normalizeTs(raw int64) int64 {
	ts := raw
	if ts < 10_000_000_000 {
		ts *= 1000
	}
	nowPlus24h := time.Now().Add(24 * time.Hour).UnixMilli()
	if ts > nowPlus24h {
		ts = time.Now().UnixMilli()
	}
	return ts
}

func parseTreatmentTime(s string) int64 {
	if s == "" {
		return time.Now().UnixMilli()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return normalizeTs(t.UnixMilli())
	}
	if t, err := time.Parse("2006-01-02T15:04:05.000Z", s); err == nil {
		return normalizeTs(t.UnixMilli())
	}
	return time.Now().UnixMilli()
}
