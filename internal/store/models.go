// Package store persists forecasts, telemetry, action commands, rule executions, pattern
// windows, and audit events behind a Repository interface, backed by GORM + sqlite. Grounded
// on the GORM/sqlite bootstrap idiom in _examples/other_examples' PoyrazK-Health_System
// backend (gorm.Open(sqlite.Open(...)) + AutoMigrate over plain struct models).
package store

import "encoding/json"

// forecastRow is the sqlite-backed row shape for a models.Forecast.
type forecastRow struct {
	ID             string `gorm:"primaryKey"`
	TsMillis       int64  `gorm:"index"`
	HorizonMinutes int
	ValueMmol      float64
	CILow          float64
	CIHigh         float64
	ModelVersion   string
}

// telemetryRow is the sqlite-backed row shape for a models.TelemetrySample.
type telemetryRow struct {
	ID          string `gorm:"primaryKey"`
	TsMillis    int64  `gorm:"index"`
	Source      string
	Key         string `gorm:"index"`
	ValueDouble *float64
	ValueText   *string
	Unit        string
	Quality     string
}

// actionRow is the sqlite-backed row shape for a models.ActionCommand.
type actionRow struct {
	ID             string `gorm:"primaryKey"`
	IdempotencyKey string `gorm:"uniqueIndex"`
	Type           string
	ParamsJSON     string
	SafetyJSON     string
	Status         string
	Channel        string
	FailureReason  string
	TsMillis       int64 `gorm:"index"`
}

func marshalMap(m map[string]string) string {
	if m == nil {
		return "{}"
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func unmarshalMap(s string) map[string]string {
	if s == "" {
		return map[string]string{}
	}
	var m map[string]string
	_ = json.Unmarshal([]byte(s), &m)
	if m == nil {
		m = map[string]string{}
	}
	return m
}

func marshalStrings(s []string) string {
	if s == nil {
		return "[]"
	}
	b, _ := json.Marshal(s)
	return string(b)
}

func unmarshalStrings(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

// ruleExecutionRow is the sqlite-backed row shape for a models.RuleExecution.
type ruleExecutionRow struct {
	ID             string `gorm:"primaryKey"`
	RuleID         string `gorm:"index"`
	TsMillis       int64  `gorm:"index"`
	DecisionState  string
	ReasonsJSON    string
	IdempotencyKey string
}

// patternWindowRow is the sqlite-backed row shape for a models.PatternWindow.
type patternWindowRow struct {
	ID                    uint `gorm:"primaryKey;autoIncrement"`
	DayType               string `gorm:"index"`
	Hour                  int    `gorm:"index"`
	SampleCount           int
	ActiveDays            int
	LowRate               float64
	HighRate              float64
	RecommendedTargetMmol float64
	IsRiskWindow          bool
}

// auditRow is the sqlite-backed row shape for a models.AuditEvent.
type auditRow struct {
	ID          string `gorm:"primaryKey"`
	TsMillis    int64  `gorm:"index"`
	Level       string
	Message     string
	MetadataJSON string
}
