// Package config holds the on-disk operator settings: Nightscout/cloud credentials, the
// selected insulin profile, the safety policy, and per-horizon calibration tuning.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// CalibrationTuning holds the recent-bias correction parameters for one forecast horizon.
type CalibrationTuning struct {
	MinSamples int     `yaml:"minSamples"`
	Gain       float64 `yaml:"gain"`
	MaxUp      float64 `yaml:"maxUp"`
	MaxDown    float64 `yaml:"maxDown"`
}

// SafetyPolicy bounds what the rule engine is allowed to propose.
type SafetyPolicy struct {
	KillSwitch        bool    `yaml:"killSwitch"`
	MinTargetMmol     float64 `yaml:"minTargetMmol"`
	MaxTargetMmol     float64 `yaml:"maxTargetMmol"`
	MaxActionsIn6Hours int    `yaml:"maxActionsIn6Hours"`
	StaleDataProfile  string  `yaml:"staleDataProfile"` // STRICT | MEDIUM | AGGRESSIVE
	RateLimitProfile  string  `yaml:"rateLimitProfile"`
}

// Settings is the full operator configuration, guarded by mu so concurrent reads from the
// cycle coordinator never race a concurrent Save triggered by a settings-UI write.
type Settings struct {
	mu sync.RWMutex `yaml:"-"`

	NightscoutURL   string `yaml:"nightscoutUrl"`
	NightscoutToken string `yaml:"nightscoutToken,omitempty"`
	CloudURL        string `yaml:"cloudUrl,omitempty"`
	CloudAPIKey     string `yaml:"cloudApiKey,omitempty"`

	InsulinProfile string `yaml:"insulinProfile"` // NOVORAPID | HUMALOG | APIDRA | FIASP | LYUMJEV
	BaseTargetMmol float64 `yaml:"baseTargetMmol"`
	LookbackDays   int     `yaml:"lookbackDays"`

	Safety SafetyPolicy `yaml:"safety"`

	Calibration map[int]CalibrationTuning `yaml:"calibration"`

	CyclePeriodSeconds int `yaml:"cyclePeriodSeconds"`
}

// DefaultSettings mirrors the spec's published defaults (§4.7, §4.8).
func DefaultSettings() *Settings {
	return &Settings{
		InsulinProfile:     "NOVORAPID",
		BaseTargetMmol:     5.5,
		LookbackDays:       60,
		CyclePeriodSeconds: 300,
		Safety: SafetyPolicy{
			MinTargetMmol:      4.0,
			MaxTargetMmol:      10.0,
			MaxActionsIn6Hours: 3,
			StaleDataProfile:   "MEDIUM",
			RateLimitProfile:   "MEDIUM",
		},
		Calibration: map[int]CalibrationTuning{
			5:  {MinSamples: 24, Gain: 0.35, MaxUp: 0.35, MaxDown: 0.25},
			30: {MinSamples: 18, Gain: 0.45, MaxUp: 0.70, MaxDown: 0.45},
			60: {MinSamples: 12, Gain: 0.55, MaxUp: 1.10, MaxDown: 0.65},
		},
	}
}

// GetConfigDir resolves the OS-specific configuration directory, mirroring the platform
// conventions the teacher used for its tray settings file.
func GetConfigDir() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("APPDATA")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			base = filepath.Join(home, "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, "Library", "Application Support")
	default:
		base = os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			base = filepath.Join(home, ".config")
		}
	}
	dir := filepath.Join(base, "glucocopilot")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// GetConfigPath returns the path to the settings YAML file.
func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "settings.yaml"), nil
}

// Load reads settings from disk, falling back to defaults if the file does not exist yet.
// Credential overrides from a sibling .env file (if present) take precedence over the file,
// so operators never have to commit secrets into the YAML.
func Load() (*Settings, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}

	if dir, derr := GetConfigDir(); derr == nil {
		envPath := filepath.Join(dir, ".env")
		if env, eerr := godotenv.Read(envPath); eerr == nil {
			if v, ok := env["NIGHTSCOUT_TOKEN"]; ok && v != "" {
				s.NightscoutToken = v
			}
			if v, ok := env["CLOUD_API_KEY"]; ok && v != "" {
				s.CloudAPIKey = v
			}
		}
	}
	return s, nil
}

// Save persists settings to disk as YAML.
func (s *Settings) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Clone returns a deep-enough copy safe to hand to a cycle without risking mutation races
// with a concurrent Update call.
func (s *Settings) Clone() *Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clone := *s
	clone.mu = sync.RWMutex{}
	clone.Calibration = make(map[int]CalibrationTuning, len(s.Calibration))
	for k, v := range s.Calibration {
		clone.Calibration[k] = v
	}
	return &clone
}

// Update applies fn under the write lock and persists the result.
func (s *Settings) Update(fn func(*Settings)) error {
	s.mu.Lock()
	fn(s)
	s.mu.Unlock()
	return s.Save()
}

// IsConfigured reports whether enough settings are present to run a cycle.
func (s *Settings) IsConfigured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.NightscoutURL != ""
}

// EffectiveStaleMaxMinutes resolves the stale-data threshold for the configured profile.
func (s *Settings) EffectiveStaleMaxMinutes(globalMax int) int {
	profileLimits := map[string]int{"STRICT": 10, "MEDIUM": 15, "AGGRESSIVE": 20}
	limit, ok := profileLimits[s.Safety.StaleDataProfile]
	if !ok {
		limit = profileLimits["MEDIUM"]
	}
	return minInt(globalMax, limit)
}

// EffectiveMaxActionsIn6Hours resolves the action-rate limit for the configured profile.
func (s *Settings) EffectiveMaxActionsIn6Hours() int {
	profileLimits := map[string]int{"STRICT": 3, "MEDIUM": 4, "AGGRESSIVE": 6}
	limit, ok := profileLimits[s.Safety.RateLimitProfile]
	if !ok {
		limit = profileLimits["MEDIUM"]
	}
	return minInt(s.Safety.MaxActionsIn6Hours, limit)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
