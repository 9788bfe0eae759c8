// Package notify raises operator-facing desktop alerts for automation conditions that need a
// human's attention, repurposed from the teacher's glucose-threshold notifications.Manager
// (cooldown-map-gated beeep.Notify calls) onto kill-switch/sensor-blocked/dispatch-failure
// conditions.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
)

// Kind enumerates the operator alert conditions this manager raises.
type Kind string

const (
	KindKillSwitchEngaged  Kind = "kill_switch_engaged"
	KindSensorBlocked      Kind = "sensor_blocked_sustained"
	KindDispatchFailing    Kind = "dispatch_repeated_failure"
)

// Manager gates repeated alerts of the same kind behind a cooldown, mirroring the teacher's
// per-alert-type lastAlertTime map.
type Manager struct {
	mu              sync.Mutex
	lastAlertTime   map[Kind]time.Time
	repeatCooldown  time.Duration
}

// NewManager builds a notification manager with the given repeat cooldown (0 disables repeats:
// each kind alerts at most once until ClearAlertState is called).
func NewManager(repeatCooldown time.Duration) *Manager {
	return &Manager{
		lastAlertTime:  make(map[Kind]time.Time),
		repeatCooldown: repeatCooldown,
	}
}

// Raise sends an operator alert of kind with detail, honoring the repeat cooldown.
func (m *Manager) Raise(kind Kind, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if lastTime, ok := m.lastAlertTime[kind]; ok {
		if m.repeatCooldown <= 0 {
			return nil
		}
		if time.Since(lastTime) < m.repeatCooldown {
			return nil
		}
	}

	title, message := formatAlert(kind, detail)
	if err := beeep.Notify(title, message, ""); err != nil {
		return fmt.Errorf("send operator alert: %w", err)
	}
	m.lastAlertTime[kind] = time.Now()
	return nil
}

func formatAlert(kind Kind, detail string) (string, string) {
	switch kind {
	case KindKillSwitchEngaged:
		return "Automation kill switch engaged", "The safety kill switch is blocking all automated actions."
	case KindSensorBlocked:
		return "Sensor blocked", fmt.Sprintf("Sensor has reported blocked state: %s", detail)
	case KindDispatchFailing:
		return "Action delivery failing", fmt.Sprintf("Repeated delivery failures: %s", detail)
	default:
		return "Automation alert", detail
	}
}

// ClearAlertState clears the cooldown for kind, or every kind if kind is empty.
func (m *Manager) ClearAlertState(kind Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if kind == "" {
		m.lastAlertTime = make(map[Kind]time.Time)
		return
	}
	delete(m.lastAlertTime, kind)
}

// SendTestNotification sends a test notification to verify the desktop alerting path works.
func (m *Manager) SendTestNotification() error {
	return beeep.Notify("GlucoCopilot", "Test notification - operator alerts are working!", "")
}
