package models

// ActionStatus is the terminal-or-not lifecycle state of a dispatched command.
type ActionStatus string

const (
	ActionPending ActionStatus = "PENDING"
	ActionSent    ActionStatus = "SENT"
	ActionFailed  ActionStatus = "FAILED"
)

// ActionType enumerates the commands the dispatcher knows how to deliver.
type ActionType string

const (
	ActionTempTarget ActionType = "temp_target"
	ActionCarbs      ActionType = "carbs"
)

// ActionCommand is a single idempotent outbound command.
type ActionCommand struct {
	ID             string            `json:"id"`
	IdempotencyKey string            `json:"idempotencyKey"`
	Type           ActionType        `json:"type"`
	Params         map[string]string `json:"params"`
	SafetySnapshot map[string]string `json:"safetySnapshot"`
	Status         ActionStatus      `json:"status"`
	Channel        string            `json:"channel,omitempty"`
	FailureReason  string            `json:"failureReason,omitempty"`
	TsMillis       int64             `json:"ts"`
}
