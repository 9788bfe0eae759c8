package models

// DecisionState is the outcome of evaluating a single rule.
type DecisionState string

const (
	DecisionTriggered DecisionState = "TRIGGERED"
	DecisionBlocked   DecisionState = "BLOCKED"
	DecisionNoMatch   DecisionState = "NO_MATCH"
)

// ActionProposal is what a triggered rule would like the dispatcher to send, pending
// safety-policy and cooldown checks.
type ActionProposal struct {
	Type   ActionType
	Params map[string]string
}

// RuleDecision is the result of evaluating one rule against the current cycle context.
type RuleDecision struct {
	RuleID         string          `json:"ruleId"`
	Priority       int             `json:"priority"`
	State          DecisionState   `json:"state"`
	Reasons        []string        `json:"reasons"`
	ActionProposal *ActionProposal `json:"actionProposal,omitempty"`
}

// RuleExecution is the persisted audit row for a single rule evaluation, used to reconstruct
// cooldown state across process restarts.
type RuleExecution struct {
	ID             string        `json:"id"`
	RuleID         string        `json:"ruleId"`
	TsMillis       int64         `json:"ts"`
	DecisionState  DecisionState `json:"decisionState"`
	Reasons        []string      `json:"reasons"`
	IdempotencyKey string        `json:"idempotencyKey,omitempty"`
}
