package rules

import "github.com/mrcode/glucocopilot/internal/models"

// Rule is a single named, prioritized, independently cooled-down decision source. Grounded on
// the pack's RiskGate interface (Name/Evaluate/Priority), generalized from a trading risk gate
// to a glucose-safety rule.
type Rule interface {
	ID() string
	Priority() int
	CooldownMinutes() int
	Evaluate(ctx Context) models.RuleDecision
}

// baseRule factors the ID/Priority/CooldownMinutes boilerplate every concrete rule shares.
type baseRule struct {
	id              string
	priority        int
	cooldownMinutes int
}

func (b baseRule) ID() string            { return b.id }
func (b baseRule) Priority() int         { return b.priority }
func (b baseRule) CooldownMinutes() int  { return b.cooldownMinutes }

func decision(ruleID string, priority int, state models.DecisionState, reasons []string, proposal *models.ActionProposal) models.RuleDecision {
	return models.RuleDecision{
		RuleID:         ruleID,
		Priority:       priority,
		State:          state,
		Reasons:        reasons,
		ActionProposal: proposal,
	}
}
