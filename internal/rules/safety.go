package rules

import (
	"fmt"

	"github.com/mrcode/glucocopilot/internal/config"
	"github.com/mrcode/glucocopilot/internal/models"
)

// SafetyPolicy vets a triggered rule's proposal before it is allowed to reach the dispatcher.
// Grounded on the ordered, reason-accumulating veto style of the pack's RiskGate chain, here
// collapsed into one all-must-pass gate since the spec defines a flat conjunction of checks
// rather than a prioritized gate list.
type SafetyPolicy struct {
	Config config.SafetyPolicy
}

// Evaluate mutates decision in place: if any check fails, the decision is rewritten to
// BLOCKED with the accumulated machine-readable reasons and its proposal is dropped.
// Per Open Question (b) (see DESIGN.md): temp_target proposals are exempt from the
// rate_limit_6h check, but every sent action (temp_target included) still increments the
// counter used to gate OTHER action types.
func (p SafetyPolicy) Evaluate(ctx Context, decision *models.RuleDecision) {
	if decision.State != models.DecisionTriggered || decision.ActionProposal == nil {
		return
	}

	var reasons []string

	if p.Config.KillSwitch {
		reasons = append(reasons, "kill_switch")
	}
	if !ctx.DataFresh {
		reasons = append(reasons, "stale_data")
	}
	if ctx.SensorBlocked {
		reasons = append(reasons, "sensor_blocked")
	}
	if decision.ActionProposal.Type != models.ActionTempTarget && ctx.ActionsLast6h >= p.Config.MaxActionsIn6Hours {
		reasons = append(reasons, "rate_limit_6h")
	}

	if decision.ActionProposal.Type == models.ActionTempTarget {
		target, ok := floatParam(decision.ActionProposal.Params, "targetMmol")
		if !ok || target < p.Config.MinTargetMmol || target > p.Config.MaxTargetMmol {
			reasons = append(reasons, fmt.Sprintf("target_out_of_range:%.2f", target))
		}
		duration, ok := floatParam(decision.ActionProposal.Params, "durationMinutes")
		if !ok || duration < 15 || duration > 120 {
			reasons = append(reasons, fmt.Sprintf("duration_out_of_range:%.0f", duration))
		}
	}

	if len(reasons) > 0 {
		decision.State = models.DecisionBlocked
		decision.Reasons = append(decision.Reasons, reasons...)
		decision.ActionProposal = nil
	}
}

func floatParam(params map[string]string, key string) (float64, bool) {
	raw, ok := params[key]
	if !ok {
		return 0, false
	}
	var v float64
	_, err := fmt.Sscanf(raw, "%f", &v)
	if err != nil {
		return 0, false
	}
	return v, true
}
