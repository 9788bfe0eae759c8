package rules

import (
	"testing"

	"github.com/mrcode/glucocopilot/internal/config"
	"github.com/mrcode/glucocopilot/internal/models"
)

func defaultSafetyConfig() config.SafetyPolicy {
	return config.SafetyPolicy{
		MinTargetMmol:      4.0,
		MaxTargetMmol:      10.0,
		MaxActionsIn6Hours: 3,
	}
}

func tempTargetDecision(targetMmol, durationMinutes string) *models.RuleDecision {
	return &models.RuleDecision{
		RuleID: "Test.v1",
		State:  models.DecisionTriggered,
		ActionProposal: &models.ActionProposal{
			Type: models.ActionTempTarget,
			Params: map[string]string{
				"targetMmol":      targetMmol,
				"durationMinutes": durationMinutes,
			},
		},
	}
}

func TestSafetyPolicy_KillSwitchBlocksEverything(t *testing.T) {
	cfg := defaultSafetyConfig()
	cfg.KillSwitch = true
	p := SafetyPolicy{Config: cfg}
	d := tempTargetDecision("6.0", "30")
	p.Evaluate(Context{}, d)

	if d.State != models.DecisionBlocked {
		t.Fatalf("state = %v, want BLOCKED", d.State)
	}
	if d.ActionProposal != nil {
		t.Error("expected proposal cleared")
	}
}

func TestSafetyPolicy_StaleDataBlocks(t *testing.T) {
	p := SafetyPolicy{Config: defaultSafetyConfig()}
	d := tempTargetDecision("6.0", "30")
	p.Evaluate(Context{DataFresh: false}, d)
	if d.State != models.DecisionBlocked {
		t.Fatalf("state = %v, want BLOCKED for stale data", d.State)
	}
}

func TestSafetyPolicy_TargetOutOfRangeBlocks(t *testing.T) {
	p := SafetyPolicy{Config: defaultSafetyConfig()}
	d := tempTargetDecision("12.0", "30") // above MaxTargetMmol
	p.Evaluate(Context{DataFresh: true}, d)
	if d.State != models.DecisionBlocked {
		t.Fatalf("state = %v, want BLOCKED for out-of-range target", d.State)
	}
}

func TestSafetyPolicy_TempTargetExemptFromRateLimit(t *testing.T) {
	cfg := defaultSafetyConfig()
	cfg.MaxActionsIn6Hours = 1
	p := SafetyPolicy{Config: cfg}
	d := tempTargetDecision("6.0", "30")
	// ActionsLast6h already at the limit, but temp_target is exempt (Open Question decision b).
	p.Evaluate(Context{DataFresh: true, ActionsLast6h: 5}, d)
	if d.State != models.DecisionTriggered {
		t.Fatalf("state = %v, want TRIGGERED: temp_target should be rate-limit exempt", d.State)
	}
}

func TestSafetyPolicy_NonTempTargetRateLimited(t *testing.T) {
	cfg := defaultSafetyConfig()
	cfg.MaxActionsIn6Hours = 1
	p := SafetyPolicy{Config: cfg}
	d := &models.RuleDecision{
		RuleID: "Test.v1",
		State:  models.DecisionTriggered,
		ActionProposal: &models.ActionProposal{
			Type:   models.ActionCarbs,
			Params: map[string]string{},
		},
	}
	p.Evaluate(Context{DataFresh: true, ActionsLast6h: 5}, d)
	if d.State != models.DecisionBlocked {
		t.Fatalf("state = %v, want BLOCKED: carbs action should be rate-limited", d.State)
	}
}

func TestSafetyPolicy_SensorBlockedBlocks(t *testing.T) {
	p := SafetyPolicy{Config: defaultSafetyConfig()}
	d := tempTargetDecision("6.0", "30")
	p.Evaluate(Context{DataFresh: true, SensorBlocked: true}, d)
	if d.State != models.DecisionBlocked {
		t.Fatalf("state = %v, want BLOCKED when sensor is blocked", d.State)
	}
}

func TestSafetyPolicy_ValidProposalPasses(t *testing.T) {
	p := SafetyPolicy{Config: defaultSafetyConfig()}
	d := tempTargetDecision("6.0", "30")
	p.Evaluate(Context{DataFresh: true}, d)
	if d.State != models.DecisionTriggered {
		t.Fatalf("state = %v, want TRIGGERED for a valid proposal", d.State)
	}
	if d.ActionProposal == nil {
		t.Error("expected proposal to survive")
	}
}
