package rules

import (
	"testing"

	"github.com/mrcode/glucocopilot/internal/models"
)

func TestEngine_NewEngine_RegistersCoreRules(t *testing.T) {
	e := NewEngine(10, SafetyPolicy{Config: defaultSafetyConfig()})
	if len(e.Rules) != 4 {
		t.Fatalf("expected 4 core rules, got %d", len(e.Rules))
	}
}

func TestEngine_RuleByID_FindsRegisteredRule(t *testing.T) {
	e := NewEngine(10, SafetyPolicy{Config: defaultSafetyConfig()})
	rule, ok := e.RuleByID(AdaptiveTargetControllerID)
	if !ok {
		t.Fatal("expected to find AdaptiveTargetController")
	}
	if rule.CooldownMinutes() != 10 {
		t.Errorf("cooldown = %d, want 10", rule.CooldownMinutes())
	}
}

func TestEngine_RuleByID_MissingReturnsFalse(t *testing.T) {
	e := NewEngine(10, SafetyPolicy{Config: defaultSafetyConfig()})
	if _, ok := e.RuleByID("DoesNotExist.v1"); ok {
		t.Error("expected not-found for unregistered rule id")
	}
}

func TestEngine_Evaluate_OrdersByPriorityDescending(t *testing.T) {
	e := NewEngine(10, SafetyPolicy{Config: defaultSafetyConfig()})
	ctx := Context{
		Now:                     1000,
		Forecasts:               []models.Forecast{{HorizonMinutes: 60, ValueMmol: 6.0}},
		EffectiveBaseTargetMmol: 5.5,
		DataFresh:               true,
	}
	decisions := e.Evaluate(ctx)
	if len(decisions) != 4 {
		t.Fatalf("expected 4 decisions, got %d", len(decisions))
	}
	for i := 1; i < len(decisions); i++ {
		if decisions[i-1].Priority < decisions[i].Priority {
			t.Fatalf("decisions not sorted by priority descending: %+v", decisions)
		}
	}
	if decisions[0].RuleID != AdaptiveTargetControllerID {
		t.Errorf("highest-priority decision = %s, want %s", decisions[0].RuleID, AdaptiveTargetControllerID)
	}
}

func TestEngine_Evaluate_SafetyPolicyAppliedToEveryDecision(t *testing.T) {
	cfg := defaultSafetyConfig()
	cfg.KillSwitch = true
	e := NewEngine(10, SafetyPolicy{Config: cfg})
	ctx := Context{
		Now:                     1000,
		Forecasts:               []models.Forecast{{HorizonMinutes: 60, ValueMmol: 6.0}, {HorizonMinutes: 5, ValueMmol: 6.0}},
		EffectiveBaseTargetMmol: 5.5,
		DataFresh:               true,
	}
	decisions := e.Evaluate(ctx)
	for _, d := range decisions {
		if d.State == models.DecisionTriggered {
			t.Errorf("rule %s triggered despite kill switch; safety policy should have blocked it", d.RuleID)
		}
	}
}
