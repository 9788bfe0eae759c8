package rules

import (
	"sort"

	"github.com/mrcode/glucocopilot/internal/models"
)

// Engine evaluates every enabled rule in priority order, vets each decision through the
// safety policy, and returns the complete result list — the coordinator, not the engine,
// decides what to act on.
type Engine struct {
	Rules  []Rule
	Safety SafetyPolicy
}

// NewEngine builds the engine with the core's four always-registered rules.
func NewEngine(retargetMinutes int, safety SafetyPolicy) Engine {
	return Engine{
		Rules: []Rule{
			NewAdaptiveTargetController(retargetMinutes),
			NewPostHypoReboundGuard(),
			NewPatternAdaptiveTarget(),
			NewSegmentProfileGuard(),
		},
		Safety: safety,
	}
}

// Evaluate runs every rule in priority-descending order (ties broken by rule id ascending)
// and returns one RuleDecision per rule.
func (e Engine) Evaluate(ctx Context) []models.RuleDecision {
	ordered := append([]Rule{}, e.Rules...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Priority() != ordered[j].Priority() {
			return ordered[i].Priority() > ordered[j].Priority()
		}
		return ordered[i].ID() < ordered[j].ID()
	})

	decisions := make([]models.RuleDecision, 0, len(ordered))
	for _, r := range ordered {
		d := r.Evaluate(ctx)
		e.Safety.Evaluate(ctx, &d)
		decisions = append(decisions, d)
	}
	return decisions
}

// RuleByID finds a registered rule by id, used by the coordinator to look up a rule's
// configured cooldown when checking persisted execution history.
func (e Engine) RuleByID(id string) (Rule, bool) {
	for _, r := range e.Rules {
		if r.ID() == id {
			return r, true
		}
	}
	return nil, false
}
