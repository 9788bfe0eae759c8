package rules

import (
	"fmt"

	"github.com/mrcode/glucocopilot/internal/models"
)

// AdaptiveTargetControllerID identifies the always-on adaptive controller, exported so the
// coordinator can special-case its cooldown bucketing (§4.8 step 20) without string literals.
const AdaptiveTargetControllerID = "AdaptiveTargetController.v1"

// AdaptiveTargetController is always enabled and is the primary temp-target driver: it shifts
// the base target against the 60-minute forecast's drift (a forecast above the base target
// lowers the target, one below raises it), bounded by the safety policy.
type AdaptiveTargetController struct {
	baseRule
	RetargetMinutes int
}

// NewAdaptiveTargetController builds the always-on adaptive controller with a cooldown in
// [5, 30] minutes.
func NewAdaptiveTargetController(retargetMinutes int) AdaptiveTargetController {
	if retargetMinutes < 5 {
		retargetMinutes = 5
	}
	if retargetMinutes > 30 {
		retargetMinutes = 30
	}
	return AdaptiveTargetController{
		baseRule: baseRule{id: AdaptiveTargetControllerID, priority: 100, cooldownMinutes: retargetMinutes},
		RetargetMinutes: retargetMinutes,
	}
}

func (r AdaptiveTargetController) Evaluate(ctx Context) models.RuleDecision {
	f60, ok := ctx.ForecastAt(60)
	if !ok {
		return decision(r.ID(), r.Priority(), models.DecisionNoMatch, []string{"no_60m_forecast"}, nil)
	}
	target := AlignBaseTarget(f60.ValueMmol, ctx.EffectiveBaseTargetMmol)
	return decision(r.ID(), r.Priority(), models.DecisionTriggered, nil, &models.ActionProposal{
		Type: models.ActionTempTarget,
		Params: map[string]string{
			"targetMmol":      fmt.Sprintf("%.2f", target),
			"durationMinutes": fmt.Sprintf("%.0f", float64(r.RetargetMinutes)),
			"reason":          "adaptive_target",
		},
	})
}

// PostHypoReboundGuard proposes a 6.5 mmol/L target for 60 minutes when the 5-minute forecast
// is below 4.4 mmol/L. ReboundWindowMinutes is not read by Evaluate.
type PostHypoReboundGuard struct {
	baseRule
	ReboundWindowMinutes int
}

func NewPostHypoReboundGuard() PostHypoReboundGuard {
	return PostHypoReboundGuard{
		baseRule:             baseRule{id: "PostHypoReboundGuard.v1", priority: 90, cooldownMinutes: 60},
		ReboundWindowMinutes: 90,
	}
}

func (r PostHypoReboundGuard) Evaluate(ctx Context) models.RuleDecision {
	f5, ok := ctx.ForecastAt(5)
	if !ok || f5.ValueMmol >= 4.4 {
		return decision(r.ID(), r.Priority(), models.DecisionNoMatch, nil, nil)
	}
	return decision(r.ID(), r.Priority(), models.DecisionTriggered, nil, &models.ActionProposal{
		Type: models.ActionTempTarget,
		Params: map[string]string{
			"targetMmol":      "6.50",
			"durationMinutes": "60",
			"reason":          "post_hypo_rebound_guard",
		},
	})
}

// PatternAdaptiveTarget shifts the target toward the learned PatternWindow recommendation
// during identified risk windows.
type PatternAdaptiveTarget struct {
	baseRule
}

func NewPatternAdaptiveTarget() PatternAdaptiveTarget {
	return PatternAdaptiveTarget{baseRule: baseRule{id: "PatternAdaptiveTarget.v1", priority: 70, cooldownMinutes: 30}}
}

func (r PatternAdaptiveTarget) Evaluate(ctx Context) models.RuleDecision {
	if !ctx.HasPattern || !ctx.Pattern.IsRiskWindow {
		return decision(r.ID(), r.Priority(), models.DecisionNoMatch, nil, nil)
	}
	return decision(r.ID(), r.Priority(), models.DecisionTriggered, nil, &models.ActionProposal{
		Type: models.ActionTempTarget,
		Params: map[string]string{
			"targetMmol":      fmt.Sprintf("%.2f", ctx.Pattern.RecommendedTargetMmol),
			"durationMinutes": "30",
			"reason":          "pattern_adaptive_target",
		},
	})
}

// SegmentProfileGuard flags when the current (dayType, timeSlot) segment's learned ISF/CR
// ISF diverges by 35% or more from the overall profile, reporting it as its own BLOCKED
// decision. It never proposes an action and does not block other rules' proposals.
type SegmentProfileGuard struct {
	baseRule
}

func NewSegmentProfileGuard() SegmentProfileGuard {
	return SegmentProfileGuard{baseRule: baseRule{id: "SegmentProfileGuard.v1", priority: 50, cooldownMinutes: 120}}
}

func (r SegmentProfileGuard) Evaluate(ctx Context) models.RuleDecision {
	if !ctx.HasSegment || ctx.Profile.ISF <= 0 {
		return decision(r.ID(), r.Priority(), models.DecisionNoMatch, nil, nil)
	}
	deviation := (ctx.Segment.ISF - ctx.Profile.ISF) / ctx.Profile.ISF
	if deviation < 0 {
		deviation = -deviation
	}
	if deviation < 0.35 {
		return decision(r.ID(), r.Priority(), models.DecisionNoMatch, nil, nil)
	}
	return decision(r.ID(), r.Priority(), models.DecisionBlocked,
		[]string{fmt.Sprintf("segment_isf_deviation:%.2f", deviation)}, nil)
}

// AlignBaseTarget derives a target from the base target and the 60-minute forecast: a drift
// under 0.15 mmol/L keeps the base target, a larger drift adds -0.35*drift bounded to +-1.20;
// the result is rounded to 0.05 and clamped to [4, 10].
func AlignBaseTarget(forecast60 float64, baseTarget float64) float64 {
	drift := forecast60 - baseTarget
	if drift < 0 {
		drift = -drift
	}
	target := baseTarget
	if drift >= 0.15 {
		correction := clip(-(forecast60-baseTarget)*0.35, -1.20, 1.20)
		target = baseTarget + correction
	}
	target = roundToStep(target, 0.05)
	return clip(target, 4.0, 10.0)
}

func roundToStep(v, step float64) float64 {
	return float64(int64(v/step+0.5)) * step
}

func clip(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
