// Package rules implements the ordered rule engine and safety policy that turn a cycle's
// forecasts and context into RuleDecisions, gated for safety before the coordinator ever sees
// a proposal it could act on.
package rules

import (
	"github.com/mrcode/glucocopilot/internal/config"
	"github.com/mrcode/glucocopilot/internal/models"
)

// Context is the read-only view of the current cycle state every rule evaluates against.
type Context struct {
	Now              int64
	Forecasts        []models.Forecast
	Pattern          models.PatternWindow
	HasPattern       bool
	Profile          models.ProfileEstimate
	Segment          models.ProfileSegmentEstimate
	HasSegment       bool
	EffectiveBaseTargetMmol float64
	DataFresh        bool
	SensorBlocked    bool
	ActiveTempTargetMmol *float64
	ActionsLast6h    int
	Safety           config.SafetyPolicy
}

// ForecastAt returns the forecast for the given horizon, if present.
func (c Context) ForecastAt(horizonMinutes int) (models.Forecast, bool) {
	for _, f := range c.Forecasts {
		if f.HorizonMinutes == horizonMinutes {
			return f, true
		}
	}
	return models.Forecast{}, false
}
