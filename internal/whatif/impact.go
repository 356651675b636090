package whatif

import (
	"fmt"
	"math"
	"strings"

	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
)

// Change directions.
const (
	DirectionIncrease = "increase"
	DirectionDecrease = "decrease"
	DirectionNone     = "no_change"
)

// contributionShare scales a parameter's impact factor into its estimated
// share of the total change.
const contributionShare = 0.7

// Impact explains the difference between a base and a modified prediction.
type Impact struct {
	RiskChange           float64                    `json:"risk_change"`
	RiskChangePercentage float64                    `json:"risk_change_percentage"`
	Direction            string                     `json:"direction"`
	Magnitude            string                     `json:"magnitude"`
	ModifiedParameters   map[string]any             `json:"modified_parameters"`
	ImpactBreakdown      map[string]ParameterImpact `json:"impact_breakdown"`
	ConfidenceChange     ConfidenceChange           `json:"confidence_change"`
	RiskLevelChange      LevelChange                `json:"risk_level_change"`
	Interpretation       string                     `json:"interpretation"`
	SkippedParameters    []string                   `json:"skipped_parameters,omitempty"`
}

// ParameterImpact is the estimated contribution of one changed parameter.
type ParameterImpact struct {
	EstimatedContribution float64 `json:"estimated_contribution"`
	ImpactFactor          float64 `json:"impact_factor"`
	ParameterValue        any     `json:"parameter_value"`
}

// ConfidenceChange compares confidence interval widths.
type ConfidenceChange struct {
	WidthChange         float64 `json:"confidence_width_change"`
	UncertaintyChange   string  `json:"uncertainty_change"`
	BaselineUncertainty float64 `json:"baseline_uncertainty"`
	ModifiedUncertainty float64 `json:"modified_uncertainty"`
}

// LevelChange compares risk levels.
type LevelChange struct {
	BaselineLevel domain.RiskLevel `json:"baseline_level"`
	ModifiedLevel domain.RiskLevel `json:"modified_level"`
	LevelChanged  bool             `json:"level_changed"`
	Escalation    bool             `json:"escalation"`
}

func analyzeImpact(base, modified domain.Prediction, mods map[string]any) Impact {
	change := modified.RiskScore - base.RiskScore
	if mods == nil {
		mods = map[string]any{}
	}
	imp := Impact{
		RiskChange:           change,
		RiskChangePercentage: change / math.Max(base.RiskScore, 1) * 100,
		Direction:            direction(change),
		Magnitude:            Magnitude(math.Abs(change)),
		ModifiedParameters:   mods,
		ImpactBreakdown:      breakdown(mods, change),
		ConfidenceChange:     confidenceChange(base, modified),
		RiskLevelChange:      levelChange(base, modified),
	}
	imp.Interpretation = interpret(imp)
	return imp
}

func direction(change float64) string {
	switch {
	case change > 0:
		return DirectionIncrease
	case change < 0:
		return DirectionDecrease
	default:
		return DirectionNone
	}
}

// Magnitude buckets an absolute risk change.
func Magnitude(abs float64) string {
	switch {
	case abs < 5:
		return "minimal"
	case abs < 15:
		return "moderate"
	case abs < 30:
		return "significant"
	default:
		return "major"
	}
}

func breakdown(mods map[string]any, change float64) map[string]ParameterImpact {
	out := make(map[string]ParameterImpact, len(mods))
	for path, v := range mods {
		factor := impactFactor(path, v)
		out[path] = ParameterImpact{
			EstimatedContribution: change * factor * contributionShare,
			ImpactFactor:          factor,
			ParameterValue:        v,
		}
	}
	return out
}

// impactFactor normalizes a parameter value against the scale at which it
// starts to matter.
func impactFactor(path string, v any) float64 {
	p := strings.ToLower(path)
	x, numeric := toFloat(v)
	if !numeric {
		return 0.5
	}
	switch {
	case strings.Contains(p, "rainfall"):
		return math.Min(x/50, 1)
	case strings.Contains(p, "wind_speed"):
		return math.Min(x/100, 1)
	case strings.Contains(p, "temperature"):
		return math.Min(math.Abs(x-25)/20, 1)
	case strings.Contains(p, "load_factor"):
		return x
	default:
		return 0.5
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func confidenceChange(base, modified domain.Prediction) ConfidenceChange {
	bw := base.ConfidenceInterval.Width()
	mw := modified.ConfidenceInterval.Width()
	uncertainty := "decreased"
	if mw > bw {
		uncertainty = "increased"
	}
	return ConfidenceChange{
		WidthChange:         mw - bw,
		UncertaintyChange:   uncertainty,
		BaselineUncertainty: bw,
		ModifiedUncertainty: mw,
	}
}

func levelChange(base, modified domain.Prediction) LevelChange {
	bl := domain.ClassifyRisk(base.RiskScore)
	ml := domain.ClassifyRisk(modified.RiskScore)
	return LevelChange{
		BaselineLevel: bl,
		ModifiedLevel: ml,
		LevelChanged:  bl != ml,
		Escalation:    bl != ml && modified.RiskScore > base.RiskScore,
	}
}

func interpret(imp Impact) string {
	if imp.Direction == DirectionNone {
		return "The parameter changes had negligible impact on outage risk."
	}
	verb := "increased"
	if imp.Direction == DirectionDecrease {
		verb = "decreased"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The modifications %s outage risk by %.1f points, representing a %s change.",
		verb, math.Abs(imp.RiskChange), imp.Magnitude)
	if imp.RiskLevelChange.LevelChanged {
		fmt.Fprintf(&b, " Risk level changed from %s to %s.",
			imp.RiskLevelChange.BaselineLevel, imp.RiskLevelChange.ModifiedLevel)
	}
	if v, ok := toFloat(imp.ModifiedParameters["weather_data.rainfall"]); ok && v > 25 {
		b.WriteString(" Heavy rainfall is a major contributing factor.")
	}
	if v, ok := toFloat(imp.ModifiedParameters["weather_data.wind_speed"]); ok && v > 50 {
		b.WriteString(" Strong winds significantly impact grid stability.")
	}
	return b.String()
}
