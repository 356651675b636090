package domain

import (
	"fmt"
	"strings"
)

// RiskLevel is the four-step label attached to a 0–100 risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Score thresholds for each level.
const (
	MediumThreshold   = 30.0
	HighThreshold     = 60.0
	CriticalThreshold = 80.0
)

// ClassifyRisk maps a risk score to its level.
func ClassifyRisk(score float64) RiskLevel {
	switch {
	case score >= CriticalThreshold:
		return RiskCritical
	case score >= HighThreshold:
		return RiskHigh
	case score >= MediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Rank orders levels for sorting and max-severity selection (low=1 … critical=4).
// Unknown levels rank 0.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	default:
		return 0
	}
}

// ParseRiskLevel accepts a level name in any case.
func ParseRiskLevel(s string) (RiskLevel, error) {
	l := RiskLevel(strings.ToLower(strings.TrimSpace(s)))
	if l.Rank() == 0 {
		return "", fmt.Errorf("%w: unknown risk level %q", ErrInvalidInput, s)
	}
	return l, nil
}

// ClampScore bounds v to the 0–100 risk scale.
func ClampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
