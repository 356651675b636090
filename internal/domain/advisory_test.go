package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateAdvisory(t *testing.T) {
	issued := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

	t.Run("critical with severe weather", func(t *testing.T) {
		a := GenerateAdvisory("adv-1", 86.4, "Mangalore", AdvisoryWeather{
			Rainfall: 62.5, WindSpeed: 80, LightningStrikes: 12, StormAlert: true,
		}, issued)

		assert.Equal(t, "adv-1", a.ID)
		assert.Equal(t, RiskCritical, a.Severity)
		assert.Equal(t, "CRITICAL: Power Outage Emergency - Mangalore", a.Title)
		assert.Equal(t,
			"Weather conditions including extreme rainfall (62.5mm), severe winds (80 km/h), intense lightning activity, active storm warning pose immediate threat power outage risk in Mangalore. Current assessment indicates 86% outage probability.",
			a.Message)
		assert.Equal(t, []string{"Mangalore"}, a.AffectedAreas)
		assert.Equal(t, issued.Add(6*time.Hour), a.ValidUntil)
		assert.Len(t, a.Recommendations, MaxRecommendations)
		assert.Equal(t, "Immediately activate emergency response protocols", a.Recommendations[0])
	})

	t.Run("low risk calm weather", func(t *testing.T) {
		a := GenerateAdvisory("adv-2", 12, "", AdvisoryWeather{}, issued)

		assert.Equal(t, RiskLow, a.Severity)
		assert.Equal(t, "LOW RISK: Routine Advisory - Affected Area", a.Title)
		assert.Contains(t, a.Message, "including current weather conditions present minimal risk for")
		assert.Equal(t, []string{
			"No immediate action required",
			"Continue normal activities with weather awareness",
		}, a.Recommendations)
	})

	t.Run("moderate", func(t *testing.T) {
		a := GenerateAdvisory("adv-3", 45, "Hubli", AdvisoryWeather{Rainfall: 30, WindSpeed: 30, LightningStrikes: 2}, issued)
		assert.Equal(t, "MODERATE: Power Disruption Alert - Hubli", a.Title)
		assert.Contains(t, a.Message, "heavy rainfall (30mm), moderate winds (30 km/h), lightning activity may cause")
		assert.Contains(t, a.Recommendations, "Avoid flood-prone areas")
	})
}

func TestRecommendationsDedupe(t *testing.T) {
	recs := Recommendations(RiskHigh, AdvisoryWeather{WindSpeed: 60})
	seen := map[string]bool{}
	for _, r := range recs {
		assert.False(t, seen[r], "duplicate %q", r)
		seen[r] = true
	}
	assert.Contains(t, recs, "Secure or bring indoors all loose outdoor items")
}

func TestAdvisoryActiveAndAffects(t *testing.T) {
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	a := Advisory{AffectedAreas: []string{"Bangalore Urban"}, ValidUntil: now.Add(time.Minute)}
	assert.True(t, a.Active(now))
	assert.False(t, a.Active(now.Add(time.Hour)))
	assert.True(t, a.Affects("bangalore urban"))
	assert.False(t, a.Affects("bangalore"))
}
