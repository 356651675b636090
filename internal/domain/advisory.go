package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AdvisoryValidity is how long a generated advisory stays active.
const AdvisoryValidity = 6 * time.Hour

// MaxRecommendations caps the recommendations attached to an advisory.
const MaxRecommendations = 8

// Advisory is a natural-language warning for one or more areas.
type Advisory struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Message         string    `json:"message"`
	Severity        RiskLevel `json:"severity"`
	AffectedAreas   []string  `json:"affected_areas"`
	IssuedAt        time.Time `json:"issued_at"`
	ValidUntil      time.Time `json:"valid_until"`
	Recommendations []string  `json:"recommendations"`
}

// Active reports whether the advisory is still valid at t.
func (a Advisory) Active(t time.Time) bool {
	return a.ValidUntil.After(t)
}

// Affects reports whether area is one of the affected areas, ignoring case.
func (a Advisory) Affects(area string) bool {
	for _, x := range a.AffectedAreas {
		if strings.EqualFold(x, area) {
			return true
		}
	}
	return false
}

// AdvisoryWeather is the subset of conditions an advisory describes.
type AdvisoryWeather struct {
	Rainfall         float64 `json:"rainfall"`
	WindSpeed        float64 `json:"wind_speed"`
	LightningStrikes int     `json:"lightning_strikes"`
	StormAlert       bool    `json:"storm_alert"`
}

// AdvisoryWeatherFrom projects a prediction weather block.
func AdvisoryWeatherFrom(w WeatherInput) AdvisoryWeather {
	return AdvisoryWeather{
		Rainfall:         w.Rainfall,
		WindSpeed:        w.WindSpeed,
		LightningStrikes: w.LightningStrikes,
		StormAlert:       w.StormAlert,
	}
}

// GenerateAdvisory writes an advisory for location given a risk score and
// the conditions behind it.
func GenerateAdvisory(id string, score float64, location string, w AdvisoryWeather, issuedAt time.Time) Advisory {
	if location == "" {
		location = "Affected Area"
	}
	level := ClassifyRisk(score)
	return Advisory{
		ID:              id,
		Title:           advisoryTitle(level, location),
		Message:         advisoryMessage(level, score, location, w),
		Severity:        level,
		AffectedAreas:   []string{location},
		IssuedAt:        issuedAt,
		ValidUntil:      issuedAt.Add(AdvisoryValidity),
		Recommendations: Recommendations(level, w),
	}
}

func advisoryTitle(level RiskLevel, location string) string {
	switch level {
	case RiskCritical:
		return "CRITICAL: Power Outage Emergency - " + location
	case RiskHigh:
		return "HIGH RISK: Power Outage Warning - " + location
	case RiskMedium:
		return "MODERATE: Power Disruption Alert - " + location
	default:
		return "LOW RISK: Routine Advisory - " + location
	}
}

func advisoryMessage(level RiskLevel, score float64, location string, w AdvisoryWeather) string {
	var urgency string
	switch level {
	case RiskCritical:
		urgency = "pose immediate threat"
	case RiskHigh:
		urgency = "significantly increase"
	case RiskMedium:
		urgency = "may cause"
	default:
		urgency = "present minimal risk for"
	}
	return fmt.Sprintf(
		"Weather conditions including %s %s power outage risk in %s. Current assessment indicates %.0f%% outage probability.",
		DescribeWeather(w), urgency, location, score,
	)
}

// DescribeWeather renders the notable conditions as a comma-separated
// phrase, or "current weather conditions" when nothing stands out.
func DescribeWeather(w AdvisoryWeather) string {
	var parts []string
	rain := strconv.FormatFloat(w.Rainfall, 'f', -1, 64)
	switch {
	case w.Rainfall > 50:
		parts = append(parts, "extreme rainfall ("+rain+"mm)")
	case w.Rainfall > 25:
		parts = append(parts, "heavy rainfall ("+rain+"mm)")
	case w.Rainfall > 0:
		parts = append(parts, "rainfall ("+rain+"mm)")
	}

	wind := strconv.FormatFloat(w.WindSpeed, 'f', -1, 64)
	switch {
	case w.WindSpeed > 75:
		parts = append(parts, "severe winds ("+wind+" km/h)")
	case w.WindSpeed > 50:
		parts = append(parts, "strong winds ("+wind+" km/h)")
	case w.WindSpeed > 25:
		parts = append(parts, "moderate winds ("+wind+" km/h)")
	}

	switch {
	case w.LightningStrikes > 10:
		parts = append(parts, "intense lightning activity")
	case w.LightningStrikes > 5:
		parts = append(parts, "significant lightning activity")
	case w.LightningStrikes > 0:
		parts = append(parts, "lightning activity")
	}

	if w.StormAlert {
		parts = append(parts, "active storm warning")
	}
	if len(parts) == 0 {
		return "current weather conditions"
	}
	return strings.Join(parts, ", ")
}

// Recommendations returns de-duplicated safety guidance for a level and the
// prevailing weather, capped at MaxRecommendations.
func Recommendations(level RiskLevel, w AdvisoryWeather) []string {
	var recs []string
	switch level {
	case RiskCritical:
		recs = append(recs,
			"Immediately activate emergency response protocols",
			"Ensure critical facilities have backup power operational",
			"Avoid all non-essential outdoor activities",
			"Monitor emergency broadcasts continuously",
		)
	case RiskHigh:
		recs = append(recs,
			"Ensure backup power systems are operational",
			"Secure outdoor equipment and loose objects",
			"Keep emergency supplies readily available",
			"Monitor official weather updates",
		)
	case RiskMedium:
		recs = append(recs,
			"Check backup power equipment functionality",
			"Prepare emergency supplies",
			"Monitor local weather conditions",
		)
	default:
		recs = append(recs,
			"No immediate action required",
			"Continue normal activities with weather awareness",
		)
	}

	if w.Rainfall > 25 {
		recs = append(recs,
			"Avoid flood-prone areas",
			"Do not attempt to drive through flooded roads",
		)
	}
	if w.WindSpeed > 50 {
		recs = append(recs,
			"Secure or bring indoors all loose outdoor items",
			"Avoid areas with large trees or weak structures",
		)
	}
	if w.LightningStrikes > 5 {
		recs = append(recs,
			"Stay indoors and away from windows",
			"Unplug non-essential electronic devices",
			"Avoid using landline phones",
		)
	}

	recs = dedupe(recs)
	if len(recs) > MaxRecommendations {
		recs = recs[:MaxRecommendations]
	}
	return recs
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Recommendation is the one-line operator guidance attached to district
// predictions.
func Recommendation(level RiskLevel) string {
	switch level {
	case RiskCritical, RiskHigh:
		return "High risk: Prepare backup power systems and monitor grid closely"
	case RiskMedium:
		return "Medium risk: Stay alert for potential outages and have contingency plans ready"
	default:
		return "Low risk: Normal operations expected"
	}
}
