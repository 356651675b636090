package domain

import (
	"math"
	"strings"
)

// MaxContributingFactors caps the factor list attached to a prediction.
const MaxContributingFactors = 5

// ContributingFactors lists the human-readable conditions driving risk, in a
// fixed order, capped at MaxContributingFactors.
func ContributingFactors(w WeatherInput, g GridInput) []string {
	factors := make([]string, 0, MaxContributingFactors)
	add := func(cond bool, s string) {
		if cond {
			factors = append(factors, s)
		}
	}

	add(w.Rainfall > 25, "Heavy rainfall expected")
	add(w.WindSpeed > 50, "Strong winds forecasted")
	add(w.LightningStrikes > 5, "High lightning activity")
	add(w.StormAlert, "Active storm warning")
	add(g.LoadFactor > 0.8, "High electrical demand")
	add(g.VoltageStability < 0.7, "Grid voltage instability")
	add(g.MaintenanceStatus, "Equipment under maintenance")
	add(g.FeederHealth < 0.6, "Poor feeder condition")

	if len(factors) > MaxContributingFactors {
		factors = factors[:MaxContributingFactors]
	}
	return factors
}

// ImpactFactors are 0–1 weights describing how much each weather variable
// is stressing the grid.
type ImpactFactors struct {
	Temperature float64 `json:"temperature_impact"`
	Rainfall    float64 `json:"rainfall_impact"`
	Wind        float64 `json:"wind_impact"`
}

// Impacts computes all three impact weights for w.
func Impacts(w WeatherInput) ImpactFactors {
	return ImpactFactors{
		Temperature: TemperatureImpact(w.Temperature),
		Rainfall:    RainfallImpact(w.Rainfall),
		Wind:        WindImpact(w.WindSpeed),
	}
}

// TemperatureImpact weights extreme heat or cold.
func TemperatureImpact(c float64) float64 {
	switch {
	case c > 40 || c < 5:
		return 0.8
	case c > 35 || c < 10:
		return 0.5
	default:
		return 0.1
	}
}

// RainfallImpact weights rainfall in mm.
func RainfallImpact(mm float64) float64 {
	switch {
	case mm > 50:
		return 0.9
	case mm > 25:
		return 0.6
	case mm > 10:
		return 0.3
	default:
		return 0
	}
}

// WindImpact weights wind speed in km/h.
func WindImpact(kmh float64) float64 {
	switch {
	case kmh > 60:
		return 0.9
	case kmh > 40:
		return 0.6
	case kmh > 25:
		return 0.3
	default:
		return 0
	}
}

// LightningRisk estimates a 0–5 lightning risk from a provider's textual
// description and conditions. Providers rarely report strike counts.
func LightningRisk(description string, windKmh, humidity float64) int {
	desc := strings.ToLower(description)
	risk := 0
	if containsAny(desc, "thunder", "lightning", "storm") {
		risk += 3
	}
	switch {
	case windKmh > 30 && humidity > 70:
		risk += 2
	case windKmh > 20 && humidity > 60:
		risk++
	}
	return min(risk, 5)
}

// StormAlert reports whether conditions warrant a storm warning.
func StormAlert(description string, windKmh, rainMM float64) bool {
	desc := strings.ToLower(description)
	return containsAny(desc, "severe", "heavy", "intense", "extreme") ||
		windKmh > 40 || rainMM > 25
}

// MonsoonIntensity scores 0–1 how monsoon-like current conditions are.
func MonsoonIntensity(description string, rainMM, humidity float64) float64 {
	v := 0.0
	switch {
	case rainMM > 50:
		v += 0.5
	case rainMM > 25:
		v += 0.3
	case rainMM > 10:
		v += 0.1
	}
	switch {
	case humidity > 85:
		v += 0.3
	case humidity > 70:
		v += 0.2
	}
	if containsAny(strings.ToLower(description), "rain", "drizzle", "shower", "downpour") {
		v += 0.2
	}
	return math.Min(v, 1)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
