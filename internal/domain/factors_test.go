package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContributingFactors(t *testing.T) {
	t.Run("calm conditions", func(t *testing.T) {
		got := ContributingFactors(
			WeatherInput{Rainfall: 2, WindSpeed: 10},
			GridInput{LoadFactor: 0.5, VoltageStability: 0.95, FeederHealth: 0.9},
		)
		assert.Empty(t, got)
	})

	t.Run("ordered and capped at five", func(t *testing.T) {
		got := ContributingFactors(
			WeatherInput{Rainfall: 40, WindSpeed: 60, LightningStrikes: 8, StormAlert: true},
			GridInput{LoadFactor: 0.9, VoltageStability: 0.5, MaintenanceStatus: true, FeederHealth: 0.4},
		)
		assert.Equal(t, []string{
			"Heavy rainfall expected",
			"Strong winds forecasted",
			"High lightning activity",
			"Active storm warning",
			"High electrical demand",
		}, got)
	})

	t.Run("grid only", func(t *testing.T) {
		got := ContributingFactors(
			WeatherInput{},
			GridInput{LoadFactor: 0.5, VoltageStability: 0.6, MaintenanceStatus: true, FeederHealth: 0.5},
		)
		assert.Equal(t, []string{
			"Grid voltage instability",
			"Equipment under maintenance",
			"Poor feeder condition",
		}, got)
	})

	t.Run("thresholds are strict", func(t *testing.T) {
		got := ContributingFactors(
			WeatherInput{Rainfall: 25, WindSpeed: 50, LightningStrikes: 5},
			GridInput{LoadFactor: 0.8, VoltageStability: 0.7, FeederHealth: 0.6},
		)
		assert.Empty(t, got)
	})
}

func TestImpactHelpers(t *testing.T) {
	assert.Equal(t, 0.8, TemperatureImpact(41))
	assert.Equal(t, 0.8, TemperatureImpact(4))
	assert.Equal(t, 0.5, TemperatureImpact(36))
	assert.Equal(t, 0.1, TemperatureImpact(25))

	assert.Equal(t, 0.9, RainfallImpact(51))
	assert.Equal(t, 0.6, RainfallImpact(30))
	assert.Equal(t, 0.3, RainfallImpact(11))
	assert.Equal(t, 0.0, RainfallImpact(10))

	assert.Equal(t, 0.9, WindImpact(61))
	assert.Equal(t, 0.6, WindImpact(45))
	assert.Equal(t, 0.3, WindImpact(26))
	assert.Equal(t, 0.0, WindImpact(25))

	assert.Equal(t, ImpactFactors{Temperature: 0.1, Rainfall: 0.6, Wind: 0.9},
		Impacts(WeatherInput{Temperature: 25, Rainfall: 30, WindSpeed: 70}))
}

func TestLightningRisk(t *testing.T) {
	assert.Equal(t, 0, LightningRisk("clear sky", 10, 40))
	assert.Equal(t, 3, LightningRisk("Thunderstorm with rain", 5, 40))
	assert.Equal(t, 5, LightningRisk("thunderstorm", 35, 80))
	assert.Equal(t, 1, LightningRisk("overcast", 25, 65))
}

func TestStormAlert(t *testing.T) {
	assert.True(t, StormAlert("heavy intensity rain", 5, 0))
	assert.True(t, StormAlert("", 41, 0))
	assert.True(t, StormAlert("", 0, 26))
	assert.False(t, StormAlert("few clouds", 20, 3))
}

func TestMonsoonIntensity(t *testing.T) {
	assert.Equal(t, 0.0, MonsoonIntensity("clear sky", 0, 40))
	assert.InDelta(t, 1.0, MonsoonIntensity("heavy rain", 60, 90), 1e-9)
	assert.InDelta(t, 0.5, MonsoonIntensity("light rain", 12, 75), 1e-9)
}
