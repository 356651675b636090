package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() PredictionRequest {
	return PredictionRequest{
		Weather: WeatherInput{
			Latitude:    12.9716,
			Longitude:   77.5946,
			Temperature: 28,
			Humidity:    70,
			WindSpeed:   15,
			Rainfall:    5,
		},
		Grid: GridInput{
			SubstationID:      "BESCOM-BLR-01",
			LoadFactor:        0.7,
			VoltageStability:  0.9,
			HistoricalOutages: 2,
			FeederHealth:      0.85,
		},
	}
}

func TestPredictionRequestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		require.NoError(t, validRequest().Validate())
	})

	t.Run("zero horizon uses default", func(t *testing.T) {
		req := validRequest()
		req.PredictionHorizon = 0
		require.NoError(t, req.Validate())
	})

	tests := []struct {
		name   string
		mutate func(*PredictionRequest)
		field  string
	}{
		{"latitude out of range", func(r *PredictionRequest) { r.Weather.Latitude = 91 }, "weather_data.latitude"},
		{"longitude out of range", func(r *PredictionRequest) { r.Weather.Longitude = -181 }, "weather_data.longitude"},
		{"humidity above 100", func(r *PredictionRequest) { r.Weather.Humidity = 120 }, "weather_data.humidity"},
		{"negative wind", func(r *PredictionRequest) { r.Weather.WindSpeed = -1 }, "weather_data.wind_speed"},
		{"negative rainfall", func(r *PredictionRequest) { r.Weather.Rainfall = -0.5 }, "weather_data.rainfall"},
		{"negative lightning", func(r *PredictionRequest) { r.Weather.LightningStrikes = -2 }, "weather_data.lightning_strikes"},
		{"NaN temperature", func(r *PredictionRequest) { r.Weather.Temperature = math.NaN() }, "weather_data.temperature"},
		{"missing substation", func(r *PredictionRequest) { r.Grid.SubstationID = "" }, "grid_data.substation_id"},
		{"load above 1", func(r *PredictionRequest) { r.Grid.LoadFactor = 1.2 }, "grid_data.load_factor"},
		{"voltage below 0", func(r *PredictionRequest) { r.Grid.VoltageStability = -0.1 }, "grid_data.voltage_stability"},
		{"feeder above 1", func(r *PredictionRequest) { r.Grid.FeederHealth = 1.01 }, "grid_data.feeder_health"},
		{"negative outages", func(r *PredictionRequest) { r.Grid.HistoricalOutages = -1 }, "grid_data.historical_outages"},
		{"horizon too long", func(r *PredictionRequest) { r.PredictionHorizon = 73 }, "prediction_horizon"},
		{"horizon negative", func(r *PredictionRequest) { r.PredictionHorizon = -3 }, "prediction_horizon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := req.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidInput)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestPredictionRequestDefaults(t *testing.T) {
	req := validRequest().WithDefaults()
	assert.Equal(t, DefaultHorizonHours, req.PredictionHorizon)
	assert.False(t, req.Weather.Timestamp.IsZero())
	assert.True(t, req.Explain())

	off := false
	req.IncludeExplanation = &off
	assert.False(t, req.Explain())
}
