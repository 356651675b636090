package domain

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidInput marks caller mistakes that map to a 4xx response.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownDistrict is returned when a district name is not in the catalog.
	ErrUnknownDistrict = errors.New("unknown district")

	// ErrNotFound is returned for lookups of missing resources (advisories).
	ErrNotFound = errors.New("not found")
)

// ValidationError reports a single field that failed a range or presence check.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is(err, ErrInvalidInput) match validation failures.
func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func fieldErr(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func checkRange(field string, v, lo, hi float64) error {
	if math.IsNaN(v) || v < lo || v > hi {
		return fieldErr(field, fmt.Sprintf("must be between %g and %g", lo, hi))
	}
	return nil
}

func checkMin(field string, v, lo float64) error {
	if math.IsNaN(v) || v < lo {
		return fieldErr(field, fmt.Sprintf("must be >= %g", lo))
	}
	return nil
}

// Validate checks the weather block's coordinate and physical ranges.
func (w WeatherInput) Validate() error {
	checks := []error{
		checkRange("weather_data.latitude", w.Latitude, -90, 90),
		checkRange("weather_data.longitude", w.Longitude, -180, 180),
		checkRange("weather_data.humidity", w.Humidity, 0, 100),
		checkMin("weather_data.wind_speed", w.WindSpeed, 0),
		checkMin("weather_data.rainfall", w.Rainfall, 0),
		checkMin("weather_data.lightning_strikes", float64(w.LightningStrikes), 0),
	}
	if math.IsNaN(w.Temperature) || math.IsInf(w.Temperature, 0) {
		checks = append(checks, fieldErr("weather_data.temperature", "must be a finite number"))
	}
	return errors.Join(checks...)
}

// Validate checks the grid block. SubstationID is required.
func (g GridInput) Validate() error {
	var substation error
	if g.SubstationID == "" {
		substation = fieldErr("grid_data.substation_id", "is required")
	}
	return errors.Join(
		substation,
		checkRange("grid_data.load_factor", g.LoadFactor, 0, 1),
		checkRange("grid_data.voltage_stability", g.VoltageStability, 0, 1),
		checkMin("grid_data.historical_outages", float64(g.HistoricalOutages), 0),
		checkRange("grid_data.feeder_health", g.FeederHealth, 0, 1),
	)
}

// Validate checks both blocks and the horizon (1–72 hours after defaults).
func (r PredictionRequest) Validate() error {
	horizon := r.PredictionHorizon
	if horizon == 0 {
		horizon = DefaultHorizonHours
	}
	return errors.Join(
		r.Weather.Validate(),
		r.Grid.Validate(),
		checkRange("prediction_horizon", float64(horizon), 1, 72),
	)
}
