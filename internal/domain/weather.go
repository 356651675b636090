package domain

import (
	"context"
	"time"
)

// Weather sources reported alongside observations.
const (
	SourceOpenWeather = "openweather"
	SourceClimatology = "climatology"
)

// strikesPerRiskPoint converts the 0–5 lightning risk into the strike count
// used by prediction inputs. A thunderstorm description alone (risk 3)
// crosses the high-lightning threshold.
const strikesPerRiskPoint = 2

// WeatherObservation is a provider reading converted to prediction units,
// with derived storm signals.
type WeatherObservation struct {
	Timestamp        time.Time `json:"timestamp"`
	District         string    `json:"city"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	Temperature      float64   `json:"temperature"`
	Humidity         float64   `json:"humidity"`
	WindSpeed        float64   `json:"wind_speed"`
	Rainfall         float64   `json:"rainfall"`
	Pressure         float64   `json:"pressure"`
	Visibility       float64   `json:"visibility"` // km
	Description      string    `json:"weather_description"`
	LightningRisk    int       `json:"lightning_risk"`
	StormAlert       bool      `json:"storm_alert"`
	MonsoonIntensity float64   `json:"monsoon_intensity"`
	Source           string    `json:"source"`
}

// Derive fills the lightning, storm and monsoon signals from the raw fields.
func (o *WeatherObservation) Derive() {
	o.LightningRisk = LightningRisk(o.Description, o.WindSpeed, o.Humidity)
	o.StormAlert = StormAlert(o.Description, o.WindSpeed, o.Rainfall)
	o.MonsoonIntensity = MonsoonIntensity(o.Description, o.Rainfall, o.Humidity)
}

// Input converts the observation into a prediction weather block.
func (o WeatherObservation) Input() WeatherInput {
	return WeatherInput{
		Latitude:         o.Latitude,
		Longitude:        o.Longitude,
		Temperature:      o.Temperature,
		Humidity:         o.Humidity,
		WindSpeed:        o.WindSpeed,
		Rainfall:         o.Rainfall,
		LightningStrikes: o.LightningRisk * strikesPerRiskPoint,
		StormAlert:       o.StormAlert,
		Timestamp:        o.Timestamp,
	}
}

// ObservationFromInput wraps climatology or request weather as an
// observation.
func ObservationFromInput(district string, w WeatherInput, source string) WeatherObservation {
	o := WeatherObservation{
		Timestamp:   w.Timestamp,
		District:    district,
		Latitude:    w.Latitude,
		Longitude:   w.Longitude,
		Temperature: w.Temperature,
		Humidity:    w.Humidity,
		WindSpeed:   w.WindSpeed,
		Rainfall:    w.Rainfall,
		Pressure:    1010,
		Visibility:  10,
		Description: describeClimate(w),
		Source:      source,
	}
	o.Derive()
	return o
}

func describeClimate(w WeatherInput) string {
	switch {
	case w.Rainfall > 25:
		return "heavy intensity rain"
	case w.Rainfall > 2.5:
		return "moderate rain"
	case w.Rainfall > 0:
		return "light rain"
	case w.Humidity > 70:
		return "overcast clouds"
	default:
		return "clear sky"
	}
}

// WeatherProvider supplies live weather for a district.
type WeatherProvider interface {
	Current(ctx context.Context, d District) (WeatherObservation, error)
	Forecast(ctx context.Context, d District, hours int) ([]WeatherObservation, error)
}
