package forecast

import (
	"context"
	"time"

	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
)

// Grid data sources reported on district predictions.
const (
	GridSourceTelemetry = "telemetry"
	GridSourceBaseline  = "baseline"
)

// maxForecastSlots matches the three-hourly slots a provider returns at most.
const maxForecastSlots = 40

// WeatherFactors are the normalized impacts of current conditions.
type WeatherFactors struct {
	domain.ImpactFactors
	LightningImpact float64 `json:"lightning_impact"`
	StormImpact     float64 `json:"storm_impact"`
}

// DistrictPrediction is a prediction for a catalog district built from live
// or fallback inputs.
type DistrictPrediction struct {
	District       string                    `json:"district"`
	DisplayName    string                    `json:"display_name"`
	ESCOMZone      string                    `json:"escom_zone"`
	Priority       int                       `json:"priority"`
	Latitude       float64                   `json:"latitude"`
	Longitude      float64                   `json:"longitude"`
	Population     int                       `json:"population"`
	Weather        domain.WeatherObservation `json:"weather"`
	WeatherFactors WeatherFactors            `json:"weather_factors"`
	Grid           domain.GridInput          `json:"grid_data"`
	GridSource     string                    `json:"grid_source"`
	Prediction     domain.Prediction         `json:"prediction"`
	Recommendation string                    `json:"recommendation"`
}

// Request returns the prediction request the district prediction was built
// from.
func (d DistrictPrediction) Request(hours int) domain.PredictionRequest {
	return domain.PredictionRequest{
		Weather:           d.Weather.Input(),
		Grid:              d.Grid,
		PredictionHorizon: hours,
	}
}

// PredictDistrict predicts risk for the named district. Weather comes from
// the provider, falling back to climatology; grid data comes from telemetry,
// falling back to the catalog baseline.
func (s *Service) PredictDistrict(ctx context.Context, name string, hours int, explain bool) (DistrictPrediction, error) {
	d, err := s.catalog.Lookup(name)
	if err != nil {
		return DistrictPrediction{}, err
	}
	return s.predictDistrict(ctx, d, hours, explain)
}

func (s *Service) predictDistrict(ctx context.Context, d domain.District, hours int, explain bool) (DistrictPrediction, error) {
	obs := s.CurrentWeather(ctx, d)
	grid, live := s.gridFor(d)

	req := domain.PredictionRequest{
		Weather:            obs.Input(),
		Grid:               grid,
		PredictionHorizon:  hours,
		IncludeExplanation: &explain,
	}
	p, err := s.predict(ctx, req, d.Name)
	if err != nil {
		return DistrictPrediction{}, err
	}

	source := GridSourceBaseline
	if live {
		source = GridSourceTelemetry
	}
	return DistrictPrediction{
		District:       d.Name,
		DisplayName:    d.DisplayName,
		ESCOMZone:      d.ESCOM,
		Priority:       d.Priority,
		Latitude:       d.Latitude,
		Longitude:      d.Longitude,
		Population:     d.Population,
		Weather:        obs,
		WeatherFactors: weatherFactors(obs),
		Grid:           grid,
		GridSource:     source,
		Prediction:     p,
		Recommendation: domain.Recommendation(p.RiskLevel),
	}, nil
}

func (s *Service) gridFor(d domain.District) (domain.GridInput, bool) {
	if s.grid == nil {
		return d.BaselineGrid, false
	}
	return s.grid.Grid(d)
}

func weatherFactors(obs domain.WeatherObservation) WeatherFactors {
	storm := 0.0
	if obs.StormAlert {
		storm = 1
	}
	return WeatherFactors{
		ImpactFactors:   domain.Impacts(obs.Input()),
		LightningImpact: float64(obs.LightningRisk) / 5,
		StormImpact:     storm,
	}
}

// ResolveDistrict finds a district by name or, when name is empty, the one
// nearest to the given coordinates.
func (s *Service) ResolveDistrict(name string, lat, lon *float64) (domain.District, error) {
	if name != "" {
		return s.catalog.Lookup(name)
	}
	if lat == nil || lon == nil {
		return domain.District{}, &domain.ValidationError{Field: "city", Reason: "either city or lat and lon are required"}
	}
	if *lat < -90 || *lat > 90 {
		return domain.District{}, &domain.ValidationError{Field: "lat", Reason: "must be between -90 and 90"}
	}
	if *lon < -180 || *lon > 180 {
		return domain.District{}, &domain.ValidationError{Field: "lon", Reason: "must be between -180 and 180"}
	}
	d, _ := s.catalog.Nearest(*lat, *lon)
	return d, nil
}

// CurrentWeather returns live weather for d, or its climatology when no
// provider is configured or the provider fails.
func (s *Service) CurrentWeather(ctx context.Context, d domain.District) domain.WeatherObservation {
	if s.weather != nil {
		obs, err := s.weather.Current(ctx, d)
		if err == nil {
			return obs
		}
		s.logger.Warn("weather provider failed, using climatology", "district", d.Name, "error", err)
	}
	return domain.ObservationFromInput(d.Name, s.catalog.Climatology(d, domain.Now()), domain.SourceClimatology)
}

// ForecastWeather returns up to min(hours, 40) three-hourly slots for d,
// falling back to climatology.
func (s *Service) ForecastWeather(ctx context.Context, d domain.District, hours int) []domain.WeatherObservation {
	if s.weather != nil {
		items, err := s.weather.Forecast(ctx, d, hours)
		if err == nil && len(items) > 0 {
			return items
		}
		if err != nil {
			s.logger.Warn("weather forecast failed, using climatology", "district", d.Name, "error", err)
		}
	}

	slots := min(max(hours, 1), maxForecastSlots)
	start := domain.Now().Truncate(3 * time.Hour)
	out := make([]domain.WeatherObservation, 0, slots)
	for i := 1; i <= slots; i++ {
		at := start.Add(time.Duration(3*i) * time.Hour)
		out = append(out, domain.ObservationFromInput(d.Name, s.catalog.Climatology(d, at), domain.SourceClimatology))
	}
	return out
}
