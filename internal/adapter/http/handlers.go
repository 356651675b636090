package http

import (
	"fmt"
	"net/http"

	"github.com/couchcryptid/grid-outage-forecast/internal/advisory"
	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
	"github.com/couchcryptid/grid-outage-forecast/internal/forecast"
	"github.com/couchcryptid/grid-outage-forecast/internal/whatif"
)

// Weather forecast window accepted by /weather/forecast.
const (
	defaultForecastHours = 24
	maxForecastHours     = 48
)

// --- predictions ---

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req domain.PredictionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	pred, err := s.deps.Forecast.Predict(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

func (s *Server) handlePredictBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []domain.PredictionRequest
	if err := decodeJSON(w, r, &reqs); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	preds, err := s.deps.Forecast.PredictBatch(r.Context(), reqs)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preds)
}

type districtRequest struct {
	City               string `json:"city"`
	PredictionHours    int    `json:"prediction_hours"`
	IncludeExplanation *bool  `json:"include_explanation"`
}

func (s *Server) handlePredictDistrict(w http.ResponseWriter, r *http.Request) {
	var req districtRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if req.City == "" {
		s.writeServiceError(w, r, &domain.ValidationError{Field: "city", Reason: "is required"})
		return
	}
	explain := req.IncludeExplanation == nil || *req.IncludeExplanation
	dp, err := s.deps.Forecast.PredictDistrict(r.Context(), req.City, req.PredictionHours, explain)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dp)
}

// --- heatmap ---

func heatmapQuery(r *http.Request) (domain.BoundingBox, int, int, error) {
	q := newQuery(r)
	bbox := domain.BoundingBox{
		North: q.requiredFloat("north"),
		South: q.requiredFloat("south"),
		East:  q.requiredFloat("east"),
		West:  q.requiredFloat("west"),
	}
	resolution := q.intParam("resolution", domain.DefaultResolution)
	horizon := q.intParam("prediction_horizon", domain.DefaultHorizonHours)
	return bbox, resolution, horizon, q.err
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	bbox, resolution, horizon, err := heatmapQuery(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	hm, err := s.deps.Forecast.Heatmap(r.Context(), bbox, resolution, horizon)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hm)
}

func (s *Server) handleHeatmapGeoJSON(w http.ResponseWriter, r *http.Request) {
	bbox, resolution, horizon, err := heatmapQuery(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	fc, err := s.deps.Forecast.HeatmapGeoJSON(r.Context(), bbox, resolution, horizon)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	sum, err := s.deps.Forecast.RegionalSummary(r.Context(), q.param("region_type"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// --- advisories ---

func (s *Server) handleActiveAdvisories(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	aq := advisory.ActiveQuery{
		Region: q.param("region"),
		Limit:  q.intParam("limit", advisory.DefaultActiveLimit),
	}
	if q.err != nil {
		s.writeServiceError(w, r, q.err)
		return
	}
	if sev := q.param("severity"); sev != "" {
		level, err := domain.ParseRiskLevel(sev)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		aq.Severity = level
	}
	list, err := s.deps.Advisories.Active(r.Context(), aq)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGenerateAdvisory(w http.ResponseWriter, r *http.Request) {
	var req advisory.GenerateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	adv, err := s.deps.Advisories.Generate(req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adv)
}

func (s *Server) handleGetAdvisory(w http.ResponseWriter, r *http.Request) {
	adv, err := s.deps.Advisories.Get(r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, fmt.Errorf("advisory %s: %w", r.PathValue("id"), err))
		return
	}
	writeJSON(w, http.StatusOK, adv)
}

func (s *Server) handlePublicSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Advisories.PublicSummary(r.Context(), newQuery(r).param("location")))
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req advisory.SubscribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	sub, err := s.deps.Advisories.Subscribe(req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleAdvisoryHistory(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	hq := advisory.HistoryQuery{
		Start:  q.timeParam("start_date"),
		End:    q.timeParam("end_date"),
		Region: q.param("region"),
		Limit:  q.intParam("limit", advisory.DefaultHistoryLimit),
	}
	if q.err != nil {
		s.writeServiceError(w, r, q.err)
		return
	}
	h, err := s.deps.Advisories.History(hq)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

// --- what-if ---

func (s *Server) handleWhatIf(w http.ResponseWriter, r *http.Request) {
	var req whatif.Request
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	res, err := s.deps.Simulator.Run(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleWhatIfBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []whatif.Request
	if err := decodeJSON(w, r, &reqs); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	res, err := s.deps.Simulator.RunBatch(r.Context(), reqs)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTemplates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, whatif.Templates())
}

func (s *Server) handleSensitivity(w http.ResponseWriter, r *http.Request) {
	var req whatif.SensitivityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	res, err := s.deps.Simulator.Sensitivity(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- districts and weather ---

func (s *Server) handleDistricts(w http.ResponseWriter, _ *http.Request) {
	districts := s.deps.Forecast.Catalog().All()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":     len(districts),
		"districts": districts,
	})
}

func (s *Server) resolveDistrict(r *http.Request) (domain.District, *query, error) {
	q := newQuery(r)
	name := q.param("city")
	lat, lon := q.floatParam("lat"), q.floatParam("lon")
	if q.err != nil {
		return domain.District{}, q, q.err
	}
	d, err := s.deps.Forecast.ResolveDistrict(name, lat, lon)
	return d, q, err
}

func (s *Server) handleCurrentWeather(w http.ResponseWriter, r *http.Request) {
	d, _, err := s.resolveDistrict(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Forecast.CurrentWeather(r.Context(), d))
}

type weatherForecast struct {
	City      string                      `json:"city"`
	Latitude  float64                     `json:"latitude"`
	Longitude float64                     `json:"longitude"`
	Hours     int                         `json:"hours"`
	Source    string                      `json:"source"`
	Items     []domain.WeatherObservation `json:"items"`
}

func (s *Server) handleWeatherForecast(w http.ResponseWriter, r *http.Request) {
	d, q, err := s.resolveDistrict(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	hours := q.intParam("hours", defaultForecastHours)
	if q.err != nil {
		s.writeServiceError(w, r, q.err)
		return
	}
	if hours < 1 || hours > maxForecastHours {
		s.writeServiceError(w, r, &domain.ValidationError{Field: "hours", Reason: fmt.Sprintf("must be between 1 and %d", maxForecastHours)})
		return
	}

	items := s.deps.Forecast.ForecastWeather(r.Context(), d, hours)
	source := domain.SourceClimatology
	if len(items) > 0 {
		source = items[0].Source
	}
	writeJSON(w, http.StatusOK, weatherForecast{
		City:      d.Name,
		Latitude:  d.Latitude,
		Longitude: d.Longitude,
		Hours:     hours,
		Source:    source,
		Items:     items,
	})
}

var (
	_ Forecaster = (*forecast.Service)(nil)
	_ Advisories = (*advisory.Service)(nil)
	_ Simulator  = (*whatif.Simulator)(nil)
)
