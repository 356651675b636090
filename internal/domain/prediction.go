package domain

import "time"

// DefaultHorizonHours is the forecast window used when a request omits one.
const DefaultHorizonHours = 24

// WeatherInput is the weather block of a prediction request.
type WeatherInput struct {
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	Temperature      float64   `json:"temperature"` // °C
	Humidity         float64   `json:"humidity"`    // %
	WindSpeed        float64   `json:"wind_speed"`  // km/h
	Rainfall         float64   `json:"rainfall"`    // mm
	LightningStrikes int       `json:"lightning_strikes"`
	StormAlert       bool      `json:"storm_alert"`
	Timestamp        time.Time `json:"timestamp,omitzero"`
}

// GridInput is the substation block of a prediction request.
type GridInput struct {
	SubstationID      string  `json:"substation_id"`
	LoadFactor        float64 `json:"load_factor"`
	VoltageStability  float64 `json:"voltage_stability"`
	HistoricalOutages int     `json:"historical_outages"`
	MaintenanceStatus bool    `json:"maintenance_status"`
	FeederHealth      float64 `json:"feeder_health"`
}

// PredictionRequest asks for the outage risk of one substation under the
// given weather over the next PredictionHorizon hours.
type PredictionRequest struct {
	Weather            WeatherInput `json:"weather_data"`
	Grid               GridInput    `json:"grid_data"`
	PredictionHorizon  int          `json:"prediction_horizon,omitempty"`
	IncludeExplanation *bool        `json:"include_explanation,omitempty"`
}

// Explain reports whether an explanation was requested. Defaults to true.
func (r PredictionRequest) Explain() bool {
	return r.IncludeExplanation == nil || *r.IncludeExplanation
}

// WithDefaults fills the horizon and weather timestamp when unset.
func (r PredictionRequest) WithDefaults() PredictionRequest {
	if r.PredictionHorizon == 0 {
		r.PredictionHorizon = DefaultHorizonHours
	}
	if r.Weather.Timestamp.IsZero() {
		r.Weather.Timestamp = Now()
	}
	return r
}

// ConfidenceInterval bounds a risk score.
type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Width is Upper − Lower.
func (c ConfidenceInterval) Width() float64 {
	return c.Upper - c.Lower
}

// SymmetricInterval returns score ± half, clamped to the risk scale.
func SymmetricInterval(score, half float64) ConfidenceInterval {
	return ConfidenceInterval{
		Lower: ClampScore(score - half),
		Upper: ClampScore(score + half),
	}
}

// Explanation describes how a score was produced. Heuristic scores fill the
// contribution totals; tree scores fill per-feature attributions.
type Explanation struct {
	Method              string             `json:"method"`
	WeatherContribution float64            `json:"weather_contribution,omitempty"`
	GridContribution    float64            `json:"grid_contribution,omitempty"`
	FeatureAttribution  map[string]float64 `json:"shap_values,omitempty"`
	FeatureImportance   map[string]float64 `json:"feature_importance,omitempty"`
}

// Prediction is the scored response for a PredictionRequest.
type Prediction struct {
	RiskScore           float64            `json:"risk_score"`
	ConfidenceInterval  ConfidenceInterval `json:"confidence_interval"`
	RiskLevel           RiskLevel          `json:"risk_level"`
	PredictionTimestamp time.Time          `json:"prediction_timestamp"`
	Explanation         *Explanation       `json:"explanation,omitempty"`
	ContributingFactors []string           `json:"contributing_factors"`
	ModelVersion        string             `json:"model_version,omitempty"`
	Method              string             `json:"method,omitempty"`
}

// FailedPrediction is the placeholder returned in batch slots whose request
// could not be scored.
func FailedPrediction() Prediction {
	return Prediction{
		RiskScore:           0,
		ConfidenceInterval:  ConfidenceInterval{},
		RiskLevel:           RiskLow,
		PredictionTimestamp: Now(),
		ContributingFactors: []string{"Prediction failed"},
	}
}
