package domain

import "time"

// PredictionEvent is published downstream each time a fresh prediction is
// computed.
type PredictionEvent struct {
	ID                 string             `json:"id"`
	District           string             `json:"district,omitempty"`
	SubstationID       string             `json:"substation_id"`
	Latitude           float64            `json:"latitude"`
	Longitude          float64            `json:"longitude"`
	HorizonHours       int                `json:"prediction_horizon"`
	RiskScore          float64            `json:"risk_score"`
	ConfidenceInterval ConfidenceInterval `json:"confidence_interval"`
	RiskLevel          RiskLevel          `json:"risk_level"`
	Method             string             `json:"method"`
	ModelVersion       string             `json:"model_version"`
	PredictedAt        time.Time          `json:"predicted_at"`
}

// NewPredictionEvent builds the event for a scored request.
func NewPredictionEvent(id, district string, req PredictionRequest, p Prediction) PredictionEvent {
	return PredictionEvent{
		ID:                 id,
		District:           district,
		SubstationID:       req.Grid.SubstationID,
		Latitude:           req.Weather.Latitude,
		Longitude:          req.Weather.Longitude,
		HorizonHours:       req.PredictionHorizon,
		RiskScore:          p.RiskScore,
		ConfidenceInterval: p.ConfidenceInterval,
		RiskLevel:          p.RiskLevel,
		Method:             p.Method,
		ModelVersion:       p.ModelVersion,
		PredictedAt:        p.PredictionTimestamp,
	}
}
