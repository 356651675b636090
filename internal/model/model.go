// Package model scores outage risk. A serialized gradient-boosted tree
// ensemble is used when one is configured; a rule-based heuristic backs it up.
package model

import (
	"context"
	"time"

	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
)

// Method names reported in predictions and metrics.
const (
	MethodHeuristic = "heuristic"
	MethodTree      = "xgboost"
)

// Input is a single scoring call.
type Input struct {
	Request domain.PredictionRequest
	At      time.Time
	Explain bool
}

// Score is a scorer's raw output before classification.
type Score struct {
	RiskScore   float64
	Interval    domain.ConfidenceInterval
	Explanation *domain.Explanation
	Method      string
}

// Scorer produces a risk score for a request.
type Scorer interface {
	Score(ctx context.Context, in Input) (Score, error)
}
