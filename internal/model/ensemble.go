package model

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
)

// Ensemble turns scorer output into a full domain.Prediction. It prefers the
// primary scorer and falls back to the heuristic when the primary is missing
// or fails.
type Ensemble struct {
	primary  Scorer
	fallback Scorer
	version  string
	logger   *slog.Logger
}

// NewEnsemble creates an Ensemble. A nil primary means heuristic-only.
func NewEnsemble(primary Scorer, version string, logger *slog.Logger) *Ensemble {
	return &Ensemble{
		primary:  primary,
		fallback: Heuristic{},
		version:  version,
		logger:   logger,
	}
}

// Method reports which scorer handles requests when nothing fails.
func (e *Ensemble) Method() string {
	if e.primary != nil {
		return MethodTree
	}
	return MethodHeuristic
}

// Version is the configured model version string.
func (e *Ensemble) Version() string { return e.version }

// Predict scores a validated, defaulted request.
func (e *Ensemble) Predict(ctx context.Context, req domain.PredictionRequest) (domain.Prediction, error) {
	now := domain.Now()
	in := Input{Request: req, At: now, Explain: req.Explain()}

	score, err := e.score(ctx, in)
	if err != nil {
		return domain.Prediction{}, err
	}

	return domain.Prediction{
		RiskScore:           score.RiskScore,
		ConfidenceInterval:  score.Interval,
		RiskLevel:           domain.ClassifyRisk(score.RiskScore),
		PredictionTimestamp: now,
		Explanation:         score.Explanation,
		ContributingFactors: domain.ContributingFactors(req.Weather, req.Grid),
		ModelVersion:        e.version,
		Method:              score.Method,
	}, nil
}

func (e *Ensemble) score(ctx context.Context, in Input) (Score, error) {
	if e.primary != nil {
		s, err := e.primary.Score(ctx, in)
		if err == nil {
			return s, nil
		}
		if ctx.Err() != nil {
			return Score{}, ctx.Err()
		}
		e.logger.Warn("model scoring failed, using heuristic",
			"error", err,
			"substation_id", in.Request.Grid.SubstationID,
		)
	}
	return e.fallback.Score(ctx, in)
}
