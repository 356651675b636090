package model

import (
	"context"

	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
)

// HeuristicInterval is the half-width of the heuristic confidence interval.
const HeuristicInterval = 10.0

// Heuristic is a rule-based scorer with fixed weights. It never fails.
type Heuristic struct{}

// Score implements Scorer.
func (Heuristic) Score(_ context.Context, in Input) (Score, error) {
	w, g := in.Request.Weather, in.Request.Grid

	weather := w.Rainfall*0.8 + w.WindSpeed*0.3
	score := weather + float64(w.LightningStrikes)*2
	if w.StormAlert {
		score += 20
	}

	voltage := (1 - g.VoltageStability) * 30
	score += voltage + g.LoadFactor*25
	if g.MaintenanceStatus {
		score += 15
	}
	score += (1 - g.FeederHealth) * 20
	score = domain.ClampScore(score)

	out := Score{
		RiskScore: score,
		Interval:  domain.SymmetricInterval(score, HeuristicInterval),
		Method:    MethodHeuristic,
	}
	if in.Explain {
		out.Explanation = &domain.Explanation{
			Method:              MethodHeuristic,
			WeatherContribution: weather,
			GridContribution:    voltage,
		}
	}
	return out, nil
}
