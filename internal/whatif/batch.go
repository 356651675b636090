package whatif

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
)

// MaxBatchSize caps the scenarios in one batch.
const MaxBatchSize = 20

// BatchResult holds the scenarios that ran and a summary of them.
type BatchResult struct {
	Simulations           []Result      `json:"simulations"`
	BatchSummary          *BatchSummary `json:"batch_summary"`
	TotalSimulations      int           `json:"total_simulations"`
	SuccessfulSimulations int           `json:"successful_simulations"`
}

// BatchSummary describes the spread of risk changes across a batch.
type BatchSummary struct {
	TotalSimulations        int           `json:"total_simulations"`
	AverageRiskChange       float64       `json:"average_risk_change"`
	MaxRiskChange           float64       `json:"max_risk_change"`
	MinRiskChange           float64       `json:"min_risk_change"`
	RiskChangeStdDev        float64       `json:"risk_change_std"`
	ScenariosIncreasingRisk int           `json:"scenarios_increasing_risk"`
	ScenariosDecreasingRisk int           `json:"scenarios_decreasing_risk"`
	MostImpactfulScenario   MostImpactful `json:"most_impactful_scenario"`
}

// MostImpactful names the scenario with the largest absolute change.
type MostImpactful struct {
	ScenarioName string  `json:"scenario_name"`
	RiskChange   float64 `json:"risk_change"`
	ImpactType   string  `json:"impact_type"`
}

// RunBatch runs up to MaxBatchSize scenarios. Unnamed scenarios are called
// "Batch Scenario N". A scenario that fails is logged and left out.
func (s *Simulator) RunBatch(ctx context.Context, reqs []Request) (BatchResult, error) {
	if len(reqs) == 0 {
		return BatchResult{}, &domain.ValidationError{Field: "requests", Reason: "must not be empty"}
	}
	if len(reqs) > MaxBatchSize {
		return BatchResult{}, &domain.ValidationError{Field: "requests", Reason: fmt.Sprintf("batch size limited to %d simulations", MaxBatchSize)}
	}

	results := make([]Result, 0, len(reqs))
	for i, req := range reqs {
		if req.ScenarioName == "" || req.ScenarioName == DefaultScenarioName {
			req.ScenarioName = fmt.Sprintf("Batch Scenario %d", i+1)
		}
		res, err := s.Run(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return BatchResult{}, ctx.Err()
			}
			s.logger.Warn("batch scenario failed", "index", i, "scenario", req.ScenarioName, "error", err)
			continue
		}
		results = append(results, res)
	}

	return BatchResult{
		Simulations:           results,
		BatchSummary:          summarizeBatch(results),
		TotalSimulations:      len(results),
		SuccessfulSimulations: len(results),
	}, nil
}

// summarizeBatch returns nil when nothing succeeded.
func summarizeBatch(results []Result) *BatchSummary {
	if len(results) == 0 {
		return nil
	}
	changes := make([]float64, len(results))
	sum := &BatchSummary{
		TotalSimulations: len(results),
		MaxRiskChange:    math.Inf(-1),
		MinRiskChange:    math.Inf(1),
	}
	top := results[0]
	for i, r := range results {
		c := r.RiskChange
		changes[i] = c
		sum.MaxRiskChange = math.Max(sum.MaxRiskChange, c)
		sum.MinRiskChange = math.Min(sum.MinRiskChange, c)
		switch {
		case c > 0:
			sum.ScenariosIncreasingRisk++
		case c < 0:
			sum.ScenariosDecreasingRisk++
		}
		if math.Abs(c) > math.Abs(top.RiskChange) {
			top = r
		}
	}
	sum.AverageRiskChange, sum.RiskChangeStdDev = stat.PopMeanStdDev(changes, nil)

	impact := DirectionDecrease
	if top.RiskChange > 0 {
		impact = DirectionIncrease
	}
	sum.MostImpactfulScenario = MostImpactful{
		ScenarioName: top.ScenarioName,
		RiskChange:   top.RiskChange,
		ImpactType:   impact,
	}
	return sum
}
