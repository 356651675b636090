package whatif

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
	"github.com/couchcryptid/grid-outage-forecast/internal/observability"
)

// linearPredictor scores rainfall + wind/2 + 40*load so tests can compute
// expected changes by hand.
type linearPredictor struct {
	calls    int
	explains []bool
	err      error
}

func (p *linearPredictor) Predict(_ context.Context, req domain.PredictionRequest) (domain.Prediction, error) {
	p.calls++
	p.explains = append(p.explains, req.Explain())
	if p.err != nil {
		return domain.Prediction{}, p.err
	}
	score := domain.ClampScore(req.Weather.Rainfall + req.Weather.WindSpeed/2 + 40*req.Grid.LoadFactor)
	pred := domain.Prediction{
		RiskScore:          score,
		RiskLevel:          domain.ClassifyRisk(score),
		ConfidenceInterval: domain.SymmetricInterval(score, 5),
	}
	if req.Explain() {
		pred.Explanation = &domain.Explanation{Method: "linear"}
		pred.ConfidenceInterval = domain.SymmetricInterval(score, 8)
	}
	return pred, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSimulator(p Predictor) (*Simulator, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 7, 14, 9, 0, 0, 0, time.UTC))
	return NewSimulator(p, DefaultCacheTTL, 100, clock, observability.NewMetricsForTesting(), discardLogger()), clock
}

// baseScenario scores 10 + 10 + 20 = 40.
func baseScenario() domain.PredictionRequest {
	return domain.PredictionRequest{
		Weather: domain.WeatherInput{
			Latitude:    12.97,
			Longitude:   77.59,
			Temperature: 28,
			Humidity:    70,
			WindSpeed:   20,
			Rainfall:    10,
			Timestamp:   time.Date(2024, 7, 14, 9, 0, 0, 0, time.UTC),
		},
		Grid: domain.GridInput{
			SubstationID:     "BLR-001",
			LoadFactor:       0.5,
			VoltageStability: 0.95,
			FeederHealth:     0.9,
		},
	}
}

func TestRun(t *testing.T) {
	p := &linearPredictor{}
	sim, _ := newTestSimulator(p)

	res, err := sim.Run(context.Background(), Request{
		BaseScenario:       baseScenario(),
		ModifiedParameters: map[string]any{"weather_data.rainfall": 40.0, "weather_data.wind_speed": 60.0},
	})
	require.NoError(t, err)

	assert.Equal(t, DefaultScenarioName, res.ScenarioName)
	assert.InDelta(t, 40, res.BasePrediction.RiskScore, 1e-9)
	assert.InDelta(t, 90, res.ModifiedPrediction.RiskScore, 1e-9)
	assert.InDelta(t, 50, res.RiskChange, 1e-9)
	assert.Nil(t, res.BasePrediction.Explanation)
	assert.NotNil(t, res.ModifiedPrediction.Explanation)
	assert.Equal(t, []bool{false, true}, p.explains)

	imp := res.ImpactAnalysis
	assert.InDelta(t, 125, imp.RiskChangePercentage, 1e-9)
	assert.Equal(t, DirectionIncrease, imp.Direction)
	assert.Equal(t, "major", imp.Magnitude)
	assert.Equal(t, domain.RiskMedium, imp.RiskLevelChange.BaselineLevel)
	assert.Equal(t, domain.RiskCritical, imp.RiskLevelChange.ModifiedLevel)
	assert.True(t, imp.RiskLevelChange.LevelChanged)
	assert.True(t, imp.RiskLevelChange.Escalation)
	assert.InDelta(t, 10, imp.ConfidenceChange.BaselineUncertainty, 1e-9)
	assert.InDelta(t, 16, imp.ConfidenceChange.ModifiedUncertainty, 1e-9)
	assert.Equal(t, "increased", imp.ConfidenceChange.UncertaintyChange)

	rain := imp.ImpactBreakdown["weather_data.rainfall"]
	assert.InDelta(t, 0.8, rain.ImpactFactor, 1e-9)
	assert.InDelta(t, 50*0.8*0.7, rain.EstimatedContribution, 1e-9)
	wind := imp.ImpactBreakdown["weather_data.wind_speed"]
	assert.InDelta(t, 0.6, wind.ImpactFactor, 1e-9)

	assert.Equal(t,
		"The modifications increased outage risk by 50.0 points, representing a major change."+
			" Risk level changed from medium to critical."+
			" Heavy rainfall is a major contributing factor."+
			" Strong winds significantly impact grid stability.",
		imp.Interpretation)
}

func TestRun_Decrease(t *testing.T) {
	sim, _ := newTestSimulator(&linearPredictor{})
	res, err := sim.Run(context.Background(), Request{
		ScenarioName:       "Load shedding",
		BaseScenario:       baseScenario(),
		ModifiedParameters: map[string]any{"grid_data.load_factor": 0.4},
	})
	require.NoError(t, err)

	assert.Equal(t, "Load shedding", res.ScenarioName)
	assert.InDelta(t, -4, res.RiskChange, 1e-9)
	assert.Equal(t, DirectionDecrease, res.ImpactAnalysis.Direction)
	assert.Equal(t, "minimal", res.ImpactAnalysis.Magnitude)
	assert.False(t, res.ImpactAnalysis.RiskLevelChange.LevelChanged)
	assert.InDelta(t, 0.4, res.ImpactAnalysis.ImpactBreakdown["grid_data.load_factor"].ImpactFactor, 1e-9)
	assert.Equal(t, "The modifications decreased outage risk by 4.0 points, representing a minimal change.",
		res.ImpactAnalysis.Interpretation)
}

func TestRun_NoChange(t *testing.T) {
	sim, _ := newTestSimulator(&linearPredictor{})
	res, err := sim.Run(context.Background(), Request{
		BaseScenario:       baseScenario(),
		ModifiedParameters: map[string]any{"weather_data.storm_alert": true},
	})
	require.NoError(t, err)

	assert.Equal(t, DirectionNone, res.ImpactAnalysis.Direction)
	assert.Equal(t, "The parameter changes had negligible impact on outage risk.", res.ImpactAnalysis.Interpretation)
	assert.InDelta(t, 0.5, res.ImpactAnalysis.ImpactBreakdown["weather_data.storm_alert"].ImpactFactor, 1e-9)
}

func TestRun_UnknownPathSkipped(t *testing.T) {
	sim, _ := newTestSimulator(&linearPredictor{})
	res, err := sim.Run(context.Background(), Request{
		BaseScenario: baseScenario(),
		ModifiedParameters: map[string]any{
			"weather_data.snowfall": 5.0,
			"grid.load_factor":      0.9,
			"weather_data.rainfall": 20.0,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"grid.load_factor", "weather_data.snowfall"}, res.ImpactAnalysis.SkippedParameters)
	assert.InDelta(t, 10, res.RiskChange, 1e-9)
}

func TestRun_HorizonModification(t *testing.T) {
	sim, _ := newTestSimulator(&linearPredictor{})
	res, err := sim.Run(context.Background(), Request{
		BaseScenario:       baseScenario(),
		ModifiedParameters: map[string]any{"prediction_horizon": 48.0},
	})
	require.NoError(t, err)
	assert.Empty(t, res.ImpactAnalysis.SkippedParameters)
}

func TestRun_Validation(t *testing.T) {
	sim, _ := newTestSimulator(&linearPredictor{})
	bad := baseScenario()
	bad.Grid.LoadFactor = 2

	tests := []struct {
		name string
		req  Request
	}{
		{"invalid base", Request{BaseScenario: bad}},
		{"modified out of range", Request{BaseScenario: baseScenario(), ModifiedParameters: map[string]any{"grid_data.load_factor": 1.5}}},
		{"wrong type", Request{BaseScenario: baseScenario(), ModifiedParameters: map[string]any{"weather_data.rainfall": "heavy"}}},
		{"horizon too long", Request{BaseScenario: baseScenario(), ModifiedParameters: map[string]any{"prediction_horizon": 100.0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sim.Run(context.Background(), tt.req)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestRun_PredictorError(t *testing.T) {
	sim, _ := newTestSimulator(&linearPredictor{err: errors.New("boom")})
	_, err := sim.Run(context.Background(), Request{BaseScenario: baseScenario()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "predict base scenario")
}

func TestRun_Cached(t *testing.T) {
	p := &linearPredictor{}
	sim, clock := newTestSimulator(p)
	req := Request{BaseScenario: baseScenario(), ModifiedParameters: map[string]any{"weather_data.rainfall": 30.0}}

	first, err := sim.Run(context.Background(), req)
	require.NoError(t, err)
	second, err := sim.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, p.calls, "second run served from cache")

	clock.Advance(DefaultCacheTTL)
	_, err = sim.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 4, p.calls)
}

func TestApplyModifications_DoesNotMutateBase(t *testing.T) {
	base := baseScenario()
	out, skipped, err := applyModifications(base, map[string]any{"grid_data.maintenance_status": true})
	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.True(t, out.Grid.MaintenanceStatus)
	assert.False(t, base.Grid.MaintenanceStatus)
	assert.Equal(t, base.Weather, out.Weather)
}

func TestMagnitude(t *testing.T) {
	tests := []struct {
		change float64
		want   string
	}{
		{0, "minimal"},
		{4.99, "minimal"},
		{5, "moderate"},
		{14.9, "moderate"},
		{15, "significant"},
		{29.9, "significant"},
		{30, "major"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Magnitude(tt.change), "change %v", tt.change)
	}
}

func TestImpactFactor(t *testing.T) {
	assert.InDelta(t, 1.0, impactFactor("weather_data.rainfall", 120.0), 1e-9)
	assert.InDelta(t, 0.75, impactFactor("weather_data.temperature", 40.0), 1e-9)
	assert.InDelta(t, 1.0, impactFactor("weather_data.temperature", -5.0), 1e-9)
	assert.InDelta(t, 0.5, impactFactor("weather_data.lightning_strikes", 15), 1e-9)
	assert.InDelta(t, 0.5, impactFactor("grid_data.feeder_health", "bad"), 1e-9)
}
