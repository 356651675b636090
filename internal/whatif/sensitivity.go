package whatif

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
)

// Sweep step limits.
const (
	DefaultSensitivitySteps = 10
	MinSensitivitySteps     = 2
	MaxSensitivitySteps     = 20
)

// integerPaths are the request fields that only take whole numbers. Sweep
// values for them are rounded.
var integerPaths = map[string]bool{
	"weather_data.lightning_strikes": true,
	"grid_data.historical_outages":   true,
	"prediction_horizon":             true,
}

// optimalTolerance is the fraction above the minimum risk still counted as
// optimal.
const optimalTolerance = 0.1

// SensitivityRequest sweeps Parameter from MinValue to MaxValue in Steps
// evenly spaced values.
type SensitivityRequest struct {
	BaseRequest Request `json:"base_request"`
	Parameter   string  `json:"parameter"`
	MinValue    float64 `json:"min_value"`
	MaxValue    float64 `json:"max_value"`
	Steps       int     `json:"steps"`
}

// Validate checks the sweep bounds and that Parameter names a field.
func (r SensitivityRequest) Validate() error {
	switch {
	case r.Parameter == "":
		return &domain.ValidationError{Field: "parameter", Reason: "is required"}
	case !knownPath(r.Parameter):
		return &domain.ValidationError{Field: "parameter", Reason: "unknown parameter " + r.Parameter}
	case r.MinValue >= r.MaxValue:
		return &domain.ValidationError{Field: "min_value", Reason: "must be less than max_value"}
	case r.Steps != 0 && (r.Steps < MinSensitivitySteps || r.Steps > MaxSensitivitySteps):
		return &domain.ValidationError{Field: "steps", Reason: fmt.Sprintf("must be between %d and %d", MinSensitivitySteps, MaxSensitivitySteps)}
	}
	return nil
}

// SweepPoint is the prediction at one parameter value.
type SweepPoint struct {
	ParameterValue float64          `json:"parameter_value"`
	RiskScore      float64          `json:"risk_score"`
	RiskChange     float64          `json:"risk_change"`
	RiskLevel      domain.RiskLevel `json:"risk_level"`
}

// ValueRange is a closed interval of parameter values.
type ValueRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Crossing is a sweep step where risk crossed a level threshold.
type Crossing struct {
	ParameterValue float64 `json:"parameter_value"`
	RiskScore      float64 `json:"risk_score"`
	Direction      string  `json:"crossing_direction"`
}

// OptimalRange is the part of the sweep with risk close to its minimum.
type OptimalRange struct {
	OptimalValue           float64    `json:"optimal_value"`
	MinimumRisk            float64    `json:"minimum_risk"`
	Range                  ValueRange `json:"optimal_range"`
	RiskReductionPotential float64    `json:"risk_reduction_potential"`
}

// SensitivityMetrics summarizes how risk responds to the swept parameter.
type SensitivityMetrics struct {
	Coefficient float64               `json:"sensitivity_coefficient"`
	Correlation float64               `json:"correlation"`
	Elasticity  float64               `json:"parameter_elasticity"`
	Thresholds  map[string][]Crossing `json:"threshold_analysis"`
	Gradient    []float64             `json:"risk_gradient"`
	Optimal     OptimalRange          `json:"optimal_range"`
}

// SensitivityResult is the response for Sensitivity.
type SensitivityResult struct {
	Parameter  string             `json:"parameter"`
	ValueRange ValueRange         `json:"value_range"`
	Results    []SweepPoint       `json:"results"`
	Metrics    SensitivityMetrics `json:"sensitivity_metrics"`
	TotalSteps int                `json:"total_steps"`
}

// Sensitivity runs one scenario per swept value. Steps that fail are logged
// and left out of the metrics.
func (s *Simulator) Sensitivity(ctx context.Context, req SensitivityRequest) (SensitivityResult, error) {
	if err := req.Validate(); err != nil {
		return SensitivityResult{}, err
	}
	steps := req.Steps
	if steps == 0 {
		steps = DefaultSensitivitySteps
	}

	values := floats.Span(make([]float64, steps), req.MinValue, req.MaxValue)
	if integerPaths[req.Parameter] {
		for i, v := range values {
			values[i] = math.Round(v)
		}
	}
	points := make([]SweepPoint, 0, steps)
	for _, v := range values {
		run := Request{
			ScenarioName:       fmt.Sprintf("Sensitivity %s=%.2f", req.Parameter, v),
			BaseScenario:       req.BaseRequest.BaseScenario,
			ModifiedParameters: map[string]any{req.Parameter: v},
		}
		res, err := s.Run(ctx, run)
		if err != nil {
			if ctx.Err() != nil {
				return SensitivityResult{}, ctx.Err()
			}
			s.logger.Warn("sensitivity step failed", "parameter", req.Parameter, "value", v, "error", err)
			continue
		}
		points = append(points, SweepPoint{
			ParameterValue: v,
			RiskScore:      res.ModifiedPrediction.RiskScore,
			RiskChange:     res.RiskChange,
			RiskLevel:      res.ModifiedPrediction.RiskLevel,
		})
	}

	return SensitivityResult{
		Parameter:  req.Parameter,
		ValueRange: ValueRange{Min: req.MinValue, Max: req.MaxValue},
		Results:    points,
		Metrics:    sensitivityMetrics(points),
		TotalSteps: len(points),
	}, nil
}

func sensitivityMetrics(points []SweepPoint) SensitivityMetrics {
	m := SensitivityMetrics{
		Thresholds: map[string][]Crossing{},
		Gradient:   []float64{},
	}
	if len(points) == 0 {
		return m
	}
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i], ys[i] = p.ParameterValue, p.RiskScore
	}

	if paramRange := floats.Max(xs) - floats.Min(xs); paramRange > 0 {
		m.Coefficient = (floats.Max(ys) - floats.Min(ys)) / paramRange
	}
	if len(points) > 1 {
		m.Correlation = finite(stat.Correlation(xs, ys, nil))
	}
	m.Elasticity = elasticity(xs, ys)
	m.Thresholds = thresholdCrossings(xs, ys)
	m.Gradient = gradient(xs, ys)
	m.Optimal = optimalRange(xs, ys)
	return m
}

// finite maps NaN, which a flat sweep produces, to zero.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// elasticity is the mean ratio of relative risk change to relative
// parameter change between neighbouring steps.
func elasticity(xs, ys []float64) float64 {
	var ratios []float64
	for i := 1; i < len(xs); i++ {
		if xs[i-1] == 0 || ys[i-1] == 0 {
			continue
		}
		dx := (xs[i] - xs[i-1]) / xs[i-1]
		if dx == 0 {
			continue
		}
		dy := (ys[i] - ys[i-1]) / ys[i-1]
		ratios = append(ratios, dy/dx)
	}
	if len(ratios) == 0 {
		return 0
	}
	return stat.Mean(ratios, nil)
}

var thresholds = []struct {
	name  string
	value float64
}{
	{"low_to_medium", domain.MediumThreshold},
	{"medium_to_high", domain.HighThreshold},
	{"high_to_critical", domain.CriticalThreshold},
}

func thresholdCrossings(xs, ys []float64) map[string][]Crossing {
	out := make(map[string][]Crossing, len(thresholds))
	for _, th := range thresholds {
		crossings := []Crossing{}
		for i := 1; i < len(ys); i++ {
			prev, cur := ys[i-1], ys[i]
			up := prev < th.value && th.value <= cur
			down := prev > th.value && th.value >= cur
			if !up && !down {
				continue
			}
			dir := "down"
			if cur > prev {
				dir = "up"
			}
			crossings = append(crossings, Crossing{ParameterValue: xs[i], RiskScore: cur, Direction: dir})
		}
		out[th.name] = crossings
	}
	return out
}

func gradient(xs, ys []float64) []float64 {
	out := []float64{}
	for i := 1; i < len(xs); i++ {
		dx := xs[i] - xs[i-1]
		g := 0.0
		if dx != 0 {
			g = (ys[i] - ys[i-1]) / dx
		}
		out = append(out, g)
	}
	return out
}

func optimalRange(xs, ys []float64) OptimalRange {
	best := floats.MinIdx(ys)
	minRisk := ys[best]
	limit := minRisk + minRisk*optimalTolerance

	r := ValueRange{Min: xs[best], Max: xs[best]}
	for i, y := range ys {
		if y <= limit {
			r.Min = math.Min(r.Min, xs[i])
			r.Max = math.Max(r.Max, xs[i])
		}
	}
	return OptimalRange{
		OptimalValue:           xs[best],
		MinimumRisk:            minRisk,
		Range:                  r,
		RiskReductionPotential: floats.Max(ys) - minRisk,
	}
}
