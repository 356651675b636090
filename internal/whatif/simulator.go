// Package whatif compares a baseline prediction against the same scenario
// with some parameters changed, alone, in batches, or as a sweep over one
// parameter.
package whatif

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/grid-outage-forecast/internal/cache"
	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
	"github.com/couchcryptid/grid-outage-forecast/internal/observability"
)

// DefaultScenarioName is given to requests that do not name themselves.
const DefaultScenarioName = "Custom Scenario"

// DefaultCacheTTL is how long a simulation result is reused.
const DefaultCacheTTL = 10 * time.Minute

// Predictor scores a single request. model.Ensemble implements it.
type Predictor interface {
	Predict(ctx context.Context, req domain.PredictionRequest) (domain.Prediction, error)
}

// Simulator runs what-if scenarios.
type Simulator struct {
	predictor Predictor
	results   *cache.LRU[Result]
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewSimulator creates a Simulator caching up to cacheSize results for ttl.
func NewSimulator(predictor Predictor, ttl time.Duration, cacheSize int, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Simulator {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Simulator{
		predictor: predictor,
		results:   cache.New[Result](cacheSize, ttl, clock),
		metrics:   metrics,
		logger:    logger,
	}
}

// Request describes a scenario: a base prediction request and the
// parameters to change, addressed by dotted JSON path such as
// "weather_data.rainfall".
type Request struct {
	ScenarioName       string                   `json:"scenario_name"`
	BaseScenario       domain.PredictionRequest `json:"base_scenario"`
	ModifiedParameters map[string]any           `json:"modified_parameters"`
}

// Result is the outcome of one scenario.
type Result struct {
	ScenarioName       string            `json:"scenario_name"`
	BasePrediction     domain.Prediction `json:"base_prediction"`
	ModifiedPrediction domain.Prediction `json:"modified_prediction"`
	RiskChange         float64           `json:"risk_change"`
	ImpactAnalysis     Impact            `json:"impact_analysis"`
}

// Run predicts the base scenario without explanation and the modified
// scenario with one, then analyses the difference. Paths that do not exist
// in the request are logged and skipped.
func (s *Simulator) Run(ctx context.Context, req Request) (Result, error) {
	if req.ScenarioName == "" {
		req.ScenarioName = DefaultScenarioName
	}
	if err := req.BaseScenario.Validate(); err != nil {
		return Result{}, err
	}

	key, err := scenarioKey(req)
	if err != nil {
		return Result{}, err
	}
	if res, ok := s.results.Get(key); ok {
		s.metrics.CacheResult("scenario", true)
		return res, nil
	}
	s.metrics.CacheResult("scenario", false)

	base := req.BaseScenario
	if base.PredictionHorizon == 0 {
		base.PredictionHorizon = domain.DefaultHorizonHours
	}
	modified, skipped, err := applyModifications(base, req.ModifiedParameters)
	if err != nil {
		return Result{}, err
	}
	for _, path := range skipped {
		s.logger.Warn("skipping unknown scenario parameter", "scenario", req.ScenarioName, "parameter", path)
	}
	if err := modified.Validate(); err != nil {
		return Result{}, err
	}

	noExplain, explain := false, true
	base.IncludeExplanation = &noExplain
	modified.IncludeExplanation = &explain

	basePred, err := s.predictor.Predict(ctx, base.WithDefaults())
	if err != nil {
		return Result{}, fmt.Errorf("predict base scenario: %w", err)
	}
	modPred, err := s.predictor.Predict(ctx, modified.WithDefaults())
	if err != nil {
		return Result{}, fmt.Errorf("predict modified scenario: %w", err)
	}

	impact := analyzeImpact(basePred, modPred, req.ModifiedParameters)
	impact.SkippedParameters = skipped
	res := Result{
		ScenarioName:       req.ScenarioName,
		BasePrediction:     basePred,
		ModifiedPrediction: modPred,
		RiskChange:         impact.RiskChange,
		ImpactAnalysis:     impact,
	}
	s.results.Put(key, res)

	s.logger.Info("scenario simulated",
		"scenario", req.ScenarioName,
		"risk_change", res.RiskChange,
		"magnitude", impact.Magnitude,
	)
	return res, nil
}

func scenarioKey(req Request) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode scenario key: %w", err)
	}
	return strconv.FormatUint(xxhash.Sum64(data), 16), nil
}

// applyModifications sets each dotted path on the JSON form of base and
// decodes the result. It returns the paths that did not name an existing
// field, sorted.
func applyModifications(base domain.PredictionRequest, mods map[string]any) (domain.PredictionRequest, []string, error) {
	if len(mods) == 0 {
		return base, nil, nil
	}
	data, err := json.Marshal(base)
	if err != nil {
		return base, nil, fmt.Errorf("encode base scenario: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return base, nil, fmt.Errorf("decode base scenario: %w", err)
	}

	paths := make([]string, 0, len(mods))
	for p := range mods {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var skipped []string
	for _, path := range paths {
		if !setPath(doc, path, mods[path]) {
			skipped = append(skipped, path)
		}
	}

	data, err = json.Marshal(doc)
	if err != nil {
		return base, nil, fmt.Errorf("encode modified scenario: %w", err)
	}
	var out domain.PredictionRequest
	if err := json.Unmarshal(data, &out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return base, nil, &domain.ValidationError{Field: "modified_parameters." + typeErr.Field, Reason: "has the wrong type"}
		}
		return base, nil, fmt.Errorf("decode modified scenario: %w", err)
	}
	return out, skipped, nil
}

// setPath replaces an existing leaf in doc. It never creates fields.
func setPath(doc map[string]any, path string, value any) bool {
	parts := strings.Split(path, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			return false
		}
		cur = next
	}
	leaf := parts[len(parts)-1]
	if _, ok := cur[leaf]; !ok {
		return false
	}
	cur[leaf] = value
	return true
}

// knownPath reports whether path addresses a field of a prediction request.
func knownPath(path string) bool {
	sample := domain.PredictionRequest{PredictionHorizon: domain.DefaultHorizonHours}
	data, _ := json.Marshal(sample)
	var doc map[string]any
	_ = json.Unmarshal(data, &doc)
	return setPath(doc, path, nil)
}
