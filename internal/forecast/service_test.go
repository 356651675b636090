package forecast

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
	"github.com/couchcryptid/grid-outage-forecast/internal/gridstate"
	"github.com/couchcryptid/grid-outage-forecast/internal/model"
	"github.com/couchcryptid/grid-outage-forecast/internal/observability"
)

// --- fakes ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.PredictionEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, events ...domain.PredictionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type stubWeather struct {
	obs   domain.WeatherObservation
	err   error
	calls int
}

func (w *stubWeather) Current(_ context.Context, d domain.District) (domain.WeatherObservation, error) {
	w.calls++
	obs := w.obs
	obs.District = d.Name
	obs.Latitude, obs.Longitude = d.Latitude, d.Longitude
	return obs, w.err
}

func (w *stubWeather) Forecast(_ context.Context, _ domain.District, _ int) ([]domain.WeatherObservation, error) {
	return nil, w.err
}

// countingPredictor counts calls that reach the model.
type countingPredictor struct {
	Predictor
	calls int
}

func (p *countingPredictor) Predict(ctx context.Context, req domain.PredictionRequest) (domain.Prediction, error) {
	p.calls++
	return p.Predictor.Predict(ctx, req)
}

type failingPredictor struct{}

func (failingPredictor) Predict(context.Context, domain.PredictionRequest) (domain.Prediction, error) {
	return domain.Prediction{}, errors.New("model exploded")
}
func (failingPredictor) Method() string  { return "broken" }
func (failingPredictor) Version() string { return "0.0.0" }

type harness struct {
	svc       *Service
	publisher *recordingPublisher
	weather   *stubWeather
	grid      *gridstate.Store
	metrics   *observability.Metrics
	clock     *clockwork.FakeClock
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, weather *stubWeather) *harness {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, time.July, 14, 9, 0, 0, 0, time.UTC))
	domain.SetClock(clock)
	t.Cleanup(func() { domain.SetClock(nil) })

	h := &harness{
		publisher: &recordingPublisher{},
		weather:   weather,
		grid:      gridstate.NewStore(),
		metrics:   observability.NewMetricsForTesting(),
		clock:     clock,
	}
	deps := Deps{
		Predictor: model.NewEnsemble(nil, "1.0.0", discardLogger()),
		Catalog:   domain.DefaultCatalog(),
		Grid:      h.grid,
		Publisher: h.publisher,
		Metrics:   h.metrics,
		Logger:    discardLogger(),
	}
	if weather != nil {
		deps.Weather = weather
	}
	h.svc = NewService(deps, Options{
		PredictionTTL: 5 * time.Minute,
		HeatmapTTL:    10 * time.Minute,
		CacheSize:     100,
		Clock:         clock,
	})
	return h
}

func validRequest() domain.PredictionRequest {
	return domain.PredictionRequest{
		Weather: domain.WeatherInput{
			Latitude:         12.9716,
			Longitude:        77.5946,
			Temperature:      28,
			Humidity:         85,
			WindSpeed:        60,
			Rainfall:         40,
			LightningStrikes: 8,
			StormAlert:       true,
		},
		Grid: domain.GridInput{
			SubstationID:      "BESCOM-BLR-01",
			LoadFactor:        0.9,
			VoltageStability:  0.6,
			HistoricalOutages: 3,
			FeederHealth:      0.5,
		},
	}
}

// --- tests ---

func TestPredict_ScoresAndPublishes(t *testing.T) {
	h := newHarness(t, nil)

	p, err := h.svc.Predict(context.Background(), validRequest())
	require.NoError(t, err)
	h.svc.Close()

	assert.Equal(t, 100.0, p.RiskScore)
	assert.Equal(t, domain.RiskCritical, p.RiskLevel)
	assert.Equal(t, model.MethodHeuristic, p.Method)
	assert.Equal(t, "1.0.0", p.ModelVersion)
	require.NotNil(t, p.Explanation)
	assert.Len(t, p.ContributingFactors, domain.MaxContributingFactors)

	require.Equal(t, 1, h.publisher.count())
	evt := h.publisher.events[0]
	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, "BESCOM-BLR-01", evt.SubstationID)
	assert.Equal(t, domain.DefaultHorizonHours, evt.HorizonHours)
	assert.Equal(t, domain.RiskCritical, evt.RiskLevel)
}

func TestPredict_CachesIdenticalRequests(t *testing.T) {
	h := newHarness(t, nil)
	req := validRequest()

	first, err := h.svc.Predict(context.Background(), req)
	require.NoError(t, err)

	req.PredictionHorizon = domain.DefaultHorizonHours
	second, err := h.svc.Predict(context.Background(), req)
	require.NoError(t, err)
	h.svc.Close()

	assert.Equal(t, first, second)
	assert.Equal(t, 1, h.publisher.count(), "cache hits are not republished")

	h.clock.Advance(5 * time.Minute)
	_, err = h.svc.Predict(context.Background(), req)
	require.NoError(t, err)
	h.svc.Close()
	assert.Equal(t, 2, h.publisher.count(), "expired entries are rescored")
}

func TestPredict_ExplainFlagIsPartOfKey(t *testing.T) {
	h := newHarness(t, nil)
	req := validRequest()
	noExplain := false
	req.IncludeExplanation = &noExplain

	p, err := h.svc.Predict(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, p.Explanation)

	p, err = h.svc.Predict(context.Background(), validRequest())
	require.NoError(t, err)
	assert.NotNil(t, p.Explanation)
}

func TestPredict_ValidationError(t *testing.T) {
	h := newHarness(t, nil)
	req := validRequest()
	req.Grid.LoadFactor = 1.5

	_, err := h.svc.Predict(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "grid_data.load_factor", verr.Field)
}

func TestPredict_PublishFailureIsNotReturned(t *testing.T) {
	h := newHarness(t, nil)
	h.publisher.err = errors.New("broker down")

	_, err := h.svc.Predict(context.Background(), validRequest())
	require.NoError(t, err)
	h.svc.Close()
	assert.Equal(t, 1, h.publisher.count())
}

func TestPredictBatch(t *testing.T) {
	h := newHarness(t, nil)
	bad := validRequest()
	bad.Grid.SubstationID = ""

	out, err := h.svc.PredictBatch(context.Background(), []domain.PredictionRequest{validRequest(), bad})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, domain.RiskCritical, out[0].RiskLevel)
	assert.Equal(t, 0.0, out[1].RiskScore)
	assert.Equal(t, domain.RiskLow, out[1].RiskLevel)
	assert.Equal(t, []string{"Prediction failed"}, out[1].ContributingFactors)
}

func TestPredictBatch_TooMany(t *testing.T) {
	h := newHarness(t, nil)
	reqs := make([]domain.PredictionRequest, MaxBatchSize+1)
	_, err := h.svc.PredictBatch(context.Background(), reqs)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPredict_PredictorError(t *testing.T) {
	h := newHarness(t, nil)
	h.svc.predictor = failingPredictor{}
	_, err := h.svc.Predict(context.Background(), validRequest())
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCheckReadiness(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.svc.CheckReadiness(context.Background()))

	h.svc.predictor = nil
	assert.Error(t, h.svc.CheckReadiness(context.Background()))
}

func TestPredictDistrict_ClimatologyAndBaseline(t *testing.T) {
	h := newHarness(t, nil)

	dp, err := h.svc.PredictDistrict(context.Background(), "Mysuru", 12, true)
	require.NoError(t, err)

	assert.Equal(t, "mysore", dp.District)
	assert.Equal(t, "CHESCOM", dp.ESCOMZone)
	assert.Equal(t, domain.SourceClimatology, dp.Weather.Source)
	assert.Equal(t, GridSourceBaseline, dp.GridSource)
	assert.Equal(t, domain.Recommendation(dp.Prediction.RiskLevel), dp.Recommendation)
	assert.NotNil(t, dp.Prediction.Explanation)
	assert.InDelta(t, float64(dp.Weather.LightningRisk)/5, dp.WeatherFactors.LightningImpact, 1e-9)
}

func TestPredictDistrict_ReusesCachedPrediction(t *testing.T) {
	h := newHarness(t, nil)
	counter := &countingPredictor{Predictor: h.svc.predictor}
	h.svc.predictor = counter

	first, err := h.svc.PredictDistrict(context.Background(), "hubli", 24, false)
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	second, err := h.svc.PredictDistrict(context.Background(), "hubli", 24, false)
	require.NoError(t, err)
	h.svc.Close()

	assert.NotEqual(t, first.Weather.Timestamp, second.Weather.Timestamp)
	assert.Equal(t, 1, counter.calls)
	assert.Equal(t, first.Prediction, second.Prediction)
	assert.Equal(t, 1, h.publisher.count())
}

func TestPredictDistrict_LiveInputs(t *testing.T) {
	h := newHarness(t, &stubWeather{obs: domain.WeatherObservation{
		Temperature: 26, Humidity: 90, WindSpeed: 55, Rainfall: 30,
		Description: "thunderstorm", LightningRisk: 5, StormAlert: true,
		Source: domain.SourceOpenWeather,
	}})
	require.NoError(t, h.grid.LoadBatch(context.Background(), []domain.GridReading{{
		District: "mangalore", SubstationID: "MESCOM-MNG-07", LoadFactor: 0.95,
		VoltageStability: 0.55, FeederHealth: 0.4, ObservedAt: domain.Now(),
	}}))

	dp, err := h.svc.PredictDistrict(context.Background(), "mangalore", 24, false)
	require.NoError(t, err)

	assert.Equal(t, domain.SourceOpenWeather, dp.Weather.Source)
	assert.Equal(t, GridSourceTelemetry, dp.GridSource)
	assert.Equal(t, "MESCOM-MNG-07", dp.Grid.SubstationID)
	assert.Equal(t, 1.0, dp.WeatherFactors.StormImpact)
	assert.Equal(t, 1.0, dp.WeatherFactors.LightningImpact)
	assert.Nil(t, dp.Prediction.Explanation)
	assert.Equal(t, domain.RiskCritical, dp.Prediction.RiskLevel)
}

func TestPredictDistrict_WeatherFailureFallsBack(t *testing.T) {
	h := newHarness(t, &stubWeather{err: errors.New("timeout")})
	dp, err := h.svc.PredictDistrict(context.Background(), "hubli", 24, false)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceClimatology, dp.Weather.Source)
	assert.Equal(t, 1, h.weather.calls)
}

func TestPredictDistrict_Unknown(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.svc.PredictDistrict(context.Background(), "atlantis", 24, false)
	assert.ErrorIs(t, err, domain.ErrUnknownDistrict)
}

func TestPredictDistrict_InvalidHorizon(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.svc.PredictDistrict(context.Background(), "mysore", 96, false)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestResolveDistrict(t *testing.T) {
	h := newHarness(t, nil)

	d, err := h.svc.ResolveDistrict("Bengaluru", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "bangalore", d.Name)

	lat, lon := 12.30, 76.65
	d, err = h.svc.ResolveDistrict("", &lat, &lon)
	require.NoError(t, err)
	assert.Equal(t, "mysore", d.Name)

	_, err = h.svc.ResolveDistrict("", nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	bad := 120.0
	_, err = h.svc.ResolveDistrict("", &bad, &lon)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestForecastWeather_ClimatologySlots(t *testing.T) {
	h := newHarness(t, &stubWeather{err: errors.New("down")})
	d, err := domain.DefaultCatalog().Lookup("bangalore")
	require.NoError(t, err)

	items := h.svc.ForecastWeather(context.Background(), d, 8)
	require.Len(t, items, 8)
	for i, it := range items {
		assert.Equal(t, domain.SourceClimatology, it.Source)
		if i > 0 {
			assert.Equal(t, 3*time.Hour, it.Timestamp.Sub(items[i-1].Timestamp))
		}
	}

	assert.Len(t, h.svc.ForecastWeather(context.Background(), d, 48), 40)
}
