// Package forecast serves outage-risk predictions for requests, districts
// and map grids. It owns the short-lived response caches and publishes a
// prediction event for every freshly scored request.
package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/grid-outage-forecast/internal/cache"
	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
	"github.com/couchcryptid/grid-outage-forecast/internal/observability"
)

// MaxBatchSize caps the requests accepted by PredictBatch.
const MaxBatchSize = 100

// publishTimeout bounds a single background publish.
const publishTimeout = 5 * time.Second

// Predictor scores a validated, defaulted request.
// model.Ensemble implements it.
type Predictor interface {
	Predict(ctx context.Context, req domain.PredictionRequest) (domain.Prediction, error)
	Method() string
	Version() string
}

// Publisher sends prediction events downstream.
type Publisher interface {
	Publish(ctx context.Context, events ...domain.PredictionEvent) error
}

// GridSource supplies the current grid block for a district.
// gridstate.Store implements it.
type GridSource interface {
	Grid(d domain.District) (domain.GridInput, bool)
}

// Options tunes the response caches.
type Options struct {
	PredictionTTL time.Duration
	HeatmapTTL    time.Duration
	CacheSize     int
	Clock         clockwork.Clock
}

// Deps are the collaborators a Service needs. Weather may be nil, in which
// case district climatology is used.
type Deps struct {
	Predictor Predictor
	Catalog   *domain.Catalog
	Weather   domain.WeatherProvider
	Grid      GridSource
	Publisher Publisher
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

// Service is the prediction facade used by the HTTP layer, the advisory
// refresher and the what-if simulator.
type Service struct {
	predictor Predictor
	catalog   *domain.Catalog
	weather   domain.WeatherProvider
	grid      GridSource
	publisher Publisher
	metrics   *observability.Metrics
	logger    *slog.Logger

	predictions *cache.LRU[domain.Prediction]
	heatmaps    *cache.LRU[Heatmap]

	publishing sync.WaitGroup
}

// NewService creates a Service.
func NewService(deps Deps, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Service{
		predictor:   deps.Predictor,
		catalog:     deps.Catalog,
		weather:     deps.Weather,
		grid:        deps.Grid,
		publisher:   deps.Publisher,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		predictions: cache.New[domain.Prediction](opts.CacheSize, opts.PredictionTTL, opts.Clock),
		heatmaps:    cache.New[Heatmap](opts.CacheSize, opts.HeatmapTTL, opts.Clock),
	}
}

// Catalog returns the district catalog the service predicts over.
func (s *Service) Catalog() *domain.Catalog { return s.catalog }

// ModelInfo reports the active scoring method and model version.
func (s *Service) ModelInfo() (method, version string) {
	return s.predictor.Method(), s.predictor.Version()
}

// Predict validates and scores req. Identical requests within the
// prediction TTL are served from cache.
func (s *Service) Predict(ctx context.Context, req domain.PredictionRequest) (domain.Prediction, error) {
	return s.predict(ctx, req, "")
}

// PredictBatch scores up to MaxBatchSize requests. A request that fails
// gets a placeholder prediction in its slot.
func (s *Service) PredictBatch(ctx context.Context, reqs []domain.PredictionRequest) ([]domain.Prediction, error) {
	if len(reqs) > MaxBatchSize {
		return nil, &domain.ValidationError{Field: "requests", Reason: "maximum 100 requests per batch"}
	}
	out := make([]domain.Prediction, len(reqs))
	for i, req := range reqs {
		p, err := s.Predict(ctx, req)
		if err != nil {
			s.logger.Warn("batch prediction failed", "index", i, "error", err)
			p = domain.FailedPrediction()
		}
		out[i] = p
	}
	return out, nil
}

// CheckReadiness reports whether the service can score requests.
func (s *Service) CheckReadiness(_ context.Context) error {
	if s.predictor == nil {
		return errors.New("no predictor configured")
	}
	if s.catalog == nil || s.catalog.Len() == 0 {
		return errors.New("district catalog is empty")
	}
	return nil
}

// Close waits for in-flight event publishes to finish.
func (s *Service) Close() {
	s.publishing.Wait()
}

func (s *Service) predict(ctx context.Context, req domain.PredictionRequest, district string) (domain.Prediction, error) {
	if err := req.Validate(); err != nil {
		return domain.Prediction{}, err
	}

	key, err := predictionKey(req)
	if err != nil {
		return domain.Prediction{}, err
	}
	if p, ok := s.predictions.Get(key); ok {
		s.metrics.CacheResult("prediction", true)
		return p, nil
	}
	s.metrics.CacheResult("prediction", false)

	req = req.WithDefaults()
	start := time.Now()
	p, err := s.predictor.Predict(ctx, req)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("score request: %w", err)
	}
	s.metrics.InferenceDuration.WithLabelValues(p.Method).Observe(time.Since(start).Seconds())
	s.metrics.Predictions.WithLabelValues(string(p.RiskLevel), p.Method).Inc()

	s.predictions.Put(key, p)
	s.publish(domain.NewPredictionEvent(uuid.NewString(), district, req, p))
	return p, nil
}

// publish sends the event in the background. Failures are logged and
// counted, never returned.
func (s *Service) publish(event domain.PredictionEvent) {
	if s.publisher == nil {
		return
	}
	s.publishing.Add(1)
	go func() {
		defer s.publishing.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := s.publisher.Publish(ctx, event); err != nil {
			s.metrics.EventsPublished.WithLabelValues("error").Inc()
			s.logger.Warn("publish prediction event failed", "error", err, "id", event.ID)
			return
		}
		s.metrics.EventsPublished.WithLabelValues("success").Inc()
	}()
}

// predictionKey hashes the request with its horizon and explain flag
// normalized, so omitted defaults share an entry with explicit ones. The
// observation timestamp is left out: temporal features come from the
// scoring clock, and district requests stamp every call.
func predictionKey(req domain.PredictionRequest) (string, error) {
	req.Weather.Timestamp = time.Time{}
	if req.PredictionHorizon == 0 {
		req.PredictionHorizon = domain.DefaultHorizonHours
	}
	explain := req.Explain()
	req.IncludeExplanation = &explain

	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode cache key: %w", err)
	}
	return strconv.FormatUint(xxhash.Sum64(data), 16), nil
}
