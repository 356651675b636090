package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/grid-outage-forecast/internal/advisory"
	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
	"github.com/couchcryptid/grid-outage-forecast/internal/forecast"
	"github.com/couchcryptid/grid-outage-forecast/internal/observability"
	"github.com/couchcryptid/grid-outage-forecast/internal/whatif"
)

// APIPrefix is the path prefix of every API route.
const APIPrefix = "/api/v1"

// Forecaster serves predictions, heatmaps and weather. forecast.Service
// implements it.
type Forecaster interface {
	Predict(ctx context.Context, req domain.PredictionRequest) (domain.Prediction, error)
	PredictBatch(ctx context.Context, reqs []domain.PredictionRequest) ([]domain.Prediction, error)
	PredictDistrict(ctx context.Context, name string, hours int, explain bool) (forecast.DistrictPrediction, error)
	Heatmap(ctx context.Context, bbox domain.BoundingBox, resolution, horizon int) (forecast.Heatmap, error)
	HeatmapGeoJSON(ctx context.Context, bbox domain.BoundingBox, resolution, horizon int) (forecast.FeatureCollection, error)
	RegionalSummary(ctx context.Context, regionType string) (forecast.RegionalSummary, error)
	ResolveDistrict(name string, lat, lon *float64) (domain.District, error)
	CurrentWeather(ctx context.Context, d domain.District) domain.WeatherObservation
	ForecastWeather(ctx context.Context, d domain.District, hours int) []domain.WeatherObservation
	Catalog() *domain.Catalog
	ModelInfo() (method, version string)
}

// Advisories issues and lists advisories. advisory.Service implements it.
type Advisories interface {
	Generate(req advisory.GenerateRequest) (domain.Advisory, error)
	Active(ctx context.Context, q advisory.ActiveQuery) (advisory.ActiveList, error)
	Get(id string) (domain.Advisory, error)
	PublicSummary(ctx context.Context, location string) advisory.PublicSummary
	Subscribe(req advisory.SubscribeRequest) (advisory.Subscription, error)
	History(q advisory.HistoryQuery) (advisory.History, error)
}

// Simulator runs what-if scenarios. whatif.Simulator implements it.
type Simulator interface {
	Run(ctx context.Context, req whatif.Request) (whatif.Result, error)
	RunBatch(ctx context.Context, reqs []whatif.Request) (whatif.BatchResult, error)
	Sensitivity(ctx context.Context, req whatif.SensitivityRequest) (whatif.SensitivityResult, error)
}

// Deps are the services behind the API.
type Deps struct {
	Forecast   Forecaster
	Advisories Advisories
	Simulator  Simulator
	Ready      sharedobs.ReadinessChecker
	Metrics    *observability.Metrics
	Logger     *slog.Logger
}

// Options tune the middleware.
type Options struct {
	// CORSAllowedOrigins lists allowed origins; "*" allows any.
	CORSAllowedOrigins []string
	// RateLimitPerMinute is the per-client API budget. Zero disables limiting.
	RateLimitPerMinute int
	Clock              clockwork.Clock
}

// Server exposes the forecast API plus health, readiness, and metrics
// endpoints.
type Server struct {
	httpServer *http.Server
	deps       Deps
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewServer creates the HTTP server and registers every route.
func NewServer(addr string, deps Deps, opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	mux := http.NewServeMux()

	s := &Server{
		deps:   deps,
		clock:  opts.Clock,
		logger: deps.Logger,
	}

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(deps.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/", s.handleNotFound)

	api := http.NewServeMux()
	api.HandleFunc("POST "+APIPrefix+"/predict", s.handlePredict)
	api.HandleFunc("POST "+APIPrefix+"/predict/batch", s.handlePredictBatch)
	api.HandleFunc("POST "+APIPrefix+"/predict/district", s.handlePredictDistrict)

	api.HandleFunc("GET "+APIPrefix+"/heatmap", s.handleHeatmap)
	api.HandleFunc("GET "+APIPrefix+"/heatmap/geojson", s.handleHeatmapGeoJSON)
	api.HandleFunc("GET "+APIPrefix+"/heatmap/regions", s.handleRegions)

	api.HandleFunc("GET "+APIPrefix+"/advisories", s.handleActiveAdvisories)
	api.HandleFunc("POST "+APIPrefix+"/advisories/generate", s.handleGenerateAdvisory)
	api.HandleFunc("GET "+APIPrefix+"/advisories/public/summary", s.handlePublicSummary)
	api.HandleFunc("POST "+APIPrefix+"/advisories/subscribe", s.handleSubscribe)
	api.HandleFunc("GET "+APIPrefix+"/advisories/history", s.handleAdvisoryHistory)
	api.HandleFunc("GET "+APIPrefix+"/advisories/{id}", s.handleGetAdvisory)

	api.HandleFunc("POST "+APIPrefix+"/what-if", s.handleWhatIf)
	api.HandleFunc("POST "+APIPrefix+"/what-if/batch", s.handleWhatIfBatch)
	api.HandleFunc("GET "+APIPrefix+"/what-if/templates", s.handleTemplates)
	api.HandleFunc("POST "+APIPrefix+"/what-if/sensitivity", s.handleSensitivity)

	api.HandleFunc("GET "+APIPrefix+"/districts", s.handleDistricts)
	api.HandleFunc("GET "+APIPrefix+"/weather/current", s.handleCurrentWeather)
	api.HandleFunc("GET "+APIPrefix+"/weather/forecast", s.handleWeatherForecast)
	api.HandleFunc(APIPrefix+"/", s.handleNotFound)

	limiter := newClientLimiter(opts.RateLimitPerMinute, opts.Clock)
	mux.Handle(APIPrefix+"/", s.rateLimit(limiter, api))

	var handler http.Handler = mux
	handler = cors(opts.CORSAllowedOrigins, handler)
	handler = s.instrument(handler)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	method, version := s.deps.Forecast.ModelInfo()
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Grid outage risk forecast service",
		"api_prefix": APIPrefix,
		"health":     "/healthz",
		"ready":      "/readyz",
		"metrics":    "/metrics",
		"model": map[string]string{
			"method":  method,
			"version": version,
		},
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, http.StatusNotFound, "not_found", "no route for "+r.Method+" "+r.URL.Path)
}
