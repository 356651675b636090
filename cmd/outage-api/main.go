package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/grid-outage-forecast/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/grid-outage-forecast/internal/adapter/kafka"
	"github.com/couchcryptid/grid-outage-forecast/internal/adapter/openweather"
	"github.com/couchcryptid/grid-outage-forecast/internal/advisory"
	"github.com/couchcryptid/grid-outage-forecast/internal/config"
	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
	"github.com/couchcryptid/grid-outage-forecast/internal/forecast"
	"github.com/couchcryptid/grid-outage-forecast/internal/gridstate"
	"github.com/couchcryptid/grid-outage-forecast/internal/model"
	"github.com/couchcryptid/grid-outage-forecast/internal/observability"
	"github.com/couchcryptid/grid-outage-forecast/internal/pipeline"
	"github.com/couchcryptid/grid-outage-forecast/internal/whatif"
)

// readiness is ready when every checker is.
type readiness []sharedobs.ReadinessChecker

func (r readiness) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()
	catalog := domain.DefaultCatalog()

	// Tree model from MODEL_PATH; heuristic scoring when unset or unreadable.
	var primary model.Scorer
	if cfg.ModelPath != "" {
		tm, err := model.LoadTreeEnsemble(cfg.ModelPath)
		if err != nil {
			logger.Warn("model load failed, serving heuristic scores", "path", cfg.ModelPath, "error", err)
		} else {
			primary = tm
			logger.Info("model loaded", "path", cfg.ModelPath, "features", len(tm.FeatureNames()))
		}
	}
	ensemble := model.NewEnsemble(primary, cfg.ModelVersion, logger)

	// Weather provider (feature-flagged via OPENWEATHER_ENABLED / OPENWEATHER_API_KEY).
	var weather domain.WeatherProvider
	if cfg.OpenWeatherEnabled {
		client := openweather.NewClient(cfg.OpenWeatherAPIKey, cfg.OpenWeatherTimeout, metrics, logger)
		weather = openweather.NewCachedProvider(client, cfg.CacheSize, cfg.OpenWeatherCacheTTL, clock, metrics)
		metrics.WeatherEnabled.Set(1)
		logger.Info("openweather enabled", "timeout", cfg.OpenWeatherTimeout, "cache_ttl", cfg.OpenWeatherCacheTTL)
	} else {
		logger.Info("openweather disabled, using district climatology")
	}

	store := gridstate.NewStore()
	checks := readiness{}

	var (
		publisher forecast.Publisher = kafkaadapter.NopPublisher{}
		reader    *kafkaadapter.Reader
		writer    *kafkaadapter.Writer
		ingest    *pipeline.Pipeline
	)
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		ingest = pipeline.New(reader, pipeline.NewTransformer(catalog), store, logger, metrics, cfg.BatchSize)
		checks = append(checks, ingest)
		logger.Info("kafka enabled",
			"brokers", cfg.KafkaBrokers,
			"telemetry_topic", cfg.KafkaTelemetryTopic,
			"prediction_topic", cfg.KafkaPredictionTopic,
		)
	} else {
		logger.Info("kafka disabled, serving catalog baseline grid data")
	}

	fc := forecast.NewService(forecast.Deps{
		Predictor: ensemble,
		Catalog:   catalog,
		Weather:   weather,
		Grid:      store,
		Publisher: publisher,
		Metrics:   metrics,
		Logger:    logger,
	}, forecast.Options{
		PredictionTTL: cfg.PredictionCacheTTL,
		HeatmapTTL:    cfg.HeatmapCacheTTL,
		CacheSize:     cfg.CacheSize,
		Clock:         clock,
	})
	checks = append(readiness{fc}, checks...)

	advisories := advisory.NewService(fc, cfg.AdvisoryRefreshInterval, clock, metrics, logger)
	// Scenarios score against the model directly so hypothetical inputs stay
	// out of the prediction cache and event stream.
	simulator := whatif.NewSimulator(ensemble, whatif.DefaultCacheTTL, cfg.CacheSize, clock, metrics, logger)

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Forecast:   fc,
		Advisories: advisories,
		Simulator:  simulator,
		Ready:      checks,
		Metrics:    metrics,
		Logger:     logger,
	}, httpadapter.Options{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Clock:              clock,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Start telemetry ingest.
	if ingest != nil {
		go func() {
			if err := ingest.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	fc.Close()
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
