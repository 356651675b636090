package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Model artifact. An empty path serves heuristic scores only.
	ModelPath    string
	ModelVersion string

	PredictionCacheTTL      time.Duration
	HeatmapCacheTTL         time.Duration
	AdvisoryRefreshInterval time.Duration
	CacheSize               int

	RateLimitPerMinute int
	CORSAllowedOrigins []string

	// OpenWeather configuration.
	OpenWeatherAPIKey   string
	OpenWeatherEnabled  bool
	OpenWeatherTimeout  time.Duration
	OpenWeatherCacheTTL time.Duration

	// Kafka configuration. Telemetry ingest and prediction events are both
	// off unless KafkaEnabled is set.
	KafkaEnabled         bool
	KafkaBrokers         []string
	KafkaTelemetryTopic  string
	KafkaPredictionTopic string
	KafkaGroupID         string
	BatchSize            int
	BatchFlushInterval   time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:             sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:             sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:      shutdownTimeout,
		ModelPath:            os.Getenv("MODEL_PATH"),
		ModelVersion:         sharedcfg.EnvOrDefault("MODEL_VERSION", "1.0.0"),
		CORSAllowedOrigins:   parseList(sharedcfg.EnvOrDefault("CORS_ALLOWED_ORIGINS", "*")),
		OpenWeatherAPIKey:    os.Getenv("OPENWEATHER_API_KEY"),
		KafkaBrokers:         sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTelemetryTopic:  sharedcfg.EnvOrDefault("KAFKA_TELEMETRY_TOPIC", "grid-telemetry"),
		KafkaPredictionTopic: sharedcfg.EnvOrDefault("KAFKA_PREDICTION_TOPIC", "outage-predictions"),
		KafkaGroupID:         sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "outage-forecast"),
		BatchSize:            batchSize,
		BatchFlushInterval:   flushInterval,
	}

	durations := []struct {
		name     string
		fallback string
		dst      *time.Duration
	}{
		{"PREDICTION_CACHE_TTL", "5m", &cfg.PredictionCacheTTL},
		{"HEATMAP_CACHE_TTL", "10m", &cfg.HeatmapCacheTTL},
		{"ADVISORY_REFRESH_INTERVAL", "2m", &cfg.AdvisoryRefreshInterval},
		{"OPENWEATHER_TIMEOUT", "5s", &cfg.OpenWeatherTimeout},
		{"OPENWEATHER_CACHE_TTL", "10m", &cfg.OpenWeatherCacheTTL},
	}
	for _, d := range durations {
		if *d.dst, err = parseDuration(d.name, d.fallback); err != nil {
			return nil, err
		}
	}

	if cfg.CacheSize, err = parsePositiveInt("CACHE_SIZE", 1000); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMinute, err = parsePositiveInt("RATE_LIMIT_PER_MINUTE", 60); err != nil {
		return nil, err
	}

	if cfg.OpenWeatherEnabled, err = parseBool("OPENWEATHER_ENABLED", cfg.OpenWeatherAPIKey != ""); err != nil {
		return nil, err
	}
	if cfg.KafkaEnabled, err = parseBool("KAFKA_ENABLED", false); err != nil {
		return nil, err
	}

	if cfg.OpenWeatherEnabled && cfg.OpenWeatherAPIKey == "" {
		return nil, errors.New("OPENWEATHER_ENABLED is true but OPENWEATHER_API_KEY is not set")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaTelemetryTopic == "" {
			return nil, errors.New("KAFKA_TELEMETRY_TOPIC is required")
		}
		if cfg.KafkaPredictionTopic == "" {
			return nil, errors.New("KAFKA_PREDICTION_TOPIC is required")
		}
	}

	return cfg, nil
}

func parseDuration(name, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return d, nil
}

func parsePositiveInt(name string, fallback int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", name)
	}
	return n, nil
}

func parseBool(name string, fallback bool) (bool, error) {
	s := os.Getenv(name)
	if s == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: must be true or false", name)
	}
	return b, nil
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
