package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "outage_forecast"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// forecast service.
type Metrics struct {
	// Prediction metrics.
	Predictions       *prometheus.CounterVec   // labels: level, method
	InferenceDuration *prometheus.HistogramVec // labels: method
	CacheLookups      *prometheus.CounterVec   // labels: cache={prediction,heatmap,scenario,weather}, result={hit,miss}
	AdvisoriesIssued  *prometheus.CounterVec   // labels: severity
	EventsPublished   *prometheus.CounterVec   // labels: outcome={success,error}

	// HTTP metrics.
	HTTPRequests    *prometheus.CounterVec   // labels: route, status
	HTTPDuration    *prometheus.HistogramVec // labels: route
	RateLimitedReqs prometheus.Counter

	// Weather provider metrics.
	WeatherRequests    *prometheus.CounterVec   // labels: endpoint={current,forecast}, outcome={success,error}
	WeatherAPIDuration *prometheus.HistogramVec // labels: endpoint
	WeatherEnabled     prometheus.Gauge

	// Telemetry ingest metrics.
	TelemetryConsumed       prometheus.Counter
	TelemetryRejected       prometheus.Counter
	TelemetryApplied        prometheus.Counter
	PipelineRunning         prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions served by risk level and scoring method.",
		}, []string{"level", "method"}),
		InferenceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Time spent scoring a single request.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"method"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by cache and result.",
		}, []string{"cache", "result"}),
		AdvisoriesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advisories_issued_total",
			Help:      "Advisories generated by severity.",
		}, []string{"severity"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_events_total",
			Help:      "Prediction events published to Kafka by outcome.",
		}, []string{"outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by route pattern.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route"}),
		RateLimitedReqs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limited_total",
			Help:      "Requests rejected by the per-client rate limiter.",
		}),
		WeatherRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_requests_total",
			Help:      "Weather API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		WeatherAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "weather_api_duration_seconds",
			Help:      "OpenWeather API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"endpoint"}),
		WeatherEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "weather_enabled",
			Help:      "1 when live weather is enabled, 0 when climatology is used.",
		}),
		TelemetryConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_consumed_total",
			Help:      "Grid telemetry messages read from Kafka.",
		}),
		TelemetryRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_rejected_total",
			Help:      "Grid telemetry messages that failed parsing or validation.",
		}),
		TelemetryApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_applied_total",
			Help:      "Grid readings applied to the grid-state store.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the telemetry pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of telemetry messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete telemetry extract-transform-load cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Predictions,
		m.InferenceDuration,
		m.CacheLookups,
		m.AdvisoriesIssued,
		m.EventsPublished,
		m.HTTPRequests,
		m.HTTPDuration,
		m.RateLimitedReqs,
		m.WeatherRequests,
		m.WeatherAPIDuration,
		m.WeatherEnabled,
		m.TelemetryConsumed,
		m.TelemetryRejected,
		m.TelemetryApplied,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
	}
}

// CacheResult records a cache lookup outcome.
func (m *Metrics) CacheResult(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(cache, result).Inc()
}
