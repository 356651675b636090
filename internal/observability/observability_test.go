package observability

import (
	"context"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/grid-outage-forecast/internal/config"
)

func TestNewLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := NewLogger(&config.Config{LogLevel: "warn", LogFormat: "text"})
	ctx := context.Background()
	assert.False(t, logger.Enabled(ctx, slog.LevelInfo))
	assert.True(t, logger.Enabled(ctx, slog.LevelWarn))
	assert.Same(t, logger, slog.Default())

	logger = NewLogger(&config.Config{LogLevel: "debug"})
	assert.True(t, logger.Enabled(ctx, slog.LevelDebug))
}

func TestCacheResult(t *testing.T) {
	m := NewMetricsForTesting()
	m.CacheResult("heatmap", true)
	m.CacheResult("heatmap", false)
	m.CacheResult("heatmap", false)

	assert.Equal(t, 1.0, counterValue(t, m.CacheLookups.WithLabelValues("heatmap", "hit")))
	assert.Equal(t, 2.0, counterValue(t, m.CacheLookups.WithLabelValues("heatmap", "miss")))
}

func TestMetricsCollectorsComplete(t *testing.T) {
	m := NewMetricsForTesting()
	for _, c := range m.collectors() {
		assert.NotNil(t, c)
	}
	assert.Len(t, m.collectors(), 17)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
