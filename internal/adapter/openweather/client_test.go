package openweather

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
	"github.com/couchcryptid/grid-outage-forecast/internal/observability"
)

const (
	testKey           = "test-key"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testClient(baseURL string) *Client {
	return &Client{
		apiKey:     testKey,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		metrics:    observability.NewMetricsForTesting(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func mangalore(t *testing.T) domain.District {
	t.Helper()
	d, err := domain.DefaultCatalog().Lookup("mangalore")
	require.NoError(t, err)
	return d
}

func TestClient_Current_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/weather", r.URL.Path)
		assert.Equal(t, testKey, r.URL.Query().Get("appid"))
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		assert.Equal(t, "12.9141", r.URL.Query().Get("lat"))
		assert.Equal(t, "74.8560", r.URL.Query().Get("lon"))

		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = io.WriteString(w, `{
			"dt": 1719835200,
			"main": {"temp": 27.5, "humidity": 88, "pressure": 1004},
			"weather": [{"description": "thunderstorm with heavy rain"}],
			"wind": {"speed": 12.5},
			"rain": {"1h": 30},
			"visibility": 4000
		}`)
	}))
	defer srv.Close()

	obs, err := testClient(srv.URL).Current(context.Background(), mangalore(t))
	require.NoError(t, err)

	assert.Equal(t, "mangalore", obs.District)
	assert.Equal(t, time.Unix(1719835200, 0).UTC(), obs.Timestamp)
	assert.Equal(t, 27.5, obs.Temperature)
	assert.InDelta(t, 45.0, obs.WindSpeed, 1e-9)
	assert.Equal(t, 30.0, obs.Rainfall)
	assert.Equal(t, 4.0, obs.Visibility)
	assert.Equal(t, 5, obs.LightningRisk)
	assert.True(t, obs.StormAlert)
	assert.InDelta(t, 0.8, obs.MonsoonIntensity, 1e-9)
	assert.Equal(t, domain.SourceOpenWeather, obs.Source)

	in := obs.Input()
	assert.Equal(t, 10, in.LightningStrikes)
	require.NoError(t, in.Validate())
}

func TestClient_Current_DefaultsVisibility(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"main":{"temp":30,"humidity":40},"weather":[{"description":"clear sky"}],"wind":{"speed":2}}`)
	}))
	defer srv.Close()

	obs, err := testClient(srv.URL).Current(context.Background(), mangalore(t))
	require.NoError(t, err)
	assert.Equal(t, 10.0, obs.Visibility)
	assert.Equal(t, 0.0, obs.Rainfall)
	assert.False(t, obs.StormAlert)
	assert.False(t, obs.Timestamp.IsZero())
}

func TestClient_Forecast_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forecast", r.URL.Path)
		assert.Equal(t, "40", r.URL.Query().Get("cnt"))
		_, _ = io.WriteString(w, `{"list":[
			{"dt":1719835200,"main":{"temp":26,"humidity":80},"weather":[{"description":"light rain"}],"wind":{"speed":5},"rain":{"3h":9}},
			{"dt":1719846000,"main":{"temp":25,"humidity":85},"weather":[{"description":"moderate rain"}],"wind":{"speed":6}}
		]}`)
	}))
	defer srv.Close()

	items, err := testClient(srv.URL).Forecast(context.Background(), mangalore(t), 72)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 3.0, items[0].Rainfall)
	assert.InDelta(t, 18.0, items[0].WindSpeed, 1e-9)
	assert.Equal(t, 0.0, items[1].Rainfall)
	assert.True(t, items[1].Timestamp.After(items[0].Timestamp))
}

func TestClient_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"cod":401,"message":"Invalid API key"}`)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Current(context.Background(), mangalore(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestClient_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `not json`)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Forecast(context.Background(), mangalore(t), 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testClient(srv.URL).Current(ctx, mangalore(t))
	require.Error(t, err)
}
