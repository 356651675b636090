// Package openweather implements domain.WeatherProvider on the OpenWeather
// 2.5 current-weather and 5-day/3-hour forecast APIs.
package openweather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
	"github.com/couchcryptid/grid-outage-forecast/internal/observability"
)

// maxForecastSlots is the largest cnt the forecast endpoint accepts.
const maxForecastSlots = 40

// Client implements domain.WeatherProvider using the OpenWeather API.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an OpenWeather client.
func NewClient(apiKey string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://api.openweathermap.org/data/2.5",
		metrics: metrics,
		logger:  logger,
	}
}

// Current returns the latest observation for a district.
func (c *Client) Current(ctx context.Context, d domain.District) (domain.WeatherObservation, error) {
	var resp reading
	if err := c.doRequest(ctx, "/weather", c.params(d, nil), "current", &resp); err != nil {
		return domain.WeatherObservation{}, err
	}
	obs := resp.observation(d, resp.Rain.OneHour)
	if obs.Timestamp.IsZero() {
		obs.Timestamp = domain.Now()
	}
	return obs, nil
}

// Forecast returns up to min(hours, 40) three-hourly forecast slots.
func (c *Client) Forecast(ctx context.Context, d domain.District, hours int) ([]domain.WeatherObservation, error) {
	cnt := min(max(hours, 1), maxForecastSlots)
	extra := url.Values{"cnt": {strconv.Itoa(cnt)}}

	var resp forecastResponse
	if err := c.doRequest(ctx, "/forecast", c.params(d, extra), "forecast", &resp); err != nil {
		return nil, err
	}

	out := make([]domain.WeatherObservation, 0, len(resp.List))
	for _, item := range resp.List {
		out = append(out, item.observation(d, item.Rain.ThreeHour/3))
	}
	return out, nil
}

func (c *Client) params(d domain.District, extra url.Values) url.Values {
	params := url.Values{
		"lat":   {strconv.FormatFloat(d.Latitude, 'f', 4, 64)},
		"lon":   {strconv.FormatFloat(d.Longitude, 'f', 4, 64)},
		"appid": {c.apiKey},
		"units": {"metric"},
	}
	for k, v := range extra {
		params[k] = v
	}
	return params
}

func (c *Client) doRequest(ctx context.Context, path string, params url.Values, endpoint string, out any) error {
	start := time.Now()
	err := c.fetch(ctx, c.baseURL+path+"?"+params.Encode(), out)
	c.metrics.WeatherAPIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	outcome := "success"
	if err != nil {
		outcome = "error"
		c.logger.Warn("openweather request failed", "endpoint", endpoint, "error", err)
	}
	c.metrics.WeatherRequests.WithLabelValues(endpoint, outcome).Inc()
	if err != nil {
		return fmt.Errorf("%s weather request: %w", endpoint, err)
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, fullURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("openweather API error: status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// OpenWeather API response types.

type reading struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
		Pressure float64 `json:"pressure"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"` // m/s
	} `json:"wind"`
	Rain struct {
		OneHour   float64 `json:"1h"`
		ThreeHour float64 `json:"3h"`
	} `json:"rain"`
	Visibility *float64 `json:"visibility"` // metres
}

type forecastResponse struct {
	List []reading `json:"list"`
}

func (r reading) observation(d domain.District, rainfall float64) domain.WeatherObservation {
	visibility := 10.0
	if r.Visibility != nil {
		visibility = *r.Visibility / 1000
	}
	var description string
	if len(r.Weather) > 0 {
		description = r.Weather[0].Description
	}
	var ts time.Time
	if r.Dt > 0 {
		ts = time.Unix(r.Dt, 0).UTC()
	}

	obs := domain.WeatherObservation{
		Timestamp:   ts,
		District:    d.Name,
		Latitude:    d.Latitude,
		Longitude:   d.Longitude,
		Temperature: r.Main.Temp,
		Humidity:    r.Main.Humidity,
		WindSpeed:   r.Wind.Speed * 3.6,
		Rainfall:    rainfall,
		Pressure:    r.Main.Pressure,
		Visibility:  visibility,
		Description: description,
		Source:      domain.SourceOpenWeather,
	}
	obs.Derive()
	return obs
}
