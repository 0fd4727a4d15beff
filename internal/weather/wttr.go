// Package weather implements the tool side of the system: a client for the
// wttr.in JSON API and the MCP tools exposed over it.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultBaseURL = "https://wttr.in"
	defaultTimeout = 15 * time.Second

	// ForecastMaxDays is the most days wttr.in returns per query.
	ForecastMaxDays     = 3
	forecastDefaultDays = 3
)

// wttr.in "?format=j1" payload, trimmed to the fields the tools report.
// Every value arrives as a string.
type wttrResponse struct {
	CurrentCondition []wttrCurrent `json:"current_condition"`
	NearestArea      []wttrArea    `json:"nearest_area"`
	Weather          []wttrDay     `json:"weather"`
}

type wttrValue struct {
	Value string `json:"value"`
}

type wttrCurrent struct {
	TempC            string      `json:"temp_C"`
	TempF            string      `json:"temp_F"`
	FeelsLikeC       string      `json:"FeelsLikeC"`
	FeelsLikeF       string      `json:"FeelsLikeF"`
	WeatherDesc      []wttrValue `json:"weatherDesc"`
	Humidity         string      `json:"humidity"`
	Pressure         string      `json:"pressure"`
	WindspeedKmph    string      `json:"windspeedKmph"`
	Winddir16Point   string      `json:"winddir16Point"`
	Visibility       string      `json:"visibility"`
	UVIndex          string      `json:"uvIndex"`
	LocalObsDateTime string      `json:"localObsDateTime"`
}

type wttrArea struct {
	AreaName []wttrValue `json:"areaName"`
	Country  []wttrValue `json:"country"`
	Region   []wttrValue `json:"region"`
}

type wttrDay struct {
	Date      string          `json:"date"`
	MaxTempC  string          `json:"maxtempC"`
	MaxTempF  string          `json:"maxtempF"`
	MinTempC  string          `json:"mintempC"`
	MinTempF  string          `json:"mintempF"`
	UVIndex   string          `json:"uvIndex"`
	Hourly    []wttrHour      `json:"hourly"`
	Astronomy []wttrAstronomy `json:"astronomy"`
}

type wttrHour struct {
	WeatherDesc []wttrValue `json:"weatherDesc"`
}

type wttrAstronomy struct {
	Sunrise string `json:"sunrise"`
	Sunset  string `json:"sunset"`
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the wttr.in endpoint. Tests point this at a local
// double.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// Client fetches weather data from wttr.in. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient returns a wttr.in client with sensible defaults.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}

// Current returns the current conditions for a city as an ordered-by-name
// field map ready to serialize.
func (c *Client) Current(ctx context.Context, city string) (map[string]any, error) {
	data, err := c.fetch(ctx, city)
	if err != nil {
		return nil, err
	}
	if len(data.CurrentCondition) == 0 {
		return nil, fmt.Errorf("no current conditions for %q", city)
	}

	current := data.CurrentCondition[0]
	area := nearestArea(data)

	return map[string]any{
		"city":           area.name(city),
		"country":        area.country(),
		"region":         area.region(),
		"temperature":    fmt.Sprintf("%s°C (%s°F)", current.TempC, current.TempF),
		"feels_like":     fmt.Sprintf("%s°C (%s°F)", current.FeelsLikeC, current.FeelsLikeF),
		"description":    firstValue(current.WeatherDesc),
		"humidity":       current.Humidity + "%",
		"pressure":       current.Pressure + " mb",
		"wind_speed":     current.WindspeedKmph + " km/h",
		"wind_direction": current.Winddir16Point,
		"visibility":     current.Visibility + " km",
		"uv_index":       current.UVIndex,
		"local_time":     current.LocalObsDateTime,
	}, nil
}

// Forecast returns up to days of daily forecasts. days outside [1, 3] is
// clamped; zero means the default of 3.
func (c *Client) Forecast(ctx context.Context, city string, days int) (map[string]any, error) {
	if days <= 0 {
		days = forecastDefaultDays
	}
	if days > ForecastMaxDays {
		days = ForecastMaxDays
	}

	data, err := c.fetch(ctx, city)
	if err != nil {
		return nil, err
	}
	if len(data.Weather) == 0 {
		return nil, fmt.Errorf("no forecast data for %q", city)
	}
	if days > len(data.Weather) {
		days = len(data.Weather)
	}

	area := nearestArea(data)
	forecast := make([]map[string]any, 0, days)
	for _, day := range data.Weather[:days] {
		entry := map[string]any{
			"date":        day.Date,
			"max_temp":    fmt.Sprintf("%s°C (%s°F)", day.MaxTempC, day.MaxTempF),
			"min_temp":    fmt.Sprintf("%s°C (%s°F)", day.MinTempC, day.MinTempF),
			"description": middayDescription(day),
			"uv_index":    day.UVIndex,
		}
		if len(day.Astronomy) > 0 {
			entry["sunrise"] = day.Astronomy[0].Sunrise
			entry["sunset"] = day.Astronomy[0].Sunset
		}
		forecast = append(forecast, entry)
	}

	return map[string]any{
		"city":     area.name(city),
		"country":  area.country(),
		"forecast": forecast,
	}, nil
}

func (c *Client) fetch(ctx context.Context, city string) (*wttrResponse, error) {
	endpoint := fmt.Sprintf("%s/%s?format=j1", c.baseURL, url.PathEscape(city))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %q: %w", city, err)
	}
	req.Header.Set("Accept", "application/json")

	c.log().Debug("fetching weather data", "city", city)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching weather for %q: %w", city, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather service returned status %d for %q", resp.StatusCode, city)
	}

	var data wttrResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding weather data for %q: %w", city, err)
	}
	return &data, nil
}

// area wraps the nearest-area block with safe accessors; wttr.in omits it for
// some queries.
type area struct {
	raw *wttrArea
}

func nearestArea(data *wttrResponse) area {
	if len(data.NearestArea) == 0 {
		return area{}
	}
	return area{raw: &data.NearestArea[0]}
}

func (a area) name(fallback string) string {
	if a.raw == nil {
		return fallback
	}
	if n := firstValue(a.raw.AreaName); n != "" {
		return n
	}
	return fallback
}

func (a area) country() string {
	if a.raw == nil {
		return ""
	}
	return firstValue(a.raw.Country)
}

func (a area) region() string {
	if a.raw == nil {
		return ""
	}
	return firstValue(a.raw.Region)
}

func firstValue(values []wttrValue) string {
	if len(values) == 0 {
		return ""
	}
	return values[0].Value
}

// middayDescription prefers the midday hourly slot; wttr.in reports eight
// three-hour slots per day.
func middayDescription(day wttrDay) string {
	if len(day.Hourly) > 4 {
		return firstValue(day.Hourly[4].WeatherDesc)
	}
	if len(day.Hourly) > 0 {
		return firstValue(day.Hourly[0].WeatherDesc)
	}
	return ""
}
