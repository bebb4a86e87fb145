// Package weather reads the current conditions from the OpenWeather
// onecall API through the read-through cache.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"homewidget/internal/cache"
	"homewidget/internal/config"
	appLog "homewidget/internal/log"
)

const (
	// LocationKey holds the last known {latitude, longitude}.
	LocationKey = "location"
	// ResponseKey holds the last onecall response.
	ResponseKey = "weather"

	unknown = "Unknown"
)

// Location is a coordinate pair as stored under LocationKey.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Summary is what the widgets display.
type Summary struct {
	Description string   `json:"description"`
	Code        int      `json:"code"`
	Temperature int      `json:"temperature"`
	FeelsLike   int      `json:"feelsLike"`
	Wind        int      `json:"wind"`
	High        int      `json:"high"`
	Low         int      `json:"low"`
	IsNight     bool     `json:"isNight"`
	Units       string   `json:"units"`
	Location    Location `json:"location"`
	Known       bool     `json:"known"`
}

// Unknown is returned when no weather could be fetched.
func Unknown(loc Location, units string) Summary {
	return Summary{Description: unknown, Units: units, Location: loc}
}

// onecallResponse is the subset of the onecall payload we use.
type onecallResponse struct {
	Current struct {
		Dt        int64   `json:"dt"`
		Sunrise   int64   `json:"sunrise"`
		Sunset    int64   `json:"sunset"`
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		WindSpeed float64 `json:"wind_speed"`
		Weather   []struct {
			ID   int    `json:"id"`
			Main string `json:"main"`
		} `json:"weather"`
	} `json:"current"`
	Daily []struct {
		Temp struct {
			Min float64 `json:"min"`
			Max float64 `json:"max"`
		} `json:"temp"`
	} `json:"daily"`
}

// Client fetches and summarizes weather.
type Client struct {
	cfg   config.WeatherConfig
	cache *cache.Cache
	http  *http.Client
	now   func() time.Time
}

// NewClient creates a Client. A nil httpClient gets a 10s timeout client.
func NewClient(cfg config.WeatherConfig, c *cache.Cache, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{cfg: cfg, cache: c, http: httpClient, now: time.Now}
}

// Location returns the cached location. On a miss the configured default is
// written back and returned.
func (c *Client) Location(ctx context.Context) Location {
	var loc Location
	if c.cache.ReadInto(ctx, LocationKey, 0, &loc) {
		return loc
	}
	loc = Location{Latitude: c.cfg.Latitude, Longitude: c.cfg.Longitude}
	if err := c.cache.Write(ctx, LocationKey, loc); err != nil {
		appLog.Warn("weather: failed to store default location", "err", err)
	}
	return loc
}

// SetLocation replaces the cached location and drops the cached response so
// the next Current call refetches.
func (c *Client) SetLocation(ctx context.Context, loc Location) error {
	if err := c.cache.Write(ctx, LocationKey, loc); err != nil {
		return err
	}
	return c.cache.Remove(ctx, ResponseKey)
}

// Current returns the current weather summary. Failures are logged and
// produce an Unknown summary.
func (c *Client) Current(ctx context.Context) Summary {
	loc := c.Location(ctx)
	if c.cfg.APIKey == "" {
		appLog.Debug("weather: no api key configured")
		return Unknown(loc, c.cfg.Units)
	}

	ttl := time.Duration(c.cfg.CacheMinutes) * time.Minute
	resp, err := cache.ReadThrough(ctx, c.cache, ResponseKey, ttl, func(ctx context.Context) (onecallResponse, error) {
		return c.fetch(ctx, loc)
	})
	if err != nil {
		appLog.Error("weather: fetch failed", err, "lat", loc.Latitude, "lon", loc.Longitude)
		return Unknown(loc, c.cfg.Units)
	}
	if len(resp.Current.Weather) == 0 || len(resp.Daily) == 0 {
		appLog.Warn("weather: incomplete cached response")
		return Unknown(loc, c.cfg.Units)
	}
	return summarize(resp, c.now(), loc, c.cfg.Units)
}

var errIncompleteResponse = errors.New("weather: response has no current conditions or daily forecast")

func (c *Client) fetch(ctx context.Context, loc Location) (onecallResponse, error) {
	var out onecallResponse

	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return out, fmt.Errorf("weather: base url: %w", err)
	}
	q := u.Query()
	q.Set("lat", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	q.Set("exclude", "minutely,hourly,alerts")
	q.Set("units", c.cfg.Units)
	q.Set("lang", "en")
	q.Set("appid", c.cfg.APIKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return out, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return out, errors.New("weather: " + resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("weather: decode: %w", err)
	}
	if len(out.Current.Weather) == 0 || len(out.Daily) == 0 {
		return out, errIncompleteResponse
	}
	return out, nil
}

func summarize(r onecallResponse, now time.Time, loc Location, units string) Summary {
	ts := now.Unix()
	cur := r.Current
	return Summary{
		Description: cur.Weather[0].Main,
		Code:        cur.Weather[0].ID,
		Temperature: round(cur.Temp),
		FeelsLike:   round(cur.FeelsLike),
		Wind:        round(cur.WindSpeed),
		High:        round(r.Daily[0].Temp.Max),
		Low:         round(r.Daily[0].Temp.Min),
		IsNight:     ts >= cur.Sunset || ts <= cur.Sunrise,
		Units:       units,
		Location:    loc,
		Known:       true,
	}
}

func round(f float64) int {
	return int(math.Round(f))
}
