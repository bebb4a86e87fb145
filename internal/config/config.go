package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// CalendarConfig describes one ICS subscription shown in the widgets.
type CalendarConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for cache keys and logging.
	ID string `yaml:"id" json:"id"`
	// Name is the calendar name matched by calendar filters.
	Name string `yaml:"name" json:"name"`
	// Color is the calendar colour as "#RRGGBB".
	Color string `yaml:"color" json:"color"`
}

// AgendaConfig configures the hourly agenda widget.
type AgendaConfig struct {
	// NumHours is the number of hour rows to show.
	NumHours int `yaml:"num_hours" json:"num_hours"`
	// NumDays is the number of days in the multi-day agenda.
	NumDays int `yaml:"num_days" json:"num_days"`
	// Calendars restricts events to these calendar names. Empty means all.
	Calendars []string `yaml:"calendars" json:"calendars"`
	// HourFormat is a Go time layout for hour labels, "3 PM" or "15".
	HourFormat string `yaml:"hour_format" json:"hour_format"`
}

// WeatherConfig configures the OpenWeather summary.
type WeatherConfig struct {
	// APIKey is the OpenWeather API key. Weather is disabled when empty.
	APIKey string `yaml:"api_key" json:"-" env:"HOMEWIDGET_WEATHER_API_KEY"`
	// BaseURL defaults to the public onecall endpoint.
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Units is "metric" or "imperial".
	Units string `yaml:"units" json:"units"`
	// Latitude / Longitude are the default location, used until a location
	// has been cached.
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
	// CacheMinutes is how long a weather response is reused.
	CacheMinutes int `yaml:"cache_minutes" json:"cache_minutes"`
}

// DailyLogField is one user-entered field of the daily log.
type DailyLogField struct {
	Label    string `yaml:"label" json:"label"`
	Category string `yaml:"category" json:"category"`
}

// DailyLogConfig configures the daily log widget.
type DailyLogConfig struct {
	Fields []DailyLogField `yaml:"fields" json:"fields"`
	// NumDays is how many days of history the aggregate view shows.
	NumDays int `yaml:"num_days" json:"num_days"`
	// RolloverHour is the hour at which a new log day starts. Entries made
	// before it belong to the previous day.
	RolloverHour int `yaml:"rollover_hour" json:"rollover_hour"`
}

// CaptureConfig configures PNG snapshots of the agenda page.
type CaptureConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Width   int    `yaml:"width" json:"width"`
	Height  int    `yaml:"height" json:"height"`
	Output  string `yaml:"output" json:"output"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen" env:"HOMEWIDGET_LISTEN"`

	// Timezone is the IANA timezone used for display (e.g. "America/New_York").
	Timezone string `yaml:"timezone" json:"timezone" env:"HOMEWIDGET_TIMEZONE"`

	// RefreshCron is a cron schedule (e.g. "*/15 * * * *") for refreshes.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// CacheDir is the root directory of all cache namespaces.
	CacheDir string `yaml:"cache_dir" json:"cache_dir" env:"HOMEWIDGET_CACHE_DIR"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level" env:"HOMEWIDGET_LOG_LEVEL"`

	Agenda    AgendaConfig     `yaml:"agenda" json:"agenda"`
	Calendars []CalendarConfig `yaml:"calendars" json:"calendars"`
	Weather   WeatherConfig    `yaml:"weather" json:"weather"`
	DailyLog  DailyLogConfig   `yaml:"daily_log" json:"daily_log"`
	Capture   CaptureConfig    `yaml:"capture" json:"capture"`

	// BasicAuth, if set, protects all endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cfg := &Config{DailyLog: DailyLogConfig{RolloverHour: defaultRolloverHour}}
	cfg.Normalize()
	return cfg
}

// defaultRolloverHour is applied before decoding, since 0 (midnight) is a
// valid setting.
const defaultRolloverHour = 5

func defaultDailyLogFields() []DailyLogField {
	return []DailyLogField{
		{Label: "Mood", Category: "wellbeing"},
		{Label: "Sleep", Category: "wellbeing"},
		{Label: "Exercise", Category: "health"},
		{Label: "Water", Category: "health"},
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/15 * * * *"
	}
	if c.CacheDir == "" {
		c.CacheDir = "./var/cache"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Agenda.NumHours <= 0 {
		c.Agenda.NumHours = 6
	}
	if c.Agenda.NumDays <= 0 {
		c.Agenda.NumDays = 3
	}
	if c.Agenda.HourFormat == "" {
		c.Agenda.HourFormat = "3 PM"
	}
	if c.Agenda.Calendars == nil {
		c.Agenda.Calendars = []string{}
	}
	if c.Calendars == nil {
		c.Calendars = []CalendarConfig{}
	}

	if c.Weather.BaseURL == "" {
		c.Weather.BaseURL = "https://api.openweathermap.org/data/2.5/onecall"
	}
	switch c.Weather.Units {
	case "metric", "imperial", "standard":
	default:
		c.Weather.Units = "metric"
	}
	if c.Weather.CacheMinutes <= 0 {
		c.Weather.CacheMinutes = 30
	}

	if len(c.DailyLog.Fields) == 0 {
		c.DailyLog.Fields = defaultDailyLogFields()
	}
	if c.DailyLog.NumDays <= 0 {
		c.DailyLog.NumDays = 7
	}
	if c.DailyLog.RolloverHour < 0 || c.DailyLog.RolloverHour > 23 {
		c.DailyLog.RolloverHour = defaultRolloverHour
	}

	if c.Capture.Width <= 0 {
		c.Capture.Width = 400
	}
	if c.Capture.Height <= 0 {
		c.Capture.Height = 400
	}
	if c.Capture.Output == "" {
		c.Capture.Output = filepath.Join(c.CacheDir, "preview.png")
	}
}

// Validate reports configuration errors that Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	seen := map[string]bool{}
	for i, cal := range c.Calendars {
		if cal.URL == "" {
			errs = append(errs, fmt.Errorf("calendars[%d]: url is empty", i))
		}
		id := cal.Key()
		if seen[id] {
			errs = append(errs, fmt.Errorf("calendars[%d]: duplicate id %q", i, id))
		}
		seen[id] = true
		if cal.Color != "" && !strings.HasPrefix(cal.Color, "#") {
			errs = append(errs, fmt.Errorf("calendars[%d]: color %q must start with '#'", i, cal.Color))
		}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	return errors.Join(errs...)
}

// Key returns the calendar's identifier: ID, else Name, else URL.
func (c CalendarConfig) Key() string {
	switch {
	case c.ID != "":
		return c.ID
	case c.Name != "":
		return c.Name
	default:
		return c.URL
	}
}

// Load loads configuration from the given YAML path and applies environment
// overrides (HOMEWIDGET_*).
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is decoded, env overrides applied, then normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			if err := cleanenv.ReadEnv(cfg); err != nil {
				return cfg, fmt.Errorf("config: env overrides: %w", err)
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := Config{DailyLog: DailyLogConfig{RolloverHour: defaultRolloverHour}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: env overrides: %w", err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".homewidget-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// Location resolves Timezone, falling back to time.Local when it is empty or
// unknown.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
