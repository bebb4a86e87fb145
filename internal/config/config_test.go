package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "homewidget.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Agenda.NumHours)
	assert.Equal(t, "3 PM", cfg.Agenda.HourFormat)
	assert.Equal(t, 5, cfg.DailyLog.RolloverHour)
	assert.Len(t, cfg.DailyLog.Fields, 4)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Agenda, again.Agenda)
	assert.Equal(t, cfg.DailyLog, again.DailyLog)
}

func TestLoadPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "homewidget.yaml")
	yml := `
timezone: Asia/Seoul
agenda:
  num_hours: 8
  calendars: [Work]
  hour_format: "15"
calendars:
  - url: https://example.com/work.ics
    name: Work
    color: "#9D90FF"
daily_log:
  rollover_hour: 0
weather:
  units: kelvin
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Asia/Seoul", cfg.Timezone)
	assert.Equal(t, 8, cfg.Agenda.NumHours)
	assert.Equal(t, 3, cfg.Agenda.NumDays)
	assert.Equal(t, []string{"Work"}, cfg.Agenda.Calendars)
	assert.Equal(t, "15", cfg.Agenda.HourFormat)
	assert.Equal(t, 0, cfg.DailyLog.RolloverHour, "midnight rollover must survive normalization")
	assert.Equal(t, "metric", cfg.Weather.Units)
	assert.Equal(t, 30, cfg.Weather.CacheMinutes)
	assert.Equal(t, "Work", cfg.Calendars[0].Key())
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "homewidget.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: 0.0.0.0:9000\n"), 0o600))

	t.Setenv("HOMEWIDGET_WEATHER_API_KEY", "secret-key")
	t.Setenv("HOMEWIDGET_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-key", cfg.Weather.APIKey)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "0.0.0.0:9000", cfg.Listen)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agenda: [not, a, map"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Calendars = []CalendarConfig{
		{URL: "https://a.example/cal.ics", ID: "a"},
		{URL: "", ID: "b"},
		{URL: "https://c.example/cal.ics", ID: "a", Color: "red"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "calendars[1]: url is empty")
	assert.Contains(t, err.Error(), `duplicate id "a"`)
	assert.Contains(t, err.Error(), `color "red"`)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	cfg := DefaultConfig()
	cfg.Agenda.NumHours = 12
	cfg.BasicAuth = &BasicAuthConfig{Username: "me", Password: "pw"}

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, loaded.Agenda.NumHours)
	require.NotNil(t, loaded.BasicAuth)
	assert.Equal(t, "me", loaded.BasicAuth.Username)

	assert.Error(t, Save("", cfg))
	assert.Error(t, Save(path, nil))
}

func TestLocation(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, time.Local, cfg.Location())

	cfg.Timezone = "Asia/Seoul"
	assert.Equal(t, "Asia/Seoul", cfg.Location().String())

	cfg.Timezone = "Mars/Olympus"
	assert.Equal(t, time.Local, cfg.Location())
	assert.ErrorContains(t, cfg.Validate(), "Mars/Olympus")
}
