package widget

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homewidget/internal/cache"
	"homewidget/internal/config"
	"homewidget/internal/dailylog"
	"homewidget/internal/model"
	"homewidget/internal/weather"
)

type fakeCalendar struct {
	mu       sync.Mutex
	events   []model.CalendarEvent
	err      error
	from, to time.Time
}

func (f *fakeCalendar) Events(_ context.Context, from, to time.Time) ([]model.CalendarEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.from, f.to = from, to
	return f.events, f.err
}

type fakeWeather struct{ summary weather.Summary }

func (f fakeWeather) Current(context.Context) weather.Summary { return f.summary }

func at(h, m int) time.Time {
	return time.Date(2025, 3, 14, h, m, 0, 0, time.UTC)
}

func newTestService(t *testing.T, cal *fakeCalendar) (*Service, *time.Time) {
	t.Helper()
	ctx := context.Background()
	store := cache.NewFileStore(t.TempDir())

	state, err := cache.New(ctx, store, "terminal-widget")
	require.NoError(t, err)
	logCache, err := cache.New(ctx, store, dailylog.Namespace)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.Calendars = []config.CalendarConfig{
		{URL: "https://example.com/work.ics", Name: "Work"},
		{URL: "https://example.com/home.ics", Name: "Home"},
	}

	svc := NewService(cfg, Deps{
		Calendar: cal,
		Weather:  fakeWeather{summary: weather.Summary{Description: "Clouds", Temperature: 13, Known: true}},
		DailyLog: dailylog.New(logCache, cfg.DailyLog, time.UTC),
		State:    state,
	})
	now := at(14, 10)
	svc.now = func() time.Time { return now }
	return svc, &now
}

func TestRefreshBuildsSnapshot(t *testing.T) {
	cal := &fakeCalendar{events: []model.CalendarEvent{
		{Title: "Holiday", Start: at(0, 0), End: at(0, 0).AddDate(0, 0, 1), AllDay: true, Calendar: "Home", Color: "#FF6663"},
		{Title: "Standup", Start: at(14, 0), End: at(14, 45), Calendar: "Work", Color: "#9D90FF"},
		{Title: "Review", Start: at(15, 30), End: at(16, 0), Calendar: "Work", Color: "#9D90FF"},
		{Title: "Dinner", Start: at(19, 0).AddDate(0, 0, 1), End: at(20, 0).AddDate(0, 0, 1), Calendar: "Home"},
	}}
	svc, _ := newTestService(t, cal)

	assert.Nil(t, svc.Last())
	snap := svc.Refresh(context.Background())
	require.NotNil(t, snap)
	assert.Same(t, snap, svc.Last())

	assert.Equal(t, at(0, 0), cal.from, "query starts at the start of today")
	assert.Equal(t, at(0, 0).AddDate(0, 0, 3), cal.to)

	assert.Equal(t, []string{"2 PM", "3 PM", "4 PM", "5 PM", "6 PM", "7 PM"}, snap.Hours)
	require.Len(t, snap.Agenda["2 PM"], 1)
	assert.Equal(t, model.PositionedEvent{StartMinute: 0, Duration: 25, Title: "Standup", Color: "#9D90FF"}, snap.Agenda["2 PM"][0])
	require.Len(t, snap.Agenda["3 PM"], 1)
	assert.Equal(t, 30, snap.Agenda["3 PM"][0].StartMinute)
	require.Len(t, snap.AllDay, 1)
	assert.Equal(t, "Holiday", snap.AllDay[0].Title)

	require.Len(t, snap.Days, 3)
	assert.Contains(t, snap.Days[1].Buckets, "7 PM")

	require.Len(t, snap.Upcoming, 2)
	assert.Equal(t, "Standup", snap.Upcoming[0].Event.Title)
	assert.Equal(t, "Holiday", snap.Upcoming[1].Event.Title)

	assert.Equal(t, "Clouds", snap.Weather.Description)
	assert.Equal(t, -1, snap.Device.Percent)
	assert.Equal(t, "2025_02_14", snap.DailyLog.Today.Key)
	assert.Len(t, snap.DailyLog.Completion, 4)
	assert.Empty(t, snap.CalendarError)
}

func TestRefreshTracksLastUpdated(t *testing.T) {
	svc, now := newTestService(t, &fakeCalendar{})
	ctx := context.Background()

	first := svc.Refresh(ctx)
	assert.True(t, first.LastUpdated.Equal(at(14, 10)), "first run reports now")

	*now = at(14, 25)
	second := svc.Refresh(ctx)
	assert.True(t, second.LastUpdated.Equal(at(14, 10)))
	assert.True(t, second.GeneratedAt.Equal(at(14, 25)))

	*now = at(14, 40)
	assert.True(t, svc.Refresh(ctx).LastUpdated.Equal(at(14, 25)))
}

func TestRefreshDegradesOnCalendarError(t *testing.T) {
	svc, _ := newTestService(t, &fakeCalendar{err: errors.New("all feeds down")})

	snap := svc.Refresh(context.Background())
	assert.Equal(t, "all feeds down", snap.CalendarError)
	assert.Empty(t, snap.Agenda)
	assert.NotNil(t, snap.Agenda)
	assert.NotNil(t, snap.AllDay)
	assert.Len(t, snap.Hours, 6)
	assert.Equal(t, "Clouds", snap.Weather.Description, "other sections still refresh")
}

func TestRefreshWithoutWeather(t *testing.T) {
	svc, _ := newTestService(t, &fakeCalendar{})
	svc.deps.Weather = nil
	assert.Equal(t, "Unknown", svc.Refresh(context.Background()).Weather.Description)
}

func TestRefreshConcurrent(t *testing.T) {
	svc, _ := newTestService(t, &fakeCalendar{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Refresh(context.Background())
			_ = svc.Last()
		}()
	}
	wg.Wait()
	assert.NotNil(t, svc.Last())
}

func TestCalendarNames(t *testing.T) {
	svc, _ := newTestService(t, &fakeCalendar{})
	assert.Equal(t, []string{"Work", "Home"}, svc.calendarNames())

	svc.cfg.Agenda.Calendars = []string{"Work"}
	assert.Equal(t, []string{"Work"}, svc.calendarNames())
}
