// Package widget assembles everything the widgets show into one snapshot.
package widget

import (
	"context"
	"sync"
	"time"

	"homewidget/internal/agenda"
	"homewidget/internal/cache"
	"homewidget/internal/config"
	"homewidget/internal/dailylog"
	"homewidget/internal/device"
	appLog "homewidget/internal/log"
	"homewidget/internal/model"
	"homewidget/internal/weather"
)

// LastUpdatedKey holds the epoch milliseconds of the previous refresh.
const LastUpdatedKey = "last_updated"

// CalendarSource returns the events overlapping [from, to] sorted by start.
type CalendarSource interface {
	Events(ctx context.Context, from, to time.Time) ([]model.CalendarEvent, error)
}

// WeatherSource returns the current weather; failures are reported as an
// unknown summary.
type WeatherSource interface {
	Current(ctx context.Context) weather.Summary
}

// DailyLogView is the daily log part of a snapshot.
type DailyLogView struct {
	Today      dailylog.Entry        `json:"today"`
	History    []dailylog.Entry      `json:"history"`
	Completion []dailylog.Completion `json:"completion"`
}

// Snapshot is one refresh worth of widget data.
type Snapshot struct {
	// Agenda holds the hour buckets of the hourly widget, Hours its labels in
	// display order.
	Agenda   model.Buckets           `json:"agenda"`
	Hours    []string                `json:"hours"`
	Days     []model.Day             `json:"days"`
	AllDay   []model.PositionedEvent `json:"allDay"`
	Upcoming []agenda.Upcoming       `json:"upcoming"`

	Weather  weather.Summary `json:"weather"`
	DailyLog DailyLogView    `json:"dailyLog"`
	Device   device.Stats    `json:"device"`

	// LastUpdated is when the previous refresh ran.
	LastUpdated time.Time `json:"lastUpdated"`
	GeneratedAt time.Time `json:"generatedAt"`

	CalendarError string `json:"calendarError,omitempty"`
}

// Deps are the collaborators of a Service. Weather and Device may be nil.
type Deps struct {
	Calendar CalendarSource
	Weather  WeatherSource
	DailyLog *dailylog.Log
	Device   device.Reader
	// State holds LastUpdatedKey.
	State *cache.Cache
}

// Service refreshes and holds the latest Snapshot.
type Service struct {
	cfg  *config.Config
	deps Deps
	loc  *time.Location
	opts agenda.Options
	now  func() time.Time

	refreshMu sync.Mutex

	mu   sync.RWMutex
	last *Snapshot
}

// NewService creates a Service.
func NewService(cfg *config.Config, deps Deps) *Service {
	loc := cfg.Location()
	if deps.Device == nil {
		deps.Device = device.NewStaticReader()
	}
	return &Service{
		cfg:  cfg,
		deps: deps,
		loc:  loc,
		opts: agenda.Options{
			Calendars:  cfg.Agenda.Calendars,
			HourLayout: cfg.Agenda.HourFormat,
			Location:   loc,
		},
		now: time.Now,
	}
}

// Location is the display timezone.
func (s *Service) Location() *time.Location { return s.loc }

// Now returns the service clock in the display timezone.
func (s *Service) Now() time.Time { return s.now().In(s.loc) }

// DailyLog returns the daily log, nil if none is configured.
func (s *Service) DailyLog() *dailylog.Log { return s.deps.DailyLog }

// Last returns the most recent snapshot, nil before the first refresh.
func (s *Service) Last() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Refresh builds a new snapshot and makes it the latest. Concurrent calls
// are serialized. Source failures degrade the snapshot instead of failing.
func (s *Service) Refresh(ctx context.Context) *Snapshot {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	started := time.Now()
	now := s.Now()
	snap := &Snapshot{GeneratedAt: now}

	s.fillAgenda(ctx, now, snap)

	if s.deps.Weather != nil {
		snap.Weather = s.deps.Weather.Current(ctx)
	} else {
		snap.Weather = weather.Unknown(weather.Location{}, s.cfg.Weather.Units)
	}

	if s.deps.DailyLog != nil {
		history := s.deps.DailyLog.History(ctx, now, s.cfg.DailyLog.NumDays)
		snap.DailyLog = DailyLogView{
			Today:      history[0],
			History:    history,
			Completion: s.deps.DailyLog.Aggregate(history),
		}
	}

	stats, err := s.deps.Device.Read(ctx)
	if err != nil {
		appLog.Warn("widget: device read failed", "err", err)
		stats = device.Stats{Percent: -1, Source: "error"}
	}
	snap.Device = stats

	snap.LastUpdated = s.lastUpdated(ctx, now)

	s.mu.Lock()
	s.last = snap
	s.mu.Unlock()

	appLog.Info("widget: refreshed",
		"hours", len(snap.Hours),
		"buckets", len(snap.Agenda),
		"all_day", len(snap.AllDay),
		"weather", snap.Weather.Description,
		"took", time.Since(started).Round(time.Millisecond),
	)
	return snap
}

func (s *Service) fillAgenda(ctx context.Context, now time.Time, snap *Snapshot) {
	numHours, numDays := s.cfg.Agenda.NumHours, s.cfg.Agenda.NumDays

	windowStart, windowEnd := agenda.HourWindow(now, numHours, s.loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	tomorrowEnd := dayStart.AddDate(0, 0, 2)

	to := windowEnd
	for _, t := range []time.Time{dayStart.AddDate(0, 0, numDays), tomorrowEnd} {
		if t.After(to) {
			to = t
		}
	}

	events, err := s.deps.Calendar.Events(ctx, dayStart, to)
	if err != nil {
		appLog.Error("widget: calendar events unavailable", err)
		snap.CalendarError = err.Error()
		events = nil
	}

	snap.Agenda = agenda.Bucketize(events, now, windowEnd, s.opts)
	snap.Hours = agenda.Hours(windowStart, numHours, s.opts)
	snap.Days = agenda.BucketizeDays(events, now, numDays, s.opts)
	snap.AllDay = snap.Agenda[model.AllDayBucket]
	if snap.AllDay == nil {
		snap.AllDay = []model.PositionedEvent{}
	}
	snap.Upcoming = agenda.NextEvents(events, now, tomorrowEnd, s.calendarNames())
}

// calendarNames lists the calendars shown in the upcoming section: the
// agenda filter when set, else every configured calendar.
func (s *Service) calendarNames() []string {
	if len(s.cfg.Agenda.Calendars) > 0 {
		return s.cfg.Agenda.Calendars
	}
	names := make([]string, 0, len(s.cfg.Calendars))
	for _, c := range s.cfg.Calendars {
		name := c.Name
		if name == "" {
			name = c.Key()
		}
		names = append(names, name)
	}
	return names
}

// lastUpdated returns the previous refresh time and records now. A first
// run reports now.
func (s *Service) lastUpdated(ctx context.Context, now time.Time) time.Time {
	if s.deps.State == nil {
		return now
	}

	prev := now
	var ms int64
	if s.deps.State.ReadInto(ctx, LastUpdatedKey, 0, &ms) && ms > 0 {
		prev = time.UnixMilli(ms).In(s.loc)
	}
	if err := s.deps.State.Write(ctx, LastUpdatedKey, now.UnixMilli()); err != nil {
		appLog.Warn("widget: failed to record last update", "err", err)
	}
	return prev
}
