// Package dailylog stores user-entered daily log fields, one cache entry
// per day.
package dailylog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"homewidget/internal/cache"
	"homewidget/internal/config"
	appLog "homewidget/internal/log"
)

// Namespace is the cache namespace daily entries live in.
const Namespace = "daily-log"

// ErrUnknownField is returned by Update for a label not in the configured
// fields.
var ErrUnknownField = errors.New("dailylog: unknown field")

// Field is one logged value.
type Field struct {
	Label    string `json:"label"`
	Category string `json:"category"`
	Value    string `json:"value"`
}

// Done reports whether the field was filled in.
func (f Field) Done() bool { return f.Value != "" }

// Entry is one day of the log.
type Entry struct {
	Key    string    `json:"key"`
	Date   time.Time `json:"date"`
	Fields []Field   `json:"fields"`
}

// Completion counts on how many days a field was filled in.
type Completion struct {
	Label    string `json:"label"`
	Category string `json:"category"`
	Done     int    `json:"done"`
	Days     int    `json:"days"`
}

// Percent returns the completion rate rounded down, 0 when there are no days.
func (c Completion) Percent() int {
	if c.Days == 0 {
		return 0
	}
	return c.Done * 100 / c.Days
}

// Log reads and writes daily entries.
type Log struct {
	cache    *cache.Cache
	fields   []config.DailyLogField
	rollover int
	loc      *time.Location
}

// New creates a Log over c. Dates are computed in loc (time.Local if nil).
func New(c *cache.Cache, cfg config.DailyLogConfig, loc *time.Location) *Log {
	if loc == nil {
		loc = time.Local
	}
	return &Log{cache: c, fields: cfg.Fields, rollover: cfg.RolloverHour, loc: loc}
}

// Day returns midnight of the log day now belongs to. Before the rollover
// hour that is the previous calendar day.
func (l *Log) Day(now time.Time) time.Time {
	now = now.In(l.loc)
	if now.Hour() < l.rollover {
		now = now.AddDate(0, 0, -1)
	}
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, l.loc)
}

// DateKey formats the cache key of a day as YYYY_MM_DD. The month is
// zero-based to stay compatible with existing logs.
func DateKey(day time.Time) string {
	return fmt.Sprintf("%d_%02d_%02d", day.Year(), int(day.Month())-1, day.Day())
}

// Today returns the current day's entry, initializing and storing empty
// fields on a miss.
func (l *Log) Today(ctx context.Context, now time.Time) Entry {
	day := l.Day(now)
	if e, ok := l.read(ctx, day); ok {
		return e
	}

	e := Entry{Key: DateKey(day), Date: day, Fields: l.emptyFields()}
	appLog.Info("dailylog: new entry", "key", e.Key)
	if err := l.cache.Write(ctx, e.Key, e.Fields); err != nil {
		appLog.Error("dailylog: failed to store new entry", err, "key", e.Key)
	}
	return e
}

// History returns up to days entries, newest first. Today is always
// present; the walk back stops at the first missing day.
func (l *Log) History(ctx context.Context, now time.Time, days int) []Entry {
	out := []Entry{l.Today(ctx, now)}
	day := out[0].Date
	for i := 1; i < days; i++ {
		day = day.AddDate(0, 0, -1)
		e, ok := l.read(ctx, day)
		if !ok {
			appLog.Debug("dailylog: history ends", "key", DateKey(day), "days", len(out))
			break
		}
		out = append(out, e)
	}
	return out
}

// Update sets one field of today's entry.
func (l *Log) Update(ctx context.Context, now time.Time, label, value string) (Entry, error) {
	return l.Submit(ctx, now, map[string]string{label: value})
}

// Submit sets several fields of today's entry at once. Unknown labels fail
// the whole call without writing.
func (l *Log) Submit(ctx context.Context, now time.Time, values map[string]string) (Entry, error) {
	e := l.Today(ctx, now)

	index := make(map[string]int, len(e.Fields))
	for i, f := range e.Fields {
		index[f.Label] = i
	}
	for label := range values {
		if _, ok := index[label]; !ok {
			return e, fmt.Errorf("%w: %q", ErrUnknownField, label)
		}
	}
	for label, v := range values {
		e.Fields[index[label]].Value = v
	}

	if err := l.cache.Write(ctx, e.Key, e.Fields); err != nil {
		return e, fmt.Errorf("dailylog: write %s: %w", e.Key, err)
	}
	return e, nil
}

// Aggregate counts completions per configured field over entries. Fields
// missing from a day's entry count as not done.
func (l *Log) Aggregate(entries []Entry) []Completion {
	out := make([]Completion, 0, len(l.fields))
	for _, f := range l.fields {
		c := Completion{Label: f.Label, Category: f.Category, Days: len(entries)}
		for _, e := range entries {
			for _, got := range e.Fields {
				if got.Label == f.Label && got.Done() {
					c.Done++
					break
				}
			}
		}
		out = append(out, c)
	}
	return out
}

func (l *Log) read(ctx context.Context, day time.Time) (Entry, bool) {
	var fields []Field
	key := DateKey(day)
	if !l.cache.ReadInto(ctx, key, 0, &fields) {
		return Entry{}, false
	}
	return Entry{Key: key, Date: day, Fields: l.withConfiguredFields(fields)}, true
}

// withConfiguredFields appends configured fields the stored entry predates.
func (l *Log) withConfiguredFields(stored []Field) []Field {
	have := make(map[string]bool, len(stored))
	for _, f := range stored {
		have[f.Label] = true
	}
	for _, f := range l.fields {
		if !have[f.Label] {
			stored = append(stored, Field{Label: f.Label, Category: f.Category})
		}
	}
	return stored
}

func (l *Log) emptyFields() []Field {
	out := make([]Field, 0, len(l.fields))
	for _, f := range l.fields {
		out = append(out, Field{Label: f.Label, Category: f.Category})
	}
	return out
}
