// Package agenda groups calendar events into the hourly display buckets an
// agenda widget draws: one bucket per hour label plus an "all-day" bucket.
package agenda

import (
	"slices"
	"time"

	"homewidget/internal/model"
)

// DefaultHourLayout formats bucket keys like "6 PM".
const DefaultHourLayout = "3 PM"

// Options controls bucketing. The zero value uses DefaultHourLayout, the
// events' own locations and no calendar filter.
type Options struct {
	// Calendars, when non-empty, restricts output to events whose Calendar
	// is listed (exact match).
	Calendars []string

	// HourLayout is the Go time layout used for hour bucket keys.
	HourLayout string

	// Location is the display timezone for hour labels and minute offsets.
	// If nil, each instant's own location is used.
	Location *time.Location
}

// HourKey returns the bucket key for t.
func (o Options) HourKey(t time.Time) string {
	layout := o.HourLayout
	if layout == "" {
		layout = DefaultHourLayout
	}
	return o.local(t).Format(layout)
}

func (o Options) local(t time.Time) time.Time {
	if o.Location == nil {
		return t
	}
	return t.In(o.Location)
}

func (o Options) passes(ev model.CalendarEvent) bool {
	return len(o.Calendars) == 0 || slices.Contains(o.Calendars, ev.Calendar)
}

// Bucketize files events into hour buckets for the window (now, windowEnd].
//
// Events that start after windowEnd or have ended by now are dropped.
// An event already in progress at now is filed under now's hour with its
// duration cut to what remains; its minute offset stays the original start
// minute. Every other timed event goes under its own start hour. Surviving
// all-day events go to model.AllDayBucket with title and colour only.
//
// Events are appended in input order. The result is never nil.
func Bucketize(events []model.CalendarEvent, now, windowEnd time.Time, opts Options) model.Buckets {
	out := model.Buckets{}

	for _, ev := range events {
		if !opts.passes(ev) {
			continue
		}

		if ev.Start.After(windowEnd) || !ev.End.After(now) {
			continue
		}

		if ev.AllDay {
			out[model.AllDayBucket] = append(out[model.AllDayBucket], allDayEntry(ev))
			continue
		}

		if ev.Start.Before(now) {
			key := opts.HourKey(now)
			out[key] = append(out[key], model.PositionedEvent{
				StartMinute: opts.local(ev.Start).Minute(),
				Duration:    nonNegative(wholeMinutes(ev.End.Sub(now)) - wholeMinutes(now.Sub(ev.Start))),
				Title:       ev.Title,
				Color:       ev.Color,
			})
			continue
		}

		key := opts.HourKey(ev.Start)
		out[key] = append(out[key], timedEntry(ev, opts))
	}

	return out
}

// HourWindow aligns now to the top of its hour in loc and returns that
// instant together with the end of an hours-long window.
func HourWindow(now time.Time, hours int, loc *time.Location) (start, end time.Time) {
	if loc == nil {
		loc = now.Location()
	}
	n := now.In(loc)
	start = time.Date(n.Year(), n.Month(), n.Day(), n.Hour(), 0, 0, 0, loc)
	return start, start.Add(time.Duration(hours) * time.Hour)
}

// Hours returns the bucket keys for the hours hours starting at start, in
// display order.
func Hours(start time.Time, hours int, opts Options) []string {
	labels := make([]string, 0, max(hours, 0))
	for i := 0; i < hours; i++ {
		labels = append(labels, opts.HourKey(start.Add(time.Duration(i)*time.Hour)))
	}
	return labels
}

func allDayEntry(ev model.CalendarEvent) model.PositionedEvent {
	return model.PositionedEvent{
		Title:  ev.Title,
		Color:  ev.Color,
		AllDay: true,
	}
}

func timedEntry(ev model.CalendarEvent, opts Options) model.PositionedEvent {
	return model.PositionedEvent{
		StartMinute: opts.local(ev.Start).Minute(),
		Duration:    nonNegative(wholeMinutes(ev.End.Sub(ev.Start))),
		Title:       ev.Title,
		Color:       ev.Color,
	}
}

// wholeMinutes floors d to whole minutes.
func wholeMinutes(d time.Duration) int {
	m := d / time.Minute
	if d < 0 && d%time.Minute != 0 {
		m--
	}
	return int(m)
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
