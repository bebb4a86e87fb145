package agenda

import (
	"time"

	"homewidget/internal/model"
)

// BucketizeDays builds one bucket map per calendar day for days days starting
// with the day containing now.
//
// Each day gets the events overlapping it. Unlike Bucketize there is no
// in-progress reassignment: every timed event sits under its own start hour.
// Hour labels repeat across days, which is why each day keeps its own map.
func BucketizeDays(events []model.CalendarEvent, now time.Time, days int, opts Options) []model.Day {
	loc := opts.Location
	if loc == nil {
		loc = now.Location()
	}
	n := now.In(loc)
	today := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)

	out := make([]model.Day, 0, max(days, 0))
	for i := 0; i < days; i++ {
		dayStart := today.AddDate(0, 0, i)
		dayEnd := dayStart.AddDate(0, 0, 1)

		buckets := model.Buckets{}
		for _, ev := range events {
			if !opts.passes(ev) || !overlaps(ev, dayStart, dayEnd) {
				continue
			}
			if ev.AllDay {
				buckets[model.AllDayBucket] = append(buckets[model.AllDayBucket], allDayEntry(ev))
				continue
			}
			key := opts.HourKey(ev.Start)
			buckets[key] = append(buckets[key], timedEntry(ev, opts))
		}

		out = append(out, model.Day{Date: dayStart, Buckets: buckets})
	}
	return out
}

// overlaps reports whether ev intersects [from, to). Zero-length events count
// when they start inside the range.
func overlaps(ev model.CalendarEvent, from, to time.Time) bool {
	if !ev.Start.Before(to) {
		return false
	}
	if ev.End.After(from) {
		return true
	}
	return ev.End.Equal(ev.Start) && !ev.Start.Before(from)
}
