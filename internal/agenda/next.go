package agenda

import (
	"time"

	"homewidget/internal/model"
)

// Upcoming is the next event of one calendar, nil when there is none.
type Upcoming struct {
	Calendar string               `json:"calendar"`
	Event    *model.CalendarEvent `json:"event"`
}

// NextEvents returns, for each calendar in order, the earliest-starting
// event that has not ended by now and starts before until. Events are
// expected sorted by start; ties keep input order.
func NextEvents(events []model.CalendarEvent, now, until time.Time, calendars []string) []Upcoming {
	out := make([]Upcoming, 0, len(calendars))
	for _, name := range calendars {
		u := Upcoming{Calendar: name}
		for i := range events {
			ev := events[i]
			if ev.Calendar != name || !ev.End.After(now) || !ev.Start.Before(until) {
				continue
			}
			if u.Event == nil || ev.Start.Before(u.Event.Start) {
				u.Event = &ev
			}
		}
		out = append(out, u)
	}
	return out
}
