package model

import (
	"encoding/json"
	"time"
)

// AllDayBucket is the bucket key all-day events are filed under.
const AllDayBucket = "all-day"

// CalendarEvent is a single concrete event instance as delivered by a
// calendar source (after recurrence expansion and timezone normalization).
type CalendarEvent struct {
	SourceID string // calendar source ID
	UID      string // iCalendar UID, empty for non-ICS sources

	Title string

	// Start / End are in the configured display timezone.
	Start time.Time
	End   time.Time

	AllDay bool

	// Calendar is the calendar name used by calendar filters.
	Calendar string
	// Color is the calendar colour, e.g. "#5BD2F0".
	Color string
}

// PositionedEvent is an event annotated with its minute offset inside its
// hour bucket and its displayed duration. All-day entries carry only title
// and colour.
type PositionedEvent struct {
	StartMinute int    `json:"startMinute"`
	Duration    int    `json:"duration"`
	Title       string `json:"title"`
	Color       string `json:"color"`
	AllDay      bool   `json:"allDay,omitempty"`
}

type allDayJSON struct {
	Title  string `json:"title"`
	Color  string `json:"color"`
	AllDay bool   `json:"allDay"`
}

// MarshalJSON drops the timing fields for all-day entries.
func (p PositionedEvent) MarshalJSON() ([]byte, error) {
	if p.AllDay {
		return json.Marshal(allDayJSON{Title: p.Title, Color: p.Color, AllDay: true})
	}
	type plain PositionedEvent
	return json.Marshal(plain(p))
}

// Buckets maps an hour label (e.g. "2 PM") or AllDayBucket to the events
// filed under it, in input order.
type Buckets map[string][]PositionedEvent

// Day is one calendar day of a multi-day agenda.
type Day struct {
	Date    time.Time `json:"date"`
	Buckets Buckets   `json:"buckets"`
}
