package ics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var family = Source{ID: "family", Name: "Family", Color: "#9D90FF"}

func utc(day, hour, minute int) time.Time {
	return time.Date(2025, 3, day, hour, minute, 0, 0, time.UTC)
}

func TestExpandSingleEvent(t *testing.T) {
	events := []ParsedEvent{
		{Source: family, UID: "a", Summary: "Dentist", Start: utc(14, 17, 0), End: utc(14, 18, 0)},
		{Source: family, UID: "b", Summary: "Next week", Start: utc(25, 9, 0), End: utc(25, 10, 0)},
	}

	res, err := ExpandOccurrences(events, ExpandConfig{
		DisplayLocation: time.UTC,
		RangeStart:      utc(14, 0, 0),
		RangeEnd:        utc(15, 0, 0),
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)

	got := res.Events[0]
	assert.Equal(t, "Dentist", got.Title)
	assert.Equal(t, "Family", got.Calendar)
	assert.Equal(t, "#9D90FF", got.Color)
	assert.Equal(t, "family", got.SourceID)
	assert.Equal(t, "a", got.UID)
}

func TestExpandRecurringWithExDateAndOverride(t *testing.T) {
	moved := utc(15, 14, 0)
	events := []ParsedEvent{
		{
			Source: family, UID: "standup", Summary: "Standup",
			Start: utc(14, 14, 0), End: utc(14, 14, 15),
			RawRRule: "FREQ=DAILY;COUNT=5",
			ExDates:  []time.Time{utc(16, 14, 0)},
		},
		{
			Source: family, UID: "standup", Summary: "Standup (moved)",
			Start: utc(15, 16, 0), End: utc(15, 16, 30),
			Recurrence: &moved, IsOverride: true,
		},
	}

	res, err := ExpandOccurrences(events, ExpandConfig{
		DisplayLocation: time.UTC,
		RangeStart:      utc(14, 0, 0),
		RangeEnd:        utc(31, 0, 0),
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 4)

	var starts []time.Time
	for _, ev := range res.Events {
		starts = append(starts, ev.Start)
	}
	assert.Equal(t, []time.Time{utc(14, 14, 0), utc(15, 16, 0), utc(17, 14, 0), utc(18, 14, 0)}, starts)
	assert.Equal(t, "Standup (moved)", res.Events[1].Title)
	assert.Equal(t, 30*time.Minute, res.Events[1].End.Sub(res.Events[1].Start))
	assert.Empty(t, res.TruncatedUIDs)
}

func TestExpandIncludesOccurrenceInProgressAtRangeStart(t *testing.T) {
	events := []ParsedEvent{{
		Source: family, UID: "shift", Summary: "Shift",
		Start: utc(10, 8, 0), End: utc(10, 16, 0),
		RawRRule: "FREQ=DAILY",
	}}

	res, err := ExpandOccurrences(events, ExpandConfig{
		DisplayLocation: time.UTC,
		RangeStart:      utc(14, 14, 10),
		RangeEnd:        utc(14, 20, 0),
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, utc(14, 8, 0), res.Events[0].Start)
}

func TestExpandCapsOccurrences(t *testing.T) {
	events := []ParsedEvent{{
		Source: family, UID: "tick", Summary: "Tick",
		Start: utc(14, 0, 0), End: utc(14, 0, 1),
		RawRRule: "FREQ=MINUTELY",
	}}

	res, err := ExpandOccurrences(events, ExpandConfig{
		DisplayLocation:        time.UTC,
		RangeStart:             utc(14, 0, 0),
		RangeEnd:               utc(14, 30, 0),
		MaxOccurrencesPerEvent: 10,
	})
	require.NoError(t, err)
	assert.Len(t, res.Events, 10)
	assert.Equal(t, []string{"tick"}, res.TruncatedUIDs)
}

func TestExpandAllDayRecurrence(t *testing.T) {
	events := []ParsedEvent{{
		Source: family, UID: "bins", Summary: "Bins", AllDay: true,
		Start: utc(10, 0, 0), End: utc(11, 0, 0),
		RawRRule: "FREQ=WEEKLY;BYDAY=FR",
	}}

	res, err := ExpandOccurrences(events, ExpandConfig{
		DisplayLocation: time.UTC,
		RangeStart:      utc(14, 0, 0),
		RangeEnd:        utc(21, 23, 59),
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 2)
	for _, ev := range res.Events {
		assert.True(t, ev.AllDay)
		assert.Equal(t, time.Friday, ev.Start.Weekday())
		assert.Equal(t, 24*time.Hour, ev.End.Sub(ev.Start))
	}
}

func TestExpandSkipsInvalidRRule(t *testing.T) {
	events := []ParsedEvent{{
		Source: family, UID: "bad", Start: utc(14, 9, 0), End: utc(14, 10, 0),
		RawRRule: "FREQ=SOMETIMES",
	}}
	res, err := ExpandOccurrences(events, ExpandConfig{RangeStart: utc(14, 0, 0), RangeEnd: utc(15, 0, 0)})
	require.NoError(t, err)
	assert.Empty(t, res.Events)
}

func TestExpandRejectsInvertedRange(t *testing.T) {
	_, err := ExpandOccurrences(nil, ExpandConfig{RangeStart: utc(15, 0, 0), RangeEnd: utc(14, 0, 0)})
	assert.Error(t, err)
}
