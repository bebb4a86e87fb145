package agenda

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homewidget/internal/model"
)

func TestBucketizeDays(t *testing.T) {
	now := at(15, 20)
	tomorrow := func(h, m int) time.Time { return at(h, m).AddDate(0, 0, 1) }

	events := []model.CalendarEvent{
		timed("Morning run", at(7, 0), at(7, 45)),    // earlier today, still shown
		timed("Design review", at(16, 0), at(17, 0)), // later today
		timed("Standup", tomorrow(10, 0), tomorrow(10, 15)),
		timed("Other standup", at(10, 0).AddDate(0, 0, 2), at(10, 15).AddDate(0, 0, 2)),
		{Title: "Holiday", Start: tomorrow(0, 0), End: tomorrow(0, 0).AddDate(0, 0, 1), AllDay: true, Color: "#FF6663"},
		timed("Overnight", at(23, 0), tomorrow(1, 0)),
	}

	days := BucketizeDays(events, now, 2, Options{Location: utc})
	require.Len(t, days, 2)

	assert.Equal(t, at(0, 0), days[0].Date)
	assert.Equal(t, at(0, 0).AddDate(0, 0, 1), days[1].Date)

	today := days[0].Buckets
	assert.Equal(t, "Morning run", today["7 AM"][0].Title)
	assert.Equal(t, 45, today["7 AM"][0].Duration)
	assert.Equal(t, "Design review", today["4 PM"][0].Title)
	assert.Equal(t, "Overnight", today["11 PM"][0].Title)
	assert.NotContains(t, today, model.AllDayBucket)

	next := days[1].Buckets
	assert.Equal(t, "Standup", next["10 AM"][0].Title)
	assert.Len(t, next["10 AM"], 1, "events beyond the requested days are not included")
	assert.Equal(t, "Holiday", next[model.AllDayBucket][0].Title)
	// An event running over midnight shows on both days under its start hour.
	assert.Equal(t, "Overnight", next["11 PM"][0].Title)
	assert.Equal(t, 120, next["11 PM"][0].Duration)
}

func TestBucketizeDaysCalendarFilterAndEmpty(t *testing.T) {
	events := []model.CalendarEvent{
		{Title: "Deploy", Start: at(9, 0), End: at(10, 0), Calendar: "Work"},
		{Title: "Dentist", Start: at(11, 0), End: at(12, 0), Calendar: "Personal"},
	}

	days := BucketizeDays(events, at(8, 0), 1, Options{Calendars: []string{"Personal"}, Location: utc})
	require.Len(t, days, 1)
	assert.Len(t, days[0].Buckets, 1)
	assert.Equal(t, "Dentist", days[0].Buckets["11 AM"][0].Title)

	days = BucketizeDays(nil, at(8, 0), 3, Options{Location: utc})
	require.Len(t, days, 3)
	for _, d := range days {
		assert.NotNil(t, d.Buckets)
		assert.Empty(t, d.Buckets)
	}

	assert.Empty(t, BucketizeDays(events, at(8, 0), 0, Options{}))
}

func TestOverlaps(t *testing.T) {
	from, to := at(0, 0), at(0, 0).AddDate(0, 0, 1)

	assert.True(t, overlaps(timed("in", at(9, 0), at(10, 0)), from, to))
	assert.True(t, overlaps(timed("zero at start", from, from), from, to))
	assert.False(t, overlaps(timed("ends at start", from.Add(-time.Hour), from), from, to))
	assert.False(t, overlaps(timed("starts at end", to, to.Add(time.Hour)), from, to))
}
