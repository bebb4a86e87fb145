package ics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	appLog "homewidget/internal/log"
	"homewidget/internal/model"
)

// Feed merges a set of ICS subscriptions into one event list.
type Feed struct {
	fetcher *Fetcher
	sources []Source
	loc     *time.Location

	// MaxOccurrencesPerEvent is passed through to ExpandOccurrences.
	MaxOccurrencesPerEvent int
}

// NewFeed creates a Feed. Events are returned in loc (time.Local if nil).
func NewFeed(fetcher *Fetcher, sources []Source, loc *time.Location) *Feed {
	if loc == nil {
		loc = time.Local
	}
	return &Feed{fetcher: fetcher, sources: sources, loc: loc}
}

// Events fetches every source, parses and expands them, and returns the
// events overlapping [from, to] sorted by start. A source that fails to
// fetch or parse is skipped; an error is returned only if every source
// failed.
func (f *Feed) Events(ctx context.Context, from, to time.Time) ([]model.CalendarEvent, error) {
	if len(f.sources) == 0 {
		return []model.CalendarEvent{}, nil
	}

	results, fetchErrs := f.fetcher.FetchAll(ctx, f.sources)
	if len(results) == 0 {
		return nil, errors.Join(fetchErrs...)
	}

	failed := fetchErrs
	parsedSources := 0
	var parsed []ParsedEvent
	for _, res := range results {
		evs, err := ParseICS(res.Source, res.Body)
		if err != nil {
			failed = append(failed, fmt.Errorf("ics: %s: %w", res.Source.ID, err))
			continue
		}
		parsedSources++
		parsed = append(parsed, evs...)
	}
	if parsedSources == 0 {
		return nil, errors.Join(failed...)
	}

	expanded, err := ExpandOccurrences(parsed, ExpandConfig{
		DisplayLocation:        f.loc,
		RangeStart:             from,
		RangeEnd:               to,
		MaxOccurrencesPerEvent: f.MaxOccurrencesPerEvent,
	})
	if err != nil {
		return nil, err
	}

	events := expanded.Events
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})

	appLog.Info("calendar events loaded",
		"sources", parsedSources,
		"failed", len(failed),
		"events", len(events),
	)
	return events, nil
}
