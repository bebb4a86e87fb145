// Package termview prints a snapshot as the terminal widget.
package termview

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"homewidget/internal/agenda"
	"homewidget/internal/dailylog"
	"homewidget/internal/model"
	"homewidget/internal/widget"
)

var (
	dateColor     = color.New(color.FgWhite, color.Bold)
	weatherColor  = color.New(color.FgYellow)
	locationColor = color.New(color.FgHiYellow)
	eventColor    = color.New(color.FgCyan)
	deviceColor   = color.New(color.FgGreen)
	mutedColor    = color.New(color.FgHiBlack)
	errorColor    = color.New(color.FgRed)
)

const timeLayout = "3:04 PM"

// Render writes the terminal view of snap to w.
func Render(w io.Writer, snap *widget.Snapshot) {
	dateColor.Fprintf(w, "%s\n", snap.GeneratedAt.Format("Monday, January 2"))
	weatherColor.Fprintf(w, "%s\n", weatherLine(snap))
	locationColor.Fprintf(w, "@ %.4f, %.4f\n", snap.Weather.Location.Latitude, snap.Weather.Location.Longitude)

	for _, u := range snap.Upcoming {
		eventColor.Fprintf(w, "%s\n", upcomingLine(u))
	}

	deviceColor.Fprintf(w, "%s\n", deviceLine(snap))
	mutedColor.Fprintf(w, "Last updated: %s\n", snap.LastUpdated.Format(timeLayout))

	fmt.Fprintln(w)
	renderAgenda(w, snap)

	if len(snap.DailyLog.Completion) > 0 {
		fmt.Fprintln(w)
		renderCompletion(w, snap.DailyLog.Completion)
	}
}

func weatherLine(snap *widget.Snapshot) string {
	ws := snap.Weather
	if !ws.Known {
		return "Weather: " + ws.Description
	}
	return fmt.Sprintf("%d° (%d°-%d°), %s, feels like %d°, wind %d",
		ws.Temperature, ws.High, ws.Low, ws.Description, ws.FeelsLike, ws.Wind)
}

func upcomingLine(u agenda.Upcoming) string {
	if u.Event == nil {
		return fmt.Sprintf("No upcoming %s events", u.Calendar)
	}
	if u.Event.AllDay {
		return fmt.Sprintf("[all day] %s", u.Event.Title)
	}
	return fmt.Sprintf("[%s] %s", u.Event.Start.Format(timeLayout), u.Event.Title)
}

func deviceLine(snap *widget.Snapshot) string {
	d := snap.Device
	if !d.Known() {
		return "Battery: unknown"
	}
	line := fmt.Sprintf("Battery: %d%%", d.Percent)
	if d.Charging {
		line += " (charging)"
	}
	return line
}

func renderAgenda(w io.Writer, snap *widget.Snapshot) {
	if snap.CalendarError != "" {
		errorColor.Fprintf(w, "calendar unavailable: %s\n", snap.CalendarError)
	}
	if len(snap.AllDay) > 0 {
		titles := make([]string, 0, len(snap.AllDay))
		for _, ev := range snap.AllDay {
			titles = append(titles, ev.Title)
		}
		eventColor.Fprintf(w, "%-6s %s\n", "all", strings.Join(titles, ", "))
	}
	for _, label := range snap.Hours {
		events := snap.Agenda[label]
		if len(events) == 0 {
			mutedColor.Fprintf(w, "%-6s\n", label)
			continue
		}
		for i, ev := range events {
			prefix := label
			if i > 0 {
				prefix = ""
			}
			fmt.Fprintf(w, "%-6s ", prefix)
			eventColor.Fprintf(w, "%s\n", eventText(ev))
		}
	}
}

func eventText(ev model.PositionedEvent) string {
	return fmt.Sprintf(":%02d %s (%dm)", ev.StartMinute, ev.Title, ev.Duration)
}

func renderCompletion(w io.Writer, completion []dailylog.Completion) {
	for _, c := range completion {
		fmt.Fprintf(w, "%-14s %3d%% (%d/%d)\n", c.Label, c.Percent(), c.Done, c.Days)
	}
}
