package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"regexp"

	appLog "homewidget/internal/log"
	"homewidget/internal/model"
	"homewidget/internal/widget"
)

//go:embed templates/agenda.html
var templatesFS embed.FS

var agendaTemplate = template.Must(template.New("agenda.html").Funcs(template.FuncMap{
	"safeColor": safeColor,
}).ParseFS(templatesFS, "templates/agenda.html"))

// rowHeight is the pixel height of one hour row; one minute is
// rowHeight/60 pixels.
const rowHeight = 60

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{3,8}$`)

// safeColor passes through hex colours and replaces anything else with
// white, so feed-provided colours cannot inject CSS.
func safeColor(c string) template.CSS {
	if hexColor.MatchString(c) {
		return template.CSS(c)
	}
	return template.CSS("#FFFFFF")
}

type pageEvent struct {
	Title  string
	Color  string
	Top    int
	Height int
}

type pageRow struct {
	Label  string
	Events []pageEvent
}

type pageData struct {
	Width, Height int
	RowHeight     int
	Weather       string
	Updated       string
	AllDay        []model.PositionedEvent
	Rows          []pageRow
	Error         bool
}

func buildPage(snap *widget.Snapshot, width, height int) pageData {
	data := pageData{
		Width:     width,
		Height:    height,
		RowHeight: rowHeight,
		Weather:   snap.Weather.Description,
		Updated:   snap.GeneratedAt.Format("3:04 PM"),
		AllDay:    snap.AllDay,
		Error:     snap.CalendarError != "",
	}
	if snap.Weather.Known {
		data.Weather = fmt.Sprintf("%d° %s (%d°-%d°)", snap.Weather.Temperature, snap.Weather.Description, snap.Weather.High, snap.Weather.Low)
	}

	for _, label := range snap.Hours {
		row := pageRow{Label: label}
		for _, ev := range snap.Agenda[label] {
			row.Events = append(row.Events, pageEvent{
				Title:  ev.Title,
				Color:  ev.Color,
				Top:    ev.StartMinute * rowHeight / 60,
				Height: max(ev.Duration*rowHeight/60, 14),
			})
		}
		data.Rows = append(data.Rows, row)
	}
	return data
}

// handleAgendaPage renders the hourly agenda as a fixed-size HTML page. The
// root element carries data-ready="true" for the capture step.
func (s *Server) handleAgendaPage(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}

	data := buildPage(s.snapshot(r.Context()), s.cfg.Capture.Width, s.cfg.Capture.Height)

	var buf bytes.Buffer
	if err := agendaTemplate.Execute(&buf, data); err != nil {
		appLog.Error("agenda page render failed", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
