package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homewidget/internal/config"
	appLog "homewidget/internal/log"
	"homewidget/internal/termview"
)

func TestBuildServiceWithoutCalendars(t *testing.T) {
	conf := config.DefaultConfig()
	conf.CacheDir = t.TempDir()
	conf.Timezone = "UTC"

	svc, err := buildService(context.Background(), conf)
	require.NoError(t, err)

	snap := svc.Refresh(context.Background())
	require.NotNil(t, snap)
	assert.Len(t, snap.Hours, conf.Agenda.NumHours)
	assert.Equal(t, "Unknown", snap.Weather.Description, "no api key configured")
	assert.Empty(t, snap.CalendarError)

	var buf bytes.Buffer
	termview.Render(&buf, snap)
	assert.Contains(t, buf.String(), "Weather: Unknown")
}

func TestCronLogger(t *testing.T) {
	var buf bytes.Buffer
	appLog.SetOutput(&buf)
	appLog.SetLevel(appLog.LevelDebug)
	t.Cleanup(func() {
		appLog.SetOutput(os.Stderr)
		appLog.SetLevel(appLog.LevelInfo)
	})

	cronLogger{}.Info("schedule", "entry", 1)
	cronLogger{}.Error(errors.New("boom"), "job panicked")

	out := buf.String()
	assert.Contains(t, out, "[DEBUG] cron: schedule entry=1")
	assert.Contains(t, out, "[ERROR] cron: job panicked")
	assert.Contains(t, out, "boom")
}

func TestGuardedRefreshSkipsOverlappingRuns(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	var runs atomic.Int32

	job := guardedRefresh(func() {
		runs.Add(1)
		started <- struct{}{}
		<-release
	})

	done := make(chan struct{})
	go func() {
		job.Run()
		close(done)
	}()
	<-started

	// Returns at once while the first run still holds the guard.
	job.Run()
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	<-done

	job.Run()
	assert.Equal(t, int32(2), runs.Load())
}
