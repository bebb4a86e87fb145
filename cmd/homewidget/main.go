package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"homewidget/internal/cache"
	"homewidget/internal/capture"
	"homewidget/internal/config"
	"homewidget/internal/dailylog"
	"homewidget/internal/device"
	"homewidget/internal/ics"
	appLog "homewidget/internal/log"
	"homewidget/internal/termview"
	"homewidget/internal/weather"
	"homewidget/internal/web"
	"homewidget/internal/widget"
)

// Cache namespaces under cfg.CacheDir.
const (
	calendarNamespace = "calendars"
	stateNamespace    = "terminal-widget"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	debug      bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("homewidget starting",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"cache_dir", conf.CacheDir,
		"calendars", len(conf.Calendars),
		"once", flags.once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := buildService(ctx, conf)
	if err != nil {
		appLog.Error("failed to initialize", err)
		os.Exit(1)
	}

	if flags.once {
		termview.Render(os.Stdout, svc.Refresh(ctx))
		return
	}

	if err := run(ctx, conf, svc); err != nil {
		appLog.Error("homewidget stopped with error", err)
		os.Exit(1)
	}
	appLog.Info("homewidget exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./homewidget.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Refresh once, print the terminal widget and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}

// buildService wires the cache namespaces and data sources into a widget
// service.
func buildService(ctx context.Context, conf *config.Config) (*widget.Service, error) {
	store := cache.NewFileStore(conf.CacheDir)

	calendarCache, err := cache.New(ctx, store, calendarNamespace)
	if err != nil {
		return nil, err
	}
	stateCache, err := cache.New(ctx, store, stateNamespace)
	if err != nil {
		return nil, err
	}
	logCache, err := cache.New(ctx, store, dailylog.Namespace)
	if err != nil {
		return nil, err
	}

	loc := conf.Location()
	sources := make([]ics.Source, 0, len(conf.Calendars))
	for _, c := range conf.Calendars {
		sources = append(sources, ics.Source{ID: c.Key(), URL: c.URL, Name: c.Name, Color: c.Color})
	}

	return widget.NewService(conf, widget.Deps{
		Calendar: ics.NewFeed(ics.NewFetcher(calendarCache, nil), sources, loc),
		Weather:  weather.NewClient(conf.Weather, stateCache, nil),
		DailyLog: dailylog.New(logCache, conf.DailyLog, loc),
		Device:   device.Default(ctx),
		State:    stateCache,
	}), nil
}

// run serves HTTP and refreshes on the cron schedule until ctx is done.
func run(ctx context.Context, conf *config.Config, svc *widget.Service) error {
	server := web.NewServer(conf, svc).HTTPServer()
	serveErr := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	refresh := func() {
		svc.Refresh(ctx)
		if conf.Capture.Enabled {
			captureAgenda(ctx, conf)
		}
	}

	job := guardedRefresh(refresh)
	scheduler := cron.New(
		cron.WithLocation(conf.Location()),
		cron.WithLogger(cronLogger{}),
	)
	if _, err := scheduler.AddJob(conf.RefreshCron, job); err != nil {
		_ = server.Close()
		return err
	}
	scheduler.Start()
	// Shares the guard with the scheduled runs.
	go job.Run()

	var runErr error
	select {
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	case err, ok := <-serveErr:
		if ok {
			runErr = err
		}
	}

	<-scheduler.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP server shutdown failed", err)
	}
	return runErr
}

// guardedRefresh wraps refresh so that a run starting while another is still
// in progress is skipped.
func guardedRefresh(refresh func()) cron.Job {
	return cron.NewChain(cron.SkipIfStillRunning(cronLogger{})).Then(cron.FuncJob(refresh))
}

func captureAgenda(ctx context.Context, conf *config.Config) {
	opts := capture.Options{
		URL:        capture.PageURL(conf.Listen),
		OutputPath: conf.Capture.Output,
		Width:      conf.Capture.Width,
		Height:     conf.Capture.Height,
	}
	if conf.BasicAuth != nil {
		opts.Username = conf.BasicAuth.Username
		opts.Password = conf.BasicAuth.Password
	}
	if err := capture.Agenda(ctx, opts); err != nil {
		appLog.Error("agenda capture failed", err, "url", opts.URL)
	}
}

// cronLogger routes cron's logging through the app logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
