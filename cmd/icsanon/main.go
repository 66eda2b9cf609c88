package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"icsanon/internal/anon"
	"icsanon/internal/config"
	"icsanon/internal/ics"
	appLog "icsanon/internal/log"
	"icsanon/internal/metrics"
	"icsanon/internal/model"
	"icsanon/internal/pipeline"
	"icsanon/internal/publish"
	"icsanon/internal/web"
)

const (
	exitFailure  = 1
	exitNoSource = 2
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFailure)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	var verbosity int

	return &cli.App{
		Name:      "icsanon",
		Usage:     "Fetch an iCalendar feed and publish an anonymized availability calendar.",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", EnvVars: []string{"ICSANON_CONFIG"}, Usage: "YAML config file; flags and environment override it"},
			&cli.StringFlag{Name: "source", EnvVars: []string{"SOURCE_CAL_URL"}, Usage: "Source iCal URL"},
			&cli.StringFlag{Name: "output", EnvVars: []string{"OUTPUT_CAL_PATH"}, Value: config.DefaultOutput, Usage: "Output .ics path"},
			&cli.StringFlag{Name: "summary", Value: config.DefaultReplacementText, Usage: "Replacement SUMMARY text"},
			&cli.StringFlag{Name: "description", Value: config.DefaultReplacementText, Usage: "Replacement DESCRIPTION text"},
			&cli.Float64Flag{Name: "timeout", Value: config.DefaultTimeout.Seconds(), Usage: "HTTP timeout in seconds"},
			&cli.IntFlag{Name: "retries", Value: config.DefaultRetries, Usage: "HTTP retries for transient errors"},
			&cli.Float64Flag{Name: "backoff", Value: config.DefaultBackoff, Usage: "Exponential backoff factor between retries, in seconds"},
			&cli.BoolFlag{Name: "keep-location", Usage: "Keep LOCATION instead of clearing it"},
			&cli.BoolFlag{Name: "merge-adjacent-stays", Usage: "Merge adjacent/overlapping stays into single all-day events"},
			&cli.BoolFlag{Name: "recurrence-aware-prune", Usage: "Keep old recurring events whose rule still produces occurrences"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Count: &verbosity, Usage: "Increase verbosity (can repeat)"},
			&cli.StringFlag{Name: "log-format", EnvVars: []string{"LOG_FORMAT"}, Usage: "text or json"},
			&cli.StringFlag{Name: "cache-dir", EnvVars: []string{"ICSANON_CACHE_DIR"}, Usage: "Directory for ETag/Last-Modified revalidation"},
			&cli.StringFlag{Name: "schedule", EnvVars: []string{"ICSANON_SCHEDULE"}, Usage: "Cron expression; run repeatedly instead of once"},
			&cli.StringFlag{Name: "metrics-file", EnvVars: []string{"ICSANON_METRICS_FILE"}, Usage: "Write Prometheus text metrics here after each run"},
			&cli.StringFlag{Name: "publish-url", EnvVars: []string{"PUBLISH_URL"}, Usage: "WebDAV URL to upload the result to"},
			&cli.StringFlag{Name: "publish-username", EnvVars: []string{"PUBLISH_USERNAME"}},
			&cli.StringFlag{Name: "publish-password", EnvVars: []string{"PUBLISH_PASSWORD"}},
			&cli.StringFlag{Name: "listen", EnvVars: []string{"ICSANON_LISTEN"}, Usage: "With --schedule, serve the latest output over HTTP on this address"},
			&cli.StringFlag{Name: "http-username", EnvVars: []string{"ICSANON_HTTP_USERNAME"}},
			&cli.StringFlag{Name: "http-password", EnvVars: []string{"ICSANON_HTTP_PASSWORD"}},
		},
		Action: func(c *cli.Context) error {
			cfg, err := buildConfig(c, verbosity)
			if err != nil {
				return cli.Exit(fmt.Sprintf("Error processing calendar: %v", err), exitFailure)
			}
			if err := cfg.Validate(); err != nil {
				if errors.Is(err, config.ErrNoSource) {
					return cli.Exit("Error: Source URL is required. Provide --source or set SOURCE_CAL_URL.", exitNoSource)
				}
				return cli.Exit(fmt.Sprintf("Error processing calendar: %v", err), exitFailure)
			}

			logger := newLogger(cfg, stderr)
			logger.Info().
				Str("source", appLog.RedactURL(cfg.Source)).
				Str("output", cfg.Output).
				Dur("timeout", cfg.Timeout).
				Int("retries", cfg.Retries).
				Float64("backoff", cfg.Backoff).
				Bool("keep_location", cfg.KeepLocation).
				Bool("merge_stays", cfg.MergeStays).
				Str("schedule", cfg.Schedule).
				Msg("effective config")

			var recorder *metrics.Recorder
			if cfg.MetricsFile != "" || cfg.Listen != "" {
				recorder = metrics.NewRecorder()
			}

			if cfg.Schedule != "" {
				return watch(c.Context, cfg, recorder, logger)
			}

			if _, err := runOnce(c.Context, cfg, recorder, logger); err != nil {
				logger.Error().Err(err).Msg("failed to process calendar")
				return cli.Exit(fmt.Sprintf("Error processing calendar: %v", err), exitFailure)
			}
			fmt.Fprintf(stdout, "Calendar anonymized successfully to %s\n", cfg.Output)
			return nil
		},
	}
}

// buildConfig layers defaults, the optional YAML file, then any flag or
// environment variable that was explicitly set.
func buildConfig(c *cli.Context, verbosity int) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		cfg = loaded
	}

	if c.IsSet("source") {
		cfg.Source = c.String("source")
	}
	if c.IsSet("output") {
		cfg.Output = c.String("output")
	}
	if c.IsSet("summary") {
		cfg.Summary = c.String("summary")
	}
	if c.IsSet("description") {
		cfg.Description = c.String("description")
	}
	if c.IsSet("timeout") {
		cfg.Timeout = time.Duration(c.Float64("timeout") * float64(time.Second))
	}
	if c.IsSet("retries") {
		cfg.Retries = c.Int("retries")
	}
	if c.IsSet("backoff") {
		cfg.Backoff = c.Float64("backoff")
	}
	if c.IsSet("keep-location") {
		cfg.KeepLocation = c.Bool("keep-location")
	}
	if c.IsSet("merge-adjacent-stays") {
		cfg.MergeStays = c.Bool("merge-adjacent-stays")
	}
	if c.IsSet("recurrence-aware-prune") {
		cfg.RecurrenceAwarePrune = c.Bool("recurrence-aware-prune")
	}
	if verbosity > 0 {
		cfg.Verbosity = verbosity
	}
	if c.IsSet("log-format") {
		cfg.LogFormat = c.String("log-format")
	}
	if c.IsSet("cache-dir") {
		cfg.CacheDir = c.String("cache-dir")
	}
	if c.IsSet("schedule") {
		cfg.Schedule = c.String("schedule")
	}
	if c.IsSet("metrics-file") {
		cfg.MetricsFile = c.String("metrics-file")
	}
	if c.IsSet("publish-url") {
		if cfg.Publish == nil {
			cfg.Publish = &config.PublishConfig{}
		}
		cfg.Publish.URL = c.String("publish-url")
	}
	if cfg.Publish != nil {
		if c.IsSet("publish-username") {
			cfg.Publish.Username = c.String("publish-username")
		}
		if c.IsSet("publish-password") {
			cfg.Publish.Password = c.String("publish-password")
		}
	}
	if c.IsSet("listen") {
		cfg.Listen = c.String("listen")
	}
	if c.IsSet("http-username") || c.IsSet("http-password") {
		if cfg.BasicAuth == nil {
			cfg.BasicAuth = &config.BasicAuthConfig{}
		}
		if c.IsSet("http-username") {
			cfg.BasicAuth.Username = c.String("http-username")
		}
		if c.IsSet("http-password") {
			cfg.BasicAuth.Password = c.String("http-password")
		}
	}

	cfg.Normalize()
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	level := appLog.LevelFromVerbosity(cfg.Verbosity)
	if cfg.LogLevel != "" {
		level = appLog.ParseLevel(cfg.LogLevel)
	}
	if cfg.LogFormat == "json" {
		return appLog.NewJSON(w, level)
	}
	return appLog.New(w, level)
}

// runOnce builds a fresh pipeline tagged with its own run id and executes it.
func runOnce(ctx context.Context, cfg *config.Config, recorder *metrics.Recorder, base zerolog.Logger) (model.Report, error) {
	logger := base.With().Str("run_id", uuid.NewString()).Logger()

	fetcher := ics.NewFetcher(ics.FetchOptions{
		Timeout:  cfg.Timeout,
		Retries:  cfg.Retries,
		Backoff:  cfg.Backoff,
		CacheDir: cfg.CacheDir,
	}, logger)

	transformer := anon.New(anon.Options{
		Summary:              cfg.Summary,
		Description:          cfg.Description,
		KeepLocation:         cfg.KeepLocation,
		MergeStays:           cfg.MergeStays,
		RecurrenceAwarePrune: cfg.RecurrenceAwarePrune,
	}, logger)

	var publisher pipeline.Publisher
	if cfg.Publish != nil {
		p, err := publish.NewWebDAV(publish.Target{
			URL:      cfg.Publish.URL,
			Username: cfg.Publish.Username,
			Password: cfg.Publish.Password,
			Timeout:  cfg.Timeout,
		}, logger)
		if err != nil {
			return model.Report{}, err
		}
		publisher = p
	}

	runner := pipeline.New(pipeline.Options{
		Source:      cfg.Source,
		Output:      cfg.Output,
		MetricsFile: cfg.MetricsFile,
	}, fetcher, transformer, publisher, recorder, logger)

	return runner.Run(ctx)
}

// watch runs immediately and then on cfg.Schedule until SIGINT/SIGTERM.
// A run that is still going when the next tick fires causes that tick to be
// skipped. With cfg.Listen set, the output is also served over HTTP.
func watch(parent context.Context, cfg *config.Config, recorder *metrics.Recorder, logger zerolog.Logger) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("signal received, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	var srv *web.Server
	srvErr := make(chan error, 1)
	if cfg.Listen != "" {
		opts := web.Options{Listen: cfg.Listen, CalendarPath: cfg.Output}
		if recorder != nil {
			opts.Gatherer = recorder.Registry()
		}
		if cfg.BasicAuth != nil {
			opts.Username = cfg.BasicAuth.Username
			opts.Password = cfg.BasicAuth.Password
		}
		srv = web.NewServer(opts, logger)
		go func() { srvErr <- srv.Run(ctx) }()
	}

	job := func() {
		rep, err := runOnce(ctx, cfg, recorder, logger)
		if srv != nil {
			srv.RecordRun(rep, err, time.Now())
		}
		if err != nil {
			logger.Error().Err(err).Msg("scheduled run failed")
			return
		}
		logger.Info().Str("output", cfg.Output).Msg("calendar anonymized")
	}

	sched := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := sched.AddFunc(cfg.Schedule, job); err != nil {
		return cli.Exit(fmt.Sprintf("Error processing calendar: invalid schedule: %v", err), exitFailure)
	}

	job()
	sched.Start()
	logger.Info().Str("schedule", cfg.Schedule).Msg("watching")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-srvErr:
		logger.Error().Err(runErr).Msg("HTTP server stopped")
		cancel()
	}
	<-sched.Stop().Done()
	if srv != nil && runErr == nil {
		runErr = <-srvErr
	}
	logger.Info().Msg("icsanon exiting")
	if runErr != nil {
		return cli.Exit(fmt.Sprintf("Error processing calendar: http server: %v", runErr), exitFailure)
	}
	return nil
}
