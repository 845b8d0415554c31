// Command talbot runs the group-chat bot: it records every message in
// a 24-hour rolling SQLite log, posts a daily digest per conversation,
// answers ad-hoc /summary requests, and serves a handful of command
// wrappers.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/basket/talbot/internal/channels"
	"github.com/basket/talbot/internal/commands"
	"github.com/basket/talbot/internal/config"
	"github.com/basket/talbot/internal/digest"
	otelPkg "github.com/basket/talbot/internal/otel"
	"github.com/basket/talbot/internal/persistence"
	"github.com/basket/talbot/internal/retention"
	"github.com/basket/talbot/internal/summarize"
	"github.com/basket/talbot/internal/telemetry"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.3-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

  %s                 Start the bot (long-polls Telegram until interrupted)

FLAGS:
`, os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  TALBOT_HOME          Data directory (default: ~/.talbot)
  TELEGRAM_TOKEN       Required: Telegram bot token
  ANTHROPIC_API_KEY    API key for the default summarization provider
  OMDB_API_KEY         API key for /imdb
`)
}

func main() {
	loadDotEnv(".env")

	quietLogs := flag.Bool("quiet", !isatty.IsTerminal(os.Stdout.Fd()),
		"log to file only, keep stdout clean")
	flag.Usage = printUsage
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fatalStartup(nil, "E_CONFIG_LOAD", err)
	}

	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, *quietLogs)
	if err != nil {
		fatalStartup(nil, "E_LOGGER_INIT", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)
	logger.Info("startup phase", "phase", "config_loaded", "home", cfg.HomeDir)

	// OpenTelemetry is a no-op when disabled.
	otelProvider, err := otelPkg.Init(ctx, otelPkg.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Exporter:    cfg.Telemetry.Exporter,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		SampleRate:  cfg.Telemetry.SampleRate,
	})
	if err != nil {
		fatalStartup(logger, "E_OTEL_INIT", err)
	}
	defer otelProvider.Shutdown(context.Background())

	metrics, err := otelPkg.NewMetrics(otelProvider.Meter)
	if err != nil {
		fatalStartup(logger, "E_OTEL_INIT", err)
	}

	store, err := persistence.Open(filepath.Join(cfg.HomeDir, "talbot.db"))
	if err != nil {
		fatalStartup(logger, "E_STORE_OPEN", err)
	}
	defer store.Close()
	logger.Info("startup phase", "phase", "store_opened")

	engine := summarize.NewGenkit(ctx, summarize.ProviderConfig{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
	},
		summarize.WithLogger(logger),
		summarize.WithTracer(otelProvider.Tracer),
		summarize.WithMaxInputChars(cfg.LLM.MaxInputChars),
		summarize.WithMetrics(metrics),
	)

	sweeper := retention.NewSweeper(retention.Config{
		Store:    store,
		Logger:   logger,
		Interval: time.Duration(cfg.Retention.SweepIntervalMinutes) * time.Minute,
		Horizon:  time.Duration(cfg.Retention.Hours) * time.Hour,
		Metrics:  metrics,
	})
	sweeper.Start(ctx)
	defer sweeper.Stop()

	cmds := commands.New(commands.Config{
		OMDbAPIKey:         cfg.Commands.OMDbAPIKey,
		ExchangeRateAPIKey: os.Getenv("EXCHANGERATE_API_KEY"),
		Logger:             logger,
	})

	var channel *channels.TelegramChannel

	digests, err := digest.NewScheduler(digest.Config{
		Store:      store,
		Summarizer: engine,
		Deliverer:  deliverer{get: func() *channels.TelegramChannel { return channel }},
		Logger:     logger,
		Metrics:    metrics,
		Tracer:     otelProvider.Tracer,
		CronExpr:   cfg.Digest.Cron,
		Windows:    cfg.Digest.Windows,

		SuppressEmpty: cfg.Digest.SuppressEmpty,
	})
	if err != nil {
		fatalStartup(logger, "E_DIGEST_INIT", err)
	}

	channel = channels.NewTelegramChannel(channels.TelegramConfig{
		Token:      cfg.Telegram.Token,
		AllowedIDs: cfg.Telegram.AllowedIDs,
		Store:      store,
		Digests:    digests,
		Commands:   cmds,
		Logger:     logger,
		Metrics:    metrics,
	})

	// Start only after channel is assigned: goroutine creation gives the
	// broadcast loop a happens-before edge on the write the deliverer
	// closure reads.
	digests.Start(ctx)
	defer digests.Stop()

	// Hot-reload reload-safe settings when config.yaml changes.
	watcher := config.NewWatcher(cfg.HomeDir, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher unavailable", "error", err)
	} else {
		go func() {
			for range watcher.Events() {
				reloaded, err := config.Load()
				if err != nil {
					logger.Error("config reload failed", "error", err)
					continue
				}
				digests.SetSuppressEmpty(reloaded.Digest.SuppressEmpty)
				logger.Info("config reloaded",
					"suppress_empty_digests", reloaded.Digest.SuppressEmpty)
			}
		}()
	}

	logger.Info("startup phase", "phase", "channel_starting")
	if err := channel.Start(ctx); err != nil {
		fatalStartup(logger, "E_CHANNEL_START", err)
	}

	logger.Info("shutdown complete")
}

// deliverer defers the channel lookup so the digest scheduler can be
// constructed before the channel that delivers for it.
type deliverer struct {
	get func() *channels.TelegramChannel
}

func (d deliverer) SendToChat(ctx context.Context, chatID int64, text string) error {
	ch := d.get()
	if ch == nil {
		return fmt.Errorf("telegram channel not ready")
	}
	return ch.SendToChat(ctx, chatID, text)
}

func (d deliverer) SendToUser(ctx context.Context, userID int64, text string) error {
	ch := d.get()
	if ch == nil {
		return fmt.Errorf("telegram channel not ready")
	}
	return ch.SendToUser(ctx, userID, text)
}

// fatalStartup logs a structured fatal event with an explicit reason
// code and exits.
func fatalStartup(logger *slog.Logger, reasonCode string, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	if logger != nil {
		logger.Error("startup failure", "reason_code", reasonCode, "error", message)
	} else {
		fmt.Fprintf(
			os.Stderr,
			`{"timestamp":"%s","level":"ERROR","component":"bot","msg":"startup failure","reason_code":%q,"error":%q}`+"\n",
			time.Now().UTC().Format(time.RFC3339Nano),
			reasonCode,
			message,
		)
	}
	os.Exit(1)
}

// loadDotEnv loads KEY=VALUE pairs from the given file into the
// environment. Existing variables win.
func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.Index(line, "=")
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if key == "" || os.Getenv(key) != "" {
			continue
		}
		val = strings.Trim(val, `"'`)
		os.Setenv(key, val)
	}
}
