package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	apiPkg "github.com/contrabot-io/contrabot/internal/api"
	"github.com/contrabot-io/contrabot/internal/booking"
	"github.com/contrabot-io/contrabot/internal/browser"
	"github.com/contrabot-io/contrabot/internal/config"
	"github.com/contrabot-io/contrabot/internal/connector"
	slackconn "github.com/contrabot-io/contrabot/internal/connector/slack"
	"github.com/contrabot-io/contrabot/internal/connector/telegram"
	"github.com/contrabot-io/contrabot/internal/dialogue"
	"github.com/contrabot-io/contrabot/internal/directory"
	"github.com/contrabot-io/contrabot/internal/dispatch"
	"github.com/contrabot-io/contrabot/internal/history"
	"github.com/contrabot-io/contrabot/internal/logbuf"
	"github.com/contrabot-io/contrabot/internal/scheduler"
	"github.com/contrabot-io/contrabot/internal/userstore"
)

// historyRetention is how long booking-attempt records are kept before the
// nightly prune removes them.
const historyRetention = 90 * 24 * time.Hour

func main() {
	configPath := flag.String("config", "", "Path to config JSON file")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))

	// Load config (2 modes: file, env)
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("contrabotd starting", "data_dir", cfg.Bot.DataDir)

	if err := os.MkdirAll(cfg.Bot.DataDir, 0o755); err != nil {
		logger.Error("failed to create data dir", "path", cfg.Bot.DataDir, "error", err)
		os.Exit(1)
	}

	// 1. Stores
	users := userstore.NewStore(cfg.UsersPath())
	states := dialogue.NewStore()

	hist, err := history.Open(cfg.HistoryPath())
	if err != nil {
		logger.Error("failed to open history store", "path", cfg.HistoryPath(), "error", err)
		os.Exit(1)
	}
	defer hist.Close()

	// 2. Booking pipeline
	cities := &directory.Client{
		Endpoint: cfg.Booking.CitiesURL,
		Logger:   logger.With("component", "directory"),
	}
	waiter := &booking.Waiter{
		Interval: time.Duration(cfg.Booking.PollSeconds) * time.Second,
		Logger:   logger.With("component", "waiter"),
	}
	exec := &booking.Executor{
		Browser: &browser.SeleniumFactory{
			URL:    cfg.Booking.WebDriverURL,
			Logger: logger.With("component", "browser"),
		},
		Headless:  cfg.Booking.Headless,
		StepDelay: time.Duration(cfg.Booking.StepDelaySeconds) * time.Second,
		Logger:    logger.With("component", "executor"),
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Dispatcher
	disp := dispatch.New(cities, users, states, exec, waiter, hist, logger.With("component", "dispatch"))
	disp.RegisterSender("api", &logSender{logger: logger.With("component", "api-sender")})
	go safeGo(logger, "dispatcher", func() { disp.Start(ctx) })

	// 4. Connectors
	handler := disp.HandleInbound

	if cfg.Connectors.Telegram != nil {
		tgConn, err := telegram.New(
			telegram.Config{
				Token:     cfg.Connectors.Telegram.Token,
				AllowFrom: cfg.Connectors.Telegram.AllowFrom,
			},
			handler,
			logger.With("connector", "telegram"),
		)
		if err != nil {
			logger.Error("failed to init telegram connector", "error", err)
			os.Exit(1)
		}
		disp.RegisterSender(tgConn.Name(), tgConn)
		go safeGo(logger, "telegram", func() { tgConn.Start(ctx) })
		logger.Info("telegram connector started")
	}

	if cfg.Connectors.Slack != nil {
		slConn, err := slackconn.New(
			slackconn.Config{
				BotToken: cfg.Connectors.Slack.BotToken,
				AppToken: cfg.Connectors.Slack.AppToken,
				Channels: cfg.Connectors.Slack.Channels,
			},
			handler,
			logger.With("connector", "slack"),
		)
		if err != nil {
			logger.Error("failed to init slack connector", "error", err)
			os.Exit(1)
		}
		disp.RegisterSender(slConn.Name(), slConn)
		go safeGo(logger, "slack", func() { slConn.Start(ctx) })
		logger.Info("slack connector started")
	}

	// 5. Maintenance scheduler
	sched := scheduler.New(logger.With("component", "scheduler"))
	if err := sched.AddHistoryPrune(hist, historyRetention); err != nil {
		logger.Error("failed to register history prune job", "error", err)
		os.Exit(1)
	}
	go safeGo(logger, "scheduler", func() { sched.Start(ctx) })

	// 6. API server
	apiSvc := &botServiceAdapter{disp: disp, cities: cities, hist: hist}
	apiSrv := apiPkg.NewServer(apiSvc, apiPkg.Config{
		Host: cfg.API.Host,
		Port: cfg.API.Port,
		Key:  cfg.API.Key,
	}, logger.With("component", "api"), logBuf)

	go safeGo(logger, "api-server", func() { apiSrv.Start(ctx) })
	logger.Info("api server started", "port", cfg.API.Port)

	// 7. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()
	logger.Info("contrabotd stopped")
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}

// logSender handles replies for bookings injected over the REST API, which
// has no chat to deliver them to.
type logSender struct {
	logger *slog.Logger
}

func (s *logSender) Send(_ context.Context, msg connector.OutboundMessage) error {
	s.logger.Info("api booking update", "identity", msg.ChatID, "message", msg.Content)
	return nil
}

// botServiceAdapter implements api.BotService on top of the dispatcher.
type botServiceAdapter struct {
	disp   *dispatch.Dispatcher
	cities *directory.Client
	hist   *history.Store
}

func (b *botServiceAdapter) Cities(ctx context.Context) []directory.City {
	return b.cities.List(ctx)
}

func (b *botServiceAdapter) Pending() []dispatch.PendingInfo {
	return b.disp.Pending()
}

func (b *botServiceAdapter) CancelPending(identity string) bool {
	return b.disp.CancelPending(identity)
}

func (b *botServiceAdapter) ListAttempts(identity string, limit int) ([]history.Attempt, error) {
	return b.hist.ListRecent(identity, limit)
}

// InjectBooking feeds a booking request into the identity's command queue as
// if it arrived over chat. Progress lands in the attempt history.
func (b *botServiceAdapter) InjectBooking(ctx context.Context, identity string, fromID, toID uint32, travelDate string) error {
	return b.disp.HandleInbound(ctx, connector.InboundMessage{
		Channel:  "api",
		SenderID: identity,
		ChatID:   identity,
		Content:  fmt.Sprintf("/bookticket %d %d %s", fromID, toID, travelDate),
	})
}
