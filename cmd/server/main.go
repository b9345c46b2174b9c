package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/coinwatch/internal/alerts"
	"github.com/aristath/coinwatch/internal/clients/okx"
	"github.com/aristath/coinwatch/internal/config"
	"github.com/aristath/coinwatch/internal/database"
	"github.com/aristath/coinwatch/internal/engine"
	"github.com/aristath/coinwatch/internal/history"
	"github.com/aristath/coinwatch/internal/ledger"
	"github.com/aristath/coinwatch/internal/notify"
	"github.com/aristath/coinwatch/internal/scheduler"
	"github.com/aristath/coinwatch/internal/server"
	"github.com/aristath/coinwatch/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting Coinwatch")

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Repositories
	positionRepo := ledger.NewPositionRepository(db.Conn(), log)
	tradeRepo := ledger.NewTradeRepository(db.Conn(), log)
	baselineRepo := ledger.NewBaselineRepository(db.Conn(), log)
	historyRepo := history.NewRepository(db.Conn(), log)
	markRepo := alerts.NewMarkRepository(db.Conn(), log)

	// OKX REST client
	okxClient := okx.NewClient(okx.Config{
		BaseURL:       cfg.OKXBaseURL,
		APIKey:        cfg.OKXAPIKey,
		APISecret:     cfg.OKXAPISecret,
		Passphrase:    cfg.OKXPassphrase,
		QuoteCurrency: cfg.QuoteCurrency,
		Log:           log,
	})

	// Notifier. When Telegram is not configured events are only logged.
	var notifier notify.Sink = notify.NewLogSink(log)
	if cfg.TelegramEnabled() {
		notifier = notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, log)
		log.Info().Msg("Telegram notifications enabled")
	} else {
		log.Warn().Msg("Telegram not configured, trade events will only be logged")
	}

	// Reconcile engine
	eng := engine.New(engine.Config{
		Source:        okxClient,
		Differ:        engine.NewDiffer(cfg.QuoteCurrency, cfg.DustThresholdUSD),
		Classifier:    engine.NewClassifier(positionRepo, tradeRepo, cfg.DustThresholdUSD, log),
		Baseline:      baselineRepo,
		Notifier:      notifier,
		QuoteCurrency: cfg.QuoteCurrency,
		Log:           log,
	})

	// Portfolio history
	historySvc := history.NewService(okxClient, historyRepo, cfg.QuoteCurrency, log)

	// Scheduler
	sched := scheduler.New(log)
	if err := registerJobs(sched, cfg, eng, okxClient, positionRepo, historySvc, markRepo, notifier, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}
	sched.Start()
	defer sched.Stop()

	// Account push stream: balance changes trigger a reconcile without
	// waiting for the next timer tick. Dropped triggers are fine, the
	// timer covers them.
	stream := okx.NewAccountStream(okx.StreamConfig{
		URL:        cfg.OKXWSURL,
		APIKey:     cfg.OKXAPIKey,
		APISecret:  cfg.OKXAPISecret,
		Passphrase: cfg.OKXPassphrase,
		OnUpdate: func() {
			if _, err := eng.TryRunCycle(context.Background(), "push"); err != nil {
				log.Error().Err(err).Msg("Push-triggered cycle failed")
			}
		},
		Log: log,
	})
	if err := stream.Start(); err != nil {
		log.Warn().Err(err).Msg("Account stream unavailable, falling back to timer only")
	}
	defer stream.Stop()

	// Initialize HTTP server
	srv := server.New(server.Config{
		Port:      cfg.Port,
		Log:       log,
		Engine:    eng,
		Positions: positionRepo,
		Trades:    tradeRepo,
		History:   historySvc,
		Stream:    stream,
		DevMode:   cfg.DevMode,
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

func registerJobs(
	sched *scheduler.Scheduler,
	cfg *config.Config,
	eng *engine.Engine,
	okxClient *okx.Client,
	positions *ledger.PositionRepository,
	historySvc *history.Service,
	marks *alerts.MarkRepository,
	alerter alerts.Alerter,
	log zerolog.Logger,
) error {
	reconcileSchedule := fmt.Sprintf("@every %ds", int(cfg.CycleInterval.Seconds()))
	if err := sched.AddJob(reconcileSchedule, scheduler.NewReconcileJob(eng, log)); err != nil {
		return fmt.Errorf("reconcile job: %w", err)
	}

	if err := sched.AddJob("@every 5m", scheduler.NewWatermarkJob(okxClient, positions, cfg.QuoteCurrency, log)); err != nil {
		return fmt.Errorf("watermark job: %w", err)
	}

	monitor := alerts.NewMonitor(alerts.MonitorConfig{
		Source:          okxClient,
		Marks:           marks,
		Alerter:         alerter,
		QuoteCurrency:   cfg.QuoteCurrency,
		GlobalThreshold: cfg.AlertGlobalThreshold,
		Log:             log,
	})
	if err := sched.AddJob("@every 5m", monitor); err != nil {
		return fmt.Errorf("movement monitor: %w", err)
	}

	// Portfolio value samples: top of every hour, plus one daily at midnight UTC
	if err := sched.AddJob("0 0 * * * *", history.NewRecorderJob(historySvc, history.BucketHourly)); err != nil {
		return fmt.Errorf("hourly history job: %w", err)
	}
	if err := sched.AddJob("0 0 0 * * *", history.NewRecorderJob(historySvc, history.BucketDaily)); err != nil {
		return fmt.Errorf("daily history job: %w", err)
	}

	return nil
}
