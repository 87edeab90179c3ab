// Experiment Manager service: admits trading signals into virtual
// positions, monitors open positions against the exit rules and records
// portfolio snapshots. All money movement is serialized through the
// snapshot ledger.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"wavesens/internal/alerts"
	"wavesens/internal/config"
	"wavesens/internal/db"
	"wavesens/internal/manager"
	"wavesens/internal/market"
	"wavesens/internal/metrics"
	"wavesens/internal/portfolio"
)

const serviceName = "experiment_manager"

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.LoadSecretsFromVault(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to load secrets from Vault")
	}

	database, err := db.New(ctx, cfg.Database.URL, cfg.Database.PoolSize)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	log.Logger = log.Logger.Hook(db.NewServiceLogHook(database, serviceName))
	logger := config.NewServiceLogger(serviceName, uuid.NewString())

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Port, logger)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Stop(shutdownCtx)
		}()
	}

	clock, err := market.NewClock(cfg.Market.HolidayCalendarPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load market calendar")
	}

	alerters := []alerts.Alerter{alerts.NewLogAlerter()}
	if cfg.Alerts.TelegramToken != "" {
		tg, err := alerts.NewTelegramAlerter(cfg.Alerts.TelegramToken, cfg.Alerts.TelegramChatID)
		if err != nil {
			log.Warn().Err(err).Msg("Telegram alerter unavailable, continuing without it")
		} else {
			alerters = append(alerters, tg)
		}
	}
	alertMgr := alerts.NewManager(alerters...)

	data := market.NewData(cfg, logger)
	engine := portfolio.NewEngine(database, data, clock, alertMgr, cfg.Portfolio, logger)
	svc := manager.New(database, engine, cfg.Portfolio, logger)

	logger.Info().
		Float64("initial_capital", cfg.Portfolio.InitialCapital).
		Int("max_concurrent_positions", cfg.Portfolio.MaxConcurrentPositions).
		Float64("daily_loss_limit_percent", cfg.Portfolio.DailyLossLimitPercent).
		Msg("Experiment manager starting")

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("Experiment manager stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("Experiment manager shutdown complete")
}
