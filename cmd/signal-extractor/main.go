// Signal Extractor service: listens for significant news notifications,
// picks the elliott reaction wave still ahead, asks the LLM for trading
// candidates and persists validated signals. Inserted signals are announced
// to the Experiment Manager through Postgres NOTIFY.
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
	"golang.org/x/sync/errgroup"

	"wavesens/internal/config"
	"wavesens/internal/db"
	"wavesens/internal/extractor"
	"wavesens/internal/llm"
	"wavesens/internal/market"
	"wavesens/internal/metrics"
)

const serviceName = "signal_extractor"

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
	if cfg.LLM.APIKey == "" {
		log.Fatal().Msg("OPENROUTER_API_KEY is required")
	}
	if cfg.Market.FinnhubAPIKey == "" {
		log.Fatal().Msg("FINNHUB_API_KEY is required for ticker validation")
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

	completer := llm.NewClient(llm.ClientConfig{
		Endpoint:    cfg.LLM.Endpoint,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout(),
	})

	profiles := market.NewFinnhubProvider(cfg.Market.FinnhubAPIKey, cfg.Market.RequestTimeoutDuration())
	validator := market.NewValidator(profiles,
		time.Duration(cfg.Market.ValidatorTTLSeconds)*time.Second, logger)

	svc := extractor.New(database, completer, validator, clock, cfg.Signals, logger)

	listener := db.NewListener(database.URL(), db.ChannelSignificantNews, logger)
	listener.Handle = svc.HandleNotification
	listener.Sweep = svc.Sweep

	logger.Info().
		Float64("min_expected_move_percent", cfg.Signals.MinExpectedMovePercent).
		Int("min_confidence", cfg.Signals.MinConfidence).
		Int("max_signals_per_news", cfg.Signals.MaxSignalsPerNews).
		Msg("Signal extractor starting")

	g, runCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return listener.Run(runCtx) })
	g.Go(func() error { return svc.StatsLoop(runCtx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("Signal extractor stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("Signal extractor shutdown complete")
}
