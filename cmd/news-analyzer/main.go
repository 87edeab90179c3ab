// News Analyzer service: polls the Finnhub general news feed, scores each
// item for market significance and persists the results. Significant
// inserts are announced to the Signal Extractor through Postgres NOTIFY.
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

	"wavesens/internal/analyzer"
	"wavesens/internal/config"
	"wavesens/internal/db"
	"wavesens/internal/llm"
	"wavesens/internal/market"
	"wavesens/internal/metrics"
	"wavesens/internal/newsfeed"
)

const serviceName = "news_analyzer"

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
	if cfg.News.FinnhubAPIKey == "" {
		log.Fatal().Msg("FINNHUB_API_KEY is required")
	}
	if cfg.LLM.APIKey == "" {
		log.Fatal().Msg("OPENROUTER_API_KEY is required")
	}

	database, err := db.New(ctx, cfg.Database.URL, cfg.Database.PoolSize)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	// mirror WARN-and-above into service_logs for the dashboard
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

	feed := newsfeed.New(cfg.News.FinnhubAPIKey, cfg.Market.RequestTimeoutDuration())
	completer := llm.NewClient(llm.ClientConfig{
		Endpoint:    cfg.LLM.Endpoint,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout(),
	})

	svc := analyzer.New(feed, completer, database, clock, cfg.News, logger)

	logger.Info().
		Int("significance_threshold", cfg.News.SignificanceThreshold).
		Int("check_interval_seconds", cfg.News.CheckIntervalSeconds).
		Msg("News analyzer starting")

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("News analyzer stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("News analyzer shutdown complete")
}
