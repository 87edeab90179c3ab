// Package analyzer implements the news ingest service: fetch the feed,
// dedupe, score significance with the LLM and persist. Persisting a
// significant item fires the new_significant_news notification through a
// database trigger, so the analyzer never talks to the extractor directly.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"wavesens/internal/config"
	"wavesens/internal/db"
	"wavesens/internal/llm"
	"wavesens/internal/market"
	"wavesens/internal/metrics"
	"wavesens/internal/newsfeed"
)

// Poll cadence by market state. Fresh news only matters while somebody can
// trade on it, so closed sessions poll slowly.
const (
	closedInterval  = 30 * time.Minute
	weekendInterval = 60 * time.Minute
	statsInterval   = time.Hour
)

// Store is the slice of the database the analyzer needs
type Store interface {
	NewsExists(ctx context.Context, newsID string) (bool, error)
	InsertNewsItem(ctx context.Context, item *db.NewsItem) error
}

// Completer is the LLM call the analyzer makes
type Completer interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Analyzer runs the ingest loop
type Analyzer struct {
	feed  newsfeed.Feed
	llm   Completer
	store Store
	clock *market.Clock
	cfg   config.NewsConfig
	log   zerolog.Logger

	stats cycleStats
}

type cycleStats struct {
	checked     int64
	inserted    int64
	significant int64
	duplicates  int64
	errors      int64
}

// New creates an Analyzer
func New(feed newsfeed.Feed, completer Completer, store Store, clock *market.Clock, cfg config.NewsConfig, log zerolog.Logger) *Analyzer {
	return &Analyzer{
		feed:  feed,
		llm:   completer,
		store: store,
		clock: clock,
		cfg:   cfg,
		log:   log,
	}
}

// Run polls the feed until the context is cancelled
func (a *Analyzer) Run(ctx context.Context) error {
	a.log.Info().
		Int("significance_threshold", a.cfg.SignificanceThreshold).
		Int("skip_older_hours", a.cfg.SkipOlderHours).
		Msg("News analyzer started")

	lastStats := time.Now()
	for {
		if err := a.runCycle(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			metrics.NewsErrors.Inc()
			a.log.Error().Err(err).Msg("News cycle failed")
		}

		if time.Since(lastStats) >= statsInterval {
			a.logStats()
			lastStats = time.Now()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(a.pollInterval()):
		}
	}
}

// pollInterval picks the sleep for the current market state
func (a *Analyzer) pollInterval() time.Duration {
	switch a.clock.StatusNow() {
	case market.StatusWeekend, market.StatusHoliday:
		return weekendInterval
	case market.StatusClosed:
		return closedInterval
	default:
		return time.Duration(a.cfg.CheckIntervalSeconds) * time.Second
	}
}

// runCycle fetches one feed batch and scores every new item
func (a *Analyzer) runCycle(ctx context.Context) error {
	items, err := a.feed.Latest(ctx)
	if err != nil {
		return fmt.Errorf("feed fetch failed: %w", err)
	}

	processed := 0
	for _, item := range items {
		if processed >= a.cfg.MaxPerCheck {
			break
		}
		metrics.NewsChecked.Inc()
		a.stats.checked++

		if age := time.Since(item.PublishedAt); age > time.Duration(a.cfg.SkipOlderHours)*time.Hour {
			continue
		}

		exists, err := a.store.NewsExists(ctx, item.ID)
		if err != nil {
			return fmt.Errorf("dedupe check failed: %w", err)
		}
		if exists {
			a.stats.duplicates++
			continue
		}

		if err := a.processItem(ctx, item); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			metrics.NewsErrors.Inc()
			a.stats.errors++
			a.log.Error().Err(err).Str("news_id", item.ID).Msg("Failed to process news item")
			continue
		}
		processed++
	}
	return nil
}

// processItem scores one item and persists it. An LLM failure still
// persists the item as insignificant so it is never re-scored.
func (a *Analyzer) processItem(ctx context.Context, item newsfeed.Item) error {
	result := a.score(ctx, item)

	record := &db.NewsItem{
		NewsID:            item.ID,
		Headline:          item.Headline,
		PublishedAt:       item.PublishedAt,
		SignificanceScore: result.Score,
		IsSignificant:     result.Significant,
	}
	if item.Summary != "" {
		record.Summary = &item.Summary
	}
	if item.URL != "" {
		record.URL = &item.URL
	}
	if result.Reasoning != "" {
		record.Reasoning = &result.Reasoning
	}

	if err := a.store.InsertNewsItem(ctx, record); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			a.stats.duplicates++
			return nil
		}
		return fmt.Errorf("insert failed: %w", err)
	}

	metrics.NewsProcessed.Inc()
	a.stats.inserted++
	if record.IsSignificant {
		metrics.NewsSignificant.Inc()
		a.stats.significant++
		a.log.Info().
			Int64("id", record.ID).
			Int("score", record.SignificanceScore).
			Str("headline", record.Headline).
			Msg("Significant news stored")
	}
	return nil
}

// score runs the significance call. Failures degrade to score zero with
// the error text as reasoning.
func (a *Analyzer) score(ctx context.Context, item newsfeed.Item) *llm.SignificanceResult {
	system, user := llm.SignificancePrompts(item.Headline, item.Summary)

	start := time.Now()
	content, err := a.llm.CompleteWithSystem(ctx, system, user)
	metrics.LLMLatency.Observe(time.Since(start).Seconds())
	if err == nil {
		var result *llm.SignificanceResult
		result, err = llm.ParseSignificance(content)
		if err == nil {
			metrics.LLMRequests.WithLabelValues("significance", "ok").Inc()
			result.Significant = result.Score >= a.cfg.SignificanceThreshold
			return result
		}
	}

	metrics.LLMRequests.WithLabelValues("significance", "error").Inc()
	a.log.Warn().Err(err).Str("news_id", item.ID).Msg("Significance scoring failed, storing as insignificant")
	return &llm.SignificanceResult{
		Score:       0,
		Significant: false,
		Reasoning:   fmt.Sprintf("analysis failed: %v", err),
	}
}

func (a *Analyzer) logStats() {
	a.log.Info().
		Int64("checked", a.stats.checked).
		Int64("inserted", a.stats.inserted).
		Int64("significant", a.stats.significant).
		Int64("duplicates", a.stats.duplicates).
		Int64("errors", a.stats.errors).
		Msg("Hourly ingest stats")
	a.stats = cycleStats{}
}
