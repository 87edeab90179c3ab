// Package extractor turns significant news into trading signals: it picks
// the reaction wave still worth trading, asks the LLM for directional
// candidates, filters them and persists the survivors transactionally.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wavesens/internal/config"
	"wavesens/internal/db"
	"wavesens/internal/llm"
	"wavesens/internal/market"
	"wavesens/internal/metrics"
)

// Skip reasons stamped on news items that produce no signals
const (
	skipMarketClosed = "market closed, no tradable session"
	skipWavesMissed  = "all reaction waves already passed"
	skipNoCandidates = "no qualifying signal candidates"
	skipLLMFailed    = "signal generation failed"
)

// Store is the slice of the database the extractor needs
type Store interface {
	GetNewsItem(ctx context.Context, id int64) (*db.NewsItem, error)
	PendingSignificantNews(ctx context.Context, limit int) ([]*db.NewsItem, error)
	MarkNewsProcessed(ctx context.Context, id int64, skipReason string) error
	InsertSignals(ctx context.Context, newsItemID int64, signals []*db.TradingSignal) error
}

// Completer is the LLM call surface the extractor uses
type Completer interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// TickerValidator checks candidate tickers against a real symbol directory
type TickerValidator interface {
	Validate(ctx context.Context, ticker string) (market.ValidationResult, error)
}

// Extractor processes one significant news item at a time
type Extractor struct {
	store     Store
	llm       Completer
	validator TickerValidator
	clock     *market.Clock
	cfg       config.SignalsConfig
	log       zerolog.Logger
	now       func() time.Time

	stats runStats
}

// runStats accumulates counters between hourly stats logs. The stats loop
// reads concurrently with the listener goroutine, hence the lock.
type runStats struct {
	mu          sync.Mutex
	processed   int64
	signals     int64
	skipped     int64
	unvalidated int64
	waves       map[int]int64
}

func (s *runStats) addProcessed() {
	s.mu.Lock()
	s.processed++
	s.mu.Unlock()
}

func (s *runStats) addSkipped() {
	s.mu.Lock()
	s.skipped++
	s.mu.Unlock()
}

func (s *runStats) addUnvalidated() {
	s.mu.Lock()
	s.unvalidated++
	s.mu.Unlock()
}

func (s *runStats) addSignals(wave int, count int) {
	s.mu.Lock()
	if s.waves == nil {
		s.waves = make(map[int]int64)
	}
	s.signals += int64(count)
	s.waves[wave] += int64(count)
	s.mu.Unlock()
}

func (s *runStats) drain() (processed, signals, skipped, unvalidated int64, waves map[int]int64) {
	s.mu.Lock()
	processed, signals, skipped, unvalidated, waves =
		s.processed, s.signals, s.skipped, s.unvalidated, s.waves
	s.processed, s.signals, s.skipped, s.unvalidated, s.waves = 0, 0, 0, 0, nil
	s.mu.Unlock()
	return
}

// New creates an Extractor
func New(store Store, completer Completer, validator TickerValidator, clock *market.Clock, cfg config.SignalsConfig, log zerolog.Logger) *Extractor {
	return &Extractor{
		store:     store,
		llm:       completer,
		validator: validator,
		clock:     clock,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// HandleNotification is the LISTEN callback: the payload is a news row id
func (e *Extractor) HandleNotification(ctx context.Context, newsItemID int64) error {
	return e.ProcessNews(ctx, newsItemID)
}

// StatsLoop logs processing counters once per hour until the context is
// cancelled. It runs alongside the notification listener.
func (e *Extractor) StatsLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.logStats()
		}
	}
}

func (e *Extractor) logStats() {
	processed, signals, skipped, unvalidated, waves := e.stats.drain()
	event := e.log.Info().
		Int64("processed", processed).
		Int64("signals", signals).
		Int64("skipped", skipped).
		Int64("unvalidated_accepted", unvalidated)
	for wave, count := range waves {
		event = event.Int64(fmt.Sprintf("wave_%d", wave), count)
	}
	event.Msg("Hourly extraction stats")
}

// Sweep drains significant news the listener missed while disconnected
func (e *Extractor) Sweep(ctx context.Context) error {
	items, err := e.store.PendingSignificantNews(ctx, e.cfg.PendingSweepLimit)
	if err != nil {
		return fmt.Errorf("pending news sweep failed: %w", err)
	}
	if len(items) > 0 {
		e.log.Info().Int("count", len(items)).Msg("Sweeping unprocessed significant news")
	}
	for _, item := range items {
		if err := e.processItem(ctx, item); err != nil {
			e.log.Error().Err(err).Int64("news_item_id", item.ID).Msg("Sweep item failed")
		}
	}
	return nil
}

// ProcessNews analyzes one news item end to end. It is idempotent: items
// already stamped processed are skipped, so re-delivered notifications are
// harmless.
func (e *Extractor) ProcessNews(ctx context.Context, newsItemID int64) error {
	item, err := e.store.GetNewsItem(ctx, newsItemID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			e.log.Warn().Int64("news_item_id", newsItemID).Msg("Notification for unknown news item")
			return nil
		}
		return err
	}
	if item.ProcessedByBlock2 {
		return nil
	}
	if !item.IsSignificant {
		return nil
	}
	return e.processItem(ctx, item)
}

func (e *Extractor) processItem(ctx context.Context, item *db.NewsItem) error {
	now := e.now()
	status := e.clock.StatusAt(now)
	log := e.log.With().Int64("news_item_id", item.ID).Logger()
	e.stats.addProcessed()

	if status == market.StatusClosed || status == market.StatusWeekend || status == market.StatusHoliday {
		log.Info().
			Str("market_status", string(status)).
			Time("next_open", e.clock.NextOpen(now)).
			Msg("Market closed, skipping news item")
		metrics.SignalsFiltered.WithLabelValues("market_closed").Inc()
		e.stats.addSkipped()
		return e.store.MarkNewsProcessed(ctx, item.ID, skipMarketClosed)
	}

	ageMinutes := int(now.Sub(item.PublishedAt).Minutes())
	if !market.HasTradableWaves(ageMinutes) {
		metrics.SignalsFiltered.WithLabelValues("waves_missed").Inc()
		e.stats.addSkipped()
		return e.store.MarkNewsProcessed(ctx, item.ID, skipWavesMissed)
	}

	summary := ""
	if item.Summary != nil {
		summary = *item.Summary
	}

	wave, newsType := e.selectWave(ctx, item.Headline, summary, ageMinutes, status)
	metrics.WaveSelected.WithLabelValues(strconv.Itoa(wave)).Inc()

	candidates, err := e.generateCandidates(ctx, item.Headline, summary, wave, newsType)
	if err != nil {
		log.Error().Err(err).Msg("Signal generation failed")
		metrics.SignalsFiltered.WithLabelValues("llm_failed").Inc()
		e.stats.addSkipped()
		return e.store.MarkNewsProcessed(ctx, item.ID, skipLLMFailed)
	}

	signals := e.buildSignals(ctx, item, wave, newsType, status, candidates)
	if len(signals) == 0 {
		metrics.SignalsFiltered.WithLabelValues("no_candidates").Inc()
		e.stats.addSkipped()
		return e.store.MarkNewsProcessed(ctx, item.ID, skipNoCandidates)
	}

	if err := e.store.InsertSignals(ctx, item.ID, signals); err != nil {
		return fmt.Errorf("failed to persist signals: %w", err)
	}

	metrics.SignalsGenerated.Add(float64(len(signals)))
	e.stats.addSignals(wave, len(signals))
	log.Info().
		Int("signals", len(signals)).
		Int("wave", wave).
		Str("news_type", newsType).
		Msg("Trading signals persisted")
	return nil
}

// selectWave asks the LLM for the optimal reaction wave. Failures fall back
// to the wave whose interval contains the current news age.
func (e *Extractor) selectWave(ctx context.Context, headline, summary string, ageMinutes int, status market.Status) (int, string) {
	states := market.ClassifyWaves(ageMinutes)
	waveStatus := llm.FormatWaveStatus(toLLMStates(states))

	system, user := llm.WaveAnalysisPrompts(headline, summary, ageMinutes, string(status), waveStatus)

	start := time.Now()
	content, err := e.llm.CompleteWithSystem(ctx, system, user)
	metrics.LLMLatency.Observe(time.Since(start).Seconds())
	if err == nil {
		var analysis *llm.WaveAnalysis
		analysis, err = llm.ParseWaveAnalysis(content)
		if err == nil {
			metrics.LLMRequests.WithLabelValues("wave", "ok").Inc()
			return analysis.OptimalWave, analysis.NewsType
		}
	}

	metrics.LLMRequests.WithLabelValues("wave", "error").Inc()
	fallback := market.FallbackWave(ageMinutes)
	e.log.Warn().Err(err).Int("fallback_wave", fallback).Msg("Wave analysis failed, using age-based fallback")
	return fallback, "other"
}

func (e *Extractor) generateCandidates(ctx context.Context, headline, summary string, wave int, newsType string) ([]llm.CandidateSignal, error) {
	waveStart, waveEnd := market.WaveBounds(wave)
	system, user := llm.SignalGenerationPrompts(headline, summary, wave, waveStart, waveEnd, e.cfg.MaxSignalsPerNews, newsType)

	start := time.Now()
	content, err := e.llm.CompleteWithSystem(ctx, system, user)
	metrics.LLMLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMRequests.WithLabelValues("signals", "error").Inc()
		return nil, err
	}

	candidates, err := llm.ParseSignals(content)
	if err != nil {
		metrics.LLMRequests.WithLabelValues("signals", "error").Inc()
		return nil, err
	}
	metrics.LLMRequests.WithLabelValues("signals", "ok").Inc()
	return candidates, nil
}

// buildSignals filters candidates and shapes the survivors for persistence
func (e *Extractor) buildSignals(ctx context.Context, item *db.NewsItem, wave int, newsType string, status market.Status, candidates []llm.CandidateSignal) []*db.TradingSignal {
	waveStart, waveEnd := market.WaveBounds(wave)
	entryStart, entryEnd := market.EntryWindow(item.PublishedAt, wave)

	var signals []*db.TradingSignal
	for _, c := range candidates {
		if len(signals) >= e.cfg.MaxSignalsPerNews {
			break
		}
		if c.ExpectedMovePct < e.cfg.MinExpectedMovePercent {
			metrics.SignalsFiltered.WithLabelValues("expected_move").Inc()
			continue
		}
		if c.Confidence < e.cfg.MinConfidence {
			metrics.SignalsFiltered.WithLabelValues("confidence").Inc()
			continue
		}

		// A provider outage is not evidence against the ticker: only an
		// authoritative not-found rejects. Transient failures keep the
		// candidate, recorded as unvalidated.
		validation, err := e.validator.Validate(ctx, c.Ticker)
		validated := err == nil
		if err != nil {
			e.stats.addUnvalidated()
			e.log.Warn().Err(err).Str("ticker", validation.Ticker).
				Msg("Ticker validation unavailable, accepting unvalidated")
		} else if !validation.Exists {
			metrics.SignalsFiltered.WithLabelValues("unknown_ticker").Inc()
			e.log.Info().Str("ticker", validation.Ticker).Msg("Dropping candidate with unknown ticker")
			continue
		}

		signals = append(signals, &db.TradingSignal{
			NewsItemID:      item.ID,
			SignalType:      db.SignalType(c.Action),
			Confidence:      float64(c.Confidence) / 100,
			Wave:            wave,
			WaveDescription: fmt.Sprintf("wave %d (%d-%d min after publication)", wave, waveStart, waveEnd),
			Reasoning:       c.Reasoning,
			Conditions: db.MarketConditions{
				Ticker:           validation.Ticker,
				ExpectedMovePct:  c.ExpectedMovePct,
				StopLossPct:      e.cfg.DefaultStopLossPct,
				TakeProfitPct:    e.cfg.DefaultTakeProfitPct,
				MaxHoldHours:     e.cfg.DefaultMaxHoldHours,
				TickerValidated:  validated,
				MarketStatus:     string(status),
				NewsType:         newsType,
				EntryStart:       entryStart,
				EntryEnd:         entryEnd,
				WaveStartMinutes: waveStart,
				WaveEndMinutes:   waveEnd,
			},
		})
	}
	return signals
}

func toLLMStates(states []market.WaveState) []llm.WaveState {
	out := make([]llm.WaveState, len(states))
	for i, s := range states {
		out[i] = llm.WaveState{
			Wave:            s.Wave,
			Status:          string(s.Status),
			TimeLeftMinutes: s.TimeLeftMinutes,
		}
	}
	return out
}
