// Package metrics declares the Prometheus instruments shared by the three
// services and the HTTP server exposing them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// News Analyzer

	NewsChecked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wavesens_news_checked_total",
		Help: "News items fetched from the feed",
	})

	NewsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wavesens_news_processed_total",
		Help: "News items scored and persisted",
	})

	NewsSignificant = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wavesens_news_significant_total",
		Help: "News items that crossed the significance threshold",
	})

	NewsErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wavesens_news_errors_total",
		Help: "Errors during news ingest (feed, LLM, store)",
	})

	// Signal Extractor

	SignalsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wavesens_signals_generated_total",
		Help: "Trading signals persisted",
	})

	SignalsFiltered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wavesens_signals_filtered_total",
		Help: "Signal candidates dropped, by reason",
	}, []string{"reason"})

	WaveSelected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wavesens_wave_selected_total",
		Help: "Optimal wave chosen per analyzed news item",
	}, []string{"wave"})

	// Experiment Manager

	PositionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wavesens_positions_opened_total",
		Help: "Positions opened",
	})

	PositionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wavesens_positions_closed_total",
		Help: "Positions closed, by exit reason",
	}, []string{"reason"})

	AdmissionRefused = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wavesens_admission_refused_total",
		Help: "Signals refused by a risk check, by reason",
	}, []string{"reason"})

	CashBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wavesens_cash_balance",
		Help: "Current cash balance from the latest ledger row",
	})

	TotalValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wavesens_total_value",
		Help: "Current total portfolio value",
	})

	ActivePositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wavesens_active_positions",
		Help: "Number of open positions",
	})

	RealizedPnLToday = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wavesens_realized_pnl_today",
		Help: "Realized P&L accumulated in the current trading day",
	})

	// Shared adapters

	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wavesens_provider_requests_total",
		Help: "Quote provider requests, by provider and outcome",
	}, []string{"provider", "outcome"})

	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wavesens_llm_requests_total",
		Help: "LLM calls, by purpose and outcome",
	}, []string{"purpose", "outcome"})

	LLMLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wavesens_llm_latency_seconds",
		Help:    "LLM call latency",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
	})

	StaleQuotesServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wavesens_stale_quotes_served_total",
		Help: "Quotes served from the stale cache tier",
	})
)
