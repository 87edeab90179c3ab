package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"wavesens/internal/config"
	"wavesens/internal/metrics"
)

// Side is the direction of an execution
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Execution is a simulated fill: the observed market price plus the cost
// components a real order would have paid.
type Execution struct {
	Ticker         string
	Side           Side
	MarketPrice    float64
	ExecutionPrice float64
	Spread         float64
	Slippage       float64
	MarketImpact   float64
	Volume         int64
	Stale          bool
	Source         string
}

// Data serves quotes and simulated executions through the provider chain
// Yahoo -> Finnhub -> Alpha Vantage, fronted by a two-tier cache.
type Data struct {
	providers []Provider
	cache     *priceCache
	cfg       config.PortfolioConfig
	benchmark string
	log       zerolog.Logger
}

// NewData wires the provider chain from config
func NewData(cfg *config.Config, log zerolog.Logger) *Data {
	timeout := cfg.Market.RequestTimeoutDuration()
	providers := []Provider{
		NewYahooProvider(timeout,
			time.Duration(cfg.Market.YahooMinGapSeconds)*time.Second,
			time.Duration(cfg.Market.YahooDisableMinutes)*time.Minute),
		NewFinnhubProvider(cfg.Market.FinnhubAPIKey, timeout),
	}
	if cfg.Market.AlphaVantageAPIKey != "" {
		providers = append(providers, NewAlphaVantageProvider(cfg.Market.AlphaVantageAPIKey, timeout))
	}

	return &Data{
		providers: providers,
		cache:     newPriceCache(cfg.Market.FreshTTL(), cfg.Market.StaleTTL()),
		cfg:       cfg.Portfolio,
		benchmark: cfg.Market.BenchmarkTicker,
		log:       log,
	}
}

// NewDataWithProviders builds an adapter over explicit providers, used in tests
func NewDataWithProviders(providers []Provider, cfg config.PortfolioConfig, freshTTL, staleTTL time.Duration, benchmark string, log zerolog.Logger) *Data {
	return &Data{
		providers: providers,
		cache:     newPriceCache(freshTTL, staleTTL),
		cfg:       cfg,
		benchmark: benchmark,
		log:       log,
	}
}

// CurrentPrice returns a quote for the ticker. Fresh cache entries are
// served directly; on full provider failure a stale entry is returned only
// when allowStale is set.
func (d *Data) CurrentPrice(ctx context.Context, ticker string, allowStale bool) (*Quote, error) {
	if cached, fresh := d.cache.get(ticker); fresh {
		return cached, nil
	}

	quote, err := d.fetch(ctx, ticker)
	if err == nil {
		d.cache.put(quote)
		return quote, nil
	}
	if errors.Is(err, ErrTickerNotFound) {
		return nil, err
	}

	if allowStale {
		if cached, _ := d.cache.get(ticker); cached != nil {
			metrics.StaleQuotesServed.Inc()
			d.log.Warn().
				Str("ticker", ticker).
				Time("as_of", cached.Timestamp).
				Msg("Serving stale quote after provider failure")
			return cached, nil
		}
	}
	return nil, fmt.Errorf("%w for %s: %v", ErrNoQuote, ticker, err)
}

// BenchmarkPrice returns the benchmark index proxy price, tolerating
// staleness so P&L snapshots never block on provider hiccups.
func (d *Data) BenchmarkPrice(ctx context.Context) (*Quote, error) {
	return d.CurrentPrice(ctx, d.benchmark, true)
}

// RealisticExecution prices a fill the way a retail order would land:
// half the bid-ask spread, a volume-dependent slippage charge, and a
// market-impact penalty when the order is large relative to daily volume.
// BUY pays above market, SELL receives below.
func (d *Data) RealisticExecution(ctx context.Context, ticker string, side Side, positionSize float64) (*Execution, error) {
	quote, err := d.CurrentPrice(ctx, ticker, false)
	if err != nil {
		return nil, err
	}

	price := quote.Price
	halfSpread := price * d.cfg.SpreadPercent / 100 / 2

	slippagePct := d.cfg.SlippageIlliquidPct
	if quote.Volume > d.cfg.LiquidityThresholdVol {
		slippagePct = d.cfg.SlippageLiquidPct
	}
	slippage := price * slippagePct / 100

	var impact float64
	if quote.Volume > 0 {
		dollarVolume := price * float64(quote.Volume)
		ratio := positionSize / dollarVolume
		if ratio > 0.001 {
			impact = price * ratio * 0.5
		}
	}

	adjustment := halfSpread + slippage + impact
	executionPrice := price + adjustment
	if side == SideSell {
		executionPrice = price - adjustment
	}
	executionPrice = math.Max(executionPrice, 0.01)

	return &Execution{
		Ticker:         ticker,
		Side:           side,
		MarketPrice:    price,
		ExecutionPrice: executionPrice,
		Spread:         halfSpread,
		Slippage:       slippage,
		MarketImpact:   impact,
		Volume:         quote.Volume,
		Stale:          quote.Stale,
		Source:         quote.Source,
	}, nil
}

// CacheStats exposes cache counters for the hourly stats log
func (d *Data) CacheStats() CacheStats {
	return d.cache.stats()
}

// fetch walks the provider chain in order. An authoritative not-found from
// any provider stops the chain; other failures fall through to the next.
func (d *Data) fetch(ctx context.Context, ticker string) (*Quote, error) {
	var lastErr error
	for _, provider := range d.providers {
		quote, err := provider.Quote(ctx, ticker)
		if err == nil {
			metrics.ProviderRequests.WithLabelValues(provider.Name(), "ok").Inc()
			return quote, nil
		}
		if errors.Is(err, ErrTickerNotFound) {
			metrics.ProviderRequests.WithLabelValues(provider.Name(), "not_found").Inc()
			return nil, err
		}

		outcome := "error"
		switch {
		case errors.Is(err, ErrRateLimited):
			outcome = "rate_limited"
		case errors.Is(err, ErrProviderDisabled):
			outcome = "disabled"
		}
		metrics.ProviderRequests.WithLabelValues(provider.Name(), outcome).Inc()
		d.log.Debug().Err(err).
			Str("provider", provider.Name()).
			Str("ticker", ticker).
			Msg("Quote provider failed, trying next")
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no providers configured")
	}
	return nil, lastErr
}
