package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wavesens/internal/config"
)

// fakeProvider returns a scripted sequence of answers
type fakeProvider struct {
	name  string
	quote *Quote
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Quote(ctx context.Context, ticker string) (*Quote, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	q := *f.quote
	q.Ticker = ticker
	q.Timestamp = time.Now()
	return &q, nil
}

func testPortfolioCfg() config.PortfolioConfig {
	return config.PortfolioConfig{
		SpreadPercent:         0.1,
		SlippageLiquidPct:     0.05,
		SlippageIlliquidPct:   0.2,
		LiquidityThresholdVol: 1_000_000,
	}
}

func newTestData(providers []Provider, freshTTL, staleTTL time.Duration) *Data {
	return NewDataWithProviders(providers, testPortfolioCfg(), freshTTL, staleTTL, "SPY", zerolog.Nop())
}

func TestCurrentPrice_ChainFallsThrough(t *testing.T) {
	failing := &fakeProvider{name: "yahoo", err: ErrRateLimited}
	working := &fakeProvider{name: "finnhub", quote: &Quote{Price: 150.0, Source: "finnhub"}}
	d := newTestData([]Provider{failing, working}, time.Minute, time.Hour)

	q, err := d.CurrentPrice(context.Background(), "AAPL", false)
	require.NoError(t, err)
	assert.Equal(t, 150.0, q.Price)
	assert.Equal(t, "finnhub", q.Source)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, working.calls)
}

func TestCurrentPrice_NotFoundStopsChain(t *testing.T) {
	notFound := &fakeProvider{name: "yahoo", err: ErrTickerNotFound}
	never := &fakeProvider{name: "finnhub", quote: &Quote{Price: 1.0}}
	d := newTestData([]Provider{notFound, never}, time.Minute, time.Hour)

	_, err := d.CurrentPrice(context.Background(), "FAKE", false)
	assert.ErrorIs(t, err, ErrTickerNotFound)
	assert.Equal(t, 0, never.calls)
}

func TestCurrentPrice_FreshCacheHit(t *testing.T) {
	p := &fakeProvider{name: "yahoo", quote: &Quote{Price: 100.0, Source: "yahoo"}}
	d := newTestData([]Provider{p}, time.Minute, time.Hour)

	_, err := d.CurrentPrice(context.Background(), "AAPL", false)
	require.NoError(t, err)
	_, err = d.CurrentPrice(context.Background(), "AAPL", false)
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls, "second read must be served from cache")
}

func TestCurrentPrice_StaleFallback(t *testing.T) {
	p := &fakeProvider{name: "yahoo", quote: &Quote{Price: 100.0, Source: "yahoo"}}
	// fresh TTL of zero forces every cached entry into the stale tier
	d := newTestData([]Provider{p}, 0, time.Hour)

	_, err := d.CurrentPrice(context.Background(), "AAPL", false)
	require.NoError(t, err)

	p.err = errors.New("upstream down")
	p.quote = nil

	q, err := d.CurrentPrice(context.Background(), "AAPL", true)
	require.NoError(t, err)
	assert.True(t, q.Stale)
	assert.Equal(t, 100.0, q.Price)

	_, err = d.CurrentPrice(context.Background(), "AAPL", false)
	assert.ErrorIs(t, err, ErrNoQuote)
}

func TestRealisticExecution_LiquidBuy(t *testing.T) {
	p := &fakeProvider{name: "yahoo", quote: &Quote{Price: 100.0, Volume: 2_000_000}}
	d := newTestData([]Provider{p}, time.Minute, time.Hour)

	exec, err := d.RealisticExecution(context.Background(), "AAPL", SideBuy, 1000)
	require.NoError(t, err)

	// half spread 0.05, liquid slippage 0.05, order far below impact threshold
	assert.InDelta(t, 0.05, exec.Spread, 1e-9)
	assert.InDelta(t, 0.05, exec.Slippage, 1e-9)
	assert.Zero(t, exec.MarketImpact)
	assert.InDelta(t, 100.10, exec.ExecutionPrice, 1e-9)
	assert.Equal(t, 100.0, exec.MarketPrice)
}

func TestRealisticExecution_SellReceivesLess(t *testing.T) {
	p := &fakeProvider{name: "yahoo", quote: &Quote{Price: 100.0, Volume: 2_000_000}}
	d := newTestData([]Provider{p}, time.Minute, time.Hour)

	exec, err := d.RealisticExecution(context.Background(), "AAPL", SideSell, 1000)
	require.NoError(t, err)
	assert.InDelta(t, 99.90, exec.ExecutionPrice, 1e-9)
}

func TestRealisticExecution_IlliquidWithImpact(t *testing.T) {
	p := &fakeProvider{name: "yahoo", quote: &Quote{Price: 100.0, Volume: 100_000}}
	d := newTestData([]Provider{p}, time.Minute, time.Hour)

	exec, err := d.RealisticExecution(context.Background(), "THIN", SideBuy, 50_000)
	require.NoError(t, err)

	// dollar volume 10M, ratio 0.005 -> impact 100 * 0.005 * 0.5 = 0.25
	assert.InDelta(t, 0.2, exec.Slippage, 1e-9)
	assert.InDelta(t, 0.25, exec.MarketImpact, 1e-9)
	assert.InDelta(t, 100.50, exec.ExecutionPrice, 1e-9)
}

func TestRealisticExecution_NoVolumeNoImpact(t *testing.T) {
	p := &fakeProvider{name: "finnhub", quote: &Quote{Price: 50.0, Volume: 0}}
	d := newTestData([]Provider{p}, time.Minute, time.Hour)

	exec, err := d.RealisticExecution(context.Background(), "AAPL", SideBuy, 5000)
	require.NoError(t, err)

	// unknown volume counts as illiquid, impact cannot be computed
	assert.InDelta(t, 50.0*0.2/100, exec.Slippage, 1e-9)
	assert.Zero(t, exec.MarketImpact)
}

func TestBenchmarkPrice_UsesConfiguredTicker(t *testing.T) {
	p := &fakeProvider{name: "yahoo", quote: &Quote{Price: 500.0}}
	d := newTestData([]Provider{p}, time.Minute, time.Hour)

	q, err := d.BenchmarkPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SPY", q.Ticker)
}
