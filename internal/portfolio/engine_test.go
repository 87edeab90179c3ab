package portfolio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wavesens/internal/alerts"
	"wavesens/internal/db"
	"wavesens/internal/market"
)

// engineNow is a fixed instant inside Friday's regular session (11:00 ET)
var engineNow = time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)

type fakeStore struct {
	signals  map[int64]*db.SignalView
	consumed map[int64]bool
	active   []*db.Experiment
	snapshot *db.PortfolioSnapshot

	opened    []*db.Experiment
	settled   []*db.Experiment
	credits   []float64
	stops     map[int64]float64
	snapshots []*db.PortfolioSnapshot
	openErr   error
}

func newFakeStore(snapshot *db.PortfolioSnapshot) *fakeStore {
	return &fakeStore{
		signals:  map[int64]*db.SignalView{},
		consumed: map[int64]bool{},
		snapshot: snapshot,
		stops:    map[int64]float64{},
	}
}

func (s *fakeStore) GetSignalView(ctx context.Context, id int64) (*db.SignalView, error) {
	v, ok := s.signals[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return v, nil
}

func (s *fakeStore) HasExperimentForSignal(ctx context.Context, id int64) (bool, error) {
	return s.consumed[id], nil
}

func (s *fakeStore) UnconsumedSignals(ctx context.Context, since time.Time, limit int) ([]int64, error) {
	var ids []int64
	for id := range s.signals {
		if !s.consumed[id] {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *fakeStore) ActiveExperiments(ctx context.Context) ([]*db.Experiment, error) {
	return s.active, nil
}

func (s *fakeStore) UpdateStopLoss(ctx context.Context, id int64, newStop float64, side db.Side) error {
	s.stops[id] = newStop
	return nil
}

func (s *fakeStore) LatestSnapshot(ctx context.Context) (*db.PortfolioSnapshot, error) {
	if s.snapshot == nil {
		return nil, db.ErrNotFound
	}
	return s.snapshot, nil
}

func (s *fakeStore) InsertSnapshot(ctx context.Context, snap *db.PortfolioSnapshot) error {
	s.snapshot = snap
	s.snapshots = append(s.snapshots, snap)
	return nil
}

func (s *fakeStore) OpenExperiment(ctx context.Context, e *db.Experiment, tradingDay time.Time) error {
	if s.openErr != nil {
		return s.openErr
	}
	e.ID = int64(len(s.opened) + 1)
	s.opened = append(s.opened, e)
	s.consumed[e.SignalID] = true
	return nil
}

func (s *fakeStore) SettleExperiment(ctx context.Context, e *db.Experiment, cashCredit float64, tradingDay time.Time) error {
	s.settled = append(s.settled, e)
	s.credits = append(s.credits, cashCredit)
	return nil
}

func (s *fakeStore) AppendSnapshot(ctx context.Context, build func(prev *db.PortfolioSnapshot) *db.PortfolioSnapshot) error {
	next := build(s.snapshot)
	if next != nil {
		s.snapshot = next
		s.snapshots = append(s.snapshots, next)
	}
	return nil
}

type fakeMarket struct {
	prices    map[string]float64
	execPrice float64
	benchmark float64
	quoteErr  error
	execErr   error
}

func (m *fakeMarket) CurrentPrice(ctx context.Context, ticker string, allowStale bool) (*market.Quote, error) {
	if m.quoteErr != nil {
		return nil, m.quoteErr
	}
	price, ok := m.prices[ticker]
	if !ok {
		return nil, market.ErrNoQuote
	}
	return &market.Quote{Ticker: ticker, Price: price, Timestamp: engineNow}, nil
}

func (m *fakeMarket) RealisticExecution(ctx context.Context, ticker string, side market.Side, size float64) (*market.Execution, error) {
	if m.execErr != nil {
		return nil, m.execErr
	}
	return &market.Execution{
		Ticker:         ticker,
		Side:           side,
		MarketPrice:    m.execPrice,
		ExecutionPrice: m.execPrice,
	}, nil
}

func (m *fakeMarket) BenchmarkPrice(ctx context.Context) (*market.Quote, error) {
	if m.benchmark <= 0 {
		return nil, market.ErrNoQuote
	}
	return &market.Quote{Ticker: "SPY", Price: m.benchmark, Timestamp: engineNow}, nil
}

func ledgerSnapshot() *db.PortfolioSnapshot {
	return &db.PortfolioSnapshot{
		ID:             1,
		Timestamp:      engineNow.Add(-time.Hour),
		TotalValue:     10000,
		CashBalance:    9000,
		PositionsCount: 0,
		TradingDay:     time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
	}
}

func buySignal(id int64) *db.SignalView {
	v := &db.SignalView{
		Headline:    "Fed surprises with emergency rate cut",
		PublishedAt: engineNow.Add(-45 * time.Minute),
	}
	v.ID = id
	v.NewsItemID = 7
	v.SignalType = db.SignalBuy
	v.Confidence = 0.65
	v.Wave = 2
	v.Conditions = db.MarketConditions{
		Ticker:        "AAPL",
		StopLossPct:   3,
		TakeProfitPct: 5,
		MaxHoldHours:  6,
		EntryStart:    engineNow.Add(-15 * time.Minute),
		EntryEnd:      engineNow.Add(75 * time.Minute),
	}
	return v
}

func newTestEngine(t *testing.T, store *fakeStore, data *fakeMarket) *Engine {
	t.Helper()
	clock, err := market.NewClock("")
	require.NoError(t, err)
	e := NewEngine(store, data, clock, alerts.NewManager(), testCfg(), zerolog.Nop())
	e.now = func() time.Time { return engineNow }
	return e
}

func TestHandleSignal_OpensPosition(t *testing.T) {
	store := newFakeStore(ledgerSnapshot())
	store.signals[5] = buySignal(5)
	data := &fakeMarket{execPrice: 100.10, benchmark: 500.0}
	e := newTestEngine(t, store, data)

	require.NoError(t, e.HandleSignal(context.Background(), 5))

	require.Len(t, store.opened, 1)
	exp := store.opened[0]
	assert.Equal(t, int64(5), exp.SignalID)
	assert.Equal(t, db.SideBuy, exp.Side)
	assert.InDelta(t, 130.0, exp.PositionSize, 1e-9, "2% of 10k times 0.65 confidence")
	assert.InDelta(t, 130.0/100.10, exp.Shares, 1e-9)
	assert.InDelta(t, 1.0, exp.Commission, 1e-9, "fixed floor beats 0.1% of 130")
	assert.InDelta(t, 100.10*0.97, *exp.StopLoss, 1e-9)
	assert.InDelta(t, 100.10*1.05, *exp.TakeProfit, 1e-9)
	require.NotNil(t, exp.SP500Entry)
	assert.Equal(t, 500.0, *exp.SP500Entry)
	assert.True(t, exp.MaxHoldUntil.Before(engineNow.Add(6*time.Hour)),
		"deadline is clamped inside the session")
}

func TestHandleSignal_ShortInvertsLevels(t *testing.T) {
	store := newFakeStore(ledgerSnapshot())
	sig := buySignal(5)
	sig.SignalType = db.SignalShort
	store.signals[5] = sig
	data := &fakeMarket{execPrice: 100.0, benchmark: 500.0}
	e := newTestEngine(t, store, data)

	require.NoError(t, e.HandleSignal(context.Background(), 5))

	require.Len(t, store.opened, 1)
	exp := store.opened[0]
	assert.Equal(t, db.SideShort, exp.Side)
	assert.InDelta(t, 103.0, *exp.StopLoss, 1e-9)
	assert.InDelta(t, 95.0, *exp.TakeProfit, 1e-9)
}

func TestHandleSignal_ConsumedIsNoOp(t *testing.T) {
	store := newFakeStore(ledgerSnapshot())
	store.signals[5] = buySignal(5)
	store.consumed[5] = true
	e := newTestEngine(t, store, &fakeMarket{execPrice: 100})

	require.NoError(t, e.HandleSignal(context.Background(), 5))
	assert.Empty(t, store.opened)
}

func TestHandleSignal_EntryWindowRefusals(t *testing.T) {
	store := newFakeStore(ledgerSnapshot())

	early := buySignal(5)
	early.Conditions.EntryStart = engineNow.Add(10 * time.Minute)
	store.signals[5] = early

	late := buySignal(6)
	late.Conditions.EntryEnd = engineNow.Add(-time.Minute)
	store.signals[6] = late

	e := newTestEngine(t, store, &fakeMarket{execPrice: 100})
	require.NoError(t, e.HandleSignal(context.Background(), 5))
	require.NoError(t, e.HandleSignal(context.Background(), 6))
	assert.Empty(t, store.opened)
}

func TestHandleSignal_DailyLossRefusal(t *testing.T) {
	snap := ledgerSnapshot()
	snap.RealizedPnLToday = -520
	store := newFakeStore(snap)
	store.signals[5] = buySignal(5)
	e := newTestEngine(t, store, &fakeMarket{execPrice: 100})

	require.NoError(t, e.HandleSignal(context.Background(), 5))
	assert.Empty(t, store.opened)
}

func TestHandleSignal_DailyLossResetOnNewDay(t *testing.T) {
	// yesterday's breaker loss must not block today's entries
	snap := ledgerSnapshot()
	snap.RealizedPnLToday = -520
	snap.TradingDay = time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC)
	store := newFakeStore(snap)
	store.signals[5] = buySignal(5)
	e := newTestEngine(t, store, &fakeMarket{execPrice: 100, benchmark: 500})

	require.NoError(t, e.HandleSignal(context.Background(), 5))
	assert.Len(t, store.opened, 1)
}

func TestHandleSignal_HoldTypeIgnored(t *testing.T) {
	store := newFakeStore(ledgerSnapshot())
	sig := buySignal(5)
	sig.SignalType = db.SignalHold
	store.signals[5] = sig
	e := newTestEngine(t, store, &fakeMarket{execPrice: 100})

	require.NoError(t, e.HandleSignal(context.Background(), 5))
	assert.Empty(t, store.opened)
}

func TestHandleSignal_NoExecutionRefusal(t *testing.T) {
	store := newFakeStore(ledgerSnapshot())
	store.signals[5] = buySignal(5)
	e := newTestEngine(t, store, &fakeMarket{execErr: market.ErrNoQuote})

	require.NoError(t, e.HandleSignal(context.Background(), 5))
	assert.Empty(t, store.opened)
}

func TestMonitorCycle_StopLossCloses(t *testing.T) {
	snap := ledgerSnapshot()
	snap.PositionsCount = 1
	store := newFakeStore(snap)
	exp := longPosition(100)
	store.active = []*db.Experiment{exp}
	data := &fakeMarket{prices: map[string]float64{"AAPL": 96.0}, execPrice: 96.0, benchmark: 500}
	e := newTestEngine(t, store, data)

	require.NoError(t, e.MonitorCycle(context.Background()))

	require.Len(t, store.settled, 1)
	assert.Equal(t, db.ExitStopLoss, *store.settled[0].ExitReason)
	// gross (96-100)*8 = -32, net -32 - 1 - max(1, 768*0.1%) = -34
	assert.InDelta(t, -34.0, *store.settled[0].NetPnL, 1e-9)
	assert.InDelta(t, 801.0-34.0, store.credits[0], 1e-9)
}

func TestMonitorCycle_TrailingStopRaised(t *testing.T) {
	snap := ledgerSnapshot()
	snap.PositionsCount = 1
	store := newFakeStore(snap)
	exp := longPosition(100)
	store.active = []*db.Experiment{exp}
	data := &fakeMarket{prices: map[string]float64{"AAPL": 103.0}}
	e := newTestEngine(t, store, data)

	require.NoError(t, e.MonitorCycle(context.Background()))

	assert.Empty(t, store.settled)
	assert.InDelta(t, 101.455, store.stops[exp.ID], 1e-9)
}

func TestMonitorCycle_DailyLossBreakerClosesAll(t *testing.T) {
	snap := ledgerSnapshot()
	snap.PositionsCount = 2
	snap.RealizedPnLToday = -520
	store := newFakeStore(snap)
	a := longPosition(100)
	a.ID = 1
	b := longPosition(50)
	b.ID = 2
	b.Ticker = "MSFT"
	store.active = []*db.Experiment{a, b}
	data := &fakeMarket{
		prices:    map[string]float64{"AAPL": 101, "MSFT": 51},
		execPrice: 100,
	}
	e := newTestEngine(t, store, data)

	require.NoError(t, e.MonitorCycle(context.Background()))

	require.Len(t, store.settled, 2)
	assert.Equal(t, db.ExitDailyLoss, *store.settled[0].ExitReason)
	assert.Equal(t, db.ExitDailyLoss, *store.settled[1].ExitReason)
}

func TestMonitorCycle_QuoteFailureSkipsPosition(t *testing.T) {
	snap := ledgerSnapshot()
	snap.PositionsCount = 1
	store := newFakeStore(snap)
	store.active = []*db.Experiment{longPosition(100)}
	e := newTestEngine(t, store, &fakeMarket{quoteErr: market.ErrNoQuote})

	require.NoError(t, e.MonitorCycle(context.Background()))
	assert.Empty(t, store.settled)
}

func TestSnapshot_ComputesTotals(t *testing.T) {
	snap := ledgerSnapshot()
	snap.CashBalance = 9199.0
	snap.PositionsCount = 1
	store := newFakeStore(snap)
	exp := longPosition(100)
	store.active = []*db.Experiment{exp}
	data := &fakeMarket{prices: map[string]float64{"AAPL": 105.0}, benchmark: 505.0}
	e := newTestEngine(t, store, data)

	require.NoError(t, e.Snapshot(context.Background()))

	require.Len(t, store.snapshots, 1)
	written := store.snapshots[0]
	// unrealized (105-100)*8 = 40; total = cash + size + unrealized
	assert.InDelta(t, 40.0, written.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 9199.0+840.0, written.TotalValue, 1e-9)
	assert.Equal(t, 1, written.PositionsCount)
	require.NotNil(t, written.SP500Price)
	assert.Equal(t, 505.0, *written.SP500Price)
	assert.InDelta(t, (10039.0/10000.0-1)*100, written.TotalReturn, 1e-9)
}

func TestEnsureLedger_SeedsWhenEmpty(t *testing.T) {
	store := newFakeStore(nil)
	e := newTestEngine(t, store, &fakeMarket{})

	require.NoError(t, e.EnsureLedger(context.Background()))
	require.NotNil(t, store.snapshot)
	assert.Equal(t, 10000.0, store.snapshot.CashBalance)
	assert.Equal(t, 10000.0, store.snapshot.TotalValue)

	// second call is a no-op
	require.NoError(t, e.EnsureLedger(context.Background()))
	assert.Len(t, store.snapshots, 1)
}

func TestHandleSignal_LedgerConsistencyRefusal(t *testing.T) {
	store := newFakeStore(ledgerSnapshot())
	store.signals[5] = buySignal(5)
	store.openErr = db.ErrLedgerConsistency
	e := newTestEngine(t, store, &fakeMarket{execPrice: 100, benchmark: 500})

	require.NoError(t, e.HandleSignal(context.Background(), 5))
	assert.Empty(t, store.opened)
}

func TestHandleSignal_UnexpectedOpenErrorPropagates(t *testing.T) {
	store := newFakeStore(ledgerSnapshot())
	store.signals[5] = buySignal(5)
	store.openErr = errors.New("connection lost")
	e := newTestEngine(t, store, &fakeMarket{execPrice: 100, benchmark: 500})

	assert.Error(t, e.HandleSignal(context.Background(), 5))
}

func TestStats_CountActivityAndResetOnDrain(t *testing.T) {
	store := newFakeStore(ledgerSnapshot())
	store.signals[5] = buySignal(5)
	late := buySignal(6)
	late.Conditions.EntryEnd = engineNow.Add(-time.Minute)
	store.signals[6] = late
	data := &fakeMarket{prices: map[string]float64{"AAPL": 96.0}, execPrice: 96.0, benchmark: 500}
	e := newTestEngine(t, store, data)

	require.NoError(t, e.HandleSignal(context.Background(), 5))
	require.NoError(t, e.HandleSignal(context.Background(), 6))
	store.active = []*db.Experiment{longPosition(100)}
	require.NoError(t, e.MonitorCycle(context.Background()))
	require.NoError(t, e.Snapshot(context.Background()))

	cycles, opened, closed, refused, snapshots := e.stats.drain()
	assert.EqualValues(t, 1, cycles)
	assert.EqualValues(t, 1, opened)
	assert.EqualValues(t, 1, closed)
	assert.EqualValues(t, 1, refused)
	assert.EqualValues(t, 1, snapshots)

	cycles, opened, closed, refused, snapshots = e.stats.drain()
	assert.Zero(t, cycles+opened+closed+refused+snapshots, "drain resets the counters")
}
