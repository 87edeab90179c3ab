package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wavesens/internal/alerts"
	"wavesens/internal/config"
	"wavesens/internal/db"
	"wavesens/internal/market"
	"wavesens/internal/metrics"
)

// fallback when a signal carries no hold duration
const defaultMaxHoldHours = 6

// Store is the slice of the database the engine needs
type Store interface {
	GetSignalView(ctx context.Context, signalID int64) (*db.SignalView, error)
	HasExperimentForSignal(ctx context.Context, signalID int64) (bool, error)
	UnconsumedSignals(ctx context.Context, since time.Time, limit int) ([]int64, error)
	ActiveExperiments(ctx context.Context) ([]*db.Experiment, error)
	UpdateStopLoss(ctx context.Context, id int64, newStop float64, side db.Side) error
	LatestSnapshot(ctx context.Context) (*db.PortfolioSnapshot, error)
	InsertSnapshot(ctx context.Context, s *db.PortfolioSnapshot) error
	OpenExperiment(ctx context.Context, e *db.Experiment, tradingDay time.Time) error
	SettleExperiment(ctx context.Context, e *db.Experiment, cashCredit float64, tradingDay time.Time) error
	AppendSnapshot(ctx context.Context, build func(prev *db.PortfolioSnapshot) *db.PortfolioSnapshot) error
}

// MarketData is the quote and execution surface the engine trades against
type MarketData interface {
	CurrentPrice(ctx context.Context, ticker string, allowStale bool) (*market.Quote, error)
	RealisticExecution(ctx context.Context, ticker string, side market.Side, positionSize float64) (*market.Execution, error)
	BenchmarkPrice(ctx context.Context) (*market.Quote, error)
}

// Engine opens, monitors and closes virtual positions against the ledger
type Engine struct {
	store  Store
	data   MarketData
	clock  *market.Clock
	alerts *alerts.Manager
	cfg    config.PortfolioConfig
	log    zerolog.Logger
	now    func() time.Time

	stats engineStats
}

// engineStats accumulates counters between hourly stats logs. The stats
// loop reads concurrently with the engine loops, hence the lock.
type engineStats struct {
	mu        sync.Mutex
	cycles    int64
	opened    int64
	closed    int64
	refused   int64
	snapshots int64
}

func (s *engineStats) add(field *int64) {
	s.mu.Lock()
	*field++
	s.mu.Unlock()
}

func (s *engineStats) drain() (cycles, opened, closed, refused, snapshots int64) {
	s.mu.Lock()
	cycles, opened, closed, refused, snapshots =
		s.cycles, s.opened, s.closed, s.refused, s.snapshots
	s.cycles, s.opened, s.closed, s.refused, s.snapshots = 0, 0, 0, 0, 0
	s.mu.Unlock()
	return
}

// NewEngine creates an Engine
func NewEngine(store Store, data MarketData, clock *market.Clock, alertMgr *alerts.Manager, cfg config.PortfolioConfig, log zerolog.Logger) *Engine {
	return &Engine{
		store:  store,
		data:   data,
		clock:  clock,
		alerts: alertMgr,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

// EnsureLedger seeds the initial snapshot when the ledger is empty
func (e *Engine) EnsureLedger(ctx context.Context) error {
	_, err := e.store.LatestSnapshot(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return err
	}

	now := e.now()
	seed := &db.PortfolioSnapshot{
		TotalValue:  e.cfg.InitialCapital,
		CashBalance: e.cfg.InitialCapital,
		TradingDay:  e.clock.TradingDay(now),
	}
	if err := e.store.InsertSnapshot(ctx, seed); err != nil {
		return fmt.Errorf("failed to seed ledger: %w", err)
	}
	e.log.Info().Float64("initial_capital", e.cfg.InitialCapital).Msg("Ledger seeded")
	return nil
}

// ledgerState reads the latest snapshot as a LedgerState, applying the
// daily reset when the Eastern trading day has rolled over since the last
// write. Gauges are refreshed as a side effect.
func (e *Engine) ledgerState(ctx context.Context) (LedgerState, error) {
	snap, err := e.store.LatestSnapshot(ctx)
	if err != nil {
		return LedgerState{}, err
	}

	state := LedgerState{
		TotalValue:       snap.TotalValue,
		CashBalance:      snap.CashBalance,
		ActivePositions:  snap.PositionsCount,
		RealizedPnLToday: snap.RealizedPnLToday,
	}
	if !sameTradingDay(snap.TradingDay, e.clock.TradingDay(e.now())) {
		state.RealizedPnLToday = 0
	}

	metrics.CashBalance.Set(state.CashBalance)
	metrics.TotalValue.Set(state.TotalValue)
	metrics.ActivePositions.Set(float64(state.ActivePositions))
	metrics.RealizedPnLToday.Set(state.RealizedPnLToday)
	return state, nil
}

// HandleSignal is the intake path: admission checks, execution pricing and
// the transactional open. Refusals are logged with their reason and leave
// the signal unconsumed for auditing; only infrastructure failures return
// an error.
func (e *Engine) HandleSignal(ctx context.Context, signalID int64) error {
	consumed, err := e.store.HasExperimentForSignal(ctx, signalID)
	if err != nil {
		return err
	}
	if consumed {
		return nil
	}

	view, err := e.store.GetSignalView(ctx, signalID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			e.log.Warn().Int64("signal_id", signalID).Msg("Notification for unknown signal")
			return nil
		}
		return err
	}

	side, ok := experimentSide(view.SignalType)
	if !ok {
		return nil
	}

	log := e.log.With().
		Int64("signal_id", signalID).
		Str("ticker", view.Conditions.Ticker).
		Str("side", string(side)).
		Logger()

	now := e.now()
	if !view.Conditions.EntryStart.IsZero() && now.Before(view.Conditions.EntryStart) {
		e.refuse(log, RefusalWindowNotOpen)
		return nil
	}
	if !view.Conditions.EntryEnd.IsZero() && now.After(view.Conditions.EntryEnd) {
		e.refuse(log, RefusalWindowClosed)
		return nil
	}

	state, err := e.ledgerState(ctx)
	if err != nil {
		return err
	}
	if DailyLossBreached(e.cfg, state) {
		e.refuse(log, RefusalDailyLoss)
		return nil
	}

	size := PositionSize(e.cfg, state, view.Confidence)
	if reason, ok := Admit(e.cfg, state, size); !ok {
		e.refuse(log, reason)
		return nil
	}

	holdHours := view.Conditions.MaxHoldHours
	if holdHours <= 0 {
		holdHours = defaultMaxHoldHours
	}
	deadline, err := HoldDeadline(e.clock, now, holdHours, e.cfg)
	if err != nil {
		e.refuse(log, RefusalInsufficientHold)
		return nil
	}

	exec, err := e.data.RealisticExecution(ctx, view.Conditions.Ticker, entryExecutionSide(side), size)
	if err != nil {
		log.Warn().Err(err).Msg("Execution pricing unavailable")
		e.refuse(log, RefusalNoExecution)
		return nil
	}

	exp := e.buildExperiment(view, side, size, exec, deadline, now)
	if bench, err := e.data.BenchmarkPrice(ctx); err == nil {
		exp.SP500Entry = &bench.Price
	}

	if err := e.store.OpenExperiment(ctx, exp, e.clock.TradingDay(now)); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil
		}
		if errors.Is(err, db.ErrLedgerConsistency) {
			e.alerts.LedgerInconsistent(ctx, "entry cost exceeds ledger cash", size+exp.Commission, state.CashBalance)
			e.refuse(log, RefusalInsufficientCash)
			return nil
		}
		return err
	}

	metrics.PositionsOpened.Inc()
	e.stats.add(&e.stats.opened)
	log.Info().
		Int64("experiment_id", exp.ID).
		Float64("size", exp.PositionSize).
		Float64("shares", exp.Shares).
		Float64("entry_price", exp.EntryPrice).
		Float64("stop_loss", *exp.StopLoss).
		Float64("take_profit", *exp.TakeProfit).
		Time("max_hold_until", deadline).
		Msg("Position opened")
	return nil
}

// Sweep opens positions for recent signals whose notifications were lost
func (e *Engine) Sweep(ctx context.Context) error {
	since := e.now().Add(-24 * time.Hour)
	ids, err := e.store.UnconsumedSignals(ctx, since, 100)
	if err != nil {
		return fmt.Errorf("signal sweep failed: %w", err)
	}
	if len(ids) > 0 {
		e.log.Info().Int("count", len(ids)).Msg("Sweeping unconsumed signals")
	}
	for _, id := range ids {
		if err := e.HandleSignal(ctx, id); err != nil {
			e.log.Error().Err(err).Int64("signal_id", id).Msg("Sweep signal failed")
		}
	}
	return nil
}

// MonitorCycle runs one pass over the open positions: the daily breaker
// first, then per-position exit rules.
func (e *Engine) MonitorCycle(ctx context.Context) error {
	e.stats.add(&e.stats.cycles)
	state, err := e.ledgerState(ctx)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil
		}
		return err
	}

	experiments, err := e.store.ActiveExperiments(ctx)
	if err != nil {
		return err
	}
	if len(experiments) == 0 {
		return nil
	}

	if DailyLossBreached(e.cfg, state) {
		e.log.Warn().
			Float64("realized_today", state.RealizedPnLToday).
			Float64("total_value", state.TotalValue).
			Msg("Daily loss limit breached, closing all positions")
		closed := 0
		for _, exp := range experiments {
			if err := e.closePosition(ctx, exp, db.ExitDailyLoss); err != nil {
				e.log.Error().Err(err).Int64("experiment_id", exp.ID).Msg("Breaker close failed")
				continue
			}
			closed++
		}
		lossPct := 0.0
		if state.TotalValue > 0 {
			lossPct = -state.RealizedPnLToday / state.TotalValue * 100
		}
		e.alerts.DailyLossBreaker(ctx, lossPct, closed)
		return nil
	}

	now := e.now()
	for _, exp := range experiments {
		quote, err := e.data.CurrentPrice(ctx, exp.Ticker, false)
		if err != nil {
			e.log.Warn().Err(err).Int64("experiment_id", exp.ID).Str("ticker", exp.Ticker).
				Msg("No quote for open position, skipping")
			continue
		}

		decision := EvaluateExit(exp, quote.Price, now, e.cfg)
		switch {
		case decision.Close:
			if err := e.closePosition(ctx, exp, decision.Reason); err != nil {
				e.log.Error().Err(err).Int64("experiment_id", exp.ID).Msg("Close failed")
			}
		case decision.Ratchet:
			if err := e.store.UpdateStopLoss(ctx, exp.ID, decision.NewStop, exp.Side); err != nil {
				e.log.Error().Err(err).Int64("experiment_id", exp.ID).Msg("Trailing stop update failed")
			} else {
				e.log.Info().Int64("experiment_id", exp.ID).Float64("new_stop", decision.NewStop).
					Msg("Trailing stop raised")
			}
		}
	}
	return nil
}

// closePosition prices the exit and settles it against the ledger
func (e *Engine) closePosition(ctx context.Context, exp *db.Experiment, reason string) error {
	exec, err := e.data.RealisticExecution(ctx, exp.Ticker, exitExecutionSide(exp.Side), exp.PositionSize)
	if err != nil {
		return fmt.Errorf("exit pricing unavailable: %w", err)
	}

	exitCommission := e.cfg.Commission(exp.Shares * exec.ExecutionPrice)

	var spExit *float64
	if bench, err := e.data.BenchmarkPrice(ctx); err == nil {
		spExit = &bench.Price
	}

	now := e.now()
	cashCredit := CloseAccounting(exp, exec.ExecutionPrice, exitCommission, spExit, reason, now)

	if err := e.store.SettleExperiment(ctx, exp, cashCredit, e.clock.TradingDay(now)); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			// already closed by a concurrent path
			return nil
		}
		return err
	}

	metrics.PositionsClosed.WithLabelValues(reason).Inc()
	e.stats.add(&e.stats.closed)
	event := e.log.Info().
		Int64("experiment_id", exp.ID).
		Str("ticker", exp.Ticker).
		Str("reason", reason).
		Float64("exit_price", *exp.ExitPrice).
		Float64("net_pnl", *exp.NetPnL).
		Float64("return_percent", *exp.ReturnPercent)
	if exp.Alpha != nil {
		event = event.Float64("alpha", *exp.Alpha)
	}
	event.Msg("Position closed")
	return nil
}

// Snapshot writes one portfolio snapshot row: quotes are fetched outside
// the ledger lock, the derived row is appended under it.
func (e *Engine) Snapshot(ctx context.Context) error {
	experiments, err := e.store.ActiveExperiments(ctx)
	if err != nil {
		return err
	}

	unrealized := 0.0
	positionsValue := 0.0
	for _, exp := range experiments {
		quote, err := e.data.CurrentPrice(ctx, exp.Ticker, true)
		if err != nil {
			// carry the position at cost when no quote is available
			positionsValue += exp.PositionSize
			continue
		}
		pnl := (quote.Price - exp.EntryPrice) * exp.Shares
		if exp.Side == db.SideShort {
			pnl = (exp.EntryPrice - quote.Price) * exp.Shares
		}
		unrealized += pnl
		positionsValue += exp.PositionSize + pnl
	}

	var spPrice *float64
	if bench, err := e.data.BenchmarkPrice(ctx); err == nil {
		spPrice = &bench.Price
	}

	now := e.now()
	today := e.clock.TradingDay(now)

	err = e.store.AppendSnapshot(ctx, func(prev *db.PortfolioSnapshot) *db.PortfolioSnapshot {
		if prev == nil {
			return nil
		}
		realizedToday := prev.RealizedPnLToday
		if !sameTradingDay(prev.TradingDay, today) {
			realizedToday = 0
		}

		total := prev.CashBalance + positionsValue
		next := &db.PortfolioSnapshot{
			Timestamp:        now,
			TotalValue:       total,
			CashBalance:      prev.CashBalance,
			PositionsCount:   len(experiments),
			UnrealizedPnL:    unrealized,
			RealizedPnLToday: realizedToday,
			RealizedPnLTotal: prev.RealizedPnLTotal,
			SP500Price:       spPrice,
			TradingDay:       today,
		}
		if total > 0 {
			next.DailyReturn = realizedToday / total * 100
		}
		if e.cfg.InitialCapital > 0 {
			next.TotalReturn = (total/e.cfg.InitialCapital - 1) * 100
		}
		return next
	})
	if err != nil {
		return err
	}
	e.stats.add(&e.stats.snapshots)
	return nil
}

// LogStats logs the hourly activity counters together with the current
// ledger summary, then resets the counters.
func (e *Engine) LogStats(ctx context.Context) {
	cycles, opened, closed, refused, snapshots := e.stats.drain()
	event := e.log.Info().
		Int64("monitor_cycles", cycles).
		Int64("positions_opened", opened).
		Int64("positions_closed", closed).
		Int64("signals_refused", refused).
		Int64("snapshots", snapshots)
	if snap, err := e.store.LatestSnapshot(ctx); err == nil {
		event = event.
			Float64("total_value", snap.TotalValue).
			Float64("cash_balance", snap.CashBalance).
			Int("active_positions", snap.PositionsCount).
			Float64("realized_today", snap.RealizedPnLToday)
	}
	event.Msg("Hourly portfolio stats")
}

// sameTradingDay compares calendar dates by their components: the stored
// trading_day is a DATE while the clock reports Eastern midnight, so
// instant comparison would never match.
func sameTradingDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

func (e *Engine) refuse(log zerolog.Logger, reason string) {
	metrics.AdmissionRefused.WithLabelValues(reason).Inc()
	e.stats.add(&e.stats.refused)
	log.Warn().Str("reason", reason).Msg("Signal refused")
}

// experimentSide maps a signal direction to a position side. HOLD and
// unknown types open nothing; SELL is treated as a short entry.
func experimentSide(t db.SignalType) (db.Side, bool) {
	switch t {
	case db.SignalBuy:
		return db.SideBuy, true
	case db.SignalShort, db.SignalSell:
		return db.SideShort, true
	default:
		return "", false
	}
}

func entryExecutionSide(side db.Side) market.Side {
	if side == db.SideShort {
		return market.SideSell
	}
	return market.SideBuy
}

func exitExecutionSide(side db.Side) market.Side {
	if side == db.SideShort {
		return market.SideBuy
	}
	return market.SideSell
}

func (e *Engine) buildExperiment(view *db.SignalView, side db.Side, size float64, exec *market.Execution, deadline, now time.Time) *db.Experiment {
	stopPct := view.Conditions.StopLossPct
	if stopPct <= 0 {
		stopPct = e.cfg.DefaultStopLossPct
	}
	takePct := view.Conditions.TakeProfitPct
	if takePct <= 0 {
		takePct = e.cfg.DefaultTakeProfitPct
	}

	entryPrice := exec.ExecutionPrice
	var stop, take float64
	if side == db.SideShort {
		stop = entryPrice * (1 + stopPct/100)
		take = entryPrice * (1 - takePct/100)
	} else {
		stop = entryPrice * (1 - stopPct/100)
		take = entryPrice * (1 + takePct/100)
	}

	return &db.Experiment{
		SignalID:     view.ID,
		NewsItemID:   &view.NewsItemID,
		Ticker:       view.Conditions.Ticker,
		Side:         side,
		EntryTime:    now,
		EntryPrice:   entryPrice,
		PositionSize: size,
		Shares:       size / entryPrice,
		Commission:   e.cfg.Commission(size),
		StopLoss:     &stop,
		TakeProfit:   &take,
		MaxHoldUntil: &deadline,
	}
}
