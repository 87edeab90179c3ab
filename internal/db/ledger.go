package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// The latest portfolio snapshot is the cash ledger. Every mutation locks it
// with FOR UPDATE, derives the next row and appends it, so concurrent
// writers serialize on the row lock and cash arithmetic never interleaves.

// rollSnapshot derives the next ledger row from the previous one, resetting
// the daily realized P&L when the trading day changed.
func rollSnapshot(prev *PortfolioSnapshot, tradingDay time.Time) *PortfolioSnapshot {
	next := *prev
	next.ID = 0
	next.Timestamp = time.Time{}
	if !sameDay(prev.TradingDay, tradingDay) {
		next.RealizedPnLToday = 0
		next.DailyReturn = 0
	}
	next.TradingDay = tradingDay
	return &next
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// OpenExperiment inserts an active experiment and debits the ledger by the
// position size plus commission in one transaction. A duplicate signal
// returns ErrDuplicate with nothing written; insufficient cash returns
// ErrLedgerConsistency.
func (db *DB) OpenExperiment(ctx context.Context, e *Experiment, tradingDay time.Time) error {
	return db.WithTx(ctx, func(tx pgx.Tx) error {
		snap, err := LatestSnapshotForUpdateTx(ctx, tx)
		if err != nil {
			return err
		}

		cost := e.PositionSize + e.Commission
		if snap.CashBalance < cost {
			return fmt.Errorf("%w: cash %.2f below entry cost %.2f",
				ErrLedgerConsistency, snap.CashBalance, cost)
		}

		if err := InsertExperimentTx(ctx, tx, e); err != nil {
			return err
		}

		next := rollSnapshot(snap, tradingDay)
		next.CashBalance -= cost
		next.TotalValue -= e.Commission
		next.PositionsCount++
		return InsertSnapshotTx(ctx, tx, next)
	})
}

// SettleExperiment closes an experiment and credits the ledger in one
// transaction. cashCredit is the full amount returned to cash (margin plus
// net P&L); the experiment's exit accounting fields must already be set.
func (db *DB) SettleExperiment(ctx context.Context, e *Experiment, cashCredit float64, tradingDay time.Time) error {
	if e.NetPnL == nil {
		return fmt.Errorf("experiment %d has no exit accounting", e.ID)
	}

	return db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := CloseExperimentTx(ctx, tx, e); err != nil {
			return err
		}

		snap, err := LatestSnapshotForUpdateTx(ctx, tx)
		if err != nil {
			return err
		}

		next := rollSnapshot(snap, tradingDay)
		next.CashBalance += cashCredit
		if next.PositionsCount > 0 {
			next.PositionsCount--
		}
		next.RealizedPnLToday += *e.NetPnL
		next.RealizedPnLTotal += *e.NetPnL
		next.TotalValue += *e.NetPnL
		return InsertSnapshotTx(ctx, tx, next)
	})
}

// AppendSnapshot locks the latest ledger row, lets the caller derive the
// next row from it and appends the result. prev is nil when the ledger is
// empty; returning nil from build skips the append.
func (db *DB) AppendSnapshot(ctx context.Context, build func(prev *PortfolioSnapshot) *PortfolioSnapshot) error {
	return db.WithTx(ctx, func(tx pgx.Tx) error {
		prev, err := LatestSnapshotForUpdateTx(ctx, tx)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}

		next := build(prev)
		if next == nil {
			return nil
		}
		return InsertSnapshotTx(ctx, tx, next)
	})
}
