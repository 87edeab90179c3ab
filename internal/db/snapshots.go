package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// PortfolioSnapshot is one append-only ledger row. The latest row is the
// authoritative cash ledger for the portfolio engine.
type PortfolioSnapshot struct {
	ID               int64     `db:"id"`
	Timestamp        time.Time `db:"timestamp"`
	TotalValue       float64   `db:"total_value"`
	CashBalance      float64   `db:"cash_balance"`
	PositionsCount   int       `db:"positions_count"`
	UnrealizedPnL    float64   `db:"unrealized_pnl"`
	RealizedPnLToday float64   `db:"realized_pnl_today"`
	RealizedPnLTotal float64   `db:"realized_pnl_total"`
	DailyReturn      float64   `db:"daily_return"`
	TotalReturn      float64   `db:"total_return"`
	SP500Price       *float64  `db:"sp500_price"`
	TradingDay       time.Time `db:"trading_day"`
}

const snapshotColumns = `id, timestamp, total_value, cash_balance, positions_count,
	unrealized_pnl, realized_pnl_today, realized_pnl_total, daily_return,
	total_return, sp500_price, trading_day`

func scanSnapshot(row pgx.Row) (*PortfolioSnapshot, error) {
	var s PortfolioSnapshot
	err := row.Scan(
		&s.ID, &s.Timestamp, &s.TotalValue, &s.CashBalance, &s.PositionsCount,
		&s.UnrealizedPnL, &s.RealizedPnLToday, &s.RealizedPnLTotal,
		&s.DailyReturn, &s.TotalReturn, &s.SP500Price, &s.TradingDay,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}
	return &s, nil
}

// LatestSnapshot returns the most recent ledger row
func (db *DB) LatestSnapshot(ctx context.Context) (*PortfolioSnapshot, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM portfolio_snapshots ORDER BY timestamp DESC LIMIT 1",
		snapshotColumns,
	)
	return scanSnapshot(db.pool.QueryRow(ctx, query))
}

// LatestSnapshotForUpdateTx loads the latest ledger row with a row lock.
// Every cash mutation must go through this inside a transaction so
// concurrent writers serialize on the ledger.
func LatestSnapshotForUpdateTx(ctx context.Context, tx pgx.Tx) (*PortfolioSnapshot, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM portfolio_snapshots ORDER BY timestamp DESC LIMIT 1 FOR UPDATE",
		snapshotColumns,
	)
	return scanSnapshot(tx.QueryRow(ctx, query))
}

// InsertSnapshotTx appends a new ledger row inside the caller's transaction
func InsertSnapshotTx(ctx context.Context, tx pgx.Tx, s *PortfolioSnapshot) error {
	query := `
		INSERT INTO portfolio_snapshots (
			timestamp, total_value, cash_balance, positions_count,
			unrealized_pnl, realized_pnl_today, realized_pnl_total,
			daily_return, total_return, sp500_price, trading_day
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	err := tx.QueryRow(ctx, query,
		s.Timestamp, s.TotalValue, s.CashBalance, s.PositionsCount,
		s.UnrealizedPnL, s.RealizedPnLToday, s.RealizedPnLTotal,
		s.DailyReturn, s.TotalReturn, s.SP500Price, s.TradingDay,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// InsertSnapshot appends a new ledger row outside any larger transaction
func (db *DB) InsertSnapshot(ctx context.Context, s *PortfolioSnapshot) error {
	return db.WithTx(ctx, func(tx pgx.Tx) error {
		return InsertSnapshotTx(ctx, tx, s)
	})
}
