package db

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotRows(s *PortfolioSnapshot) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "timestamp", "total_value", "cash_balance", "positions_count",
		"unrealized_pnl", "realized_pnl_today", "realized_pnl_total",
		"daily_return", "total_return", "sp500_price", "trading_day",
	}).AddRow(
		s.ID, s.Timestamp, s.TotalValue, s.CashBalance, s.PositionsCount,
		s.UnrealizedPnL, s.RealizedPnLToday, s.RealizedPnLTotal,
		s.DailyReturn, s.TotalReturn, s.SP500Price, s.TradingDay,
	)
}

func baseSnapshot() *PortfolioSnapshot {
	return &PortfolioSnapshot{
		ID:             3,
		Timestamp:      testTime(),
		TotalValue:     10000.0,
		CashBalance:    9000.0,
		PositionsCount: 1,
		TradingDay:     time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
	}
}

func TestOpenExperiment_DebitsLedger(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewWithPool(mock)
	prev := baseSnapshot()

	exp := &Experiment{
		SignalID:     7,
		Ticker:       "AAPL",
		Side:         SideBuy,
		EntryTime:    testTime(),
		EntryPrice:   100.10,
		PositionSize: 800.0,
		Shares:       7.992,
		Commission:   1.0,
	}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM portfolio_snapshots (.+) FOR UPDATE").
		WillReturnRows(snapshotRows(prev))
	mock.ExpectQuery("INSERT INTO experiments").
		WithArgs(exp.SignalID, exp.NewsItemID, exp.Ticker, exp.Side, exp.EntryTime, exp.EntryPrice,
			exp.PositionSize, exp.Shares, exp.Commission, exp.StopLoss, exp.TakeProfit,
			exp.MaxHoldUntil, exp.SP500Entry).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(21), testTime(), testTime()))
	mock.ExpectQuery("INSERT INTO portfolio_snapshots").
		WithArgs(pgxmock.AnyArg(), 9999.0, 8199.0, 2,
			prev.UnrealizedPnL, prev.RealizedPnLToday, prev.RealizedPnLTotal,
			prev.DailyReturn, prev.TotalReturn, prev.SP500Price, prev.TradingDay).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(4)))
	mock.ExpectCommit()

	err = store.OpenExperiment(context.Background(), exp, prev.TradingDay)
	require.NoError(t, err)
	assert.Equal(t, int64(21), exp.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenExperiment_InsufficientCash(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewWithPool(mock)
	prev := baseSnapshot()
	prev.CashBalance = 500.0

	exp := &Experiment{SignalID: 7, PositionSize: 800.0, Commission: 1.0}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM portfolio_snapshots (.+) FOR UPDATE").
		WillReturnRows(snapshotRows(prev))
	mock.ExpectRollback()

	err = store.OpenExperiment(context.Background(), exp, prev.TradingDay)
	assert.ErrorIs(t, err, ErrLedgerConsistency)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleExperiment_CreditsLedgerAndResetsDay(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewWithPool(mock)
	prev := baseSnapshot()
	prev.RealizedPnLToday = -100.0
	prev.RealizedPnLTotal = 250.0

	exitTime := testTime()
	exitPrice := 105.0
	exitComm := 1.0
	reason := ExitTakeProfit
	gross := 40.0
	net := 38.0
	ret := 4.74
	hold := 120

	exp := &Experiment{
		ID:                  21,
		PositionSize:        800.0,
		Commission:          1.0,
		ExitTime:            &exitTime,
		ExitPrice:           &exitPrice,
		ExitCommission:      &exitComm,
		ExitReason:          &reason,
		GrossPnL:            &gross,
		NetPnL:              &net,
		ReturnPercent:       &ret,
		HoldDurationMinutes: &hold,
	}

	// settling on the next trading day resets realized_pnl_today first
	nextDay := prev.TradingDay.AddDate(0, 0, 1)
	cashCredit := exp.PositionSize + exp.Commission + net

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE experiments").
		WithArgs(exp.ID, exp.ExitTime, exp.ExitPrice, exp.ExitCommission, exp.ExitReason,
			exp.GrossPnL, exp.NetPnL, exp.ReturnPercent, exp.HoldDurationMinutes,
			exp.SP500Return, exp.Alpha).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("SELECT (.+) FROM portfolio_snapshots (.+) FOR UPDATE").
		WillReturnRows(snapshotRows(prev))
	mock.ExpectQuery("INSERT INTO portfolio_snapshots").
		WithArgs(pgxmock.AnyArg(), 10038.0, 9000.0+cashCredit, 0,
			prev.UnrealizedPnL, 38.0, 288.0,
			0.0, prev.TotalReturn, prev.SP500Price, nextDay).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectCommit()

	err = store.SettleExperiment(context.Background(), exp, cashCredit, nextDay)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
