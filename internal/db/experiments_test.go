package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertExperimentTx_DuplicateSignal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	stop := 97.0
	take := 105.0
	exp := &Experiment{
		SignalID:     5,
		Ticker:       "AAPL",
		Side:         SideBuy,
		EntryTime:    testTime(),
		EntryPrice:   100.0,
		PositionSize: 800.0,
		Shares:       8.0,
		Commission:   1.0,
		StopLoss:     &stop,
		TakeProfit:   &take,
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO experiments").
		WithArgs(exp.SignalID, exp.NewsItemID, exp.Ticker, exp.Side, exp.EntryTime, exp.EntryPrice,
			exp.PositionSize, exp.Shares, exp.Commission, exp.StopLoss, exp.TakeProfit,
			exp.MaxHoldUntil, exp.SP500Entry).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = InsertExperimentTx(context.Background(), tx, exp)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestCloseExperimentTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	exitTime := testTime()
	exitPrice := 96.0
	exitComm := 1.0
	reason := ExitStopLoss
	gross := -32.0
	net := -34.0
	ret := -4.24
	hold := 95

	exp := &Experiment{
		ID:                  11,
		ExitTime:            &exitTime,
		ExitPrice:           &exitPrice,
		ExitCommission:      &exitComm,
		ExitReason:          &reason,
		GrossPnL:            &gross,
		NetPnL:              &net,
		ReturnPercent:       &ret,
		HoldDurationMinutes: &hold,
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE experiments").
		WithArgs(exp.ID, exp.ExitTime, exp.ExitPrice, exp.ExitCommission, exp.ExitReason,
			exp.GrossPnL, exp.NetPnL, exp.ReturnPercent, exp.HoldDurationMinutes,
			exp.SP500Return, exp.Alpha).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = CloseExperimentTx(context.Background(), tx, exp)
	require.NoError(t, err)
	assert.Equal(t, ExperimentClosed, exp.Status)
}

func TestCloseExperimentTx_AlreadyClosed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	exp := &Experiment{ID: 11}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE experiments").
		WithArgs(exp.ID, exp.ExitTime, exp.ExitPrice, exp.ExitCommission, exp.ExitReason,
			exp.GrossPnL, exp.NetPnL, exp.ReturnPercent, exp.HoldDurationMinutes,
			exp.SP500Return, exp.Alpha).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = CloseExperimentTx(context.Background(), tx, exp)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStopLoss(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewWithPool(mock)

	mock.ExpectExec("UPDATE experiments").
		WithArgs(int64(11), 101.455).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = store.UpdateStopLoss(context.Background(), 11, 101.455, SideBuy)
	require.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}
