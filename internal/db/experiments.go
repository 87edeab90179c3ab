package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ExperimentStatus is the lifecycle state of a position
type ExperimentStatus string

const (
	ExperimentActive ExperimentStatus = "active"
	ExperimentClosed ExperimentStatus = "closed"
)

// Exit reasons recorded on close
const (
	ExitStopLoss     = "stop_loss"
	ExitTakeProfit   = "take_profit"
	ExitMaxHold      = "max_hold_time_exceeded"
	ExitDailyLoss    = "daily_loss_limit"
	ExitManual       = "manual"
)

// Side is the direction of an experiment
type Side string

const (
	SideBuy   Side = "BUY"
	SideShort Side = "SHORT"
)

// Experiment represents one virtual position opened from a signal
type Experiment struct {
	ID                  int64            `db:"id"`
	SignalID            int64            `db:"signal_id"`
	NewsItemID          *int64           `db:"news_item_id"`
	Ticker              string           `db:"ticker"`
	Side                Side             `db:"side"`
	EntryTime           time.Time        `db:"entry_time"`
	EntryPrice          float64          `db:"entry_price"`
	PositionSize        float64          `db:"position_size"`
	Shares              float64          `db:"shares"`
	Commission          float64          `db:"commission"`
	StopLoss            *float64         `db:"stop_loss"`
	TakeProfit          *float64         `db:"take_profit"`
	MaxHoldUntil        *time.Time       `db:"max_hold_until"`
	SP500Entry          *float64         `db:"sp500_entry"`
	ExitTime            *time.Time       `db:"exit_time"`
	ExitPrice           *float64         `db:"exit_price"`
	ExitCommission      *float64         `db:"exit_commission"`
	ExitReason          *string          `db:"exit_reason"`
	GrossPnL            *float64         `db:"gross_pnl"`
	NetPnL              *float64         `db:"net_pnl"`
	ReturnPercent       *float64         `db:"return_percent"`
	HoldDurationMinutes *int             `db:"hold_duration_minutes"`
	SP500Return         *float64         `db:"sp500_return"`
	Alpha               *float64         `db:"alpha"`
	Status              ExperimentStatus `db:"status"`
	CreatedAt           time.Time        `db:"created_at"`
	UpdatedAt           time.Time        `db:"updated_at"`
}

const experimentColumns = `id, signal_id, news_item_id, ticker, side, entry_time, entry_price,
	position_size, shares, commission, stop_loss, take_profit, max_hold_until,
	sp500_entry, exit_time, exit_price, exit_commission, exit_reason,
	gross_pnl, net_pnl, return_percent, hold_duration_minutes, sp500_return,
	alpha, status, created_at, updated_at`

func scanExperiment(row pgx.Row) (*Experiment, error) {
	var e Experiment
	err := row.Scan(
		&e.ID, &e.SignalID, &e.NewsItemID, &e.Ticker, &e.Side, &e.EntryTime, &e.EntryPrice,
		&e.PositionSize, &e.Shares, &e.Commission, &e.StopLoss, &e.TakeProfit,
		&e.MaxHoldUntil, &e.SP500Entry, &e.ExitTime, &e.ExitPrice, &e.ExitCommission,
		&e.ExitReason, &e.GrossPnL, &e.NetPnL, &e.ReturnPercent, &e.HoldDurationMinutes,
		&e.SP500Return, &e.Alpha, &e.Status, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan experiment: %w", err)
	}
	return &e, nil
}

// InsertExperimentTx inserts a new active experiment inside the caller's
// transaction. The unique constraint on signal_id makes re-delivered signal
// notifications idempotent: the second insert returns ErrDuplicate.
func InsertExperimentTx(ctx context.Context, tx pgx.Tx, e *Experiment) error {
	query := `
		INSERT INTO experiments (
			signal_id, news_item_id, ticker, side, entry_time, entry_price,
			position_size, shares, commission, stop_loss, take_profit,
			max_hold_until, sp500_entry, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 'active')
		RETURNING id, created_at, updated_at
	`

	err := tx.QueryRow(ctx, query,
		e.SignalID, e.NewsItemID, e.Ticker, e.Side, e.EntryTime, e.EntryPrice,
		e.PositionSize, e.Shares, e.Commission, e.StopLoss, e.TakeProfit,
		e.MaxHoldUntil, e.SP500Entry,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert experiment: %w", err)
	}
	e.Status = ExperimentActive
	return nil
}

// ActiveExperiments returns all currently open positions
func (db *DB) ActiveExperiments(ctx context.Context) ([]*Experiment, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM experiments WHERE status = 'active' ORDER BY entry_time ASC",
		experimentColumns,
	)

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active experiments: %w", err)
	}
	defer rows.Close()

	var experiments []*Experiment
	for rows.Next() {
		var e Experiment
		err := rows.Scan(
			&e.ID, &e.SignalID, &e.NewsItemID, &e.Ticker, &e.Side, &e.EntryTime, &e.EntryPrice,
			&e.PositionSize, &e.Shares, &e.Commission, &e.StopLoss, &e.TakeProfit,
			&e.MaxHoldUntil, &e.SP500Entry, &e.ExitTime, &e.ExitPrice, &e.ExitCommission,
			&e.ExitReason, &e.GrossPnL, &e.NetPnL, &e.ReturnPercent, &e.HoldDurationMinutes,
			&e.SP500Return, &e.Alpha, &e.Status, &e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		experiments = append(experiments, &e)
	}
	return experiments, rows.Err()
}

// GetExperiment loads one experiment by id
func (db *DB) GetExperiment(ctx context.Context, id int64) (*Experiment, error) {
	query := fmt.Sprintf("SELECT %s FROM experiments WHERE id = $1", experimentColumns)
	return scanExperiment(db.pool.QueryRow(ctx, query, id))
}

// HasExperimentForSignal reports whether a signal has already been consumed
func (db *DB) HasExperimentForSignal(ctx context.Context, signalID int64) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM experiments WHERE signal_id = $1)", signalID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check experiment existence: %w", err)
	}
	return exists, nil
}

// UpdateStopLoss tightens the stop price on an open position (trailing
// stop). Long stops only move up, short stops only move down; the WHERE
// clause keeps the ratchet monotone even under concurrent updates.
func (db *DB) UpdateStopLoss(ctx context.Context, id int64, newStop float64, side Side) error {
	comparison := "stop_loss < $2"
	if side == SideShort {
		comparison = "stop_loss > $2"
	}
	query := fmt.Sprintf(`
		UPDATE experiments
		SET stop_loss = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'active' AND (stop_loss IS NULL OR %s)
	`, comparison)

	_, err := db.pool.Exec(ctx, query, id, newStop)
	if err != nil {
		return fmt.Errorf("failed to update stop loss: %w", err)
	}
	return nil
}

// CloseExperimentTx finalizes a position inside the caller's transaction,
// writing all exit accounting fields in one statement.
func CloseExperimentTx(ctx context.Context, tx pgx.Tx, e *Experiment) error {
	query := `
		UPDATE experiments
		SET exit_time = $2, exit_price = $3, exit_commission = $4, exit_reason = $5,
		    gross_pnl = $6, net_pnl = $7, return_percent = $8,
		    hold_duration_minutes = $9, sp500_return = $10, alpha = $11,
		    status = 'closed', updated_at = NOW()
		WHERE id = $1 AND status = 'active'
	`

	tag, err := tx.Exec(ctx, query,
		e.ID, e.ExitTime, e.ExitPrice, e.ExitCommission, e.ExitReason,
		e.GrossPnL, e.NetPnL, e.ReturnPercent, e.HoldDurationMinutes,
		e.SP500Return, e.Alpha,
	)
	if err != nil {
		return fmt.Errorf("failed to close experiment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	e.Status = ExperimentClosed
	return nil
}
