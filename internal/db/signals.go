package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// SignalType is the direction of a trading signal
type SignalType string

const (
	SignalBuy   SignalType = "BUY"
	SignalSell  SignalType = "SELL"
	SignalShort SignalType = "SHORT"
	SignalHold  SignalType = "HOLD"
)

// MarketConditions is the structured payload attached to a signal. It
// carries everything the portfolio engine needs without re-joining waves.
type MarketConditions struct {
	Ticker           string    `json:"ticker"`
	ExpectedMovePct  float64   `json:"expected_move_percent"`
	StopLossPct      float64   `json:"stop_loss_percent"`
	TakeProfitPct    float64   `json:"take_profit_percent"`
	MaxHoldHours     int       `json:"max_hold_hours"`
	TickerValidated  bool      `json:"ticker_validated"`
	MarketStatus     string    `json:"market_status"`
	NewsType         string    `json:"news_type,omitempty"`
	EntryStart       time.Time `json:"entry_start"`
	EntryEnd         time.Time `json:"entry_end"`
	WaveStartMinutes int       `json:"wave_start_minutes"`
	WaveEndMinutes   int       `json:"wave_end_minutes"`
}

// TradingSignal represents one persisted directional signal
type TradingSignal struct {
	ID              int64            `db:"id"`
	NewsItemID      int64            `db:"news_item_id"`
	SignalType      SignalType       `db:"signal_type"`
	Confidence      float64          `db:"confidence"` // normalized 0..1
	Wave            int              `db:"wave"`
	WaveDescription string           `db:"wave_description"`
	Reasoning       string           `db:"reasoning"`
	Conditions      MarketConditions `db:"market_conditions"`
	CreatedAt       time.Time        `db:"created_at"`
}

// SignalView is a signal joined with its news item, shaped for the
// portfolio engine.
type SignalView struct {
	TradingSignal
	Headline    string    `db:"headline"`
	PublishedAt time.Time `db:"published_at"`
}

// InsertSignals persists a batch of signals and stamps the source news item
// processed in the same transaction. The insert trigger fires one
// new_trading_signals notification per row.
func (db *DB) InsertSignals(ctx context.Context, newsItemID int64, signals []*TradingSignal) error {
	return db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, s := range signals {
			conditions, err := json.Marshal(s.Conditions)
			if err != nil {
				return fmt.Errorf("failed to marshal market conditions: %w", err)
			}

			err = tx.QueryRow(ctx, `
				INSERT INTO trading_signals (
					news_item_id, signal_type, confidence, wave,
					wave_description, reasoning, market_conditions
				) VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING id, created_at
			`,
				newsItemID, s.SignalType, s.Confidence, s.Wave,
				s.WaveDescription, s.Reasoning, conditions,
			).Scan(&s.ID, &s.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert trading signal: %w", err)
			}
		}

		tag, err := tx.Exec(ctx,
			"UPDATE news_items SET processed_by_block2 = TRUE WHERE id = $1",
			newsItemID,
		)
		if err != nil {
			return fmt.Errorf("failed to mark news processed: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// GetSignalView loads a signal joined with its news item
func (db *DB) GetSignalView(ctx context.Context, signalID int64) (*SignalView, error) {
	query := `
		SELECT s.id, s.news_item_id, s.signal_type, s.confidence, s.wave,
		       s.wave_description, s.reasoning, s.market_conditions, s.created_at,
		       n.headline, n.published_at
		FROM trading_signals s
		JOIN news_items n ON n.id = s.news_item_id
		WHERE s.id = $1
	`

	var v SignalView
	var conditions []byte
	err := db.pool.QueryRow(ctx, query, signalID).Scan(
		&v.ID, &v.NewsItemID, &v.SignalType, &v.Confidence, &v.Wave,
		&v.WaveDescription, &v.Reasoning, &conditions, &v.CreatedAt,
		&v.Headline, &v.PublishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load signal: %w", err)
	}
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &v.Conditions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal market conditions: %w", err)
		}
	}
	return &v, nil
}

// UnconsumedSignals returns recent signals with no experiment attached. The
// portfolio engine drains these on startup to recover lost notifications.
func (db *DB) UnconsumedSignals(ctx context.Context, since time.Time, limit int) ([]int64, error) {
	query := `
		SELECT s.id
		FROM trading_signals s
		LEFT JOIN experiments e ON e.signal_id = s.id
		WHERE e.id IS NULL AND s.created_at >= $1
		ORDER BY s.created_at ASC
		LIMIT $2
	`

	rows, err := db.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unconsumed signals: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan signal id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
