package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// NewsItem represents a fetched and scored news item
type NewsItem struct {
	ID                int64      `db:"id"`
	NewsID            string     `db:"news_id"`
	Headline          string     `db:"headline"`
	Summary           *string    `db:"summary"`
	URL               *string    `db:"url"`
	PublishedAt       time.Time  `db:"published_at"`
	ProcessedAt       *time.Time `db:"processed_at"`
	SignificanceScore int        `db:"significance_score"`
	Reasoning         *string    `db:"reasoning"`
	IsSignificant     bool       `db:"is_significant"`
	ProcessedByBlock2 bool       `db:"processed_by_block2"`
	SkipReason        *string    `db:"skip_reason"`
	CreatedAt         time.Time  `db:"created_at"`
}

const newsColumns = `id, news_id, headline, summary, url, published_at, processed_at,
	significance_score, reasoning, is_significant, processed_by_block2, skip_reason, created_at`

func scanNewsItem(row pgx.Row) (*NewsItem, error) {
	var n NewsItem
	err := row.Scan(
		&n.ID, &n.NewsID, &n.Headline, &n.Summary, &n.URL, &n.PublishedAt,
		&n.ProcessedAt, &n.SignificanceScore, &n.Reasoning, &n.IsSignificant,
		&n.ProcessedByBlock2, &n.SkipReason, &n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan news item: %w", err)
	}
	return &n, nil
}

// InsertNewsItem persists a scored news item. Duplicate external ids are a
// no-op: the method returns ErrDuplicate and leaves the existing row intact.
// The significance trigger fires the new_significant_news notification.
func (db *DB) InsertNewsItem(ctx context.Context, item *NewsItem) error {
	query := `
		INSERT INTO news_items (
			news_id, headline, summary, url, published_at, processed_at,
			significance_score, reasoning, is_significant
		) VALUES ($1, $2, $3, $4, $5, NOW(), $6, $7, $8)
		ON CONFLICT (news_id) DO NOTHING
		RETURNING id
	`

	err := db.pool.QueryRow(ctx, query,
		item.NewsID,
		item.Headline,
		item.Summary,
		item.URL,
		item.PublishedAt,
		item.SignificanceScore,
		item.Reasoning,
		item.IsSignificant,
	).Scan(&item.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert news item: %w", err)
	}
	return nil
}

// GetNewsItem loads one news item by internal id
func (db *DB) GetNewsItem(ctx context.Context, id int64) (*NewsItem, error) {
	query := fmt.Sprintf("SELECT %s FROM news_items WHERE id = $1", newsColumns)
	return scanNewsItem(db.pool.QueryRow(ctx, query, id))
}

// NewsExists reports whether a news item with the external id is already stored
func (db *DB) NewsExists(ctx context.Context, newsID string) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM news_items WHERE news_id = $1)", newsID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check news existence: %w", err)
	}
	return exists, nil
}

// PendingSignificantNews returns the newest significant items the extractor
// has not processed yet. Used by the startup sweep.
func (db *DB) PendingSignificantNews(ctx context.Context, limit int) ([]*NewsItem, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM news_items
		WHERE is_significant = TRUE AND processed_by_block2 = FALSE
		ORDER BY published_at DESC
		LIMIT $1
	`, newsColumns)

	rows, err := db.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending news: %w", err)
	}
	defer rows.Close()

	var items []*NewsItem
	for rows.Next() {
		var n NewsItem
		err := rows.Scan(
			&n.ID, &n.NewsID, &n.Headline, &n.Summary, &n.URL, &n.PublishedAt,
			&n.ProcessedAt, &n.SignificanceScore, &n.Reasoning, &n.IsSignificant,
			&n.ProcessedByBlock2, &n.SkipReason, &n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan news item: %w", err)
		}
		items = append(items, &n)
	}
	return items, rows.Err()
}

// MarkNewsProcessed stamps a news item processed with an optional skip
// reason, outside any signal-producing transaction (delayed or failed items).
func (db *DB) MarkNewsProcessed(ctx context.Context, id int64, skipReason string) error {
	var reason *string
	if skipReason != "" {
		reason = &skipReason
	}
	tag, err := db.pool.Exec(ctx,
		"UPDATE news_items SET processed_by_block2 = TRUE, skip_reason = $2 WHERE id = $1",
		id, reason,
	)
	if err != nil {
		return fmt.Errorf("failed to mark news processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
