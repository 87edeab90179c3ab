// Package newsfeed fetches general market news from Finnhub.
package newsfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrRateLimited means Finnhub returned HTTP 429
var ErrRateLimited = errors.New("news feed rate limited")

// Item is one news item as reported by the feed
type Item struct {
	ID          string
	Headline    string
	Summary     string
	Source      string
	URL         string
	PublishedAt time.Time
}

// Feed is the news source interface, satisfied by the Finnhub client
type Feed interface {
	Latest(ctx context.Context) ([]Item, error)
}

// Client reads the Finnhub general news endpoint
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Finnhub news client
func New(apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    "https://finnhub.io/api/v1",
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type finnhubNewsItem struct {
	ID       int64  `json:"id"`
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
	Source   string `json:"source"`
	URL      string `json:"url"`
	Datetime int64  `json:"datetime"` // unix seconds
}

// Latest returns the current general news batch, newest first as Finnhub
// reports it. Items without a headline are dropped.
func (c *Client) Latest(ctx context.Context) ([]Item, error) {
	endpoint := fmt.Sprintf("%s/news?category=general&token=%s", c.baseURL, url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read news feed response: %w", err)
	}

	var raw []finnhubNewsItem
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse news feed response: %w", err)
	}

	items := make([]Item, 0, len(raw))
	for _, r := range raw {
		if r.Headline == "" {
			continue
		}
		items = append(items, Item{
			ID:          fmt.Sprintf("finnhub-%d", r.ID),
			Headline:    r.Headline,
			Summary:     r.Summary,
			Source:      r.Source,
			URL:         r.URL,
			PublishedAt: time.Unix(r.Datetime, 0).UTC(),
		})
	}
	return items, nil
}
