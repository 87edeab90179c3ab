package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// AlphaVantageProvider is the last-resort quote source, backed by the
// GLOBAL_QUOTE function.
type AlphaVantageProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewAlphaVantageProvider creates an Alpha Vantage provider
func NewAlphaVantageProvider(apiKey string, timeout time.Duration) *AlphaVantageProvider {
	return &AlphaVantageProvider{
		baseURL:    "https://www.alphavantage.co/query",
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name implements Provider
func (p *AlphaVantageProvider) Name() string { return "alpha_vantage" }

// Quote implements Provider
func (p *AlphaVantageProvider) Quote(ctx context.Context, ticker string) (*Quote, error) {
	endpoint := fmt.Sprintf("%s?function=GLOBAL_QUOTE&symbol=%s&apikey=%s",
		p.baseURL, url.QueryEscape(ticker), url.QueryEscape(p.apiKey))

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("alpha vantage request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alpha vantage returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read alpha vantage response: %w", err)
	}

	var payload struct {
		GlobalQuote map[string]string `json:"Global Quote"`
		Note        string            `json:"Note"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse alpha vantage response: %w", err)
	}

	// A Note with an empty quote is Alpha Vantage's rate-limit signal
	if payload.Note != "" && len(payload.GlobalQuote) == 0 {
		return nil, ErrRateLimited
	}
	// An empty quote object is authoritative not-found
	if len(payload.GlobalQuote) == 0 || payload.GlobalQuote["05. price"] == "" {
		return nil, ErrTickerNotFound
	}

	price, err := strconv.ParseFloat(payload.GlobalQuote["05. price"], 64)
	if err != nil || price <= 0 {
		return nil, fmt.Errorf("alpha vantage returned invalid price %q", payload.GlobalQuote["05. price"])
	}

	var volume int64
	if v := payload.GlobalQuote["06. volume"]; v != "" {
		volume, _ = strconv.ParseInt(v, 10, 64)
	}

	return &Quote{
		Ticker:    ticker,
		Price:     price,
		Volume:    volume,
		Timestamp: time.Now(),
		Source:    p.Name(),
	}, nil
}
