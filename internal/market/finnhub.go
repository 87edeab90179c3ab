package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// FinnhubProvider reads quotes from the Finnhub quote endpoint. It also
// backs the ticker validator via the symbol profile endpoint.
type FinnhubProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewFinnhubProvider creates a Finnhub provider
func NewFinnhubProvider(apiKey string, timeout time.Duration) *FinnhubProvider {
	return &FinnhubProvider{
		baseURL:    "https://finnhub.io/api/v1",
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name implements Provider
func (p *FinnhubProvider) Name() string { return "finnhub" }

type finnhubQuote struct {
	Current float64 `json:"c"`
	High    float64 `json:"h"`
	Low     float64 `json:"l"`
	Open    float64 `json:"o"`
}

// Quote implements Provider. Finnhub answers unknown tickers with a zero
// quote, which is treated as authoritative not-found.
func (p *FinnhubProvider) Quote(ctx context.Context, ticker string) (*Quote, error) {
	endpoint := fmt.Sprintf("%s/quote?symbol=%s&token=%s",
		p.baseURL, url.QueryEscape(ticker), url.QueryEscape(p.apiKey))

	body, err := p.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var q finnhubQuote
	if err := json.Unmarshal(body, &q); err != nil {
		return nil, fmt.Errorf("failed to parse finnhub quote: %w", err)
	}

	if q.Current <= 0 {
		return nil, ErrTickerNotFound
	}

	return &Quote{
		Ticker:    ticker,
		Price:     q.Current,
		Timestamp: time.Now(),
		Source:    p.Name(),
	}, nil
}

// Profile fetches the company profile for a ticker. An empty profile is
// Finnhub's authoritative way of saying the symbol does not exist.
func (p *FinnhubProvider) Profile(ctx context.Context, ticker string) (*TickerInfo, error) {
	endpoint := fmt.Sprintf("%s/stock/profile2?symbol=%s&token=%s",
		p.baseURL, url.QueryEscape(ticker), url.QueryEscape(p.apiKey))

	body, err := p.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var profile struct {
		Name              string  `json:"name"`
		Ticker            string  `json:"ticker"`
		FinnhubIndustry   string  `json:"finnhubIndustry"`
		MarketCap         float64 `json:"marketCapitalization"`
		Currency          string  `json:"currency"`
	}
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse finnhub profile: %w", err)
	}

	if profile.Name == "" && profile.Ticker == "" {
		return nil, ErrTickerNotFound
	}

	currency := profile.Currency
	if currency == "" {
		currency = "USD"
	}
	return &TickerInfo{
		Name:      profile.Name,
		Sector:    profile.FinnhubIndustry,
		MarketCap: profile.MarketCap,
		Currency:  currency,
	}, nil
}

func (p *FinnhubProvider) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("finnhub request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("finnhub returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
