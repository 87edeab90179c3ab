package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// YahooProvider reads quotes from the Yahoo chart API. Yahoo throttles
// aggressively: requests go through a minimum-gap rate limiter, and a 429
// disables the provider for a cool-off window via a circuit breaker.
type YahooProvider struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

// NewYahooProvider creates a Yahoo provider with the given minimum gap
// between requests and 429 cool-off duration.
func NewYahooProvider(timeout, minGap, coolOff time.Duration) *YahooProvider {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "yahoo",
		MaxRequests: 1,
		Timeout:     coolOff,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// a single 429 disables the provider for the cool-off window
			return counts.ConsecutiveFailures >= 1
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Quote provider breaker state changed")
		},
	})

	return &YahooProvider{
		baseURL:    "https://query1.finance.yahoo.com/v8/finance/chart",
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Every(minGap), 1),
		breaker:    breaker,
	}
}

// Name implements Provider
func (p *YahooProvider) Name() string { return "yahoo" }

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				RegularMarketVolume int64  `json:"regularMarketVolume"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Quote implements Provider. Only 429s count as breaker failures; other
// errors pass through without tripping the cool-off.
func (p *YahooProvider) Quote(ctx context.Context, ticker string) (*Quote, error) {
	type outcome struct {
		quote *Quote
		err   error
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		quote, err := p.fetch(ctx, ticker)
		if errors.Is(err, ErrRateLimited) {
			return nil, err
		}
		return outcome{quote: quote, err: err}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrProviderDisabled
		}
		return nil, err
	}

	o := result.(outcome)
	return o.quote, o.err
}

func (p *YahooProvider) fetch(ctx context.Context, ticker string) (*Quote, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s?interval=1d&range=1d", p.baseURL, ticker)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; wavesens/1.0)")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrTickerNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read yahoo response: %w", err)
	}

	var chart yahooChartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("failed to parse yahoo response: %w", err)
	}

	if chart.Chart.Error != nil && chart.Chart.Error.Code == "Not Found" {
		return nil, ErrTickerNotFound
	}
	if len(chart.Chart.Result) == 0 || chart.Chart.Result[0].Meta.RegularMarketPrice <= 0 {
		return nil, fmt.Errorf("yahoo returned no price for %s", ticker)
	}

	meta := chart.Chart.Result[0].Meta
	return &Quote{
		Ticker:    ticker,
		Price:     meta.RegularMarketPrice,
		Volume:    meta.RegularMarketVolume,
		Timestamp: time.Now(),
		Source:    p.Name(),
	}, nil
}
