package market

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TickerInfo is the company profile returned for a validated ticker
type TickerInfo struct {
	Name      string
	Sector    string
	MarketCap float64
	Currency  string
}

// ValidationResult reports a single ticker validation
type ValidationResult struct {
	Ticker string
	Exists bool
	Cached bool
	Info   *TickerInfo
}

// Validator checks that LLM-proposed tickers exist before a signal is
// persisted. Both positive and negative answers are cached; only an
// authoritative not-found is cached negative, so a transient provider
// failure never poisons a real ticker.
type Validator struct {
	profiles *FinnhubProvider
	log      zerolog.Logger

	mu       sync.Mutex
	positive map[string]*TickerInfo
	negative map[string]struct{}
	wipedAt  time.Time
	ttl      time.Duration
}

// NewValidator creates a ticker validator backed by Finnhub profiles
func NewValidator(profiles *FinnhubProvider, ttl time.Duration, log zerolog.Logger) *Validator {
	return &Validator{
		profiles: profiles,
		log:      log,
		positive: make(map[string]*TickerInfo),
		negative: make(map[string]struct{}),
		wipedAt:  time.Now(),
		ttl:      ttl,
	}
}

// Validate checks one ticker. On provider failure the error is returned
// and nothing is cached; the caller decides whether to drop the candidate.
func (v *Validator) Validate(ctx context.Context, ticker string) (ValidationResult, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	result := ValidationResult{Ticker: ticker}

	if ticker == "" {
		return result, nil
	}

	v.mu.Lock()
	v.maybeWipe()
	if info, ok := v.positive[ticker]; ok {
		v.mu.Unlock()
		result.Exists = true
		result.Cached = true
		result.Info = info
		return result, nil
	}
	if _, ok := v.negative[ticker]; ok {
		v.mu.Unlock()
		result.Cached = true
		return result, nil
	}
	v.mu.Unlock()

	info, err := v.profiles.Profile(ctx, ticker)
	if err != nil {
		if errors.Is(err, ErrTickerNotFound) {
			v.mu.Lock()
			v.negative[ticker] = struct{}{}
			v.mu.Unlock()
			return result, nil
		}
		return result, err
	}

	v.mu.Lock()
	v.positive[ticker] = info
	v.mu.Unlock()

	result.Exists = true
	result.Info = info
	return result, nil
}

// maybeWipe clears both caches once per TTL window. Caller holds the lock.
func (v *Validator) maybeWipe() {
	if time.Since(v.wipedAt) < v.ttl {
		return
	}
	v.positive = make(map[string]*TickerInfo)
	v.negative = make(map[string]struct{})
	v.wipedAt = time.Now()
}
