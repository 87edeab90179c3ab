package market

import (
	"context"
	"errors"
	"time"
)

// Quote is one observed price for a ticker
type Quote struct {
	Ticker    string
	Price     float64
	Volume    int64 // 0 when the provider does not report volume
	Timestamp time.Time
	Stale     bool
	Source    string
}

// Provider is one upstream quote source. Implementations return
// ErrRateLimited on 429s and ErrTickerNotFound on authoritative misses so
// the adapter and validator can distinguish transient from permanent.
type Provider interface {
	Name() string
	Quote(ctx context.Context, ticker string) (*Quote, error)
}

var (
	// ErrRateLimited means the provider returned HTTP 429
	ErrRateLimited = errors.New("provider rate limited")

	// ErrTickerNotFound means the provider authoritatively reported the
	// ticker does not exist. Only this error may be cached as negative.
	ErrTickerNotFound = errors.New("ticker not found")

	// ErrNoQuote means every provider failed and no usable cache entry
	// exists.
	ErrNoQuote = errors.New("no quote available")

	// ErrProviderDisabled means the provider's circuit breaker is open
	ErrProviderDisabled = errors.New("provider temporarily disabled")
)
