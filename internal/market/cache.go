package market

import (
	"sync"
	"time"
)

// priceCache keeps the last quote per ticker with two TTLs: fresh entries
// are served directly, stale entries only when the caller allows them.
type priceCache struct {
	mu       sync.RWMutex
	entries  map[string]*Quote
	freshTTL time.Duration
	staleTTL time.Duration

	hits   int64
	misses int64
}

func newPriceCache(freshTTL, staleTTL time.Duration) *priceCache {
	return &priceCache{
		entries:  make(map[string]*Quote),
		freshTTL: freshTTL,
		staleTTL: staleTTL,
	}
}

// get returns a cached quote. fresh reports whether the entry is inside
// the fresh TTL; entries older than the stale TTL are dropped.
func (c *priceCache) get(ticker string) (quote *Quote, fresh bool) {
	c.mu.RLock()
	entry, ok := c.entries[ticker]
	c.mu.RUnlock()

	if !ok {
		c.miss()
		return nil, false
	}

	age := time.Since(entry.Timestamp)
	if age > c.staleTTL {
		c.mu.Lock()
		delete(c.entries, ticker)
		c.mu.Unlock()
		c.miss()
		return nil, false
	}

	c.hit()
	if age <= c.freshTTL {
		return entry, true
	}

	stale := *entry
	stale.Stale = true
	return &stale, false
}

func (c *priceCache) put(quote *Quote) {
	c.mu.Lock()
	c.entries[quote.Ticker] = quote
	c.mu.Unlock()
}

func (c *priceCache) hit() {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
}

func (c *priceCache) miss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}

// CacheStats reports cache effectiveness for the hourly stats log
type CacheStats struct {
	Entries int
	Hits    int64
	Misses  int64
}

func (c *priceCache) stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{
		Entries: len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
	}
}
