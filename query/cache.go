package query

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/stellar/go/xdr"
)

// LedgerCache holds decoded ledgers by sequence. Closed ledgers never change,
// so entries only leave on eviction or TTL expiry. A nil cache is valid and
// never hits.
type LedgerCache struct {
	lru     *expirable.LRU[uint32, cacheEntry]
	ttl     time.Duration
	maxSize int
	hits    atomic.Uint64
	misses  atomic.Uint64
}

type cacheEntry struct {
	ledger xdr.LedgerCloseMeta
	source string
}

// NewLedgerCache returns nil when maxSize is not positive.
func NewLedgerCache(maxSize int, ttl time.Duration) *LedgerCache {
	if maxSize <= 0 {
		return nil
	}
	return &LedgerCache{
		lru:     expirable.NewLRU[uint32, cacheEntry](maxSize, nil, ttl),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Get returns a cached ledger and the source it was first fetched from.
func (c *LedgerCache) Get(sequence uint32) (xdr.LedgerCloseMeta, string, bool) {
	if c == nil {
		return xdr.LedgerCloseMeta{}, "", false
	}
	entry, ok := c.lru.Get(sequence)
	if !ok {
		c.misses.Add(1)
		cacheLookupsTotal.WithLabelValues("miss").Inc()
		return xdr.LedgerCloseMeta{}, "", false
	}
	c.hits.Add(1)
	cacheLookupsTotal.WithLabelValues("hit").Inc()
	return entry.ledger, entry.source, true
}

// Put stores a ledger.
func (c *LedgerCache) Put(sequence uint32, lcm xdr.LedgerCloseMeta, source string) {
	if c == nil {
		return
	}
	c.lru.Add(sequence, cacheEntry{ledger: lcm, source: source})
}

// Size returns the current number of cached entries
func (c *LedgerCache) Size() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

// Stats returns cache statistics
func (c *LedgerCache) Stats() map[string]interface{} {
	if c == nil {
		return map[string]interface{}{"enabled": false}
	}

	archived, live := 0, 0
	for _, entry := range c.lru.Values() {
		if entry.source == SourceLive {
			live++
		} else {
			archived++
		}
	}

	return map[string]interface{}{
		"enabled":         true,
		"total_entries":   c.Size(),
		"archive_entries": archived,
		"live_entries":    live,
		"hits":            c.hits.Load(),
		"misses":          c.misses.Load(),
		"ttl_seconds":     c.ttl.Seconds(),
		"max_size":        c.maxSize,
	}
}
