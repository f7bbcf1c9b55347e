// Package cache holds recently computed analyses and list query results in
// memory. Entries expire after a per-kind TTL and are never served stale.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"stockanalyzer/internal/store"
)

const (
	// DefaultTTL is how long a symbol entry is served.
	DefaultTTL = 5 * time.Minute
	// DefaultCapacity bounds the symbol space.
	DefaultCapacity = 10000
	// DefaultListCapacity bounds the list space, per result type.
	DefaultListCapacity = 100
)

// Kind selects a cache space.
type Kind int

const (
	// KindSymbol holds one analysis per symbol.
	KindSymbol Kind = iota
	// KindList holds list query results and market summaries keyed by their
	// canonical query.
	KindList
)

// String names the space for logs.
func (k Kind) String() string {
	switch k {
	case KindSymbol:
		return "symbol"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// ListPage is a cached list query result.
type ListPage struct {
	Items []store.Analysis
	Total int64
}

// Config sizes the cache. Zero values take defaults; the list TTL defaults
// to half the symbol TTL.
type Config struct {
	TTL          time.Duration
	ListTTL      time.Duration
	Capacity     int
	ListCapacity int
}

// ResultCache is safe for concurrent use.
type ResultCache struct {
	symbols   *expirable.LRU[string, store.Analysis]
	lists     *expirable.LRU[string, ListPage]
	summaries *expirable.LRU[string, store.MarketSummary]
}

// New creates a ResultCache.
func New(cfg Config) *ResultCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.ListTTL <= 0 {
		cfg.ListTTL = cfg.TTL / 2
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.ListCapacity <= 0 {
		cfg.ListCapacity = DefaultListCapacity
	}

	return &ResultCache{
		symbols:   expirable.NewLRU[string, store.Analysis](cfg.Capacity, nil, cfg.TTL),
		lists:     expirable.NewLRU[string, ListPage](cfg.ListCapacity, nil, cfg.ListTTL),
		summaries: expirable.NewLRU[string, store.MarketSummary](cfg.ListCapacity, nil, cfg.ListTTL),
	}
}

// GetStock returns the unexpired analysis for symbol.
func (c *ResultCache) GetStock(symbol string) (store.Analysis, bool) {
	return c.symbols.Get(symbol)
}

// SetStock caches a under its symbol.
func (c *ResultCache) SetStock(a store.Analysis) {
	c.symbols.Add(a.Symbol, a)
}

// GetList returns the unexpired list page stored under key.
func (c *ResultCache) GetList(key string) (ListPage, bool) {
	return c.lists.Get(key)
}

// SetList caches a list page under key.
func (c *ResultCache) SetList(key string, page ListPage) {
	c.lists.Add(key, page)
}

// GetSummary returns the unexpired market summary stored under key.
func (c *ResultCache) GetSummary(key string) (store.MarketSummary, bool) {
	return c.summaries.Get(key)
}

// SetSummary caches a market summary under key in the list space.
func (c *ResultCache) SetSummary(key string, s store.MarketSummary) {
	c.summaries.Add(key, s)
}

// Invalidate removes one entry of kind.
func (c *ResultCache) Invalidate(kind Kind, key string) {
	switch kind {
	case KindSymbol:
		c.symbols.Remove(key)
	case KindList:
		c.lists.Remove(key)
		c.summaries.Remove(key)
	}
}

// InvalidateAll removes every entry of kind and leaves the other space
// untouched.
func (c *ResultCache) InvalidateAll(kind Kind) {
	switch kind {
	case KindSymbol:
		c.symbols.Purge()
	case KindList:
		c.lists.Purge()
		c.summaries.Purge()
	}
}

// Len returns the number of entries held for kind, including expired ones not
// yet reclaimed.
func (c *ResultCache) Len(kind Kind) int {
	switch kind {
	case KindSymbol:
		return c.symbols.Len()
	case KindList:
		return c.lists.Len() + c.summaries.Len()
	default:
		return 0
	}
}
