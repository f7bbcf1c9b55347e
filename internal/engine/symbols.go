package engine

import (
	"context"
	"sync"

	"stockanalyzer/internal/nasdaq"
)

// FallbackSymbols is used when the listing fails and no earlier listing is
// cached.
var FallbackSymbols = []string{
	"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "META", "TSLA", "BRK-B",
	"JPM", "JNJ", "V", "PG", "UNH", "HD", "MA", "DIS", "PYPL", "NFLX",
	"ADBE", "CRM", "CSCO", "INTC", "PFE", "VZ", "KO", "NKE", "MRK",
	"T", "PEP", "ABT", "TMO", "COST", "AVGO", "ACN", "DHR", "TXN",
	"NEE", "LLY", "MDT", "ORCL", "WMT", "HON", "PM", "UNP", "BMY",
	"QCOM", "C", "LOW", "UPS", "RTX", "BA", "AMGN", "IBM", "SBUX",
	"CAT", "GE", "AMD", "GILD", "CVS", "MMM", "MO", "USB", "TGT",
}

// Lister lists the current symbol universe.
type Lister interface {
	ListSymbols(ctx context.Context) ([]nasdaq.Listing, error)
}

// universe remembers the last successful listing.
type universe struct {
	lister Lister

	mu   sync.RWMutex
	last []nasdaq.Listing
}

// source names where a listing came from.
type source string

const (
	sourceUpstream source = "upstream"
	sourceCached   source = "cached"
	sourceFallback source = "fallback"
)

func (u *universe) list(ctx context.Context) ([]nasdaq.Listing, source, error) {
	var err error
	if u.lister != nil {
		var listings []nasdaq.Listing
		listings, err = u.lister.ListSymbols(ctx)
		if err == nil && len(listings) > 0 {
			u.mu.Lock()
			u.last = listings
			u.mu.Unlock()
			return listings, sourceUpstream, nil
		}
	}

	u.mu.RLock()
	cached := u.last
	u.mu.RUnlock()
	if len(cached) > 0 {
		return cached, sourceCached, err
	}

	fallback := make([]nasdaq.Listing, len(FallbackSymbols))
	for i, s := range FallbackSymbols {
		fallback[i] = nasdaq.Listing{Symbol: s}
	}
	return fallback, sourceFallback, err
}
