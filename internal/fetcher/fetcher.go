package fetcher

import "context"

// Fetcher is the core interface implemented by every time-series source.
// A Fetcher retrieves daily price history for one symbol per call and must be
// safe for concurrent use by many workers.
type Fetcher interface {
	// Fetch retrieves up to lookbackDays of daily prices for symbol, ordered
	// oldest first. An empty series is reported as a validation error, never
	// as a nil error.
	//
	// Rate-limit responses are returned as ErrorTypeRateLimit without any
	// internal retry; the caller owns that policy.
	Fetch(ctx context.Context, symbol string, lookbackDays int) ([]PricePoint, error)

	// Key returns a hierarchical key naming the source.
	// Format: fetcher:{source}
	// Example: fetcher:yahoo
	Key() string
}
