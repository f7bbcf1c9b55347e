package testutil

import (
	"context"

	"stockanalyzer/internal/fetcher"
)

// MockFetcher is a mock implementation of the Fetcher interface for testing
type MockFetcher struct {
	FetchFunc func(ctx context.Context, symbol string, lookbackDays int) ([]fetcher.PricePoint, error)
	KeyFunc   func() string
}

// Fetch implements the Fetcher interface
func (m *MockFetcher) Fetch(ctx context.Context, symbol string, lookbackDays int) ([]fetcher.PricePoint, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, symbol, lookbackDays)
	}
	return Series(1), nil
}

// Key implements the Fetcher interface
func (m *MockFetcher) Key() string {
	if m.KeyFunc != nil {
		return m.KeyFunc()
	}
	return "mock:key"
}

// NewMockFetcher creates a fetcher that returns the configured error for the
// symbols in errs and a short series for everything else.
func NewMockFetcher(errs map[string]error) fetcher.Fetcher {
	return &MockFetcher{
		FetchFunc: func(ctx context.Context, symbol string, lookbackDays int) ([]fetcher.PricePoint, error) {
			if err, ok := errs[symbol]; ok {
				return nil, err
			}
			return Series(5), nil
		},
	}
}
