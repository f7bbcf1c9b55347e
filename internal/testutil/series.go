package testutil

import (
	"time"

	"stockanalyzer/internal/fetcher"
)

// Series returns n daily points with a gently rising close, oldest first.
func Series(n int) []fetcher.PricePoint {
	start := time.Date(2024, 1, 2, 21, 0, 0, 0, time.UTC)
	out := make([]fetcher.PricePoint, n)
	for i := range out {
		c := 100 + float64(i)
		out[i] = fetcher.PricePoint{
			Date:   start.AddDate(0, 0, i),
			Open:   c - 0.5,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1_000_000,
		}
	}
	return out
}

// SeriesFromCloses builds a series from closing prices.
func SeriesFromCloses(closes ...float64) []fetcher.PricePoint {
	start := time.Date(2024, 1, 2, 21, 0, 0, 0, time.UTC)
	out := make([]fetcher.PricePoint, len(closes))
	for i, c := range closes {
		out[i] = fetcher.PricePoint{
			Date:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: 1_000_000,
		}
	}
	return out
}
