package store

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultSummaryLimit is the number of entries per summary section.
	DefaultSummaryLimit = 10
	maxSummaryLimit     = 50

	// MegaCapThreshold is the market cap above which a stock is a mega cap.
	MegaCapThreshold = 200_000_000_000.0
)

// SummaryFilter narrows a market summary. MinMarketCap applies to every
// section; MaxPriceChangePercent caps the gainers and losers.
type SummaryFilter struct {
	MinMarketCap          *float64 `form:"min_market_cap"`
	MaxPriceChangePercent *float64 `form:"max_price_change_percent"`
	Limit                 int      `form:"limit"`
}

// Normalize clamps the section size.
func (f SummaryFilter) Normalize() SummaryFilter {
	if f.Limit < 1 {
		f.Limit = DefaultSummaryLimit
	}
	if f.Limit > maxSummaryLimit {
		f.Limit = maxSummaryLimit
	}
	return f
}

// CacheKey is a canonical key for caching the summary. It shares the list
// prefix so list invalidation also drops summaries.
func (f SummaryFilter) CacheKey() string {
	f = f.Normalize()
	return fmt.Sprintf("list:summary:cap=%s..:chg=..%s:limit=%d",
		optional(f.MinMarketCap), optional(f.MaxPriceChangePercent), f.Limit)
}

// MarketSummary is an aggregate view over every stored analysis.
type MarketSummary struct {
	TotalStocks       int64      `json:"total_stocks"`
	TopGainers        []Analysis `json:"top_gainers"`
	TopLosers         []Analysis `json:"top_losers"`
	MostOversold      []Analysis `json:"most_oversold"`
	MostOverbought    []Analysis `json:"most_overbought"`
	MegaCapHighlights []Analysis `json:"mega_cap_highlights"`
	GeneratedAt       time.Time  `json:"generated_at"`
}

// Lister is the part of a Store a summary is built from.
type Lister interface {
	ListAnalyses(ctx context.Context, f Filter) ([]Analysis, int64, error)
}

// Summarize builds a MarketSummary from filtered list queries, so every
// Store backend shares one definition of each section.
func Summarize(ctx context.Context, l Lister, f SummaryFilter, now time.Time) (*MarketSummary, error) {
	f = f.Normalize()

	_, total, err := l.ListAnalyses(ctx, Filter{PageSize: 1})
	if err != nil {
		return nil, fmt.Errorf("counting analyses: %w", err)
	}

	zero := 0.0
	lossCap := zero
	if f.MaxPriceChangePercent != nil && *f.MaxPriceChangePercent < 0 {
		lossCap = *f.MaxPriceChangePercent
	}
	megaCap := MegaCapThreshold
	if f.MinMarketCap != nil && *f.MinMarketCap > megaCap {
		megaCap = *f.MinMarketCap
	}

	sections := []struct {
		name   string
		filter Filter
		keep   func(Analysis) bool
	}{
		{
			name: "top gainers",
			filter: Filter{
				MinChangePercent: &zero,
				MaxChangePercent: f.MaxPriceChangePercent,
				SortBy:           "price_change_percent",
				SortOrder:        "desc",
			},
			keep: func(a Analysis) bool { return a.PriceChangePercent != nil && *a.PriceChangePercent > 0 },
		},
		{
			name: "top losers",
			filter: Filter{
				MaxChangePercent: &lossCap,
				SortBy:           "price_change_percent",
				SortOrder:        "asc",
			},
			keep: func(a Analysis) bool { return a.PriceChangePercent != nil && *a.PriceChangePercent < 0 },
		},
		{
			name:   "most oversold",
			filter: Filter{OnlyOversold: true, SortBy: "rsi", SortOrder: "asc"},
		},
		{
			name:   "most overbought",
			filter: Filter{OnlyOverbought: true, SortBy: "rsi", SortOrder: "desc"},
		},
		{
			name:   "mega caps",
			filter: Filter{MinMarketCap: &megaCap, SortBy: "market_cap", SortOrder: "desc"},
		},
	}

	summary := &MarketSummary{TotalStocks: total, GeneratedAt: now}
	dst := []*[]Analysis{
		&summary.TopGainers,
		&summary.TopLosers,
		&summary.MostOversold,
		&summary.MostOverbought,
		&summary.MegaCapHighlights,
	}

	for i, sec := range sections {
		q := sec.filter
		if q.MinMarketCap == nil {
			q.MinMarketCap = f.MinMarketCap
		}
		q.Page, q.PageSize = 1, f.Limit

		items, _, err := l.ListAnalyses(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", sec.name, err)
		}

		out := make([]Analysis, 0, len(items))
		for _, a := range items {
			if sec.keep == nil || sec.keep(a) {
				out = append(out, a)
			}
		}
		*dst[i] = out
	}

	return summary, nil
}
