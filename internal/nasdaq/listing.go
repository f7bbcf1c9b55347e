// Package nasdaq lists tradable equity symbols from the NASDAQ stock screener.
package nasdaq

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"resty.dev/v3"

	"stockanalyzer/internal/fetcher"
	"stockanalyzer/internal/ratelimit"
)

// DefaultBaseURL is the NASDAQ API host.
const DefaultBaseURL = "https://api.nasdaq.com"

// ScreenerResponse represents the screener API response.
type ScreenerResponse struct {
	Data struct {
		Table struct {
			Rows []ScreenerRow `json:"rows"`
		} `json:"table"`
	} `json:"data"`
}

// ScreenerRow is one listed company.
type ScreenerRow struct {
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	MarketCap string `json:"marketCap"`
}

// Listing is a symbol with its market capitalisation in dollars.
type Listing struct {
	Symbol    string
	MarketCap float64
}

// Client fetches the symbol universe.
type Client struct {
	client  *resty.Client
	limiter *ratelimit.Limiter
	log     *slog.Logger
}

// NewClient creates a listing client.
func NewClient(baseURL string, limiter *ratelimit.Limiter, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if log == nil {
		log = slog.Default()
	}

	client := fetcher.NewHTTPClient(baseURL).
		SetHeader("Accept-Language", "en-US,en;q=0.9").
		SetHeader("Origin", "https://www.nasdaq.com").
		SetHeader("Referer", "https://www.nasdaq.com/")

	return &Client{
		client:  client,
		limiter: limiter,
		log:     log,
	}
}

// ListSymbols returns every listed symbol with a known, non-zero market cap,
// largest first.
func (c *Client) ListSymbols(ctx context.Context) ([]Listing, error) {
	if err := c.limiter.Wait(ctx, ratelimit.APINasdaq); err != nil {
		return nil, fetcher.NewListingError(err)
	}

	var result ScreenerResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"tableonly": "true",
			"limit":     "0",
		}).
		SetResult(&result).
		Get("/api/screener/stocks")

	if err != nil {
		return nil, fetcher.NewListingError(fmt.Errorf("failed to fetch screener: %w", err))
	}

	if !resp.IsSuccess() {
		return nil, fetcher.NewListingError(fetcher.ClassifyHTTPError(resp.StatusCode()))
	}

	listings := make([]Listing, 0, len(result.Data.Table.Rows))
	for _, row := range result.Data.Table.Rows {
		symbol := strings.TrimSpace(row.Symbol)
		if symbol == "" {
			continue
		}
		marketCap, ok := ParseMarketCap(row.MarketCap)
		if !ok {
			continue
		}
		listings = append(listings, Listing{Symbol: symbol, MarketCap: marketCap})
	}

	if len(listings) == 0 {
		return nil, fetcher.NewListingError(fmt.Errorf("screener returned no usable rows"))
	}

	sort.SliceStable(listings, func(i, j int) bool {
		return listings[i].MarketCap > listings[j].MarketCap
	})

	c.log.Info("fetched symbol listing", "rows", len(result.Data.Table.Rows), "usable", len(listings))
	return listings, nil
}

// ParseMarketCap parses a screener market cap such as "$1,234,567". It
// reports false for empty, unparseable or zero values.
func ParseMarketCap(s string) (float64, bool) {
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(s))
	if cleaned == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil || d.IsZero() || d.IsNegative() {
		return 0, false
	}
	return d.InexactFloat64(), true
}
