// Package store persists per-symbol analyses. MongoStore backs production
// deployments; SQLiteStore serves local runs and tests.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockanalyzer/internal/indicators"
)

// ErrNotFound is returned when no analysis exists for a symbol.
var ErrNotFound = errors.New("analysis not found")

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Analysis is the stored result of analysing one symbol.
type Analysis struct {
	Symbol             string           `json:"symbol" bson:"symbol"`
	Price              float64          `json:"price" bson:"price"`
	PriceChange        *float64         `json:"price_change,omitempty" bson:"price_change,omitempty"`
	PriceChangePercent *float64         `json:"price_change_percent,omitempty" bson:"price_change_percent,omitempty"`
	RSI                *float64         `json:"rsi,omitempty" bson:"rsi,omitempty"`
	SMA20              *float64         `json:"sma_20,omitempty" bson:"sma_20,omitempty"`
	SMA50              *float64         `json:"sma_50,omitempty" bson:"sma_50,omitempty"`
	MACD               *indicators.MACD `json:"macd,omitempty" bson:"macd,omitempty"`
	Volume             float64          `json:"volume" bson:"volume"`
	MarketCap          *float64         `json:"market_cap,omitempty" bson:"market_cap,omitempty"`
	IsOversold         bool             `json:"is_oversold" bson:"is_oversold"`
	IsOverbought       bool             `json:"is_overbought" bson:"is_overbought"`
	AnalyzedAt         time.Time        `json:"analyzed_at" bson:"analyzed_at"`
}

// Filter narrows and orders a list query.
// Bounds are inclusive; a bound on a field the record lacks excludes it.
type Filter struct {
	MinPrice         *float64 `form:"min_price"`
	MaxPrice         *float64 `form:"max_price"`
	MinVolume        *float64 `form:"min_volume"`
	MinMarketCap     *float64 `form:"min_market_cap"`
	MaxMarketCap     *float64 `form:"max_market_cap"`
	MinRSI           *float64 `form:"min_rsi"`
	MaxRSI           *float64 `form:"max_rsi"`
	MinChangePercent *float64 `form:"min_change_percent"`
	MaxChangePercent *float64 `form:"max_change_percent"`
	OnlyOversold     bool     `form:"only_oversold"`
	OnlyOverbought   bool     `form:"only_overbought"`
	SortBy           string   `form:"sort_by"`
	SortOrder        string   `form:"sort_order"`
	Page             int      `form:"page"`
	PageSize         int      `form:"page_size"`
}

// sortable maps accepted sort keys to stored field names.
var sortable = map[string]string{
	"market_cap":           "market_cap",
	"price":                "price",
	"price_change_percent": "price_change_percent",
	"rsi":                  "rsi",
	"volume":               "volume",
	"symbol":               "symbol",
	"analyzed_at":          "analyzed_at",
}

// Normalize fills defaults and clamps paging.
func (f Filter) Normalize() Filter {
	if _, ok := sortable[f.SortBy]; !ok {
		f.SortBy = "market_cap"
	}
	if f.SortOrder != "asc" {
		f.SortOrder = "desc"
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	return f
}

// Skip is the number of rows before the requested page.
func (f Filter) Skip() int {
	return (f.Page - 1) * f.PageSize
}

// CacheKey is a canonical key for caching the result of this filter.
func (f Filter) CacheKey() string {
	f = f.Normalize()
	return fmt.Sprintf("list:price=%s..%s:vol=%s..:cap=%s..%s:rsi=%s..%s:chg=%s..%s:os=%t:ob=%t:sort=%s:%s:page=%d:%d",
		optional(f.MinPrice), optional(f.MaxPrice), optional(f.MinVolume),
		optional(f.MinMarketCap), optional(f.MaxMarketCap), optional(f.MinRSI), optional(f.MaxRSI),
		optional(f.MinChangePercent), optional(f.MaxChangePercent),
		f.OnlyOversold, f.OnlyOverbought, f.SortBy, f.SortOrder, f.Page, f.PageSize)
}

func optional(v *float64) string {
	if v == nil {
		return "*"
	}
	return fmt.Sprintf("%g", *v)
}

// Store is the durable analysis store.
type Store interface {
	// LastAnalyzed returns when symbol was last analysed; ok is false when it
	// never was.
	LastAnalyzed(ctx context.Context, symbol string) (at time.Time, ok bool, err error)
	UpsertAnalysis(ctx context.Context, a Analysis) error
	GetAnalysis(ctx context.Context, symbol string) (*Analysis, error)
	ListAnalyses(ctx context.Context, f Filter) ([]Analysis, int64, error)
	AllAnalyses(ctx context.Context) ([]Analysis, error)
	Close(ctx context.Context) error
}
