// Package api serves stored analyses and pipeline progress over HTTP.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"stockanalyzer/internal/cache"
	"stockanalyzer/internal/engine"
	"stockanalyzer/internal/fetcher"
	"stockanalyzer/internal/store"
)

const (
	// DefaultHistoryDays is the history window served when none is asked for.
	DefaultHistoryDays = 90
	maxHistoryDays     = 365
)

// ProgressReader exposes the refresh pipeline's progress.
type ProgressReader interface {
	Progress() engine.Progress
}

// Handler serves the read-only API. Reads go through the result cache before
// touching the store. Price history is fetched live through history, which
// shares the refresh pipeline's session and rate limits.
type Handler struct {
	store    store.Store
	cache    *cache.ResultCache
	progress ProgressReader
	history  fetcher.Fetcher
	log      *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(st store.Store, c *cache.ResultCache, progress ProgressReader, history fetcher.Fetcher, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{store: st, cache: c, progress: progress, history: history, log: log}
}

// Health reports liveness.
// GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Progress returns the current refresh cycle snapshot.
// GET /api/progress
func (h *Handler) Progress(c *gin.Context) {
	c.JSON(http.StatusOK, h.progress.Progress())
}

// GetStock returns the latest analysis for one symbol.
// GET /api/stocks/:symbol
func (h *Handler) GetStock(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))

	if a, ok := h.cache.GetStock(symbol); ok {
		c.JSON(http.StatusOK, gin.H{"data": a, "cached": true})
		return
	}

	a, err := h.store.GetAnalysis(c.Request.Context(), symbol)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "stock not found"})
		return
	}
	if err != nil {
		h.log.Error("loading analysis", "symbol", symbol, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.cache.SetStock(*a)
	c.JSON(http.StatusOK, gin.H{"data": a, "cached": false})
}

// ListStocks returns one filtered, sorted page of analyses.
// GET /api/stocks
func (h *Handler) ListStocks(c *gin.Context) {
	var filter store.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	filter = filter.Normalize()
	key := filter.CacheKey()

	page, cached := h.cache.GetList(key)
	if !cached {
		items, total, err := h.store.ListAnalyses(c.Request.Context(), filter)
		if err != nil {
			h.log.Error("listing analyses", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if items == nil {
			items = []store.Analysis{}
		}
		page = cache.ListPage{Items: items, Total: total}
		h.cache.SetList(key, page)
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   page.Items,
		"total":  page.Total,
		"cached": cached,
		"pagination": gin.H{
			"page":      filter.Page,
			"page_size": filter.PageSize,
		},
	})
}

// MarketSummary returns gainers, losers, RSI extremes and mega caps.
// GET /api/market-summary
func (h *Handler) MarketSummary(c *gin.Context) {
	var filter store.SummaryFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	filter = filter.Normalize()
	key := filter.CacheKey()

	summary, cached := h.cache.GetSummary(key)
	if !cached {
		s, err := store.Summarize(c.Request.Context(), h.store, filter, time.Now().UTC())
		if err != nil {
			h.log.Error("building market summary", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		summary = *s
		h.cache.SetSummary(key, summary)
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   summary,
		"cached": cached,
		"filters_applied": gin.H{
			"min_market_cap":           filter.MinMarketCap,
			"max_price_change_percent": filter.MaxPriceChangePercent,
		},
	})
}

type historyQuery struct {
	Days int `form:"days"`
}

// GetHistory returns the daily price series for one symbol, fetched live.
// GET /api/stocks/:symbol/history
func (h *Handler) GetHistory(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))

	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	days := q.Days
	if days < 1 {
		days = DefaultHistoryDays
	}
	if days > maxHistoryDays {
		days = maxHistoryDays
	}

	prices, err := h.history.Fetch(c.Request.Context(), symbol, days)
	if err != nil {
		h.log.Warn("fetching history", "symbol", symbol, "error", err)
		c.JSON(historyStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":  symbol,
		"days":    days,
		"history": prices,
	})
}

// historyStatus maps an upstream failure onto the response status.
func historyStatus(err error) int {
	switch fetcher.TypeOf(err) {
	case fetcher.ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case fetcher.ErrorTypeValidation, fetcher.ErrorTypeClient:
		return http.StatusNotFound
	case fetcher.ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
