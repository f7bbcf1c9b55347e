package engine

import (
	"time"

	"stockanalyzer/internal/fetcher"
	"stockanalyzer/internal/indicators"
	"stockanalyzer/internal/store"
)

// Analyze derives a stored analysis from a non-empty price series ordered
// oldest first.
func Analyze(symbol string, prices []fetcher.PricePoint, marketCap *float64, now time.Time) store.Analysis {
	closes := make([]float64, len(prices))
	for i, p := range prices {
		closes[i] = p.Close
	}
	last := prices[len(prices)-1]
	rsi := indicators.RSI(closes, indicators.RSIPeriod)

	a := store.Analysis{
		Symbol:       symbol,
		Price:        last.Close,
		RSI:          rsi,
		SMA20:        indicators.SMA(closes, 20),
		SMA50:        indicators.SMA(closes, 50),
		MACD:         indicators.ComputeMACD(closes),
		Volume:       last.Volume,
		MarketCap:    marketCap,
		IsOversold:   indicators.IsOversold(rsi),
		IsOverbought: indicators.IsOverbought(rsi),
		AnalyzedAt:   now,
	}

	// A previous day without volume is stale data; leave the change unset.
	if len(prices) >= 2 {
		prev := prices[len(prices)-2]
		if prev.Close > 0 && prev.Volume > 0 {
			change := last.Close - prev.Close
			pct := change / prev.Close * 100
			a.PriceChange = &change
			a.PriceChangePercent = &pct
		}
	}

	return a
}
