package yahoo

import (
	"fmt"
	"time"

	"stockanalyzer/internal/fetcher"
)

// ChartResponse represents the chart API response. Quote arrays are parallel
// to Timestamp and may hold nulls for days without a print.
type ChartResponse struct {
	Chart struct {
		Result []ChartResult `json:"result"`
		Error  *ChartError   `json:"error"`
	} `json:"chart"`
}

// ChartResult is one symbol's series.
type ChartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []Quote `json:"quote"`
	} `json:"indicators"`
}

// Quote holds the OHLCV arrays.
type Quote struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*float64 `json:"volume"`
}

// ChartError is the error discriminant of a chart response.
type ChartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// toPrices turns a decoded chart response into price points. A point is kept
// only when open, high, low and close are all present for its index; a
// missing volume counts as zero.
func toPrices(resp *ChartResponse, symbol string) ([]fetcher.PricePoint, error) {
	if e := resp.Chart.Error; e != nil {
		return nil, fetcher.NewValidationError(fmt.Sprintf("chart error for %s: %s - %s", symbol, e.Code, e.Description))
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fetcher.NewValidationError(fmt.Sprintf("no data returned for %s", symbol))
	}

	result := resp.Chart.Result[0]
	if len(result.Timestamp) == 0 {
		return nil, fetcher.NewValidationError(fmt.Sprintf("no timestamps for %s", symbol))
	}
	if len(result.Indicators.Quote) == 0 {
		return nil, fetcher.NewValidationError(fmt.Sprintf("no quote data for %s", symbol))
	}
	q := result.Indicators.Quote[0]

	prices := make([]fetcher.PricePoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		open, high, low, cls := at(q.Open, i), at(q.High, i), at(q.Low, i), at(q.Close, i)
		if open == nil || high == nil || low == nil || cls == nil {
			continue
		}

		var volume float64
		if v := at(q.Volume, i); v != nil {
			volume = *v
		}

		prices = append(prices, fetcher.PricePoint{
			Date:   time.Unix(ts, 0).UTC(),
			Open:   *open,
			High:   *high,
			Low:    *low,
			Close:  *cls,
			Volume: volume,
		})
	}

	if len(prices) == 0 {
		return nil, fetcher.NewValidationError(fmt.Sprintf("no valid price data for %s", symbol))
	}
	return prices, nil
}

func at(values []*float64, i int) *float64 {
	if i < len(values) {
		return values[i]
	}
	return nil
}
