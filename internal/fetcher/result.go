package fetcher

import (
	"errors"
	"time"
)

// ErrEmptySymbol is returned for a blank ticker.
var ErrEmptySymbol = errors.New("symbol must not be empty")

// PricePoint is one trading-day observation.
type PricePoint struct {
	Date   time.Time `json:"date" bson:"date"`
	Open   float64   `json:"open" bson:"open"`
	High   float64   `json:"high" bson:"high"`
	Low    float64   `json:"low" bson:"low"`
	Close  float64   `json:"close" bson:"close"`
	Volume float64   `json:"volume" bson:"volume"`
}

// Outcome represents the result of fetching one symbol.
// It's designed to be sent through channels from worker goroutines
// to a coordinator that processes and stores the results.
// Exactly one of Prices or Error is meaningful.
type Outcome struct {
	// Symbol is the ticker this outcome belongs to
	Symbol string

	// Prices holds the fetched series, oldest first
	Prices []PricePoint

	// Error contains any error that occurred during the fetch operation.
	// If Error is not nil, Prices should be considered invalid.
	Error error

	// RateLimited is set when the final attempt was rejected with HTTP 429
	RateLimited bool
}

// NewOutcome builds an Outcome and derives the rate-limit flag from err.
func NewOutcome(symbol string, prices []PricePoint, err error) Outcome {
	if err != nil {
		return Outcome{Symbol: symbol, Error: err, RateLimited: IsRateLimited(err)}
	}
	return Outcome{Symbol: symbol, Prices: prices}
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool {
	return o.Error == nil
}

// ValidateSymbol rejects blank tickers.
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return ErrEmptySymbol
	}
	return nil
}
