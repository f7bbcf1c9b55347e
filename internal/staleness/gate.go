// Package staleness decides whether a symbol is due for another refresh.
package staleness

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval is the minimum time between two refreshes of a symbol.
const DefaultInterval = time.Hour

// Lookup reports when a symbol was last refreshed.
type Lookup interface {
	LastAnalyzed(ctx context.Context, symbol string) (at time.Time, ok bool, err error)
}

// Decision is the gate's verdict for one symbol. The zero value proceeds.
type Decision struct {
	Skip            bool
	Reason          string
	LastRefreshedAt time.Time
}

// Gate skips symbols refreshed within Interval. It fails open: a lookup
// error means the symbol is refreshed.
type Gate struct {
	lookup   Lookup
	interval time.Duration
	log      *slog.Logger
}

// NewGate creates a Gate. A non-positive interval uses DefaultInterval.
func NewGate(lookup Lookup, interval time.Duration, log *slog.Logger) *Gate {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Gate{lookup: lookup, interval: interval, log: log}
}

// Interval returns the configured refresh interval.
func (g *Gate) Interval() time.Duration {
	return g.interval
}

// ShouldRefresh decides for symbol at now.
func (g *Gate) ShouldRefresh(ctx context.Context, symbol string, now time.Time) Decision {
	last, ok, err := g.lookup.LastAnalyzed(ctx, symbol)
	if err != nil {
		g.log.Warn("staleness lookup failed, refreshing", "symbol", symbol, "error", err)
		return Decision{}
	}
	if !ok {
		return Decision{}
	}

	elapsed := now.Sub(last)
	if elapsed < g.interval {
		return Decision{
			Skip:            true,
			Reason:          "refreshed " + elapsed.Truncate(time.Second).String() + " ago",
			LastRefreshedAt: last,
		}
	}
	return Decision{LastRefreshedAt: last}
}

// Partition splits symbols into those due for refresh and those skipped,
// preserving order.
func (g *Gate) Partition(ctx context.Context, symbols []string, now time.Time) (due, skipped []string) {
	for _, s := range symbols {
		if ctx.Err() != nil {
			// Cancelled: nothing more is worth fetching.
			return due, skipped
		}
		if d := g.ShouldRefresh(ctx, s, now); d.Skip {
			g.log.Debug("skipping fresh symbol", "symbol", s, "reason", d.Reason)
			skipped = append(skipped, s)
			continue
		}
		due = append(due, s)
	}
	return due, skipped
}
