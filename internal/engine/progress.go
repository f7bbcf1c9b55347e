package engine

import (
	"sync"
	"time"
)

// State is a step of the refresh cycle.
type State int

const (
	StateIdle State = iota
	StateListingSymbols
	StateGatingStaleness
	StateFetching
	StatePersisting
	StateCycling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListingSymbols:
		return "listing_symbols"
	case StateGatingStaleness:
		return "gating_staleness"
	case StateFetching:
		return "fetching"
	case StatePersisting:
		return "persisting"
	case StateCycling:
		return "cycling"
	default:
		return "unknown"
	}
}

// Progress is a point-in-time view of the current cycle.
type Progress struct {
	State           string     `json:"state"`
	CycleID         string     `json:"cycle_id,omitempty"`
	Cycles          int        `json:"cycles"`
	TotalStocks     int        `json:"total_stocks"`
	Analyzed        int        `json:"analyzed"`
	Skipped         int        `json:"skipped"`
	CurrentSymbol   string     `json:"current_symbol,omitempty"`
	Errors          int        `json:"errors"`
	RateLimited     int        `json:"rate_limited"`
	CycleStartedAt  time.Time  `json:"cycle_start"`
	LastCompletedAt *time.Time `json:"last_completed_at,omitempty"`
}

// tracker guards Progress for concurrent readers.
type tracker struct {
	mu sync.RWMutex
	p  Progress
}

func (t *tracker) snapshot() Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p := t.p
	if p.LastCompletedAt != nil {
		at := *p.LastCompletedAt
		p.LastCompletedAt = &at
	}
	return p
}

func (t *tracker) update(fn func(p *Progress)) {
	t.mu.Lock()
	fn(&t.p)
	t.mu.Unlock()
}

func (t *tracker) setState(s State) {
	t.update(func(p *Progress) { p.State = s.String() })
}
