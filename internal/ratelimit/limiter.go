package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// API represents the different external APIs we interact with
type API string

const (
	// APIYahoo represents the Yahoo Finance chart and auth endpoints
	APIYahoo API = "yahoo"
	// APINasdaq represents the NASDAQ screener API
	APINasdaq API = "nasdaq"
)

// Limiter manages request pacing for different APIs.
// A zero or negative rate means unlimited.
type Limiter struct {
	limiters map[API]*rate.Limiter
	mu       sync.RWMutex
}

// New builds a Limiter from per-API requests-per-second values.
func New(perSecond map[API]float64) *Limiter {
	l := &Limiter{
		limiters: make(map[API]*rate.Limiter, len(perSecond)),
	}
	for api, rps := range perSecond {
		l.Set(api, rps)
	}
	return l
}

// Unlimited returns a Limiter that never blocks. It is used when no upstream
// has a configured rate.
func Unlimited() *Limiter {
	return New(map[API]float64{APIYahoo: 0, APINasdaq: 0})
}

// Set replaces the limit for api.
func (l *Limiter) Set(api API, rps float64) {
	lim := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), 1)
	}

	l.mu.Lock()
	l.limiters[api] = lim
	l.mu.Unlock()
}

// Wait blocks until the rate limiter permits an event for the given API
// It returns an error if the context is canceled before the event can proceed
func (l *Limiter) Wait(ctx context.Context, api API) error {
	if l == nil {
		return nil
	}

	l.mu.RLock()
	limiter, exists := l.limiters[api]
	l.mu.RUnlock()

	if !exists {
		// If no limiter exists for this API, allow the request without limiting
		return nil
	}

	return limiter.Wait(ctx)
}
