package coordinator

import (
	"time"

	"stockanalyzer/internal/fetcher"
)

// Report aggregates one batch pass. It is built only after every launched
// worker has finished.
type Report struct {
	// Source is the Key of the fetcher that produced the outcomes.
	Source          string
	Successful      []fetcher.Outcome
	Failed          []fetcher.Outcome
	RateLimitErrors int
	Duration        time.Duration
}

// Add records one outcome.
func (r *Report) Add(o fetcher.Outcome) {
	if o.OK() {
		r.Successful = append(r.Successful, o)
		return
	}
	r.Failed = append(r.Failed, o)
	if o.RateLimited {
		r.RateLimitErrors++
	}
}

// Total is the number of outcomes recorded.
func (r *Report) Total() int {
	return len(r.Successful) + len(r.Failed)
}

// SuccessRate is the percentage of successful outcomes; 0 for an empty batch.
func (r *Report) SuccessRate() float64 {
	return r.percent(len(r.Successful))
}

// RateLimitRate is the percentage of outcomes that were rate limited.
func (r *Report) RateLimitRate() float64 {
	return r.percent(r.RateLimitErrors)
}

// FailureRate is the percentage of failures that were not rate limited.
func (r *Report) FailureRate() float64 {
	return r.percent(len(r.Failed) - r.RateLimitErrors)
}

// AvgPerRequest is the wall-clock duration divided by the outcome count.
func (r *Report) AvgPerRequest() time.Duration {
	if r.Total() == 0 {
		return 0
	}
	return r.Duration / time.Duration(r.Total())
}

func (r *Report) percent(n int) float64 {
	total := r.Total()
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
