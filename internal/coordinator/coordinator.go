package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"golang.org/x/sync/semaphore"

	"stockanalyzer/internal/fetcher"
)

const (
	// DefaultConcurrency is the number of fetches allowed in flight.
	DefaultConcurrency = 5
	// DefaultDelay staggers worker launches.
	DefaultDelay = 500 * time.Millisecond
	// DefaultLookbackDays is the history window requested per symbol.
	DefaultLookbackDays = 90
	// DefaultStreamBuffer bounds the streaming results channel.
	DefaultStreamBuffer = 100

	progressEvery = 10
)

// Config holds Coordinator tuning. Zero values take defaults, except Delay
// and RateLimitRetries where zero disables staggering and retries.
type Config struct {
	Concurrency      int
	Delay            time.Duration
	LookbackDays     int
	RateLimitRetries int
	Backoff          Backoff
	StreamBuffer     int
	Logger           *slog.Logger
	// Sleep is injectable for tests; it must return early when ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Coordinator runs a fetcher over many symbols with at most Concurrency
// fetches in flight, staggering their start times.
type Coordinator struct {
	fetcher fetcher.Fetcher
	cfg     Config
	log     *slog.Logger

	inFlight atomic.Int64
	peak     atomic.Int64
}

// New creates a new Coordinator around f.
func New(f fetcher.Fetcher, cfg Config) *Coordinator {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if cfg.LookbackDays < 1 {
		cfg.LookbackDays = DefaultLookbackDays
	}
	if cfg.StreamBuffer < 1 {
		cfg.StreamBuffer = DefaultStreamBuffer
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Coordinator{
		fetcher: f,
		cfg:     cfg,
		log:     cfg.Logger.With("source", f.Key()),
	}
}

// Handle tracks a streaming run.
type Handle struct {
	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// Wait blocks until every launched worker has finished.
func (h *Handle) Wait() {
	<-h.done
}

// Done is closed once every launched worker has finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Abandon tells the run that nobody reads the results channel anymore.
// In-flight workers still complete; their outcomes are discarded.
func (h *Handle) Abandon() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Stream fetches symbols and delivers each outcome as soon as it is ready, in
// completion order. The channel is closed after the last outcome. Sends block
// while the buffer is full.
//
// Each submitted symbol yields exactly one outcome unless the run is
// abandoned or ctx is cancelled, in which case undelivered outcomes are
// dropped. Symbols not yet launched when ctx is cancelled yield a failure
// carrying the context error. Once abandoned, no further symbols are launched.
func (c *Coordinator) Stream(ctx context.Context, symbols []string) (<-chan fetcher.Outcome, *Handle) {
	out := make(chan fetcher.Outcome, c.cfg.StreamBuffer)
	h := &Handle{
		done: make(chan struct{}),
		stop: make(chan struct{}),
	}

	emit := func(o fetcher.Outcome) {
		select {
		case out <- o:
		case <-h.stop:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(h.done)
		defer close(out)
		c.run(ctx, symbols, h.stop, emit)
	}()

	return out, h
}

// Run fetches every symbol and returns the aggregate report once all
// workers have finished. Individual failures never abort the batch.
func (c *Coordinator) Run(ctx context.Context, symbols []string) *Report {
	start := time.Now()
	report := &Report{Source: c.fetcher.Key()}

	// Run collects directly instead of going through Stream so outcomes are
	// never dropped on cancellation.
	var mu sync.Mutex
	c.run(ctx, symbols, nil, func(o fetcher.Outcome) {
		mu.Lock()
		report.Add(o)
		mu.Unlock()
	})

	report.Duration = time.Since(start)
	return report
}

// Peak returns the highest number of simultaneous fetches observed.
func (c *Coordinator) Peak() int {
	return int(c.peak.Load())
}

// InFlight returns the number of fetches currently running.
func (c *Coordinator) InFlight() int {
	return int(c.inFlight.Load())
}

func (c *Coordinator) run(ctx context.Context, symbols []string, stop <-chan struct{}, emit func(fetcher.Outcome)) {
	total := len(symbols)
	if total == 0 {
		return
	}

	// Launching stops on cancel or abandon. Launched workers keep ctx and
	// run to completion either way.
	launchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if stop != nil {
		go func() {
			select {
			case <-stop:
				cancel()
			case <-launchCtx.Done():
			}
		}()
	}

	sem := semaphore.NewWeighted(int64(c.cfg.Concurrency))
	var completed atomic.Int64
	var wg conc.WaitGroup

	// skipRest reports symbols that will never be launched.
	skipRest := func(rest []string, err error) {
		if abandoned(stop) {
			c.log.Debug("stream abandoned, launching stopped", "unlaunched", len(rest))
			return
		}
		for _, s := range rest {
			emit(fetcher.NewOutcome(s, nil, err))
		}
	}

	for idx, symbol := range symbols {
		if abandoned(stop) {
			skipRest(symbols[idx:], nil)
			break
		}
		if err := sem.Acquire(launchCtx, 1); err != nil {
			// Cancelled before launch: report the rest without fetching.
			skipRest(symbols[idx:], err)
			break
		}

		wg.Go(func() {
			c.enter()

			// Stagger requests slightly based on index
			var o fetcher.Outcome
			if err := c.cfg.Sleep(ctx, c.cfg.Delay*time.Duration(idx%3)); err != nil {
				o = fetcher.NewOutcome(symbol, nil, err)
			} else {
				o = c.fetch(ctx, symbol)
			}

			// Release the slot as soon as the fetch is done, before the
			// possibly blocking hand-off.
			c.leave()
			sem.Release(1)

			c.logOutcome(o)
			emit(o)

			done := completed.Add(1)
			if done%progressEvery == 0 || int(done) == total {
				c.log.Info("fetch progress", "completed", done, "total", total)
			}
		})

		if idx < total-1 {
			if err := c.cfg.Sleep(launchCtx, c.cfg.Delay); err != nil {
				skipRest(symbols[idx+1:], err)
				break
			}
		}
	}

	wg.Wait()
}

func abandoned(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// fetch runs one symbol, retrying rate-limited attempts in order with backoff.
func (c *Coordinator) fetch(ctx context.Context, symbol string) fetcher.Outcome {
	for attempt := 0; ; attempt++ {
		prices, err := c.fetcher.Fetch(ctx, symbol, c.cfg.LookbackDays)
		o := fetcher.NewOutcome(symbol, prices, err)
		if !o.RateLimited || attempt >= c.cfg.RateLimitRetries {
			return o
		}

		delay := c.cfg.Backoff.Delay(attempt + 1)
		c.log.Debug("rate limited, backing off", "symbol", symbol, "attempt", attempt+1, "delay", delay)
		if err := c.cfg.Sleep(ctx, delay); err != nil {
			return o
		}
	}
}

func (c *Coordinator) enter() {
	n := c.inFlight.Add(1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (c *Coordinator) leave() {
	c.inFlight.Add(-1)
}

func (c *Coordinator) logOutcome(o fetcher.Outcome) {
	switch {
	case o.OK():
		c.log.Debug("fetched prices", "symbol", o.Symbol, "points", len(o.Prices))
	case o.RateLimited:
		c.log.Warn("rate limited", "symbol", o.Symbol, "rate_limited", true)
	default:
		c.log.Warn("fetch failed", "symbol", o.Symbol, "error", o.Error)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
