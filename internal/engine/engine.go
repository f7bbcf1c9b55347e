// Package engine drives the periodic refresh of the symbol universe: list
// symbols, skip fresh ones, fetch the rest through the coordinator, persist
// each analysis and then invalidate list caches.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"stockanalyzer/internal/cache"
	"stockanalyzer/internal/coordinator"
	"stockanalyzer/internal/staleness"
	"stockanalyzer/internal/store"
)

// DefaultCycleInterval is the pause between the end of one cycle and the
// start of the next.
const DefaultCycleInterval = time.Hour

// Deps are the collaborators of an Orchestrator. Lister may be nil, in which
// case the fallback symbol list is used.
type Deps struct {
	Lister      Lister
	Gate        *staleness.Gate
	Coordinator *coordinator.Coordinator
	Store       store.Store
	Cache       *cache.ResultCache
}

// Config tunes an Orchestrator.
type Config struct {
	CycleInterval time.Duration
	Logger        *slog.Logger
	// Now and Sleep are injectable for tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// CycleReport summarises one completed cycle.
type CycleReport struct {
	ID          string
	Source      string
	Listed      int
	Skipped     int
	Persisted   int
	StoreErrors int
	Fetch       *coordinator.Report
	Duration    time.Duration
}

// Orchestrator runs refresh cycles. Progress may be read concurrently.
type Orchestrator struct {
	universe *universe
	gate     *staleness.Gate
	coord    *coordinator.Coordinator
	store    store.Store
	cache    *cache.ResultCache

	cfg      Config
	log      *slog.Logger
	progress tracker
}

// New creates an Orchestrator.
func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = DefaultCycleInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}

	o := &Orchestrator{
		universe: &universe{lister: deps.Lister},
		gate:     deps.Gate,
		coord:    deps.Coordinator,
		store:    deps.Store,
		cache:    deps.Cache,
		cfg:      cfg,
		log:      cfg.Logger,
	}
	o.progress.setState(StateIdle)
	return o
}

// Progress returns a snapshot of the current cycle.
func (o *Orchestrator) Progress() Progress {
	return o.progress.snapshot()
}

// Start runs cycles until ctx is cancelled, sleeping CycleInterval between
// them. Cycle failures are logged and never stop the loop.
func (o *Orchestrator) Start(ctx context.Context) {
	o.log.Info("starting refresh loop", "interval", o.cfg.CycleInterval)

	for ctx.Err() == nil {
		if _, err := o.RunCycle(ctx); err != nil && ctx.Err() == nil {
			o.log.Error("refresh cycle failed", "error", err)
		}
		if ctx.Err() != nil {
			break
		}

		o.progress.setState(StateCycling)
		o.log.Info("waiting for next cycle", "interval", o.cfg.CycleInterval)
		if err := o.cfg.Sleep(ctx, o.cfg.CycleInterval); err != nil {
			break
		}
	}

	o.progress.setState(StateIdle)
	o.log.Info("refresh loop stopped")
}

// RunCycle performs one full pass. Per-symbol failures are counted, not
// returned; the only error is the context's once it is cancelled.
func (o *Orchestrator) RunCycle(ctx context.Context) (*CycleReport, error) {
	start := o.cfg.Now()
	report := &CycleReport{ID: uuid.NewString()}
	log := o.log.With("cycle_id", report.ID)

	o.progress.update(func(p *Progress) {
		p.CycleID = report.ID
		p.CycleStartedAt = start
		p.TotalStocks = 0
		p.Analyzed = 0
		p.Skipped = 0
		p.Errors = 0
		p.RateLimited = 0
		p.CurrentSymbol = ""
	})

	// Listing
	o.progress.setState(StateListingSymbols)
	listings, src, err := o.universe.list(ctx)
	if err != nil {
		log.Warn("symbol listing failed, degrading", "source", src, "error", err)
	}
	report.Source = string(src)
	report.Listed = len(listings)

	symbols := make([]string, len(listings))
	marketCaps := make(map[string]*float64, len(listings))
	for i, l := range listings {
		symbols[i] = l.Symbol
		if l.MarketCap > 0 {
			mc := l.MarketCap
			marketCaps[l.Symbol] = &mc
		}
	}
	o.progress.update(func(p *Progress) { p.TotalStocks = len(symbols) })

	// Gating
	o.progress.setState(StateGatingStaleness)
	due, skipped := o.gate.Partition(ctx, symbols, start)
	report.Skipped = len(skipped)
	o.progress.update(func(p *Progress) {
		p.Skipped = len(skipped)
		p.Analyzed = len(skipped)
	})
	log.Info("cycle started", "symbols", len(symbols), "due", len(due), "skipped", len(skipped), "source", src)

	// Fetching
	o.progress.setState(StateFetching)
	report.Fetch = o.fetch(ctx, due, marketCaps, report, log)

	// Persisting
	o.progress.setState(StatePersisting)
	o.cache.InvalidateAll(cache.KindList)

	completed := o.cfg.Now()
	report.Duration = completed.Sub(start)
	o.progress.update(func(p *Progress) {
		p.CurrentSymbol = ""
		p.Cycles++
		p.LastCompletedAt = &completed
	})

	log.Info("cycle complete",
		"listed", report.Listed,
		"skipped", report.Skipped,
		"successful", len(report.Fetch.Successful),
		"failed", len(report.Fetch.Failed),
		"rate_limited", report.Fetch.RateLimitErrors,
		"rate_limit_rate", fmt.Sprintf("%.2f%%", report.Fetch.RateLimitRate()),
		"persisted", report.Persisted,
		"store_errors", report.StoreErrors,
		"duration", report.Duration)

	return report, ctx.Err()
}

func (o *Orchestrator) fetch(ctx context.Context, symbols []string, marketCaps map[string]*float64, report *CycleReport, log *slog.Logger) *coordinator.Report {
	fetchReport := &coordinator.Report{}
	started := time.Now()

	out, h := o.coord.Stream(ctx, symbols)
	for outcome := range out {
		fetchReport.Add(outcome)
		o.progress.update(func(p *Progress) { p.CurrentSymbol = outcome.Symbol })

		if !outcome.OK() {
			o.progress.update(func(p *Progress) {
				p.Analyzed++
				p.Errors++
				if outcome.RateLimited {
					p.RateLimited++
				}
			})
			continue
		}

		a := Analyze(outcome.Symbol, outcome.Prices, marketCaps[outcome.Symbol], o.cfg.Now())
		if err := o.store.UpsertAnalysis(ctx, a); err != nil {
			log.Error("failed to save analysis", "symbol", outcome.Symbol, "error", err)
			report.StoreErrors++
			o.progress.update(func(p *Progress) {
				p.Analyzed++
				p.Errors++
			})
			continue
		}

		o.cache.SetStock(a)
		report.Persisted++
		o.progress.update(func(p *Progress) { p.Analyzed++ })
	}
	h.Wait()

	fetchReport.Duration = time.Since(started)
	return fetchReport
}

// LoadExisting warms the symbol cache from the store and returns how many
// analyses were loaded.
func (o *Orchestrator) LoadExisting(ctx context.Context) (int, error) {
	all, err := o.store.AllAnalyses(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading stored analyses: %w", err)
	}
	for _, a := range all {
		o.cache.SetStock(a)
	}
	o.log.Info("warmed cache from store", "analyses", len(all))
	return len(all), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
