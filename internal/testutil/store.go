package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"stockanalyzer/internal/store"
)

var _ store.Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory store.Store. Setting LookupErr or UpsertErr
// makes the matching calls fail.
type MemoryStore struct {
	mu       sync.Mutex
	analyses map[string]store.Analysis

	LookupErr error
	UpsertErr error
	Upserts   int
}

// NewMemoryStore creates a MemoryStore holding as.
func NewMemoryStore(as ...store.Analysis) *MemoryStore {
	m := &MemoryStore{analyses: make(map[string]store.Analysis)}
	for _, a := range as {
		m.analyses[a.Symbol] = a
	}
	return m
}

func (m *MemoryStore) LastAnalyzed(_ context.Context, symbol string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LookupErr != nil {
		return time.Time{}, false, m.LookupErr
	}
	a, ok := m.analyses[symbol]
	return a.AnalyzedAt, ok, nil
}

func (m *MemoryStore) UpsertAnalysis(_ context.Context, a store.Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	m.Upserts++
	m.analyses[a.Symbol] = a
	return nil
}

func (m *MemoryStore) GetAnalysis(_ context.Context, symbol string) (*store.Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.analyses[symbol]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

// ListAnalyses applies the oversold and overbought flags and pages by symbol.
// Price and RSI bounds are ignored.
func (m *MemoryStore) ListAnalyses(ctx context.Context, f store.Filter) ([]store.Analysis, int64, error) {
	f = f.Normalize()
	all, _ := m.AllAnalyses(ctx)

	var matched []store.Analysis
	for _, a := range all {
		if f.OnlyOversold && !a.IsOversold || f.OnlyOverbought && !a.IsOverbought {
			continue
		}
		matched = append(matched, a)
	}

	total := int64(len(matched))
	start := min(f.Skip(), len(matched))
	end := min(start+f.PageSize, len(matched))
	return matched[start:end], total, nil
}

func (m *MemoryStore) AllAnalyses(context.Context) ([]store.Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Analysis, 0, len(m.analyses))
	for _, a := range m.analyses {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (m *MemoryStore) Close(context.Context) error { return nil }

// Has reports whether symbol is stored.
func (m *MemoryStore) Has(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.analyses[symbol]
	return ok
}
