package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"stockanalyzer/internal/indicators"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "analyses.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() returned unexpected error: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func ptr(v float64) *float64 { return &v }

func seed(t *testing.T, s Store, as ...Analysis) {
	t.Helper()
	for _, a := range as {
		if err := s.UpsertAnalysis(context.Background(), a); err != nil {
			t.Fatalf("UpsertAnalysis(%s) returned unexpected error: %v", a.Symbol, err)
		}
	}
}

func TestSQLite_UpsertAndGet(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 15, 16, 0, 0, 0, time.UTC)

	seed(t, s, Analysis{
		Symbol:     "AAPL",
		Price:      185.5,
		RSI:        ptr(42),
		MACD:       &indicators.MACD{Line: 1, Signal: 0.5, Histogram: 0.5},
		MarketCap:  ptr(3e12),
		AnalyzedAt: at,
	})

	got, err := s.GetAnalysis(ctx, "AAPL")
	if err != nil {
		t.Fatalf("GetAnalysis() returned unexpected error: %v", err)
	}
	if got.Price != 185.5 || got.RSI == nil || *got.RSI != 42 || got.MACD == nil || got.MACD.Signal != 0.5 {
		t.Errorf("GetAnalysis() = %+v", got)
	}
	if !got.AnalyzedAt.Equal(at) {
		t.Errorf("AnalyzedAt = %v, want %v", got.AnalyzedAt, at)
	}

	// A second upsert replaces the row.
	seed(t, s, Analysis{Symbol: "AAPL", Price: 190, AnalyzedAt: at.Add(time.Hour)})
	got, err = s.GetAnalysis(ctx, "AAPL")
	if err != nil {
		t.Fatalf("GetAnalysis() returned unexpected error: %v", err)
	}
	if got.Price != 190 || got.RSI != nil {
		t.Errorf("GetAnalysis() after replace = %+v", got)
	}

	all, err := s.AllAnalyses(ctx)
	if err != nil {
		t.Fatalf("AllAnalyses() returned unexpected error: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("len(AllAnalyses()) = %d, want 1", len(all))
	}
}

func TestSQLite_GetMissing(t *testing.T) {
	s := newTestSQLite(t)

	if _, err := s.GetAnalysis(context.Background(), "NOPE"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAnalysis() error = %v, want ErrNotFound", err)
	}
}

func TestSQLite_LastAnalyzed(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 15, 16, 0, 0, 123, time.UTC)

	if _, ok, err := s.LastAnalyzed(ctx, "AAPL"); err != nil || ok {
		t.Errorf("LastAnalyzed() before insert = ok %v, err %v", ok, err)
	}

	seed(t, s, Analysis{Symbol: "AAPL", Price: 1, AnalyzedAt: at})

	got, ok, err := s.LastAnalyzed(ctx, "AAPL")
	if err != nil || !ok {
		t.Fatalf("LastAnalyzed() = ok %v, err %v", ok, err)
	}
	if !got.Equal(at) {
		t.Errorf("LastAnalyzed() = %v, want %v", got, at)
	}
}

func TestSQLite_ListAnalyses(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 15, 16, 0, 0, 0, time.UTC)

	seed(t, s,
		Analysis{Symbol: "AAA", Price: 10, RSI: ptr(25), IsOversold: true, MarketCap: ptr(100), Volume: 1000, PriceChangePercent: ptr(-3), AnalyzedAt: at},
		Analysis{Symbol: "BBB", Price: 50, RSI: ptr(50), MarketCap: ptr(300), Volume: 5000, PriceChangePercent: ptr(1.5), AnalyzedAt: at},
		Analysis{Symbol: "CCC", Price: 90, RSI: ptr(75), IsOverbought: true, MarketCap: ptr(200), Volume: 20000, PriceChangePercent: ptr(4), AnalyzedAt: at},
		Analysis{Symbol: "DDD", Price: 5, AnalyzedAt: at},
	)

	tests := []struct {
		name      string
		filter    Filter
		want      []string
		wantTotal int64
	}{
		{"default sort by market cap desc", Filter{}, []string{"BBB", "CCC", "AAA", "DDD"}, 4},
		{"price ascending", Filter{SortBy: "price", SortOrder: "asc"}, []string{"DDD", "AAA", "BBB", "CCC"}, 4},
		{"price range", Filter{MinPrice: ptr(10), MaxPrice: ptr(50), SortBy: "symbol", SortOrder: "asc"}, []string{"AAA", "BBB"}, 2},
		{"rsi range excludes missing", Filter{MinRSI: ptr(0), SortBy: "rsi", SortOrder: "asc"}, []string{"AAA", "BBB", "CCC"}, 3},
		{"oversold", Filter{OnlyOversold: true}, []string{"AAA"}, 1},
		{"overbought", Filter{OnlyOverbought: true}, []string{"CCC"}, 1},
		{"second page", Filter{SortBy: "symbol", SortOrder: "asc", Page: 2, PageSize: 3}, []string{"DDD"}, 4},
		{"symbol descending", Filter{SortBy: "symbol", SortOrder: "desc"}, []string{"DDD", "CCC", "BBB", "AAA"}, 4},
		{"min volume", Filter{MinVolume: ptr(5000), SortBy: "symbol", SortOrder: "asc"}, []string{"BBB", "CCC"}, 2},
		{"market cap range excludes missing", Filter{MinMarketCap: ptr(150), MaxMarketCap: ptr(300), SortBy: "symbol", SortOrder: "asc"}, []string{"BBB", "CCC"}, 2},
		{"max market cap", Filter{MaxMarketCap: ptr(150)}, []string{"AAA"}, 1},
		{"gainers only", Filter{MinChangePercent: ptr(0), SortBy: "price_change_percent"}, []string{"CCC", "BBB"}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := s.ListAnalyses(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListAnalyses() returned unexpected error: %v", err)
			}
			if total != tt.wantTotal {
				t.Errorf("total = %d, want %d", total, tt.wantTotal)
			}
			var symbols []string
			for _, a := range got {
				symbols = append(symbols, a.Symbol)
			}
			if len(symbols) != len(tt.want) {
				t.Fatalf("symbols = %v, want %v", symbols, tt.want)
			}
			for i := range symbols {
				if symbols[i] != tt.want[i] {
					t.Errorf("symbols = %v, want %v", symbols, tt.want)
					break
				}
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	s := newTestSQLite(t)
	at := time.Date(2024, 1, 15, 16, 0, 0, 0, time.UTC)

	seed(t, s,
		Analysis{Symbol: "MEGA", Price: 400, MarketCap: ptr(3e12), PriceChangePercent: ptr(2), RSI: ptr(55), AnalyzedAt: at},
		Analysis{Symbol: "BIG", Price: 150, MarketCap: ptr(250e9), PriceChangePercent: ptr(-1), RSI: ptr(72), IsOverbought: true, AnalyzedAt: at},
		Analysis{Symbol: "HOT", Price: 20, MarketCap: ptr(5e9), PriceChangePercent: ptr(9), RSI: ptr(81), IsOverbought: true, AnalyzedAt: at},
		Analysis{Symbol: "DOWN", Price: 8, MarketCap: ptr(1e9), PriceChangePercent: ptr(-6), RSI: ptr(22), IsOversold: true, AnalyzedAt: at},
		Analysis{Symbol: "FLAT", Price: 30, MarketCap: ptr(2e9), PriceChangePercent: ptr(0), RSI: ptr(50), AnalyzedAt: at},
		Analysis{Symbol: "NEW", Price: 12, AnalyzedAt: at},
	)

	symbolsOf := func(as []Analysis) []string {
		out := []string{}
		for _, a := range as {
			out = append(out, a.Symbol)
		}
		return out
	}
	equal := func(a, b []string) bool {
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
		return true
	}

	t.Run("all sections", func(t *testing.T) {
		got, err := Summarize(context.Background(), s, SummaryFilter{}, at)
		if err != nil {
			t.Fatalf("Summarize() returned unexpected error: %v", err)
		}

		if got.TotalStocks != 6 {
			t.Errorf("TotalStocks = %d, want 6", got.TotalStocks)
		}
		if !got.GeneratedAt.Equal(at) {
			t.Errorf("GeneratedAt = %v, want %v", got.GeneratedAt, at)
		}

		sections := []struct {
			name string
			got  []Analysis
			want []string
		}{
			{"TopGainers", got.TopGainers, []string{"HOT", "MEGA"}},
			{"TopLosers", got.TopLosers, []string{"DOWN", "BIG"}},
			{"MostOversold", got.MostOversold, []string{"DOWN"}},
			{"MostOverbought", got.MostOverbought, []string{"HOT", "BIG"}},
			{"MegaCapHighlights", got.MegaCapHighlights, []string{"MEGA", "BIG"}},
		}
		for _, sec := range sections {
			if syms := symbolsOf(sec.got); !equal(syms, sec.want) {
				t.Errorf("%s = %v, want %v", sec.name, syms, sec.want)
			}
		}
	})

	t.Run("filters and limit", func(t *testing.T) {
		got, err := Summarize(context.Background(), s, SummaryFilter{
			MinMarketCap:          ptr(2e9),
			MaxPriceChangePercent: ptr(5),
			Limit:                 1,
		}, at)
		if err != nil {
			t.Fatalf("Summarize() returned unexpected error: %v", err)
		}

		if syms := symbolsOf(got.TopGainers); !equal(syms, []string{"MEGA"}) {
			t.Errorf("TopGainers = %v, want [MEGA]", syms)
		}
		if syms := symbolsOf(got.TopLosers); !equal(syms, []string{"BIG"}) {
			t.Errorf("TopLosers = %v, want [BIG]", syms)
		}
		if len(got.MostOversold) != 0 {
			t.Errorf("MostOversold = %v, want none above the cap floor", symbolsOf(got.MostOversold))
		}
		if syms := symbolsOf(got.MostOverbought); !equal(syms, []string{"HOT"}) {
			t.Errorf("MostOverbought = %v, want [HOT]", syms)
		}
	})
}
