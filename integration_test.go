package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"stockanalyzer/internal/config"
)

// chartJSON renders n rising daily points in the chart endpoint's shape.
func chartJSON(n int) string {
	ts := make([]string, n)
	closes := make([]string, n)
	volumes := make([]string, n)
	for i := 0; i < n; i++ {
		ts[i] = fmt.Sprint(1704153600 + i*86400)
		closes[i] = fmt.Sprintf("%.2f", 100+float64(i))
		volumes[i] = "1000000"
	}
	c := strings.Join(closes, ",")
	return fmt.Sprintf(`{"chart":{"result":[{"timestamp":[%s],"indicators":{"quote":[{"open":[%s],"high":[%s],"low":[%s],"close":[%s],"volume":[%s]}]}}],"error":null}}`,
		strings.Join(ts, ","), c, c, c, c, strings.Join(volumes, ","))
}

// upstream fakes the listing, auth and chart endpoints on one server.
type upstream struct {
	*httptest.Server
	crumbs atomic.Int32
	charts atomic.Int32
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	body := chartJSON(60)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/screener/stocks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"table":{"rows":[
			{"symbol":"AAPL","name":"Apple","marketCap":"3,000,000,000,000"},
			{"symbol":"MSFT","name":"Microsoft","marketCap":"2,900,000,000,000"},
			{"symbol":"BUSY","name":"Busy Corp","marketCap":"1,000"}
		]}}}`))
	})
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "A3", Value: "consent"})
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/crumb", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("A3"); err != nil {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		u.crumbs.Add(1)
		w.Write([]byte("integration-crumb"))
	})
	mux.HandleFunc("/v8/finance/chart/", func(w http.ResponseWriter, r *http.Request) {
		u.charts.Add(1)
		if r.URL.Query().Get("crumb") != "integration-crumb" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/BUSY") {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	})

	u.Server = httptest.NewServer(mux)
	t.Cleanup(u.Close)
	return u
}

func testConfig(t *testing.T, u *upstream) *config.Config {
	return &config.Config{
		StoreDriver:          "sqlite",
		SQLitePath:           filepath.Join(t.TempDir(), "integration.db"),
		ServerHost:           "127.0.0.1",
		ServerPort:           3000,
		AnalysisIntervalSecs: 3600,
		CacheTTLSecs:         300,
		CacheCapacity:        100,
		ListCacheCapacity:    10,
		FetchConcurrency:     2,
		LookbackDays:         90,
		CredentialTTLSecs:    900,
		YahooBaseURL:         u.URL,
		YahooSessionURL:      u.URL + "/session",
		YahooCrumbURL:        u.URL + "/crumb",
		NasdaqBaseURL:        u.URL,
		LogLevel:             "error",
		LogFormat:            "text",
	}
}

func newTestApp(t *testing.T, u *upstream) *app {
	t.Helper()
	cfg := testConfig(t, u)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}

	a, err := newApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("newApp() returned unexpected error: %v", err)
	}
	t.Cleanup(a.close)
	return a
}

func getJSON(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding %s: %v", path, err)
	}
	return w.Code, body
}

// TestIntegration_RefreshCycle runs a full cycle against fake upstreams and
// reads the results back through the HTTP API.
func TestIntegration_RefreshCycle(t *testing.T) {
	u := newUpstream(t)
	a := newTestApp(t, u)
	ctx := context.Background()

	report, err := a.engine.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle() returned unexpected error: %v", err)
	}

	if report.Listed != 3 || report.Persisted != 2 {
		t.Errorf("report = %+v, want 3 listed and 2 persisted", report)
	}
	if report.Fetch.RateLimitErrors != 1 {
		t.Errorf("RateLimitErrors = %d, want 1", report.Fetch.RateLimitErrors)
	}
	if got := u.crumbs.Load(); got != 1 {
		t.Errorf("crumb requests = %d, want 1", got)
	}

	code, body := getJSON(t, a.router, "/api/stocks/AAPL")
	if code != http.StatusOK {
		t.Fatalf("GET /api/stocks/AAPL = %d %v", code, body)
	}
	data := body["data"].(map[string]any)
	if data["price"] != 159.0 || data["is_overbought"] != true || data["market_cap"] != 3e12 {
		t.Errorf("AAPL = %v", data)
	}

	code, body = getJSON(t, a.router, "/api/stocks?sort_by=symbol&sort_order=asc")
	if code != http.StatusOK || body["total"] != 2.0 {
		t.Errorf("GET /api/stocks = %d %v", code, body)
	}

	code, body = getJSON(t, a.router, "/api/stocks/BUSY")
	if code != http.StatusNotFound {
		t.Errorf("GET /api/stocks/BUSY = %d %v, want 404", code, body)
	}

	_, body = getJSON(t, a.router, "/api/progress")
	if body["cycles"] != 1.0 || body["errors"] != 1.0 || body["total_stocks"] != 3.0 {
		t.Errorf("progress = %v", body)
	}

	// Fresh symbols are skipped on the next pass; only the rate-limited one
	// is fetched again.
	before := u.charts.Load()
	report, err = a.engine.RunCycle(ctx)
	if err != nil {
		t.Fatalf("second RunCycle() returned unexpected error: %v", err)
	}
	if report.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", report.Skipped)
	}
	if got := u.charts.Load() - before; got != 1 {
		t.Errorf("chart requests on second pass = %d, want 1", got)
	}

	code, body = getJSON(t, a.router, "/api/market-summary")
	if code != http.StatusOK {
		t.Fatalf("GET /api/market-summary = %d %v", code, body)
	}
	summary := body["data"].(map[string]any)
	megaCaps := summary["mega_cap_highlights"].([]any)
	if summary["total_stocks"] != 2.0 || len(megaCaps) != 2 || megaCaps[0].(map[string]any)["symbol"] != "AAPL" {
		t.Errorf("summary = %v", summary)
	}

	code, body = getJSON(t, a.router, "/api/stocks/msft/history?days=30")
	if code != http.StatusOK || body["symbol"] != "MSFT" || len(body["history"].([]any)) == 0 {
		t.Errorf("GET history = %d %v", code, body)
	}

	code, body = getJSON(t, a.router, "/api/stocks/BUSY/history")
	if code != http.StatusTooManyRequests {
		t.Errorf("GET BUSY history = %d %v, want 429", code, body)
	}
}

func TestIntegration_WarmStart(t *testing.T) {
	u := newUpstream(t)
	cfg := testConfig(t, u)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	first, err := newApp(ctx, cfg, log)
	if err != nil {
		t.Fatalf("newApp() returned unexpected error: %v", err)
	}
	if _, err := first.engine.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle() returned unexpected error: %v", err)
	}
	first.close()

	second, err := newApp(ctx, cfg, log)
	if err != nil {
		t.Fatalf("newApp() returned unexpected error: %v", err)
	}
	defer second.close()

	n, err := second.engine.LoadExisting(ctx)
	if err != nil || n != 2 {
		t.Fatalf("LoadExisting() = %d, %v, want 2", n, err)
	}
	if _, ok := second.cache.GetStock("MSFT"); !ok {
		t.Error("MSFT not warmed into the cache")
	}
}

func TestIntegration_Probe(t *testing.T) {
	u := newUpstream(t)
	a := newTestApp(t, u)

	report := a.probe(context.Background(), 3)

	if report.Total() != 3 || len(report.Successful) != 3 {
		t.Errorf("probe report = %d total, %d successful, want 3/3", report.Total(), len(report.Successful))
	}
	if a.coord.Peak() > a.cfg.FetchConcurrency {
		t.Errorf("Peak() = %d, want <= %d", a.coord.Peak(), a.cfg.FetchConcurrency)
	}
}
