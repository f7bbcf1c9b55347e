package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

var _ Store = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS analyses (
	symbol               TEXT PRIMARY KEY,
	price                REAL NOT NULL,
	price_change_percent REAL,
	rsi                  REAL,
	volume               REAL NOT NULL,
	market_cap           REAL,
	is_oversold          INTEGER NOT NULL,
	is_overbought        INTEGER NOT NULL,
	analyzed_at          INTEGER NOT NULL,
	data                 TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analyses_analyzed_at ON analyses (analyzed_at DESC);
`

// SQLiteStore keeps analyses in a single SQLite table. Filterable fields are
// stored as columns; the full record is kept as JSON.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and applies
// the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection also keeps :memory:
	// databases coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// LastAnalyzed returns the analysis timestamp stored for symbol.
func (s *SQLiteStore) LastAnalyzed(ctx context.Context, symbol string) (time.Time, bool, error) {
	var nanos int64
	err := s.db.QueryRowContext(ctx,
		`SELECT analyzed_at FROM analyses WHERE symbol = ?`, symbol).Scan(&nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("looking up %s: %w", symbol, err)
	}
	return time.Unix(0, nanos).UTC(), true, nil
}

// UpsertAnalysis inserts or replaces the row for a.Symbol.
func (s *SQLiteStore) UpsertAnalysis(ctx context.Context, a Analysis) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding analysis for %s: %w", a.Symbol, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analyses (symbol, price, price_change_percent, rsi, volume, market_cap,
			is_oversold, is_overbought, analyzed_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol) DO UPDATE SET
			price = excluded.price,
			price_change_percent = excluded.price_change_percent,
			rsi = excluded.rsi,
			volume = excluded.volume,
			market_cap = excluded.market_cap,
			is_oversold = excluded.is_oversold,
			is_overbought = excluded.is_overbought,
			analyzed_at = excluded.analyzed_at,
			data = excluded.data`,
		a.Symbol, a.Price, nullable(a.PriceChangePercent), nullable(a.RSI), a.Volume, nullable(a.MarketCap),
		a.IsOversold, a.IsOverbought, a.AnalyzedAt.UnixNano(), string(data))
	if err != nil {
		return fmt.Errorf("saving analysis for %s: %w", a.Symbol, err)
	}
	return nil
}

// GetAnalysis returns the analysis for symbol or ErrNotFound.
func (s *SQLiteStore) GetAnalysis(ctx context.Context, symbol string) (*Analysis, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM analyses WHERE symbol = ?`, symbol).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading analysis for %s: %w", symbol, err)
	}

	var a Analysis
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, fmt.Errorf("decoding analysis for %s: %w", symbol, err)
	}
	return &a, nil
}

// ListAnalyses returns one page of analyses matching f and the total match
// count.
func (s *SQLiteStore) ListAnalyses(ctx context.Context, f Filter) ([]Analysis, int64, error) {
	f = f.Normalize()
	where, args := sqliteWhere(f)

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analyses`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting analyses: %w", err)
	}

	order := "DESC"
	if f.SortOrder == "asc" {
		order = "ASC"
	}
	orderBy := fmt.Sprintf("%s %s, symbol ASC", sortable[f.SortBy], order)
	if f.SortBy == "symbol" {
		orderBy = "symbol " + order
	}
	query := fmt.Sprintf(`SELECT data FROM analyses%s ORDER BY %s LIMIT ? OFFSET ?`, where, orderBy)
	args = append(args, f.PageSize, f.Skip())

	out, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// AllAnalyses returns every stored analysis.
func (s *SQLiteStore) AllAnalyses(ctx context.Context) ([]Analysis, error) {
	return s.query(ctx, `SELECT data FROM analyses ORDER BY symbol`)
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]Analysis, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying analyses: %w", err)
	}
	defer rows.Close()

	var out []Analysis
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning analysis: %w", err)
		}
		var a Analysis
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			return nil, fmt.Errorf("decoding analysis: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close(context.Context) error {
	return s.db.Close()
}

func sqliteWhere(f Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, v any) {
		clauses = append(clauses, clause)
		args = append(args, v)
	}

	if f.MinPrice != nil {
		add("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		add("price <= ?", *f.MaxPrice)
	}
	if f.MinVolume != nil {
		add("volume >= ?", *f.MinVolume)
	}
	if f.MinMarketCap != nil {
		add("market_cap >= ?", *f.MinMarketCap)
	}
	if f.MaxMarketCap != nil {
		add("market_cap <= ?", *f.MaxMarketCap)
	}
	if f.MinRSI != nil {
		add("rsi >= ?", *f.MinRSI)
	}
	if f.MaxRSI != nil {
		add("rsi <= ?", *f.MaxRSI)
	}
	if f.MinChangePercent != nil {
		add("price_change_percent >= ?", *f.MinChangePercent)
	}
	if f.MaxChangePercent != nil {
		add("price_change_percent <= ?", *f.MaxChangePercent)
	}
	if f.OnlyOversold {
		clauses = append(clauses, "is_oversold = 1")
	}
	if f.OnlyOverbought {
		clauses = append(clauses, "is_overbought = 1")
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
