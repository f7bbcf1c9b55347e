package yahoo

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"resty.dev/v3"

	"stockanalyzer/internal/fetcher"
	"stockanalyzer/internal/ratelimit"
	"stockanalyzer/internal/session"
)

// DefaultBaseURL is the production chart host.
const DefaultBaseURL = "https://query1.finance.yahoo.com"

// Credentials is the part of the session manager a Client depends on.
type Credentials interface {
	Get(ctx context.Context) (session.Credential, error)
	Invalidate(token string)
}

// Client fetches daily price history from the chart endpoint.
type Client struct {
	client  *resty.Client
	creds   Credentials
	limiter *ratelimit.Limiter
	log     *slog.Logger
}

// NewClient creates a new chart client. limiter may be nil.
func NewClient(baseURL string, creds Credentials, limiter *ratelimit.Limiter, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		client:  fetcher.NewHTTPClient(baseURL),
		creds:   creds,
		limiter: limiter,
		log:     log,
	}
}

// Fetch retrieves the daily series for symbol. A rejected credential is
// invalidated and the request is retried exactly once with a fresh one.
func (c *Client) Fetch(ctx context.Context, symbol string, lookbackDays int) ([]fetcher.PricePoint, error) {
	if err := fetcher.ValidateSymbol(symbol); err != nil {
		return nil, err
	}

	cred, err := c.creds.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring credential for %s: %w", symbol, err)
	}

	prices, err := c.fetchOnce(ctx, symbol, lookbackDays, cred)
	if !fetcher.IsCredentialRejected(err) {
		return prices, err
	}

	c.log.Warn("credential rejected, refreshing", "symbol", symbol)
	c.creds.Invalidate(cred.Token)

	cred, err = c.creds.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("refreshing credential for %s: %w", symbol, err)
	}
	return c.fetchOnce(ctx, symbol, lookbackDays, cred)
}

// Key returns the source key for this fetcher
func (c *Client) Key() string {
	return "fetcher:yahoo"
}

func (c *Client) fetchOnce(ctx context.Context, symbol string, lookbackDays int, cred session.Credential) ([]fetcher.PricePoint, error) {
	if err := c.limiter.Wait(ctx, ratelimit.APIYahoo); err != nil {
		return nil, fmt.Errorf("waiting for request slot: %w", err)
	}

	var chart ChartResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol).
		SetQueryParams(map[string]string{
			"interval": "1d",
			"range":    strconv.Itoa(lookbackDays) + "d",
			"crumb":    cred.Token,
		}).
		SetCookies(cred.Cookies).
		SetExpectResponseContentType("application/json").
		SetResult(&chart).
		Get("/v8/finance/chart/{symbol}")

	if err != nil {
		if ctx.Err() != nil {
			return nil, fetcher.NewTimeoutError(err)
		}
		// A 2xx whose body failed to decode is bad data, not a transport failure.
		if resp != nil && resp.IsSuccess() {
			return nil, fetcher.NewValidationError(fmt.Sprintf("failed to parse chart for %s: %v", symbol, err))
		}
		return nil, fmt.Errorf("failed to fetch chart for %s: %w", symbol, fetcher.NewNetworkError(err))
	}

	if !resp.IsSuccess() {
		return nil, fmt.Errorf("chart API returned status %d for %s: %w", resp.StatusCode(), symbol, fetcher.ClassifyHTTPError(resp.StatusCode()))
	}

	return toPrices(&chart, symbol)
}
