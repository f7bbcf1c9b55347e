// Package session owns the short-lived upstream credential (a cookie plus a
// crumb token) required by the chart endpoint.
//
// The credential is acquired with a two-step handshake: a request to the
// session endpoint that sets the consent cookie, followed by a crumb request
// that presents the cookie. Concurrent refreshes are coalesced so only one
// handshake is in flight at any time.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
	"resty.dev/v3"

	"stockanalyzer/internal/fetcher"
	"stockanalyzer/internal/ratelimit"
)

const (
	// DefaultTTL is how long a crumb is trusted before it is refreshed.
	DefaultTTL = 15 * time.Minute

	// DefaultSessionURL sets the consent cookie; it answers 404 on success.
	DefaultSessionURL = "https://fc.yahoo.com"
	// DefaultCrumbURL issues a crumb for the cookie presented.
	DefaultCrumbURL = "https://query1.finance.yahoo.com/v1/test/getcrumb"

	flightKey = "credential"
)

// Credential is a crumb and the cookies it is bound to.
type Credential struct {
	Token      string
	Cookies    []*http.Cookie
	AcquiredAt time.Time
}

// Expired reports whether the credential is older than ttl at now.
func (c Credential) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.AcquiredAt) > ttl
}

// Config holds the endpoints and lifetimes used by a Manager.
type Config struct {
	SessionURL string
	CrumbURL   string
	TTL        time.Duration
	Limiter    *ratelimit.Limiter
	Logger     *slog.Logger
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// Manager hands out a valid Credential, refreshing it on expiry or after an
// upstream rejection.
type Manager struct {
	client     *resty.Client
	sessionURL string
	crumbURL   string
	ttl        time.Duration
	limiter    *ratelimit.Limiter
	log        *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	current *Credential

	group      singleflight.Group
	handshakes atomic.Int64
}

// NewManager creates a Manager. Zero-valued Config fields take defaults.
func NewManager(cfg Config) *Manager {
	if cfg.SessionURL == "" {
		cfg.SessionURL = DefaultSessionURL
	}
	if cfg.CrumbURL == "" {
		cfg.CrumbURL = DefaultCrumbURL
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{
		client:     fetcher.NewHTTPClient(""),
		sessionURL: cfg.SessionURL,
		crumbURL:   cfg.CrumbURL,
		ttl:        cfg.TTL,
		limiter:    cfg.Limiter,
		log:        cfg.Logger,
		now:        cfg.Now,
	}
}

// Get returns a credential that is valid at return time. If the cached one is
// missing, expired or invalidated, a refresh runs first; concurrent callers
// share that single refresh and its result.
func (m *Manager) Get(ctx context.Context) (Credential, error) {
	if c, ok := m.cached(); ok {
		return c, nil
	}

	ch := m.group.DoChan(flightKey, func() (any, error) {
		// Another flight may have completed between cached() and DoChan.
		if c, ok := m.cached(); ok {
			return c, nil
		}

		// Detach from the first caller's cancellation; the other waiters
		// still need the result. The client timeout bounds the handshake.
		c, err := m.handshake(context.WithoutCancel(ctx))
		if err != nil {
			return Credential{}, err
		}

		m.mu.Lock()
		m.current = &c
		m.mu.Unlock()
		return c, nil
	})

	select {
	case <-ctx.Done():
		return Credential{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Credential{}, res.Err
		}
		return res.Val.(Credential), nil
	}
}

// Invalidate drops the cached credential if it still carries token. Workers
// pass the token that was rejected so a late report cannot discard a
// credential that was refreshed in the meantime. An empty token always
// invalidates.
func (m *Manager) Invalidate(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return
	}
	if token != "" && m.current.Token != token {
		return
	}
	m.log.Debug("session credential invalidated")
	m.current = nil
}

// Handshakes returns how many handshakes have been attempted.
func (m *Manager) Handshakes() int64 {
	return m.handshakes.Load()
}

func (m *Manager) cached() (Credential, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.current.Expired(m.now(), m.ttl) {
		return Credential{}, false
	}
	return *m.current, true
}

func (m *Manager) handshake(ctx context.Context) (Credential, error) {
	m.handshakes.Add(1)
	start := m.now()

	if err := m.limiter.Wait(ctx, ratelimit.APIYahoo); err != nil {
		return Credential{}, fmt.Errorf("waiting for session slot: %w", err)
	}

	// Step 1: establish the session cookie. The status code is irrelevant;
	// only transport failures abort.
	resp, err := m.client.R().
		SetContext(ctx).
		SetHeader("Accept", "text/html").
		Get(m.sessionURL)
	if err != nil {
		return Credential{}, fmt.Errorf("establishing session: %w", fetcher.NewNetworkError(err))
	}
	cookies := resp.Cookies()

	// Step 2: exchange the cookie for a crumb.
	resp, err = m.client.R().
		SetContext(ctx).
		SetCookies(cookies).
		SetHeader("Accept", "text/plain").
		Get(m.crumbURL)
	if err != nil {
		return Credential{}, fmt.Errorf("requesting crumb: %w", fetcher.NewNetworkError(err))
	}
	if !resp.IsSuccess() {
		return Credential{}, fmt.Errorf("requesting crumb: %w", fetcher.ClassifyHTTPError(resp.StatusCode()))
	}

	crumb := strings.TrimSpace(resp.String())
	if crumb == "" || strings.ContainsAny(crumb, "<{ ") {
		return Credential{}, fmt.Errorf("requesting crumb: %w", fetcher.NewValidationError("malformed crumb"))
	}

	m.log.Info("session credential refreshed", "cookies", len(cookies), "elapsed", m.now().Sub(start))

	return Credential{
		Token:      crumb,
		Cookies:    cookies,
		AcquiredAt: m.now(),
	}, nil
}
