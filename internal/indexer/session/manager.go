package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/trawler/trawler/internal/indexer/types"
)

// DefaultValidity is how long a successful login is trusted before the
// next search forces a fresh handshake. Most trackers keep sessions
// alive far longer, so expiry in practice is detected by the login-page
// check rather than this watermark.
const DefaultValidity = 30 * 24 * time.Hour

// Store persists cookies across restarts. Implementations live outside
// this package; a nil Store keeps sessions in memory only.
type Store interface {
	GetCookies(ctx context.Context, indexerName string) (cookies string, expiresAt time.Time, err error)
	SaveCookies(ctx context.Context, indexerName string, cookies string, expiresAt time.Time) error
	ClearCookies(ctx context.Context, indexerName string) error
}

// CheckFunc inspects a search response and reports whether it is really
// a login page. HTML trackers routinely return those with HTTP 200.
type CheckFunc func(resp *types.Response) bool

// Manager owns the authentication state for one indexer instance. All
// login traffic is serialized through its mutex so concurrent searches
// against an expired session trigger exactly one handshake.
type Manager struct {
	name     string
	flow     Flow
	exchange *Exchange
	check    CheckFunc
	store    Store
	clock    clockwork.Clock
	validity time.Duration
	logger   zerolog.Logger

	mu        sync.Mutex
	expiresAt time.Time
	restored  bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock substitutes the wall clock, for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithStore attaches persistent cookie storage.
func WithStore(store Store) Option {
	return func(m *Manager) { m.store = store }
}

// WithValidity overrides how long a login is trusted.
func WithValidity(d time.Duration) Option {
	return func(m *Manager) { m.validity = d }
}

// WithLoginCheck sets the response inspection used to detect expired
// sessions hiding behind 200 responses.
func WithLoginCheck(check CheckFunc) Option {
	return func(m *Manager) { m.check = check }
}

// NewManager creates a session manager. A nil flow means the site needs
// no authentication and every call becomes a no-op.
func NewManager(name string, flow Flow, exchange *Exchange, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		name:     name,
		flow:     flow,
		exchange: exchange,
		clock:    clockwork.NewRealClock(),
		validity: DefaultValidity,
		logger:   logger.With().Str("component", "session").Str("indexer", name).Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnsureAuthenticated logs in when the current session is missing or
// past its watermark. Safe for concurrent use; only one caller performs
// the handshake, the rest wait and reuse its result.
func (m *Manager) EnsureAuthenticated(ctx context.Context) error {
	if m.flow == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.restore(ctx)

	if m.authenticatedLocked() {
		return nil
	}

	return m.loginLocked(ctx)
}

// Relogin discards the current session and performs a fresh handshake.
// Called after a response proved the old cookies dead.
func (m *Manager) Relogin(ctx context.Context) error {
	if m.flow == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.invalidateLocked(ctx)

	return m.loginLocked(ctx)
}

// Invalidate drops the session so the next search logs in again.
func (m *Manager) Invalidate(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.invalidateLocked(ctx)
}

// LoginNeeded reports whether a search response is actually a login
// page. Always false when no check is configured.
func (m *Manager) LoginNeeded(resp *types.Response) bool {
	if m.flow == nil || m.check == nil {
		return false
	}
	return m.check(resp)
}

// PrepareRequest attaches the session's cookies and any auth headers to
// an outgoing request. A session whose watermark has lapsed since the
// search started, such as externally supplied short-lived cookies, is
// refreshed here so later pages of a chain never go out with dead
// cookies.
func (m *Manager) PrepareRequest(ctx context.Context, req *http.Request) error {
	if m.flow == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.restore(ctx)

	if !m.authenticatedLocked() {
		if err := m.loginLocked(ctx); err != nil {
			return err
		}
	}

	for _, c := range m.exchange.Cookies() {
		req.AddCookie(c)
	}

	if hp, ok := m.flow.(HeaderProvider); ok {
		for key, vals := range hp.AuthHeaders() {
			for _, v := range vals {
				req.Header.Set(key, v)
			}
		}
	}

	return nil
}

// SetCookies installs externally supplied cookies, trusting them until
// the given expiry.
func (m *Manager) SetCookies(ctx context.Context, cookieStr string, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.exchange.SetCookies(ParseCookieString(cookieStr))
	m.expiresAt = expiresAt
	m.restored = true

	m.persist(ctx)
}

// Cookies returns the current session cookies as a header string.
func (m *Manager) Cookies() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exchange.CookieHeader()
}

// Authenticated reports whether a live session is held.
func (m *Manager) Authenticated() bool {
	if m.flow == nil {
		return true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticatedLocked()
}

func (m *Manager) authenticatedLocked() bool {
	return !m.expiresAt.IsZero() && m.clock.Now().Before(m.expiresAt)
}

func (m *Manager) loginLocked(ctx context.Context) error {
	m.logger.Debug().Msg("Performing login")

	if err := m.flow.Login(ctx, m.exchange); err != nil {
		m.logger.Warn().Err(err).Msg("Login failed")
		return err
	}

	m.expiresAt = m.clock.Now().Add(m.validity)
	m.restored = true

	m.logger.Info().Time("expiresAt", m.expiresAt).Msg("Login succeeded")

	m.persist(ctx)

	return nil
}

func (m *Manager) invalidateLocked(ctx context.Context) {
	m.expiresAt = time.Time{}
	m.exchange.ClearCookies()

	if m.store != nil {
		if err := m.store.ClearCookies(ctx, m.name); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to clear persisted cookies")
		}
	}
}

// restore pulls persisted cookies into the exchange once per process.
func (m *Manager) restore(ctx context.Context) {
	if m.restored || m.store == nil {
		return
	}
	m.restored = true

	cookies, expiresAt, err := m.store.GetCookies(ctx, m.name)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Failed to load persisted cookies")
		return
	}
	if cookies == "" || !m.clock.Now().Before(expiresAt) {
		return
	}

	m.exchange.SetCookies(ParseCookieString(cookies))
	m.expiresAt = expiresAt

	m.logger.Debug().Time("expiresAt", expiresAt).Msg("Restored persisted session")
}

func (m *Manager) persist(ctx context.Context) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveCookies(ctx, m.name, m.exchange.CookieHeader(), m.expiresAt); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to persist cookies")
	}
}

// SelectorCheck builds a CheckFunc that treats any HTML response
// matching the selector as a login page.
func SelectorCheck(selector string) CheckFunc {
	return func(resp *types.Response) bool {
		if resp == nil || len(resp.Body) == 0 {
			return false
		}
		doc, err := goqueryDocument(resp.Body)
		if err != nil {
			return false
		}
		return doc.Find(selector).Length() > 0
	}
}
