package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trawler/trawler/internal/indexer/types"
)

func testExchange(t *testing.T, baseURL string) *Exchange {
	t.Helper()
	ex, err := NewExchange(baseURL, zerolog.Nop())
	require.NoError(t, err)
	return ex
}

func TestFormFlowCarriesHiddenFields(t *testing.T) {
	var submitted map[string]string

	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<form action="/takelogin" method="post">
				<input type="hidden" name="csrf_token" value="tok-123">
				<input type="text" name="username">
				<input type="password" name="password">
			</form>
		</body></html>`))
	})
	mux.HandleFunc("/takelogin", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		submitted = map[string]string{}
		for key := range r.PostForm {
			submitted[key] = r.PostForm.Get(key)
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc"})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	ex := testExchange(t, server.URL)
	flow := &FormFlow{
		Path:   "/login",
		Inputs: map[string]string{"username": "alice", "password": "hunter2"},
	}

	require.NoError(t, flow.Login(context.Background(), ex))

	assert.Equal(t, "tok-123", submitted["csrf_token"])
	assert.Equal(t, "alice", submitted["username"])
	assert.Equal(t, "hunter2", submitted["password"])
	assert.Equal(t, "session=abc", ex.CookieHeader())
}

func TestPostFlowErrorSelector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div class="error">Invalid password</div></body></html>`))
	}))
	defer server.Close()

	ex := testExchange(t, server.URL)
	flow := &PostFlow{
		Path:          "/takelogin",
		Inputs:        map[string]string{"username": "alice", "password": "wrong"},
		ErrorSelector: "div.error",
	}

	err := flow.Login(context.Background(), ex)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoginFailed)
	assert.Contains(t, err.Error(), "Invalid password")
}

func TestCookieFlow(t *testing.T) {
	tests := []struct {
		name    string
		cookies string
		wantErr bool
	}{
		{"valid cookies", "uid=42; pass=deadbeef", false},
		{"empty string", "", true},
		{"garbage", ";;;", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := testExchange(t, "https://tracker.example.com")
			flow := &CookieFlow{Cookies: tt.cookies}

			err := flow.Login(context.Background(), ex)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotConfigured)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "uid=42; pass=deadbeef", ex.CookieHeader())
		})
	}
}

func TestAPIKeyFlowHeaders(t *testing.T) {
	flow := &APIKeyFlow{Key: "secret", HeaderName: "X-Api-Key"}
	require.NoError(t, flow.Login(context.Background(), nil))
	assert.Equal(t, "secret", flow.AuthHeaders().Get("X-Api-Key"))

	empty := &APIKeyFlow{Key: "  "}
	assert.ErrorIs(t, empty.Login(context.Background(), nil), ErrNotConfigured)
}

func TestCaptchaFlowPendingAndResume(t *testing.T) {
	var loginOK atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<form action="/takelogin" method="post"></form>
			<img id="captcha" src="/captcha/42.png">
		</body></html>`))
	})
	mux.HandleFunc("/takelogin", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("solution") == "XYZZY" {
			loginOK.Store(true)
		}
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	ex := testExchange(t, server.URL)
	flow := &CaptchaFlow{
		Inner:             &FormFlow{Path: "/login", Inputs: map[string]string{"username": "alice"}},
		ChallengeSelector: "img#captcha",
		SolutionInput:     "solution",
	}

	err := flow.Login(context.Background(), ex)
	assert.ErrorIs(t, err, ErrCaptchaPending)
	assert.Equal(t, "/captcha/42.png", flow.Challenge())

	flow.Resume("XYZZY")
	require.NoError(t, flow.Login(context.Background(), ex))
	assert.True(t, loginOK.Load())
	assert.Empty(t, flow.Challenge())
}

// countingFlow counts handshakes and takes long enough that concurrent
// callers would overlap if logins were not serialized.
type countingFlow struct {
	logins atomic.Int32
}

func (f *countingFlow) Login(ctx context.Context, ex *Exchange) error {
	f.logins.Add(1)
	time.Sleep(10 * time.Millisecond)
	return nil
}

func TestManagerSerializesLogin(t *testing.T) {
	ex := testExchange(t, "https://tracker.example.com")
	flow := &countingFlow{}
	mgr := NewManager("tracker", flow, ex, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, mgr.EnsureAuthenticated(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), flow.logins.Load(), "concurrent callers must share one handshake")
	assert.True(t, mgr.Authenticated())
}

func TestManagerWatermarkExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ex := testExchange(t, "https://tracker.example.com")
	flow := &countingFlow{}
	mgr := NewManager("tracker", flow, ex, zerolog.Nop(),
		WithClock(clock),
		WithValidity(time.Hour),
	)

	require.NoError(t, mgr.EnsureAuthenticated(context.Background()))
	require.NoError(t, mgr.EnsureAuthenticated(context.Background()))
	assert.Equal(t, int32(1), flow.logins.Load())

	clock.Advance(2 * time.Hour)

	require.NoError(t, mgr.EnsureAuthenticated(context.Background()))
	assert.Equal(t, int32(2), flow.logins.Load(), "expired watermark must force a new handshake")
}

func TestPrepareRequestRefreshesLapsedSession(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ex := testExchange(t, "https://tracker.example.com")
	flow := &countingFlow{}
	mgr := NewManager("tracker", flow, ex, zerolog.Nop(),
		WithClock(clock),
	)

	// Short-lived cookies supplied from outside, as a cookie-paste setup
	// would install them.
	mgr.SetCookies(context.Background(), "uid=42; pass=deadbeef", clock.Now().Add(time.Minute))

	req, err := http.NewRequest(http.MethodGet, "https://tracker.example.com/browse?page=0", nil)
	require.NoError(t, err)
	require.NoError(t, mgr.PrepareRequest(context.Background(), req))
	assert.Equal(t, int32(0), flow.logins.Load(), "live cookies go out as-is")

	// The watermark lapses between pages of one chain.
	clock.Advance(2 * time.Minute)

	req, err = http.NewRequest(http.MethodGet, "https://tracker.example.com/browse?page=1", nil)
	require.NoError(t, err)
	require.NoError(t, mgr.PrepareRequest(context.Background(), req))
	assert.Equal(t, int32(1), flow.logins.Load(), "lapsed cookies must trigger a handshake before dispatch")
}

func TestManagerReloginDiscardsSession(t *testing.T) {
	ex := testExchange(t, "https://tracker.example.com")
	flow := &countingFlow{}
	mgr := NewManager("tracker", flow, ex, zerolog.Nop())

	require.NoError(t, mgr.EnsureAuthenticated(context.Background()))
	require.NoError(t, mgr.Relogin(context.Background()))

	assert.Equal(t, int32(2), flow.logins.Load())
}

func TestManagerNoFlowIsNoop(t *testing.T) {
	mgr := NewManager("public", nil, nil, zerolog.Nop())

	assert.NoError(t, mgr.EnsureAuthenticated(context.Background()))
	assert.True(t, mgr.Authenticated())
	assert.False(t, mgr.LoginNeeded(&types.Response{Body: []byte("<form id=login>")}))
}

func TestSelectorCheckDetectsLoginPage(t *testing.T) {
	check := SelectorCheck("form#login")

	loginPage := &types.Response{Body: []byte(`<html><body><form id="login"></form></body></html>`)}
	results := &types.Response{Body: []byte(`<html><body><table class="results"></table></body></html>`)}

	assert.True(t, check(loginPage))
	assert.False(t, check(results))
	assert.False(t, check(nil))
}

// memoryStore is a Store backed by a map, for tests.
type memoryStore struct {
	mu      sync.Mutex
	cookies map[string]string
	expiry  map[string]time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{cookies: map[string]string{}, expiry: map[string]time.Time{}}
}

func (s *memoryStore) GetCookies(ctx context.Context, name string) (string, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cookies[name], s.expiry[name], nil
}

func (s *memoryStore) SaveCookies(ctx context.Context, name, cookies string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookies[name] = cookies
	s.expiry[name] = expiresAt
	return nil
}

func (s *memoryStore) ClearCookies(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cookies, name)
	delete(s.expiry, name)
	return nil
}

func TestManagerRestoresPersistedSession(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := newMemoryStore()
	require.NoError(t, store.SaveCookies(context.Background(), "tracker", "uid=42; pass=deadbeef", clock.Now().Add(time.Hour)))

	ex := testExchange(t, "https://tracker.example.com")
	flow := &countingFlow{}
	mgr := NewManager("tracker", flow, ex, zerolog.Nop(),
		WithClock(clock),
		WithStore(store),
	)

	require.NoError(t, mgr.EnsureAuthenticated(context.Background()))

	assert.Equal(t, int32(0), flow.logins.Load(), "valid persisted cookies must skip the handshake")
	assert.Equal(t, "uid=42; pass=deadbeef", mgr.Cookies())
}
