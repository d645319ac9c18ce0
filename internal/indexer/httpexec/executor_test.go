package httpexec

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trawler/trawler/internal/indexer/types"
)

// stubTransport serves canned responses without a network.
type stubTransport struct {
	calls atomic.Int32
	fn    func(req *http.Request) *http.Response
}

func (t *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.calls.Add(1)
	return t.fn(req), nil
}

func textResponse(status int, contentType, body string) *http.Response {
	header := http.Header{}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newTestExecutor(t *testing.T, config Config, transport *stubTransport, opts ...Option) *Executor {
	t.Helper()
	opts = append(opts, WithTransport(transport))
	return NewExecutor("test", config, zerolog.Nop(), opts...)
}

func TestExecutePacesDispatches(t *testing.T) {
	clock := clockwork.NewFakeClock()
	transport := &stubTransport{fn: func(req *http.Request) *http.Response {
		return textResponse(200, "application/json", `{}`)
	}}

	config := Config{RequestInterval: 2 * time.Second}
	exec := newTestExecutor(t, config, transport, WithClock(clock))

	req, err := types.NewRequest("https://tracker.example.com/api")
	require.NoError(t, err)
	req.Accept = types.AcceptJSON

	// First dispatch claims the slot without waiting.
	_, err = exec.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(1), transport.calls.Load())

	// Second dispatch must wait out the interval.
	done := make(chan error, 1)
	go func() {
		_, err := exec.Execute(context.Background(), req)
		done <- err
	}()

	clock.BlockUntil(1)
	assert.Equal(t, int32(1), transport.calls.Load(), "second request must not dispatch before the interval elapses")

	clock.Advance(2 * time.Second)
	require.NoError(t, <-done)
	assert.Equal(t, int32(2), transport.calls.Load())
}

func TestExecuteCancelWhileWaiting(t *testing.T) {
	clock := clockwork.NewFakeClock()
	transport := &stubTransport{fn: func(req *http.Request) *http.Response {
		return textResponse(200, "text/html", "<html></html>")
	}}

	exec := newTestExecutor(t, Config{RequestInterval: time.Minute}, transport, WithClock(clock))

	req, err := types.NewRequest("https://tracker.example.com/browse")
	require.NoError(t, err)

	_, err = exec.Execute(context.Background(), req)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := exec.Execute(ctx, req)
		done <- err
	}()

	clock.BlockUntil(1)
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, int32(1), transport.calls.Load())
}

func TestExecuteClassification(t *testing.T) {
	tests := []struct {
		name     string
		response *http.Response
		accept   types.Accept
		check    func(t *testing.T, err error)
	}{
		{
			name:     "too many requests",
			response: textResponse(429, "text/html", "slow down"),
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrRateLimited)
				var rle *RateLimitError
				require.ErrorAs(t, err, &rle)
				assert.Equal(t, "site", rle.Source)
			},
		},
		{
			name:     "server error keeps body",
			response: textResponse(503, "text/html", "maintenance"),
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, 503, se.StatusCode)
				assert.Equal(t, "maintenance", string(se.Body))
			},
		},
		{
			name:     "html error page where json expected",
			response: textResponse(200, "text/html; charset=utf-8", "<html>oops</html>"),
			accept:   types.AcceptJSON,
			check: func(t *testing.T, err error) {
				var cme *ContentMismatchError
				require.ErrorAs(t, err, &cme)
				assert.Equal(t, "json", cme.Expected)
				assert.Equal(t, "text/html", cme.Got)
			},
		},
		{
			name:     "rss feed satisfies xml",
			response: textResponse(200, "application/rss+xml", "<rss/>"),
			accept:   types.AcceptXML,
			check: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		{
			name:     "json ok",
			response: textResponse(200, "application/json", `{"results":[]}`),
			accept:   types.AcceptJSON,
			check: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &stubTransport{fn: func(req *http.Request) *http.Response {
				return tt.response
			}}
			exec := newTestExecutor(t, Config{}, transport)

			req, err := types.NewRequest("https://tracker.example.com/api")
			require.NoError(t, err)
			req.Accept = tt.accept

			_, err = exec.Execute(context.Background(), req)
			tt.check(t, err)
		})
	}
}

func TestRequestTimeoutBoundsDispatch(t *testing.T) {
	var deadline time.Time
	var hasDeadline bool
	transport := &stubTransport{fn: func(req *http.Request) *http.Response {
		deadline, hasDeadline = req.Context().Deadline()
		return textResponse(200, "text/html", "<html></html>")
	}}
	exec := newTestExecutor(t, Config{Timeout: time.Minute}, transport)

	req, err := types.NewRequest("https://tracker.example.com/browse")
	require.NoError(t, err)
	req.Timeout = 5 * time.Second

	start := time.Now()
	_, err = exec.Execute(context.Background(), req)
	require.NoError(t, err)

	require.True(t, hasDeadline, "per-request timeout must reach the transport as a deadline")
	assert.WithinDuration(t, start.Add(5*time.Second), deadline, time.Second)
}

func TestRetryAfterHeader(t *testing.T) {
	transport := &stubTransport{fn: func(req *http.Request) *http.Response {
		resp := textResponse(429, "text/plain", "")
		resp.Header.Set("Retry-After", "30")
		return resp
	}}
	exec := newTestExecutor(t, Config{}, transport)

	req, err := types.NewRequest("https://tracker.example.com/api")
	require.NoError(t, err)

	_, err = exec.Execute(context.Background(), req)
	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, 30*time.Second, rle.RetryAfter)
}

func TestQueryBudgetExhaustion(t *testing.T) {
	clock := clockwork.NewFakeClock()
	transport := &stubTransport{fn: func(req *http.Request) *http.Response {
		return textResponse(200, "text/html", "<html></html>")
	}}

	config := Config{QueryLimit: 2, QueryPeriod: time.Hour}
	exec := newTestExecutor(t, config, transport, WithClock(clock))

	req, err := types.NewRequest("https://tracker.example.com/browse")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := exec.Execute(context.Background(), req)
		require.NoError(t, err)
	}

	_, err = exec.Execute(context.Background(), req)
	assert.ErrorIs(t, err, ErrRateLimited)
	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, "local budget", rle.Source)

	// The window rolling over restores the budget.
	clock.Advance(time.Hour + time.Second)
	_, err = exec.Execute(context.Background(), req)
	assert.NoError(t, err)
}

// fakeHook simulates a session manager whose first responses are login
// pages.
type fakeHook struct {
	loginPages int32 // responses to flag as login pages
	relogins   atomic.Int32
	prepared   atomic.Int32
	seen       atomic.Int32
}

func (h *fakeHook) PrepareRequest(ctx context.Context, req *http.Request) error {
	h.prepared.Add(1)
	return nil
}

func (h *fakeHook) LoginNeeded(resp *types.Response) bool {
	return h.seen.Add(1) <= h.loginPages
}

func (h *fakeHook) Relogin(ctx context.Context) error {
	h.relogins.Add(1)
	return nil
}

func TestExecuteRetriesOnceAfterRelogin(t *testing.T) {
	transport := &stubTransport{fn: func(req *http.Request) *http.Response {
		return textResponse(200, "text/html", "<html></html>")
	}}
	hook := &fakeHook{loginPages: 1}
	exec := newTestExecutor(t, Config{}, transport, WithAuthHook(hook))

	req, err := types.NewRequest("https://tracker.example.com/browse")
	require.NoError(t, err)

	resp, err := exec.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.NotNil(t, resp)

	assert.Equal(t, int32(1), hook.relogins.Load())
	assert.Equal(t, int32(2), transport.calls.Load(), "request must be retried exactly once")
}

func TestExecuteGivesUpWhenStillLoginPage(t *testing.T) {
	transport := &stubTransport{fn: func(req *http.Request) *http.Response {
		return textResponse(200, "text/html", "<html></html>")
	}}
	hook := &fakeHook{loginPages: 2}
	exec := newTestExecutor(t, Config{}, transport, WithAuthHook(hook))

	req, err := types.NewRequest("https://tracker.example.com/browse")
	require.NoError(t, err)

	_, err = exec.Execute(context.Background(), req)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, int32(1), hook.relogins.Load())
	assert.Equal(t, int32(2), transport.calls.Load())
}

func TestReloginFailurePropagates(t *testing.T) {
	transport := &stubTransport{fn: func(req *http.Request) *http.Response {
		return textResponse(200, "text/html", "<html></html>")
	}}
	hook := &reloginFailHook{}
	exec := newTestExecutor(t, Config{}, transport, WithAuthHook(hook))

	req, err := types.NewRequest("https://tracker.example.com/browse")
	require.NoError(t, err)

	_, err = exec.Execute(context.Background(), req)
	assert.ErrorIs(t, err, errLoginDown)
}

var errLoginDown = errors.New("login endpoint down")

type reloginFailHook struct{}

func (h *reloginFailHook) PrepareRequest(ctx context.Context, req *http.Request) error { return nil }
func (h *reloginFailHook) LoginNeeded(resp *types.Response) bool                       { return true }
func (h *reloginFailHook) Relogin(ctx context.Context) error                           { return errLoginDown }

func TestDownloadCountsGrabBudget(t *testing.T) {
	transport := &stubTransport{fn: func(req *http.Request) *http.Response {
		return textResponse(200, "application/x-bittorrent", "d8:announce0:e")
	}}

	config := Config{GrabLimit: 1, GrabPeriod: time.Hour}
	exec := newTestExecutor(t, config, transport)

	req, err := types.NewRequest("https://tracker.example.com/download/1")
	require.NoError(t, err)
	req.Accept = types.AcceptBytes

	resp, err := exec.Download(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "d8:announce0:e", string(resp.Body))

	_, err = exec.Download(context.Background(), req)
	assert.ErrorIs(t, err, ErrRateLimited)
}
