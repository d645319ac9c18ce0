// Package httpexec executes indexer HTTP requests with rate limiting,
// session upkeep, and error classification.
package httpexec

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/trawler/trawler/internal/indexer/types"
)

// AuthHook lets a session manager participate in request execution.
// PrepareRequest runs before dispatch to attach cookies or headers,
// LoginNeeded inspects successful responses for disguised login pages,
// and Relogin refreshes the session so the request can be retried once.
type AuthHook interface {
	PrepareRequest(ctx context.Context, req *http.Request) error
	LoginNeeded(resp *types.Response) bool
	Relogin(ctx context.Context) error
}

// Config defines execution limits for one indexer.
type Config struct {
	// RequestInterval is the minimum delay between request dispatches.
	RequestInterval time.Duration
	// QueryLimit is the maximum number of queries allowed in the period
	QueryLimit int
	// QueryPeriod is the time period for query limiting
	QueryPeriod time.Duration
	// GrabLimit is the maximum number of grabs allowed in the period
	GrabLimit int
	// GrabPeriod is the time period for grab limiting
	GrabPeriod time.Duration
	// Timeout bounds a single request when the request itself sets none.
	Timeout time.Duration
}

// DefaultConfig returns the default execution limits.
func DefaultConfig() Config {
	return Config{
		RequestInterval: 2 * time.Second,
		QueryLimit:      100,
		QueryPeriod:     time.Hour,
		GrabLimit:       25,
		GrabPeriod:      time.Hour,
		Timeout:         60 * time.Second,
	}
}

// rateBucket tracks a windowed request budget.
type rateBucket struct {
	count     int
	resetTime time.Time
}

// Executor serializes HTTP traffic to one site. Requests within a
// search run one at a time with a minimum interval between dispatches,
// measured from dispatch to dispatch, so a slow response does not earn
// the next request a head start.
type Executor struct {
	name   string
	client *http.Client
	direct *http.Client // redirect-suppressed variant
	hook   AuthHook
	clock  clockwork.Clock
	config Config
	logger zerolog.Logger

	mu           sync.Mutex
	lastDispatch time.Time
	queryBucket  rateBucket
	grabBucket   rateBucket
}

// Option configures an Executor.
type Option func(*Executor)

// WithClock substitutes the wall clock, for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Executor) { e.clock = clock }
}

// WithAuthHook attaches a session manager to the executor.
func WithAuthHook(hook AuthHook) Option {
	return func(e *Executor) { e.hook = hook }
}

// WithTransport overrides the HTTP transport, for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(e *Executor) {
		e.client.Transport = rt
		e.direct.Transport = rt
	}
}

// NewExecutor creates an executor for one indexer.
func NewExecutor(name string, config Config, logger zerolog.Logger, opts ...Option) *Executor {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	e := &Executor{
		name: name,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		direct: &http.Client{
			Timeout: config.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		clock:  clockwork.NewRealClock(),
		config: config,
		logger: logger.With().Str("component", "http-executor").Str("indexer", name).Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute dispatches one search request and classifies the outcome.
// When an auth hook reports the response is really a login page, the
// executor relogs in and retries the request exactly once.
func (e *Executor) Execute(ctx context.Context, req *types.Request) (*types.Response, error) {
	if err := e.takeBudget(&e.queryBucket, e.config.QueryLimit, e.config.QueryPeriod); err != nil {
		return nil, err
	}

	resp, err := e.dispatch(ctx, req)
	if err != nil {
		return nil, err
	}

	if e.hook != nil && e.hook.LoginNeeded(resp) {
		e.logger.Debug().Str("url", req.URL).Msg("Response looks like a login page, refreshing session")

		if err := e.hook.Relogin(ctx); err != nil {
			return nil, err
		}

		resp, err = e.dispatch(ctx, req)
		if err != nil {
			return nil, err
		}
		if e.hook.LoginNeeded(resp) {
			return nil, ErrSessionExpired
		}
	}

	return resp, nil
}

// Download fetches a payload, counting against the grab budget.
func (e *Executor) Download(ctx context.Context, req *types.Request) (*types.Response, error) {
	if err := e.takeBudget(&e.grabBucket, e.config.GrabLimit, e.config.GrabPeriod); err != nil {
		return nil, err
	}

	return e.dispatch(ctx, req)
}

// dispatch waits for the pacing slot, performs the request, and
// classifies HTTP-level failures.
func (e *Executor) dispatch(ctx context.Context, req *types.Request) (*types.Response, error) {
	if err := e.waitTurn(ctx); err != nil {
		return nil, err
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := req.HTTPRequest(ctx)
	if err != nil {
		return nil, err
	}

	if e.hook != nil {
		if err := e.hook.PrepareRequest(ctx, httpReq); err != nil {
			return nil, err
		}
	}

	client := e.client
	if !req.FollowRedirects {
		client = e.direct
	}

	e.logger.Debug().Str("method", httpReq.Method).Str("url", httpReq.URL.String()).Msg("Dispatching request")

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	resp := &types.Response{
		Request:    req,
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       body,
	}

	return resp, e.classify(resp)
}

// classify maps a response onto the package's error sentinels. A nil
// return means the response is usable.
func (e *Executor) classify(resp *types.Response) error {
	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Headers.Get("Retry-After"), e.clock.Now())
		e.logger.Warn().Dur("retryAfter", retryAfter).Msg("Site rate limited the request")
		return &RateLimitError{RetryAfter: retryAfter, Source: "site"}
	}

	// Redirect statuses pass through when redirects were suppressed;
	// the caller asked to see them.
	if resp.StatusCode >= 400 {
		return &StatusError{StatusCode: resp.StatusCode, Body: resp.Body}
	}

	if !acceptable(resp.Request.Accept, resp.ContentType()) {
		return &ContentMismatchError{Expected: acceptName(resp.Request.Accept), Got: resp.ContentType()}
	}

	return nil
}

// waitTurn enforces the dispatch interval. The slot is claimed under
// the lock so concurrent callers queue up behind each other.
func (e *Executor) waitTurn(ctx context.Context) error {
	if e.config.RequestInterval <= 0 {
		return nil
	}

	e.mu.Lock()
	now := e.clock.Now()
	next := e.lastDispatch.Add(e.config.RequestInterval)

	var wait time.Duration
	if e.lastDispatch.IsZero() || !now.Before(next) {
		e.lastDispatch = now
	} else {
		wait = next.Sub(now)
		e.lastDispatch = next
	}
	e.mu.Unlock()

	if wait <= 0 {
		return nil
	}

	select {
	case <-e.clock.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// takeBudget consumes one unit from a windowed budget.
func (e *Executor) takeBudget(bucket *rateBucket, limit int, period time.Duration) error {
	if limit <= 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if bucket.resetTime.IsZero() || now.After(bucket.resetTime) {
		bucket.count = 0
		bucket.resetTime = now.Add(period)
	}

	if bucket.count >= limit {
		retryAfter := bucket.resetTime.Sub(now)
		e.logger.Warn().
			Int("count", bucket.count).
			Int("limit", limit).
			Dur("retryAfter", retryAfter).
			Msg("Local rate limit reached")
		return &RateLimitError{RetryAfter: retryAfter, Source: "local budget"}
	}

	bucket.count++
	return nil
}

// QueryBudget returns the used and allowed query counts in the current
// window.
func (e *Executor) QueryBudget() (used, limit int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.queryBucket.resetTime.IsZero() && e.clock.Now().After(e.queryBucket.resetTime) {
		return 0, e.config.QueryLimit
	}
	return e.queryBucket.count, e.config.QueryLimit
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return time.Minute
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return time.Minute
}

// acceptable reports whether a content type satisfies an Accept hint.
func acceptable(accept types.Accept, contentType string) bool {
	switch accept {
	case types.AcceptHTML:
		return strings.Contains(contentType, "html") || contentType == "" || strings.HasPrefix(contentType, "text/plain")
	case types.AcceptJSON:
		return strings.Contains(contentType, "json")
	case types.AcceptXML:
		return strings.Contains(contentType, "xml") || strings.Contains(contentType, "rss") || strings.Contains(contentType, "atom")
	case types.AcceptBytes:
		// Anything binary is fine; an HTML page here is an error page.
		return !strings.Contains(contentType, "html")
	default:
		return true
	}
}

func acceptName(accept types.Accept) string {
	switch accept {
	case types.AcceptHTML:
		return "html"
	case types.AcceptJSON:
		return "json"
	case types.AcceptXML:
		return "xml"
	case types.AcceptBytes:
		return "binary"
	default:
		return "any"
	}
}
