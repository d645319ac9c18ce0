// Package session manages authentication state for indexer sites.
package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Exchange is the HTTP client used for login handshakes. It keeps a
// cookie jar so cookies set by one login step are presented on the next.
type Exchange struct {
	client    *http.Client
	jar       *cookiejar.Jar
	baseURL   *url.URL
	userAgent string
	logger    zerolog.Logger
}

// NewExchange creates a login exchange rooted at the given base URL.
func NewExchange(rawBase string, logger zerolog.Logger) (*Exchange, error) {
	base, err := url.Parse(strings.TrimSuffix(rawBase, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &Exchange{
		client: &http.Client{
			Timeout: 15 * time.Second,
			Jar:     jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		jar:       jar,
		baseURL:   base,
		userAgent: defaultUserAgent,
		logger:    logger.With().Str("component", "session").Logger(),
	}, nil
}

// Page is the result of a single login exchange step.
type Page struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	FinalURL   *url.URL
}

// Document parses the page body as HTML.
func (p *Page) Document() (*goquery.Document, error) {
	return goqueryDocument(p.Body)
}

func goqueryDocument(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

// Get fetches a path relative to the base URL.
func (e *Exchange) Get(ctx context.Context, path string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.resolve(path), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)

	return e.do(req)
}

// PostForm submits urlencoded form data to a path relative to the base URL.
func (e *Exchange) PostForm(ctx context.Context, path string, form url.Values, referer string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.resolve(path), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", e.userAgent)
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	return e.do(req)
}

func (e *Exchange) do(req *http.Request) (*Page, error) {
	e.logger.Debug().Str("method", req.Method).Str("url", req.URL.String()).Msg("Login exchange request")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Page{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		FinalURL:   resp.Request.URL,
	}, nil
}

// resolve turns a path or absolute URL into an absolute URL string.
func (e *Exchange) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return e.baseURL.String() + path
}

// Cookies returns the cookies currently held for the base URL.
func (e *Exchange) Cookies() []*http.Cookie {
	return e.jar.Cookies(e.baseURL)
}

// SetCookies replaces the cookies held for the base URL.
func (e *Exchange) SetCookies(cookies []*http.Cookie) {
	e.jar.SetCookies(e.baseURL, cookies)
}

// ClearCookies drops all held cookies.
func (e *Exchange) ClearCookies() {
	// cookiejar has no delete, so swap in a fresh jar.
	jar, err := cookiejar.New(nil)
	if err != nil {
		return
	}
	e.jar = jar
	e.client.Jar = jar
}

// CookieHeader renders the held cookies as a "name=value; name=value"
// string suitable for persistence.
func (e *Exchange) CookieHeader() string {
	var parts []string
	for _, c := range e.Cookies() {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// ParseCookieString parses a cookie string like "name1=value1; name2=value2".
func ParseCookieString(cookieStr string) []*http.Cookie {
	var cookies []*http.Cookie

	pairs := strings.Split(cookieStr, ";")
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}

		cookies = append(cookies, &http.Cookie{
			Name:  strings.TrimSpace(parts[0]),
			Value: strings.TrimSpace(parts[1]),
		})
	}

	return cookies
}
