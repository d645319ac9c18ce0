package types

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Accept hints what content a request expects back, so the execution layer
// can flag responses whose content type does not match.
type Accept string

const (
	AcceptAny   Accept = ""
	AcceptHTML  Accept = "text/html"
	AcceptJSON  Accept = "application/json"
	AcceptXML   Accept = "text/xml"
	AcceptBytes Accept = "application/octet-stream"
)

// Request is one outbound indexer request. Ephemeral: created by a request
// generator, consumed by the execution layer.
type Request struct {
	Method  string
	URL     string
	Headers http.Header

	// Form, when non-nil, is sent urlencoded as the request body.
	Form url.Values

	Accept Accept

	// FollowRedirects must be set explicitly; several login flows depend on
	// inspecting intermediate redirect responses.
	FollowRedirects bool

	// Timeout overrides the executor default when positive.
	Timeout time.Duration
}

// NewRequest returns a GET request for the given URL. The URL must be
// absolute; request generators concatenate site paths and this catches
// definition mistakes early.
func NewRequest(rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid request URL %q: %w", rawURL, err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("request URL %q is not absolute", rawURL)
	}
	return &Request{Method: http.MethodGet, URL: rawURL, Headers: http.Header{}}, nil
}

// HTTPRequest materializes the request against a context.
func (r *Request) HTTPRequest(ctx context.Context) (*http.Request, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var body *strings.Reader
	if r.Form != nil {
		body = strings.NewReader(r.Form.Encode())
	} else {
		body = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, err
	}

	for key, vals := range r.Headers {
		for _, v := range vals {
			req.Header.Add(key, v)
		}
	}
	if r.Form != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	return req, nil
}

// Response pairs an originating request with the raw result of executing it.
type Response struct {
	Request    *Request
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// ContentType returns the media type of the response without parameters.
func (r *Response) ContentType() string {
	ct := r.Headers.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(strings.ToLower(ct))
}

// Text returns the response body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}
