package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// Sentinel errors returned by login flows.
var (
	// ErrLoginFailed means the site rejected the credentials.
	ErrLoginFailed = errors.New("login failed")
	// ErrCaptchaPending means login is blocked until a captcha solution
	// is supplied out of band.
	ErrCaptchaPending = errors.New("captcha challenge pending")
	// ErrNotConfigured means required login settings are missing.
	ErrNotConfigured = errors.New("login not configured")
)

// Flow performs one site's login handshake against an exchange.
type Flow interface {
	Login(ctx context.Context, ex *Exchange) error
}

// HeaderProvider is an optional interface for flows whose credentials
// travel in request headers instead of cookies.
type HeaderProvider interface {
	AuthHeaders() http.Header
}

// PostFlow submits credentials directly to a login endpoint without
// fetching the login page first.
type PostFlow struct {
	Path          string
	Inputs        map[string]string
	ErrorSelector string // present in the response when login failed
	MessageSel    string // selector for the failure message text
}

func (f *PostFlow) Login(ctx context.Context, ex *Exchange) error {
	form := url.Values{}
	for key, val := range f.Inputs {
		form.Set(key, val)
	}

	page, err := ex.PostForm(ctx, f.Path, form, "")
	if err != nil {
		return err
	}

	return checkLoginError(page, f.ErrorSelector, f.MessageSel)
}

// FormFlow fetches the login page, scrapes the form action and hidden
// inputs (CSRF tokens and the like), merges in the credentials, and
// submits the result.
type FormFlow struct {
	Path          string
	FormSelector  string // defaults to "form"
	Inputs        map[string]string
	ErrorSelector string
	MessageSel    string
}

func (f *FormFlow) Login(ctx context.Context, ex *Exchange) error {
	page, err := ex.Get(ctx, f.Path)
	if err != nil {
		return err
	}

	doc, err := page.Document()
	if err != nil {
		return fmt.Errorf("failed to parse login page: %w", err)
	}

	formSelector := f.FormSelector
	if formSelector == "" {
		formSelector = "form"
	}

	formSel := doc.Find(formSelector).First()
	if formSel.Length() == 0 {
		return fmt.Errorf("%w: login form %q not found", ErrLoginFailed, formSelector)
	}

	action, _ := formSel.Attr("action")
	if action == "" {
		action = f.Path
	}

	form := url.Values{}

	// Carry hidden fields from the page so server-issued tokens survive.
	formSel.Find("input[type=hidden]").Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok || name == "" {
			return
		}
		value, _ := s.Attr("value")
		form.Set(name, value)
	})

	for key, val := range f.Inputs {
		form.Set(key, val)
	}

	result, err := ex.PostForm(ctx, action, form, ex.resolve(f.Path))
	if err != nil {
		return err
	}

	return checkLoginError(result, f.ErrorSelector, f.MessageSel)
}

// Step is one stage of a multi-step login.
type Step struct {
	Path    string
	Inputs  map[string]string
	Capture map[string]string // form field name -> css selector whose value attr to capture
}

// StepFlow runs an ordered sequence of login stages. Values captured in
// one stage are submitted alongside the inputs of the next.
type StepFlow struct {
	Steps []Step

	captured url.Values
}

func (f *StepFlow) Login(ctx context.Context, ex *Exchange) error {
	f.captured = url.Values{}

	for i, step := range f.Steps {
		if len(step.Capture) > 0 {
			page, err := ex.Get(ctx, step.Path)
			if err != nil {
				return fmt.Errorf("login step %d: %w", i+1, err)
			}
			doc, err := page.Document()
			if err != nil {
				return fmt.Errorf("login step %d: failed to parse page: %w", i+1, err)
			}
			for field, selector := range step.Capture {
				val, _ := doc.Find(selector).First().Attr("value")
				f.captured.Set(field, val)
			}
		}

		if len(step.Inputs) == 0 {
			continue
		}

		form := url.Values{}
		for key, vals := range f.captured {
			for _, v := range vals {
				form.Set(key, v)
			}
		}
		for key, val := range step.Inputs {
			form.Set(key, val)
		}

		page, err := ex.PostForm(ctx, step.Path, form, "")
		if err != nil {
			return fmt.Errorf("login step %d: %w", i+1, err)
		}
		if page.StatusCode >= 400 {
			return fmt.Errorf("%w: step %d returned status %d", ErrLoginFailed, i+1, page.StatusCode)
		}
	}

	return nil
}

// CookieFlow injects user-provided cookies instead of performing a
// handshake. Used for sites behind captchas or third-party SSO where the
// user logs in with a browser and pastes the cookie header.
type CookieFlow struct {
	Cookies string
}

func (f *CookieFlow) Login(ctx context.Context, ex *Exchange) error {
	if strings.TrimSpace(f.Cookies) == "" {
		return fmt.Errorf("%w: no cookies provided", ErrNotConfigured)
	}

	cookies := ParseCookieString(f.Cookies)
	if len(cookies) == 0 {
		return fmt.Errorf("%w: cookie string is malformed", ErrNotConfigured)
	}

	ex.SetCookies(cookies)

	return nil
}

// APIKeyFlow authenticates with a static key. No handshake happens; the
// key is validated for presence and attached to requests as a header
// when HeaderName is set, or embedded in URLs by the request generator.
type APIKeyFlow struct {
	Key        string
	HeaderName string
}

func (f *APIKeyFlow) Login(ctx context.Context, ex *Exchange) error {
	if strings.TrimSpace(f.Key) == "" {
		return fmt.Errorf("%w: API key is empty", ErrNotConfigured)
	}
	return nil
}

func (f *APIKeyFlow) AuthHeaders() http.Header {
	if f.HeaderName == "" {
		return nil
	}
	h := http.Header{}
	h.Set(f.HeaderName, f.Key)
	return h
}

// CaptchaFlow wraps another form-based flow for sites that gate login on
// a captcha. The first login attempt captures the challenge and fails
// with ErrCaptchaPending; the caller shows the challenge to the user,
// calls Resume with the solution, and retries the login.
type CaptchaFlow struct {
	Inner             *FormFlow
	ChallengeSelector string // selects the captcha element on the login page
	ChallengeAttr     string // attribute holding the challenge image URL, defaults to "src"
	SolutionInput     string // form field the solution is submitted as

	mu        sync.Mutex
	challenge string
	solution  string
}

func (f *CaptchaFlow) Login(ctx context.Context, ex *Exchange) error {
	f.mu.Lock()
	solution := f.solution
	f.mu.Unlock()

	page, err := ex.Get(ctx, f.Inner.Path)
	if err != nil {
		return err
	}

	doc, err := page.Document()
	if err != nil {
		return fmt.Errorf("failed to parse login page: %w", err)
	}

	sel := doc.Find(f.ChallengeSelector).First()
	if sel.Length() > 0 && solution == "" {
		attr := f.ChallengeAttr
		if attr == "" {
			attr = "src"
		}
		challenge, _ := sel.Attr(attr)

		f.mu.Lock()
		f.challenge = challenge
		f.mu.Unlock()

		return ErrCaptchaPending
	}

	inner := *f.Inner
	inner.Inputs = make(map[string]string, len(f.Inner.Inputs)+1)
	for k, v := range f.Inner.Inputs {
		inner.Inputs[k] = v
	}
	if solution != "" {
		inner.Inputs[f.SolutionInput] = solution
	}

	if err := inner.Login(ctx, ex); err != nil {
		return err
	}

	// Solutions are single use.
	f.mu.Lock()
	f.solution = ""
	f.challenge = ""
	f.mu.Unlock()

	return nil
}

// Challenge returns the captured captcha challenge URL, if any.
func (f *CaptchaFlow) Challenge() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.challenge
}

// Resume supplies the user's captcha solution for the next login attempt.
func (f *CaptchaFlow) Resume(solution string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.solution = solution
}

// checkLoginError inspects a login response for a failure marker.
func checkLoginError(page *Page, errorSelector, messageSel string) error {
	if page.StatusCode == http.StatusUnauthorized || page.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: status %d", ErrLoginFailed, page.StatusCode)
	}
	if errorSelector == "" {
		return nil
	}

	doc, err := page.Document()
	if err != nil {
		return nil // Not HTML, nothing to check
	}

	sel := doc.Find(errorSelector)
	if sel.Length() == 0 {
		return nil
	}

	msg := "rejected by site"
	if messageSel != "" {
		if text := strings.TrimSpace(doc.Find(messageSel).First().Text()); text != "" {
			msg = text
		}
	} else if text := strings.TrimSpace(sel.First().Text()); text != "" {
		msg = text
	}

	return fmt.Errorf("%w: %s", ErrLoginFailed, msg)
}
