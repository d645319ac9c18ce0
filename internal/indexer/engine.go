// Package indexer contains the shared search framework every site
// definition plugs into.
package indexer

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/trawler/trawler/internal/indexer/httpexec"
	"github.com/trawler/trawler/internal/indexer/search"
	"github.com/trawler/trawler/internal/indexer/session"
	"github.com/trawler/trawler/internal/indexer/types"
)

// QueryResult is the outcome of one search. A search that partially
// failed still carries the releases from the requests that succeeded,
// with the failures listed alongside.
type QueryResult struct {
	Releases []*types.ReleaseInfo
	Errors   []*IndexerError
	Requests int
}

// Partial reports whether some requests failed while others produced
// results.
func (r *QueryResult) Partial() bool {
	return len(r.Errors) > 0 && len(r.Releases) > 0
}

// Engine drives the fetch loop for one indexer instance: capability
// gating, request generation, paced execution, parsing, and result
// aggregation. Instances are independent; concurrent searches against
// different engines never share state.
type Engine struct {
	def      Definition
	executor *httpexec.Executor
	session  *session.Manager
	filters  search.Options
	logger   zerolog.Logger
}

// NewEngine wires a definition to its executor and session manager. A
// nil session manager means the site needs no authentication.
func NewEngine(def Definition, executor *httpexec.Executor, sess *session.Manager, filters search.Options, logger zerolog.Logger) *Engine {
	return &Engine{
		def:      def,
		executor: executor,
		session:  sess,
		filters:  filters,
		logger:   logger.With().Str("component", "engine").Str("indexer", def.Name()).Logger(),
	}
}

// Name returns the definition's name.
func (e *Engine) Name() string { return e.def.Name() }

// Protocol returns the definition's payload protocol.
func (e *Engine) Protocol() types.Protocol { return e.def.Protocol() }

// Privacy returns the definition's access level.
func (e *Engine) Privacy() types.Privacy { return e.def.Privacy() }

// Capabilities returns the definition's capability descriptor.
func (e *Engine) Capabilities() *types.Capabilities { return e.def.Capabilities() }

// Search runs a free-text search.
func (e *Engine) Search(ctx context.Context, criteria *types.BasicSearchCriteria) (*QueryResult, error) {
	return e.run(ctx, *criteria)
}

// SearchMovies runs a movie search.
func (e *Engine) SearchMovies(ctx context.Context, criteria *types.MovieSearchCriteria) (*QueryResult, error) {
	return e.run(ctx, *criteria)
}

// SearchTV runs a TV search.
func (e *Engine) SearchTV(ctx context.Context, criteria *types.TVSearchCriteria) (*QueryResult, error) {
	return e.run(ctx, *criteria)
}

// SearchMusic runs a music search.
func (e *Engine) SearchMusic(ctx context.Context, criteria *types.MusicSearchCriteria) (*QueryResult, error) {
	return e.run(ctx, *criteria)
}

// SearchBooks runs a book search.
func (e *Engine) SearchBooks(ctx context.Context, criteria *types.BookSearchCriteria) (*QueryResult, error) {
	return e.run(ctx, *criteria)
}

// SearchAny dispatches on the criteria's concrete kind.
func (e *Engine) SearchAny(ctx context.Context, criteria types.SearchCriteria) (*QueryResult, error) {
	return e.run(ctx, criteria)
}

func (e *Engine) run(ctx context.Context, criteria types.SearchCriteria) (*QueryResult, error) {
	caps := e.def.Capabilities()

	// Unsupported searches are zero results, not failures. Callers fan
	// the same criteria across many indexers and a book tracker must not
	// break a TV search.
	if !caps.SupportsCriteria(criteria) {
		e.logger.Debug().Str("kind", string(criteria.Kind())).Msg("Search kind not supported, skipping")
		return &QueryResult{}, nil
	}

	criteria = e.sanitize(criteria)

	if e.session != nil {
		if err := e.session.EnsureAuthenticated(ctx); err != nil {
			return nil, e.mapError(err)
		}
	}

	chain, err := e.def.RequestGenerator().SearchRequests(criteria)
	if err != nil {
		return nil, e.mapError(err)
	}
	if chain == nil || chain.Empty() {
		e.logger.Debug().Msg("No requests generated, returning empty result")
		return &QueryResult{}, nil
	}

	result := &QueryResult{}
	var batches [][]*types.ReleaseInfo

	for _, track := range chain.Tracks() {
		for _, req := range track {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			batch, err := e.fetchPage(ctx, req)
			result.Requests++
			if err != nil {
				mapped := e.mapError(err)

				// A failing first request fails the whole search; later
				// failures degrade it.
				if result.Requests == 1 {
					return nil, mapped
				}

				e.logger.Warn().Err(mapped).Str("url", req.URL).Msg("Search request failed, keeping earlier results")
				result.Errors = append(result.Errors, mapped)
				break
			}

			batches = append(batches, batch)

			// A short page means the site ran out of results for this
			// track.
			if caps.SupportsPagination && caps.PageSize > 0 && len(batch) < caps.PageSize {
				break
			}
		}
	}

	opts := e.filters
	result.Releases = search.Aggregate(batches, criteria, opts, e.logger)

	e.logger.Debug().
		Int("requests", result.Requests).
		Int("releases", len(result.Releases)).
		Int("failures", len(result.Errors)).
		Msg("Search completed")

	return result, nil
}

// fetchPage executes one request and parses its response.
func (e *Engine) fetchPage(ctx context.Context, req *types.Request) ([]*types.ReleaseInfo, error) {
	resp, err := e.executor.Execute(ctx, req)
	if err != nil {
		return nil, err
	}

	releases, err := e.def.Parser().ParseResponse(resp)
	if err != nil {
		return nil, err
	}

	for _, release := range releases {
		if release.IndexerName == "" {
			release.IndexerName = e.def.Name()
		}
		if release.Protocol == "" {
			release.Protocol = e.def.Protocol()
		}
		release.Finalize()
	}

	return releases, nil
}

// Download resolves a release link to payload bytes. Magnet links pass
// through unchanged since there is nothing to fetch. Definitions that
// need a token exchange or detail-page hop implement Downloader and
// take over the whole resolution.
func (e *Engine) Download(ctx context.Context, link string) ([]byte, error) {
	if strings.HasPrefix(link, "magnet:") {
		return []byte(link), nil
	}

	if e.session != nil {
		if err := e.session.EnsureAuthenticated(ctx); err != nil {
			return nil, e.mapError(err)
		}
	}

	if dl, ok := e.def.(Downloader); ok {
		payload, err := dl.Download(ctx, link)
		if err != nil {
			return nil, e.mapError(err)
		}
		return payload, nil
	}

	req, err := types.NewRequest(link)
	if err != nil {
		return nil, NewDownloadError(e.def.Name(), "invalid download link", err)
	}
	req.Accept = types.AcceptBytes
	req.FollowRedirects = true

	resp, err := e.executor.Download(ctx, req)
	if err != nil {
		return nil, e.mapError(err)
	}
	if len(resp.Body) == 0 {
		return nil, NewDownloadError(e.def.Name(), "empty download response", nil)
	}

	return resp.Body, nil
}

// Test verifies connectivity and credentials with a minimal search.
func (e *Engine) Test(ctx context.Context) error {
	criteria := types.BasicSearchCriteria{}
	if !e.def.Capabilities().SupportsKind(types.KindBasic) {
		// Site has no free-text search; a login round trip still proves
		// the credentials work.
		if e.session != nil {
			if err := e.session.EnsureAuthenticated(ctx); err != nil {
				return e.mapError(err)
			}
		}
		return nil
	}

	result, err := e.run(ctx, criteria)
	if err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		return result.Errors[0]
	}
	return nil
}

// sanitize rewrites the search term through the definition's optional
// keyword hook.
func (e *Engine) sanitize(criteria types.SearchCriteria) types.SearchCriteria {
	ks, ok := e.def.(KeywordSanitizer)
	if !ok {
		return criteria
	}

	term := ks.SanitizeKeywords(criteria.Common().Term)
	if term == criteria.Common().Term {
		return criteria
	}

	switch c := criteria.(type) {
	case types.BasicSearchCriteria:
		c.Term = term
		return c
	case types.MovieSearchCriteria:
		c.Term = term
		return c
	case types.TVSearchCriteria:
		c.Term = term
		return c
	case types.MusicSearchCriteria:
		c.Term = term
		return c
	case types.BookSearchCriteria:
		c.Term = term
		return c
	default:
		return criteria
	}
}

// mapError translates lower-layer failures into the coded taxonomy.
func (e *Engine) mapError(err error) *IndexerError {
	name := e.def.Name()

	var ierr *IndexerError
	if errors.As(err, &ierr) {
		if ierr.IndexerName == "" {
			ierr.IndexerName = name
		}
		return ierr
	}

	var rle *httpexec.RateLimitError
	if errors.As(err, &rle) {
		return NewRateLimitError(name, err)
	}

	var se *httpexec.StatusError
	if errors.As(err, &se) {
		return NewHTTPError(name, se.StatusCode, err)
	}

	var cme *httpexec.ContentMismatchError
	if errors.As(err, &cme) {
		return NewContentMismatchError(name, cme.Expected, cme.Got)
	}

	switch {
	case errors.Is(err, httpexec.ErrSessionExpired):
		return &IndexerError{
			Code:        ErrCodeSessionExpired,
			Message:     "session expired and relogin did not restore it",
			IndexerName: name,
			Retryable:   false,
			Cause:       err,
		}
	case errors.Is(err, session.ErrCaptchaPending):
		return NewCaptchaError(name, err)
	case errors.Is(err, session.ErrLoginFailed):
		return NewAuthError(name, err)
	case errors.Is(err, session.ErrNotConfigured):
		return NewConfigError(name, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Timeouts and cancellations are transient transport conditions,
		// not a verdict on the session or the definition.
		return NewNetworkError(name, err)
	default:
		return NewNetworkError(name, err)
	}
}
