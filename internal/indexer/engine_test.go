package indexer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trawler/trawler/internal/indexer/categories"
	"github.com/trawler/trawler/internal/indexer/httpexec"
	"github.com/trawler/trawler/internal/indexer/search"
	"github.com/trawler/trawler/internal/indexer/types"
)

// fakeSite serves canned responses keyed by URL path.
type fakeSite struct {
	mu        sync.Mutex
	responses map[string]*http.Response
	requested []string
}

func newFakeSite() *fakeSite {
	return &fakeSite{responses: map[string]*http.Response{}}
}

func (s *fakeSite) serve(path string, status int, body string) {
	header := http.Header{}
	header.Set("Content-Type", "text/html")
	s.responses[path] = &http.Response{StatusCode: status, Header: header, Body: io.NopCloser(strings.NewReader(body))}
}

func (s *fakeSite) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requested = append(s.requested, req.URL.Path)
	if resp, ok := s.responses[req.URL.Path]; ok {
		return resp, nil
	}
	return &http.Response{StatusCode: 404, Header: http.Header{}, Body: io.NopCloser(strings.NewReader("not found"))}, nil
}

type generatorFunc func(criteria types.SearchCriteria) (*RequestChain, error)

func (f generatorFunc) SearchRequests(criteria types.SearchCriteria) (*RequestChain, error) {
	return f(criteria)
}

type parserFunc func(resp *types.Response) ([]*types.ReleaseInfo, error)

func (f parserFunc) ParseResponse(resp *types.Response) ([]*types.ReleaseInfo, error) {
	return f(resp)
}

// fakeDef is a minimal definition for exercising the engine.
type fakeDef struct {
	name     string
	caps     *types.Capabilities
	generate generatorFunc
	parse    parserFunc
	sanitize func(string) string
	download func(ctx context.Context, link string) ([]byte, error)
}

func (d *fakeDef) Name() string                      { return d.name }
func (d *fakeDef) Capabilities() *types.Capabilities { return d.caps }
func (d *fakeDef) Protocol() types.Protocol          { return types.ProtocolTorrent }
func (d *fakeDef) Privacy() types.Privacy            { return types.PrivacyPublic }
func (d *fakeDef) RequestGenerator() RequestGenerator {
	return d.generate
}
func (d *fakeDef) Parser() ResponseParser { return d.parse }

type sanitizingDef struct{ *fakeDef }

func (d *sanitizingDef) SanitizeKeywords(term string) string { return d.fakeDef.sanitize(term) }

type downloadingDef struct{ *fakeDef }

func (d *downloadingDef) Download(ctx context.Context, link string) ([]byte, error) {
	return d.fakeDef.download(ctx, link)
}

func basicCaps() *types.Capabilities {
	mapper := categories.NewMapper()
	mapper.AddMapping("1", categories.Lookup(categories.Movies), "")
	return &types.Capabilities{
		SearchParams: []string{types.ParamQ},
		Categories:   mapper,
	}
}

func pageChain(paths ...string) generatorFunc {
	return func(criteria types.SearchCriteria) (*RequestChain, error) {
		chain := NewRequestChain()
		for _, path := range paths {
			req, err := types.NewRequest("https://tracker.example.com" + path)
			if err != nil {
				return nil, err
			}
			chain.Add(req)
		}
		return chain, nil
	}
}

// countParser returns one synthetic release per line of the body.
func countParser(t *testing.T) parserFunc {
	return func(resp *types.Response) ([]*types.ReleaseInfo, error) {
		t.Helper()
		var releases []*types.ReleaseInfo
		for i, line := range strings.Split(strings.TrimSpace(resp.Text()), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			releases = append(releases, &types.ReleaseInfo{
				Title:       line,
				DownloadURL: fmt.Sprintf("https://tracker.example.com/dl/%s-%d", line, i),
				PublishDate: time.Now(),
			})
		}
		return releases, nil
	}
}

func newTestEngine(t *testing.T, def Definition, site *fakeSite) *Engine {
	t.Helper()
	exec := httpexec.NewExecutor(def.Name(), httpexec.Config{}, zerolog.Nop(), httpexec.WithTransport(site))
	return NewEngine(def, exec, nil, search.Options{}, zerolog.Nop())
}

func TestSearchUnsupportedKindIsEmptyResult(t *testing.T) {
	def := &fakeDef{
		name: "books-only",
		caps: &types.Capabilities{BookSearchParams: []string{types.ParamQ, types.ParamAuthor}},
		generate: func(criteria types.SearchCriteria) (*RequestChain, error) {
			t.Fatal("generator must not run for unsupported kinds")
			return nil, nil
		},
	}
	site := newFakeSite()
	engine := newTestEngine(t, def, site)

	result, err := engine.SearchTV(context.Background(), &types.TVSearchCriteria{
		SearchCommon: types.SearchCommon{Term: "some show"},
		Season:       2,
	})

	require.NoError(t, err)
	assert.Empty(t, result.Releases)
	assert.Empty(t, result.Errors)
	assert.Empty(t, site.requested)
}

func TestSearchEmptyChainIsEmptyResult(t *testing.T) {
	def := &fakeDef{
		name: "tracker",
		caps: basicCaps(),
		generate: func(criteria types.SearchCriteria) (*RequestChain, error) {
			return NewRequestChain(), nil
		},
	}
	engine := newTestEngine(t, def, newFakeSite())

	result, err := engine.Search(context.Background(), &types.BasicSearchCriteria{})

	require.NoError(t, err)
	assert.Empty(t, result.Releases)
	assert.Zero(t, result.Requests)
}

func TestSearchStopsPagingOnShortPage(t *testing.T) {
	site := newFakeSite()
	site.serve("/page/1", 200, "r1\nr2")
	site.serve("/page/2", 200, "r3")
	site.serve("/page/3", 200, "r4\nr5")

	caps := basicCaps()
	caps.SupportsPagination = true
	caps.PageSize = 2

	def := &fakeDef{
		name:     "tracker",
		caps:     caps,
		generate: pageChain("/page/1", "/page/2", "/page/3"),
		parse:    countParser(t),
	}
	engine := newTestEngine(t, def, site)

	result, err := engine.Search(context.Background(), &types.BasicSearchCriteria{})

	require.NoError(t, err)
	assert.Len(t, result.Releases, 3, "short second page ends the track")
	assert.Equal(t, 2, result.Requests)
	assert.Equal(t, []string{"/page/1", "/page/2"}, site.requested)
}

func TestSearchFirstPageFailureFailsSearch(t *testing.T) {
	site := newFakeSite()
	site.serve("/page/1", 500, "boom")

	def := &fakeDef{
		name:     "tracker",
		caps:     basicCaps(),
		generate: pageChain("/page/1", "/page/2"),
		parse:    countParser(t),
	}
	engine := newTestEngine(t, def, site)

	_, err := engine.Search(context.Background(), &types.BasicSearchCriteria{})

	require.Error(t, err)
	assert.Equal(t, ErrCodeHTTP, GetErrorCode(err))
}

func TestSearchLaterPageFailureDegrades(t *testing.T) {
	site := newFakeSite()
	site.serve("/page/1", 200, "r1\nr2")
	site.serve("/page/2", 500, "boom")

	caps := basicCaps()
	caps.SupportsPagination = true
	caps.PageSize = 2

	def := &fakeDef{
		name:     "tracker",
		caps:     caps,
		generate: pageChain("/page/1", "/page/2"),
		parse:    countParser(t),
	}
	engine := newTestEngine(t, def, site)

	result, err := engine.Search(context.Background(), &types.BasicSearchCriteria{})

	require.NoError(t, err)
	assert.Len(t, result.Releases, 2)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, ErrCodeHTTP, result.Errors[0].Code)
	assert.True(t, result.Partial())
}

func TestSearchRunsEveryTrack(t *testing.T) {
	site := newFakeSite()
	site.serve("/cat/movies", 200, "m1")
	site.serve("/cat/tv", 200, "t1")

	def := &fakeDef{
		name: "tracker",
		caps: basicCaps(),
		generate: func(criteria types.SearchCriteria) (*RequestChain, error) {
			chain := NewRequestChain()
			req, err := types.NewRequest("https://tracker.example.com/cat/movies")
			if err != nil {
				return nil, err
			}
			chain.Add(req)
			chain.AddTrack()
			req, err = types.NewRequest("https://tracker.example.com/cat/tv")
			if err != nil {
				return nil, err
			}
			chain.Add(req)
			return chain, nil
		},
		parse: countParser(t),
	}
	engine := newTestEngine(t, def, site)

	result, err := engine.Search(context.Background(), &types.BasicSearchCriteria{})

	require.NoError(t, err)
	assert.Len(t, result.Releases, 2)
	assert.Equal(t, []string{"/cat/movies", "/cat/tv"}, site.requested)
}

func TestSearchAnnotatesReleases(t *testing.T) {
	site := newFakeSite()
	site.serve("/page/1", 200, "r1")

	def := &fakeDef{
		name:     "tracker",
		caps:     basicCaps(),
		generate: pageChain("/page/1"),
		parse:    countParser(t),
	}
	engine := newTestEngine(t, def, site)

	result, err := engine.Search(context.Background(), &types.BasicSearchCriteria{})

	require.NoError(t, err)
	require.Len(t, result.Releases, 1)
	release := result.Releases[0]
	assert.Equal(t, "tracker", release.IndexerName)
	assert.Equal(t, types.ProtocolTorrent, release.Protocol)
	assert.NotEmpty(t, release.GUID)
}

func TestSearchAppliesKeywordSanitizer(t *testing.T) {
	site := newFakeSite()
	site.serve("/search", 200, "r1")

	var seenTerm string
	inner := &fakeDef{
		name: "tracker",
		caps: basicCaps(),
		generate: func(criteria types.SearchCriteria) (*RequestChain, error) {
			seenTerm = criteria.Common().Term
			return pageChain("/search")(criteria)
		},
		parse:    countParser(t),
		sanitize: func(term string) string { return strings.ReplaceAll(term, ":", "") },
	}
	engine := newTestEngine(t, &sanitizingDef{inner}, site)

	_, err := engine.Search(context.Background(), &types.BasicSearchCriteria{
		SearchCommon: types.SearchCommon{Term: "mission: impossible"},
	})

	require.NoError(t, err)
	assert.Equal(t, "mission impossible", seenTerm)
}

func TestSearchParseErrorOnFirstPageFails(t *testing.T) {
	site := newFakeSite()
	site.serve("/page/1", 200, "garbage")

	def := &fakeDef{
		name:     "tracker",
		caps:     basicCaps(),
		generate: pageChain("/page/1"),
		parse: func(resp *types.Response) ([]*types.ReleaseInfo, error) {
			return nil, NewParseError("tracker", "unexpected markup", nil)
		},
	}
	engine := newTestEngine(t, def, site)

	_, err := engine.Search(context.Background(), &types.BasicSearchCriteria{})

	require.Error(t, err)
	assert.Equal(t, ErrCodeParse, GetErrorCode(err))
}

func TestDownloadMagnetPassthrough(t *testing.T) {
	def := &fakeDef{name: "tracker", caps: basicCaps()}
	engine := newTestEngine(t, def, newFakeSite())

	magnet := "magnet:?xt=urn:btih:deadbeef"
	payload, err := engine.Download(context.Background(), magnet)

	require.NoError(t, err)
	assert.Equal(t, magnet, string(payload))
}

func TestDownloadFetchesBytes(t *testing.T) {
	site := newFakeSite()
	resp := &http.Response{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": []string{"application/x-bittorrent"}},
		Body:       io.NopCloser(strings.NewReader("d8:announce0:e")),
	}
	site.responses["/dl/1"] = resp

	def := &fakeDef{name: "tracker", caps: basicCaps()}
	engine := newTestEngine(t, def, site)

	payload, err := engine.Download(context.Background(), "https://tracker.example.com/dl/1")

	require.NoError(t, err)
	assert.Equal(t, "d8:announce0:e", string(payload))
}

func TestDownloadDelegatesToDefinition(t *testing.T) {
	inner := &fakeDef{
		name: "tracker",
		caps: basicCaps(),
		download: func(ctx context.Context, link string) ([]byte, error) {
			return []byte("resolved:" + link), nil
		},
	}
	engine := newTestEngine(t, &downloadingDef{inner}, newFakeSite())

	payload, err := engine.Download(context.Background(), "https://tracker.example.com/details/9")

	require.NoError(t, err)
	assert.Equal(t, "resolved:https://tracker.example.com/details/9", string(payload))
}

func TestDownloadHTTPErrorMapped(t *testing.T) {
	site := newFakeSite()
	site.serve("/dl/404", 404, "gone")

	def := &fakeDef{name: "tracker", caps: basicCaps()}
	engine := newTestEngine(t, def, site)

	_, err := engine.Download(context.Background(), "https://tracker.example.com/dl/404")

	require.Error(t, err)
	assert.Equal(t, ErrCodeHTTP, GetErrorCode(err))
}

func TestMapErrorRateLimit(t *testing.T) {
	site := newFakeSite()
	site.serve("/page/1", 429, "slow down")

	def := &fakeDef{
		name:     "tracker",
		caps:     basicCaps(),
		generate: pageChain("/page/1"),
		parse:    countParser(t),
	}
	engine := newTestEngine(t, def, site)

	_, err := engine.Search(context.Background(), &types.BasicSearchCriteria{})

	require.Error(t, err)
	assert.Equal(t, ErrCodeRateLimit, GetErrorCode(err))
	assert.True(t, IsRetryable(err))
}

func TestSearchCancelledContext(t *testing.T) {
	def := &fakeDef{
		name:     "tracker",
		caps:     basicCaps(),
		generate: pageChain("/page/1"),
		parse:    countParser(t),
	}
	engine := newTestEngine(t, def, newFakeSite())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Search(ctx, &types.BasicSearchCriteria{})
	assert.ErrorIs(t, err, context.Canceled)
}
