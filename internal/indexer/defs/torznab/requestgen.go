package torznab

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/trawler/trawler/internal/indexer"
	"github.com/trawler/trawler/internal/indexer/types"
)

// Torznab function names per search kind.
var functions = map[types.SearchKind]string{
	types.KindBasic: "search",
	types.KindTV:    "tvsearch",
	types.KindMovie: "movie",
	types.KindMusic: "music",
	types.KindBook:  "book",
}

type requestGenerator struct {
	settings Settings
	caps     *types.Capabilities
}

func (g *requestGenerator) SearchRequests(criteria types.SearchCriteria) (*indexer.RequestChain, error) {
	fn, ok := functions[criteria.Kind()]
	if !ok {
		return indexer.NewRequestChain(), nil
	}

	common := criteria.Common()

	params := url.Values{}
	params.Set("t", fn)
	if g.settings.APIKey != "" {
		params.Set("apikey", g.settings.APIKey)
	}
	if common.Term != "" {
		params.Set("q", common.Term)
	}

	if cats := g.caps.Categories.MapStandardToSite(common.Categories); len(cats) > 0 {
		params.Set("cat", strings.Join(cats, ","))
	}

	switch c := criteria.(type) {
	case types.MovieSearchCriteria:
		setImdb(params, c.ImdbID)
		setInt(params, "tmdbid", c.TmdbID)
		setInt(params, "year", c.Year)
		setStr(params, "genre", c.Genre)
	case types.TVSearchCriteria:
		setImdb(params, c.ImdbID)
		setInt(params, "tvdbid", c.TvdbID)
		setInt(params, "tmdbid", c.TmdbID)
		setInt(params, "season", c.Season)
		setInt(params, "ep", c.Episode)
	case types.MusicSearchCriteria:
		setStr(params, "artist", c.Artist)
		setStr(params, "album", c.Album)
		setStr(params, "label", c.Label)
		setStr(params, "track", c.Track)
		setStr(params, "genre", c.Genre)
		setInt(params, "year", c.Year)
	case types.BookSearchCriteria:
		setStr(params, "title", c.Title)
		setStr(params, "author", c.Author)
		setStr(params, "publisher", c.Publisher)
		setStr(params, "genre", c.Genre)
		setInt(params, "year", c.Year)
	}

	setInt(params, "limit", common.Limit)
	if common.Offset > 0 {
		params.Set("offset", strconv.Itoa(common.Offset))
	}

	req, err := types.NewRequest(g.settings.BaseURL + g.settings.APIPath + "?" + params.Encode())
	if err != nil {
		return nil, err
	}
	req.Accept = types.AcceptXML
	req.FollowRedirects = true

	chain := indexer.NewRequestChain()
	chain.Add(req)
	return chain, nil
}

func setStr(params url.Values, key, val string) {
	if val != "" {
		params.Set(key, val)
	}
}

func setInt(params url.Values, key string, val int) {
	if val > 0 {
		params.Set(key, strconv.Itoa(val))
	}
}

// setImdb sends the numeric part; endpoints disagree on the tt prefix
// and the bare number is the portable form.
func setImdb(params url.Values, imdbID string) {
	if imdbID == "" {
		return
	}
	params.Set("imdbid", strings.TrimPrefix(strings.ToLower(imdbID), "tt"))
}
