package htmlsite

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/trawler/trawler/internal/indexer"
	"github.com/trawler/trawler/internal/indexer/types"
)

type requestGenerator struct {
	site *Site
}

func (g *requestGenerator) SearchRequests(criteria types.SearchCriteria) (*indexer.RequestChain, error) {
	chain := indexer.NewRequestChain()
	if !g.site.caps.SupportsKind(criteria.Kind()) {
		return chain, nil
	}

	common := criteria.Common()
	keywords := buildKeywords(criteria)
	siteCats := g.site.caps.Categories.MapStandardToSite(common.Categories)
	pages := g.pages(common)

	// One query normally covers every category; sites whose form only
	// takes a single category value get one track per category instead.
	catGroups := [][]string{siteCats}
	if g.site.spec.Search.OneCategoryPerRequest && len(siteCats) > 1 {
		catGroups = catGroups[:0]
		for _, cat := range siteCats {
			catGroups = append(catGroups, []string{cat})
		}
	}

	for i, cats := range catGroups {
		if i > 0 {
			chain.AddTrack()
		}
		for _, page := range pages {
			req, err := g.buildRequest(keywords, cats, page)
			if err != nil {
				return nil, err
			}
			chain.Add(req)
		}
	}

	return chain, nil
}

// pages returns the site page indexes to request. With an explicit
// offset the caller is paginating and exactly one page is fetched;
// otherwise up to maxPages are queued and a short page stops early.
func (g *requestGenerator) pages(common types.SearchCommon) []int {
	search := g.site.spec.Search
	if !g.site.caps.SupportsPagination {
		return []int{search.PageStart}
	}

	if common.Offset > 0 {
		return []int{search.PageStart + common.PageNumber() - 1}
	}

	maxPages := search.MaxPages
	if maxPages < 1 {
		maxPages = 1
	}
	pages := make([]int, maxPages)
	for i := range pages {
		pages[i] = search.PageStart + i
	}
	return pages
}

func (g *requestGenerator) buildRequest(keywords string, siteCats []string, page int) (*types.Request, error) {
	search := g.site.spec.Search

	values := url.Values{}
	for key, val := range search.Inputs {
		val = strings.ReplaceAll(val, "{{query}}", keywords)
		val = strings.ReplaceAll(val, "{{page}}", strconv.Itoa(page))
		values.Set(key, val)
	}
	if search.CategoryParam != "" {
		for _, cat := range siteCats {
			values.Add(search.CategoryParam, cat)
		}
	}
	if search.PageParam != "" {
		values.Set(search.PageParam, strconv.Itoa(page))
	}

	target := strings.TrimSuffix(g.site.spec.BaseURL, "/") + search.Path

	if strings.EqualFold(search.Method, "post") {
		req, err := types.NewRequest(target)
		if err != nil {
			return nil, err
		}
		req.Method = "POST"
		req.Form = values
		req.Accept = types.AcceptHTML
		return req, nil
	}

	req, err := types.NewRequest(target + "?" + values.Encode())
	if err != nil {
		return nil, err
	}
	req.Accept = types.AcceptHTML
	return req, nil
}

// buildKeywords folds kind-specific fields into the free-text query the
// way HTML trackers expect them typed.
func buildKeywords(criteria types.SearchCriteria) string {
	term := criteria.Common().Term

	switch c := criteria.(type) {
	case types.TVSearchCriteria:
		if c.Season > 0 {
			if c.Episode > 0 {
				term = strings.TrimSpace(fmt.Sprintf("%s S%02dE%02d", term, c.Season, c.Episode))
			} else {
				term = strings.TrimSpace(fmt.Sprintf("%s S%02d", term, c.Season))
			}
		}
	case types.MovieSearchCriteria:
		if c.Year > 0 {
			term = strings.TrimSpace(fmt.Sprintf("%s %d", term, c.Year))
		}
	case types.MusicSearchCriteria:
		extra := strings.TrimSpace(strings.Join([]string{c.Artist, c.Album}, " "))
		term = strings.TrimSpace(term + " " + extra)
	case types.BookSearchCriteria:
		extra := strings.TrimSpace(strings.Join([]string{c.Author, c.Title}, " "))
		term = strings.TrimSpace(term + " " + extra)
	}

	return term
}
