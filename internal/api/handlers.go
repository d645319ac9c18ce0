package api

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trawler/trawler/internal/database"
	"github.com/trawler/trawler/internal/indexer"
	"github.com/trawler/trawler/internal/indexer/types"
)

// SearchRequest is the body of POST /api/v1/search. Kind selects the
// typed entrypoint; fields that do not apply to the kind are ignored.
type SearchRequest struct {
	Indexers   []string `json:"indexers"` // empty means all
	Kind       string   `json:"kind"`     // search (default), tv-search, movie-search, music-search, book-search
	Term       string   `json:"term"`
	Categories []int    `json:"categories"`
	Limit      int      `json:"limit"`
	Offset     int      `json:"offset"`

	Season  int    `json:"season"`
	Episode int    `json:"episode"`
	ImdbID  string `json:"imdbId"`
	TmdbID  int    `json:"tmdbId"`
	TvdbID  int    `json:"tvdbId"`
	Year    int    `json:"year"`

	Artist string `json:"artist"`
	Album  string `json:"album"`
	Author string `json:"author"`
	Title  string `json:"title"`
}

// IndexerResult is one indexer's slice of a fan-out search.
type IndexerResult struct {
	Indexer  string                  `json:"indexer"`
	Releases []*types.ReleaseInfo    `json:"releases"`
	Errors   []*indexer.IndexerError `json:"errors,omitempty"`
	Partial  bool                    `json:"partial,omitempty"`
	Failed   bool                    `json:"failed,omitempty"`
}

// SearchResponse is the body of a search reply.
type SearchResponse struct {
	Results   []IndexerResult `json:"results"`
	Total     int             `json:"total"`
	ElapsedMs int64           `json:"elapsedMs"`
}

// GrabRequest is the body of POST /api/v1/grab.
type GrabRequest struct {
	Indexer string `json:"indexer"`
	Link    string `json:"link"`
	Title   string `json:"title"`
}

type indexerSummary struct {
	Name     string              `json:"name"`
	Protocol types.Protocol      `json:"protocol"`
	Privacy  types.Privacy       `json:"privacy"`
	Caps     *types.Capabilities `json:"capabilities"`
}

func (s *Server) listIndexers(c echo.Context) error {
	engines := s.registry.All()
	out := make([]indexerSummary, 0, len(engines))
	for _, e := range engines {
		out = append(out, indexerSummary{
			Name:     e.Name(),
			Protocol: e.Protocol(),
			Privacy:  e.Privacy(),
			Caps:     e.Capabilities(),
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) getIndexer(c echo.Context) error {
	engine := s.registry.Get(c.Param("name"))
	if engine == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown indexer")
	}
	return c.JSON(http.StatusOK, indexerSummary{
		Name:     engine.Name(),
		Protocol: engine.Protocol(),
		Privacy:  engine.Privacy(),
		Caps:     engine.Capabilities(),
	})
}

func (s *Server) testIndexer(c echo.Context) error {
	engine := s.registry.Get(c.Param("name"))
	if engine == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown indexer")
	}

	if err := engine.Test(c.Request().Context()); err != nil {
		return c.JSON(http.StatusOK, map[string]any{
			"success": false,
			"message": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

func (s *Server) search(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	criteria, err := buildCriteria(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	engines, err := s.resolveEngines(req.Indexers)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	ctx := c.Request().Context()
	started := time.Now()

	results := make([]IndexerResult, len(engines))
	var wg sync.WaitGroup
	for i, engine := range engines {
		wg.Add(1)
		go func(i int, engine *indexer.Engine) {
			defer wg.Done()

			engineStart := time.Now()
			qr, err := engine.SearchAny(ctx, criteria)

			result := IndexerResult{Indexer: engine.Name(), Releases: []*types.ReleaseInfo{}}
			if err != nil {
				result.Failed = true
				if ie, ok := err.(*indexer.IndexerError); ok {
					result.Errors = []*indexer.IndexerError{ie}
				} else {
					result.Errors = []*indexer.IndexerError{indexer.NewNetworkError(engine.Name(), err)}
				}
			} else {
				result.Releases = qr.Releases
				result.Errors = qr.Errors
				result.Partial = qr.Partial()
			}
			results[i] = result

			if dbErr := s.db.RecordSearch(ctx, database.SearchRecord{
				IndexerName: engine.Name(),
				Kind:        string(criteria.Kind()),
				Term:        criteria.Common().Term,
				Results:     len(result.Releases),
				Successful:  err == nil,
				Elapsed:     time.Since(engineStart),
			}); dbErr != nil {
				s.logger.Warn().Err(dbErr).Str("indexer", engine.Name()).Msg("failed to record search history")
			}
		}(i, engine)
	}
	wg.Wait()

	total := 0
	for _, r := range results {
		total += len(r.Releases)
	}

	return c.JSON(http.StatusOK, SearchResponse{
		Results:   results,
		Total:     total,
		ElapsedMs: time.Since(started).Milliseconds(),
	})
}

func (s *Server) grab(c echo.Context) error {
	var req GrabRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Indexer == "" || req.Link == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "indexer and link are required")
	}

	engine := s.registry.Get(req.Indexer)
	if engine == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown indexer")
	}

	ctx := c.Request().Context()
	payload, err := engine.Download(ctx, req.Link)

	if dbErr := s.db.RecordGrab(ctx, database.GrabRecord{
		IndexerName: req.Indexer,
		Title:       req.Title,
		DownloadURL: req.Link,
		Successful:  err == nil,
	}); dbErr != nil {
		s.logger.Warn().Err(dbErr).Str("indexer", req.Indexer).Msg("failed to record grab history")
	}

	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	if strings.HasPrefix(string(payload), "magnet:") {
		return c.JSON(http.StatusOK, map[string]string{"magnetUrl": string(payload)})
	}
	return c.Blob(http.StatusOK, "application/x-bittorrent", payload)
}

// resolveEngines maps requested indexer names to engines, defaulting to
// every registered engine. An unknown name fails the whole request.
func (s *Server) resolveEngines(names []string) ([]*indexer.Engine, error) {
	if len(names) == 0 {
		return s.registry.All(), nil
	}

	engines := make([]*indexer.Engine, 0, len(names))
	for _, name := range names {
		engine := s.registry.Get(name)
		if engine == nil {
			return nil, fmt.Errorf("unknown indexer %q", name)
		}
		engines = append(engines, engine)
	}
	return engines, nil
}

func buildCriteria(req *SearchRequest) (types.SearchCriteria, error) {
	common := types.SearchCommon{
		Term:       req.Term,
		Categories: req.Categories,
		Limit:      req.Limit,
		Offset:     req.Offset,
	}

	switch types.SearchKind(req.Kind) {
	case types.KindBasic, "":
		return types.BasicSearchCriteria{SearchCommon: common}, nil
	case types.KindTV:
		return types.TVSearchCriteria{
			SearchCommon: common,
			Season:       req.Season,
			Episode:      req.Episode,
			ImdbID:       req.ImdbID,
			TmdbID:       req.TmdbID,
			TvdbID:       req.TvdbID,
			Year:         req.Year,
		}, nil
	case types.KindMovie:
		return types.MovieSearchCriteria{
			SearchCommon: common,
			ImdbID:       req.ImdbID,
			TmdbID:       req.TmdbID,
			Year:         req.Year,
		}, nil
	case types.KindMusic:
		return types.MusicSearchCriteria{
			SearchCommon: common,
			Artist:       req.Artist,
			Album:        req.Album,
			Year:         req.Year,
		}, nil
	case types.KindBook:
		return types.BookSearchCriteria{
			SearchCommon: common,
			Author:       req.Author,
			Title:        req.Title,
			Year:         req.Year,
		}, nil
	default:
		return nil, fmt.Errorf("unknown search kind %q", req.Kind)
	}
}
