// Package types contains shared type definitions for indexer packages.
package types

import (
	"time"

	"github.com/google/uuid"

	"github.com/trawler/trawler/internal/indexer/categories"
)

// Protocol represents the download protocol.
type Protocol string

const (
	ProtocolTorrent Protocol = "torrent"
	ProtocolUsenet  Protocol = "usenet"
)

// Privacy represents indexer privacy level.
type Privacy string

const (
	PrivacyPublic      Privacy = "public"
	PrivacySemiPrivate Privacy = "semi-private"
	PrivacyPrivate     Privacy = "private"
)

// SearchKind identifies which typed search entrypoint produced a criteria.
type SearchKind string

const (
	KindBasic SearchKind = "search"
	KindMovie SearchKind = "movie-search"
	KindTV    SearchKind = "tv-search"
	KindMusic SearchKind = "music-search"
	KindBook  SearchKind = "book-search"
)

// Search parameter names a capability set may declare per search kind.
const (
	ParamQ         = "q"
	ParamSeason    = "season"
	ParamEpisode   = "ep"
	ParamImdbID    = "imdbid"
	ParamTmdbID    = "tmdbid"
	ParamTvdbID    = "tvdbid"
	ParamYear      = "year"
	ParamGenre     = "genre"
	ParamArtist    = "artist"
	ParamAlbum     = "album"
	ParamLabel     = "label"
	ParamTrack     = "track"
	ParamAuthor    = "author"
	ParamTitle     = "title"
	ParamPublisher = "publisher"
)

// SearchCommon carries the fields shared by every search kind. Criteria are
// created per search request and never mutated afterwards.
type SearchCommon struct {
	Term       string `json:"term,omitempty"`
	Categories []int  `json:"categories,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

// PageNumber computes the 1-based page index from limit and offset. Any
// non-positive limit or offset means the first page.
func (c SearchCommon) PageNumber() int {
	if c.Limit > 0 && c.Offset > 0 {
		return c.Offset/c.Limit + 1
	}
	return 1
}

// SearchCriteria is the closed set of typed search inputs.
type SearchCriteria interface {
	Kind() SearchKind
	Common() SearchCommon
	// UsedParams lists the capability parameters this criteria actually
	// carries, used for capability gating.
	UsedParams() []string
}

// BasicSearchCriteria is a free-text search with no kind-specific fields.
type BasicSearchCriteria struct {
	SearchCommon
}

func (c BasicSearchCriteria) Kind() SearchKind     { return KindBasic }
func (c BasicSearchCriteria) Common() SearchCommon { return c.SearchCommon }

func (c BasicSearchCriteria) UsedParams() []string {
	var p []string
	if c.Term != "" {
		p = append(p, ParamQ)
	}
	return p
}

// MovieSearchCriteria searches for movie releases.
type MovieSearchCriteria struct {
	SearchCommon
	ImdbID string `json:"imdbId,omitempty"`
	TmdbID int    `json:"tmdbId,omitempty"`
	Year   int    `json:"year,omitempty"`
	Genre  string `json:"genre,omitempty"`
}

func (c MovieSearchCriteria) Kind() SearchKind     { return KindMovie }
func (c MovieSearchCriteria) Common() SearchCommon { return c.SearchCommon }

func (c MovieSearchCriteria) UsedParams() []string {
	var p []string
	if c.Term != "" {
		p = append(p, ParamQ)
	}
	if c.ImdbID != "" {
		p = append(p, ParamImdbID)
	}
	if c.TmdbID > 0 {
		p = append(p, ParamTmdbID)
	}
	if c.Year > 0 {
		p = append(p, ParamYear)
	}
	if c.Genre != "" {
		p = append(p, ParamGenre)
	}
	return p
}

// TVSearchCriteria searches for TV releases.
type TVSearchCriteria struct {
	SearchCommon
	Season  int    `json:"season,omitempty"`
	Episode int    `json:"episode,omitempty"`
	ImdbID  string `json:"imdbId,omitempty"`
	TmdbID  int    `json:"tmdbId,omitempty"`
	TvdbID  int    `json:"tvdbId,omitempty"`
	Year    int    `json:"year,omitempty"`
}

func (c TVSearchCriteria) Kind() SearchKind     { return KindTV }
func (c TVSearchCriteria) Common() SearchCommon { return c.SearchCommon }

func (c TVSearchCriteria) UsedParams() []string {
	var p []string
	if c.Term != "" {
		p = append(p, ParamQ)
	}
	if c.Season > 0 {
		p = append(p, ParamSeason)
	}
	if c.Episode > 0 {
		p = append(p, ParamEpisode)
	}
	if c.ImdbID != "" {
		p = append(p, ParamImdbID)
	}
	if c.TmdbID > 0 {
		p = append(p, ParamTmdbID)
	}
	if c.TvdbID > 0 {
		p = append(p, ParamTvdbID)
	}
	if c.Year > 0 {
		p = append(p, ParamYear)
	}
	return p
}

// MusicSearchCriteria searches for audio releases.
type MusicSearchCriteria struct {
	SearchCommon
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
	Label  string `json:"label,omitempty"`
	Track  string `json:"track,omitempty"`
	Genre  string `json:"genre,omitempty"`
	Year   int    `json:"year,omitempty"`
}

func (c MusicSearchCriteria) Kind() SearchKind     { return KindMusic }
func (c MusicSearchCriteria) Common() SearchCommon { return c.SearchCommon }

func (c MusicSearchCriteria) UsedParams() []string {
	var p []string
	if c.Term != "" {
		p = append(p, ParamQ)
	}
	if c.Artist != "" {
		p = append(p, ParamArtist)
	}
	if c.Album != "" {
		p = append(p, ParamAlbum)
	}
	if c.Label != "" {
		p = append(p, ParamLabel)
	}
	if c.Track != "" {
		p = append(p, ParamTrack)
	}
	if c.Genre != "" {
		p = append(p, ParamGenre)
	}
	if c.Year > 0 {
		p = append(p, ParamYear)
	}
	return p
}

// BookSearchCriteria searches for book releases.
type BookSearchCriteria struct {
	SearchCommon
	Title     string `json:"title,omitempty"`
	Author    string `json:"author,omitempty"`
	Publisher string `json:"publisher,omitempty"`
	Genre     string `json:"genre,omitempty"`
	Year      int    `json:"year,omitempty"`
}

func (c BookSearchCriteria) Kind() SearchKind     { return KindBook }
func (c BookSearchCriteria) Common() SearchCommon { return c.SearchCommon }

func (c BookSearchCriteria) UsedParams() []string {
	var p []string
	if c.Term != "" {
		p = append(p, ParamQ)
	}
	if c.Title != "" {
		p = append(p, ParamTitle)
	}
	if c.Author != "" {
		p = append(p, ParamAuthor)
	}
	if c.Publisher != "" {
		p = append(p, ParamPublisher)
	}
	if c.Genre != "" {
		p = append(p, ParamGenre)
	}
	if c.Year > 0 {
		p = append(p, ParamYear)
	}
	return p
}

// Capabilities describes what one indexer supports. Constructed once at
// definition time and read-only afterwards.
type Capabilities struct {
	SearchParams      []string `json:"searchParams"`
	TVSearchParams    []string `json:"tvSearchParams"`
	MovieSearchParams []string `json:"movieSearchParams"`
	MusicSearchParams []string `json:"musicSearchParams"`
	BookSearchParams  []string `json:"bookSearchParams"`

	SupportsPagination bool `json:"supportsPagination"`
	PageSize           int  `json:"pageSize,omitempty"`

	// Flags the indexer can attach to releases (e.g. "scene", "internal").
	Flags []string `json:"flags,omitempty"`

	Categories *categories.Mapper `json:"-"`
}

// ParamsFor returns the supported parameters for a search kind, nil when the
// kind is unsupported.
func (c *Capabilities) ParamsFor(kind SearchKind) []string {
	switch kind {
	case KindBasic:
		return c.SearchParams
	case KindMovie:
		return c.MovieSearchParams
	case KindTV:
		return c.TVSearchParams
	case KindMusic:
		return c.MusicSearchParams
	case KindBook:
		return c.BookSearchParams
	default:
		return nil
	}
}

// SupportsKind reports whether the indexer declares any parameters for the
// given search kind.
func (c *Capabilities) SupportsKind(kind SearchKind) bool {
	return len(c.ParamsFor(kind)) > 0
}

// SupportsCriteria reports whether every parameter the criteria carries is
// declared for its kind. Searches using unsupported parameters are skipped
// rather than sent with fields the site would ignore.
func (c *Capabilities) SupportsCriteria(criteria SearchCriteria) bool {
	supported := c.ParamsFor(criteria.Kind())
	if supported == nil {
		return false
	}
	set := make(map[string]bool, len(supported))
	for _, p := range supported {
		set[p] = true
	}
	for _, p := range criteria.UsedParams() {
		if !set[p] {
			return false
		}
	}
	return true
}

// ReleaseInfo is the normalized release record every parser produces.
type ReleaseInfo struct {
	GUID        string `json:"guid"`
	Title       string `json:"title"`
	InfoURL     string `json:"infoUrl,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty"`
	MagnetURL   string `json:"magnetUrl,omitempty"`
	InfoHash    string `json:"infoHash,omitempty"`

	Size        int64     `json:"size"`
	Seeders     int       `json:"seeders"`
	Peers       int       `json:"peers"`
	Grabs       int       `json:"grabs,omitempty"`
	PublishDate time.Time `json:"publishDate"`

	Categories []categories.Category `json:"categories"`

	// Volume factors are per-release ratio multipliers; 0 means freeleech,
	// 1 is neutral.
	DownloadVolumeFactor float64 `json:"downloadVolumeFactor"`
	UploadVolumeFactor   float64 `json:"uploadVolumeFactor"`

	ImdbID string `json:"imdbId,omitempty"`
	TmdbID int    `json:"tmdbId,omitempty"`
	TvdbID int    `json:"tvdbId,omitempty"`

	MinimumRatio    float64 `json:"minimumRatio,omitempty"`
	MinimumSeedTime int64   `json:"minimumSeedTime,omitempty"`

	Flags  []string `json:"flags,omitempty"`
	Genres []string `json:"genres,omitempty"`

	IndexerName string   `json:"indexer,omitempty"`
	Protocol    Protocol `json:"protocol,omitempty"`
}

// Finalize fills derived fields and enforces record invariants: a GUID is
// always present and peers never undercount seeders.
func (r *ReleaseInfo) Finalize() {
	if r.GUID == "" {
		switch {
		case r.DownloadURL != "":
			r.GUID = r.DownloadURL
		case r.InfoHash != "":
			r.GUID = r.InfoHash
		case r.InfoURL != "":
			r.GUID = r.InfoURL
		default:
			r.GUID = uuid.NewString()
		}
	}
	if r.Peers < r.Seeders {
		r.Peers = r.Seeders
	}
}
