// Package torznab implements a definition for Torznab and Newznab API
// endpoints.
package torznab

import (
	"strconv"
	"strings"

	"github.com/trawler/trawler/internal/indexer"
	"github.com/trawler/trawler/internal/indexer/categories"
	"github.com/trawler/trawler/internal/indexer/types"
)

// Settings configure one Torznab endpoint.
type Settings struct {
	Name     string         `yaml:"name"`
	BaseURL  string         `yaml:"baseUrl"`
	APIPath  string         `yaml:"apiPath"` // defaults to /api
	APIKey   string         `yaml:"apiKey"`
	Protocol types.Protocol `yaml:"protocol"` // defaults to torrent
	Privacy  types.Privacy  `yaml:"privacy"`  // defaults to private
}

// Torznab speaks the Torznab/Newznab query API and parses its RSS
// responses.
type Torznab struct {
	settings Settings
	caps     *types.Capabilities
}

// New creates a Torznab definition. The capabilities normally mirror
// what the endpoint's caps call advertises.
func New(settings Settings, caps *types.Capabilities) *Torznab {
	if settings.APIPath == "" {
		settings.APIPath = "/api"
	}
	if settings.Protocol == "" {
		settings.Protocol = types.ProtocolTorrent
	}
	if settings.Privacy == "" {
		settings.Privacy = types.PrivacyPrivate
	}
	settings.BaseURL = strings.TrimSuffix(settings.BaseURL, "/")

	return &Torznab{settings: settings, caps: caps}
}

// DefaultCapabilities returns the capability set most Torznab endpoints
// advertise, with an identity category mapping over the standard
// taxonomy. Use it when the endpoint's own caps call has not been
// queried.
func DefaultCapabilities() *types.Capabilities {
	mapper := categories.NewMapper()
	for _, cat := range categories.All() {
		mapper.AddMapping(strconv.Itoa(cat.ID), cat, "")
	}

	return &types.Capabilities{
		SearchParams:       []string{types.ParamQ},
		TVSearchParams:     []string{types.ParamQ, types.ParamSeason, types.ParamEpisode, types.ParamImdbID, types.ParamTvdbID},
		MovieSearchParams:  []string{types.ParamQ, types.ParamImdbID, types.ParamTmdbID},
		MusicSearchParams:  []string{types.ParamQ, types.ParamArtist, types.ParamAlbum},
		BookSearchParams:   []string{types.ParamQ, types.ParamAuthor, types.ParamTitle},
		SupportsPagination: true,
		PageSize:           100,
		Categories:         mapper,
	}
}

func (t *Torznab) Name() string                      { return t.settings.Name }
func (t *Torznab) Capabilities() *types.Capabilities { return t.caps }
func (t *Torznab) Protocol() types.Protocol          { return t.settings.Protocol }
func (t *Torznab) Privacy() types.Privacy            { return t.settings.Privacy }

func (t *Torznab) RequestGenerator() indexer.RequestGenerator {
	return &requestGenerator{settings: t.settings, caps: t.caps}
}

func (t *Torznab) Parser() indexer.ResponseParser {
	return &responseParser{name: t.settings.Name, caps: t.caps}
}
