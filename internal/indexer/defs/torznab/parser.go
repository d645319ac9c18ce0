package torznab

import (
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/trawler/trawler/internal/indexer"
	"github.com/trawler/trawler/internal/indexer/categories"
	"github.com/trawler/trawler/internal/indexer/parseutil"
	"github.com/trawler/trawler/internal/indexer/types"
)

type responseParser struct {
	name string
	caps *types.Capabilities
}

func (p *responseParser) ParseResponse(resp *types.Response) ([]*types.ReleaseInfo, error) {
	feed, err := gofeed.NewParser().ParseString(resp.Text())
	if err != nil {
		return nil, indexer.NewParseError(p.name, "invalid feed", err)
	}

	releases := make([]*types.ReleaseInfo, 0, len(feed.Items))
	tiebreaker := parseutil.NewTiebreaker()
	now := time.Now()

	for _, item := range feed.Items {
		release := p.parseItem(item, now)
		if release == nil {
			continue
		}
		release.PublishDate = tiebreaker.Next(release.PublishDate)
		releases = append(releases, release)
	}

	return releases, nil
}

func (p *responseParser) parseItem(item *gofeed.Item, now time.Time) *types.ReleaseInfo {
	if item.Title == "" {
		return nil
	}

	release := &types.ReleaseInfo{
		Title:                item.Title,
		GUID:                 item.GUID,
		DownloadURL:          item.Link,
		DownloadVolumeFactor: 1,
		UploadVolumeFactor:   1,
	}

	if item.PublishedParsed != nil {
		release.PublishDate = *item.PublishedParsed
	} else if item.Published != "" {
		if at, err := parseutil.ParseFuzzyTime(item.Published, now); err == nil {
			release.PublishDate = at
		}
	}

	if len(item.Enclosures) > 0 {
		enc := item.Enclosures[0]
		if enc.URL != "" {
			release.DownloadURL = enc.URL
		}
		if enc.Length != "" {
			release.Size = parseutil.ParseSize(enc.Length)
		}
	}

	for _, attr := range torznabAttrs(item) {
		p.applyAttr(release, attr.name, attr.value)
	}

	if len(release.Categories) == 0 {
		// Plain newznab feeds put the category name in the item itself.
		for _, cat := range item.Categories {
			release.Categories = append(release.Categories, p.caps.Categories.MapSiteDescriptionToStandard(cat)...)
		}
	}

	return release
}

func (p *responseParser) applyAttr(release *types.ReleaseInfo, name, value string) {
	switch strings.ToLower(name) {
	case "size":
		if size := parseutil.ParseSize(value); size > 0 {
			release.Size = size
		}
	case "seeders":
		release.Seeders = parseutil.ParseInt(value)
	case "peers":
		release.Peers = parseutil.ParseInt(value)
	case "grabs":
		release.Grabs = parseutil.ParseInt(value)
	case "infohash":
		release.InfoHash = strings.ToLower(value)
	case "magneturl":
		release.MagnetURL = value
	case "downloadvolumefactor":
		release.DownloadVolumeFactor = parseutil.ParseFloat(value)
	case "uploadvolumefactor":
		release.UploadVolumeFactor = parseutil.ParseFloat(value)
	case "minimumratio":
		release.MinimumRatio = parseutil.ParseFloat(value)
	case "minimumseedtime":
		release.MinimumSeedTime = parseutil.ParseInt64(value)
	case "imdbid", "imdb":
		if id := parseutil.ParseImdbID(value); id != "" {
			release.ImdbID = id
		}
	case "tmdbid":
		release.TmdbID = parseutil.ParseInt(value)
	case "tvdbid":
		release.TvdbID = parseutil.ParseInt(value)
	case "genre":
		for _, g := range strings.Split(value, ",") {
			if g = strings.TrimSpace(g); g != "" {
				release.Genres = append(release.Genres, g)
			}
		}
	case "category":
		if id, err := strconv.Atoi(value); err == nil {
			release.Categories = append(release.Categories, categories.Lookup(id))
		}
	case "tag":
		release.Flags = append(release.Flags, value)
	}
}

type attr struct {
	name  string
	value string
}

// torznabAttrs extracts the torznab:attr extension elements of an item.
func torznabAttrs(item *gofeed.Item) []attr {
	var attrs []attr
	for _, ns := range []string{"torznab", "newznab"} {
		ext, ok := item.Extensions[ns]
		if !ok {
			continue
		}
		for _, e := range ext["attr"] {
			name := e.Attrs["name"]
			value := e.Attrs["value"]
			if name != "" && value != "" {
				attrs = append(attrs, attr{name: name, value: value})
			}
		}
	}
	return attrs
}
