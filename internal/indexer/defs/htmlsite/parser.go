package htmlsite

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/trawler/trawler/internal/indexer"
	"github.com/trawler/trawler/internal/indexer/parseutil"
	"github.com/trawler/trawler/internal/indexer/types"
)

type responseParser struct {
	site *Site
}

func (p *responseParser) ParseResponse(resp *types.Response) ([]*types.ReleaseInfo, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, indexer.NewParseError(p.site.Name(), "invalid HTML", err)
	}

	base, err := url.Parse(p.site.spec.BaseURL)
	if err != nil {
		return nil, indexer.NewParseError(p.site.Name(), "invalid base URL", err)
	}

	search := p.site.spec.Search
	rows := doc.Find(search.Rows.Selector)

	// A page with zero rows is a valid empty result, not a failure.
	releases := make([]*types.ReleaseInfo, 0, rows.Length())
	tiebreaker := parseutil.NewTiebreaker()
	now := time.Now()
	order := p.site.VolumeOrder()

	rows.Each(func(i int, row *goquery.Selection) {
		if i < search.Rows.After {
			return
		}
		release := p.parseRow(row, base, now, order)
		if release == nil {
			// Malformed rows are skipped; the rest of the page stands.
			return
		}
		release.PublishDate = tiebreaker.Next(release.PublishDate)
		releases = append(releases, release)
	})

	return releases, nil
}

func (p *responseParser) parseRow(row *goquery.Selection, base *url.URL, now time.Time, order []parseutil.VolumeSignal) *types.ReleaseInfo {
	fields := p.site.spec.Search.Fields

	title := extractField(row, fields["title"])
	if title == "" {
		return nil
	}

	release := &types.ReleaseInfo{
		Title:                title,
		DownloadVolumeFactor: 1,
		UploadVolumeFactor:   1,
	}

	release.InfoURL = resolveURL(base, extractField(row, fields["infoUrl"]))
	release.DownloadURL = resolveURL(base, extractField(row, fields["downloadUrl"]))
	if magnet := extractField(row, fields["magnetUrl"]); magnet != "" {
		release.MagnetURL = magnet
	}
	if hash := extractField(row, fields["infoHash"]); hash != "" {
		release.InfoHash = strings.ToLower(hash)
	}

	release.Size = parseutil.ParseSize(extractField(row, fields["size"]))
	release.Seeders = parseutil.ParseInt(extractField(row, fields["seeders"]))
	leechers := parseutil.ParseInt(extractField(row, fields["leechers"]))
	release.Peers = release.Seeders + leechers
	release.Grabs = parseutil.ParseInt(extractField(row, fields["grabs"]))

	if raw := extractField(row, fields["date"]); raw != "" {
		if at, err := parseutil.ParseFuzzyTime(raw, now); err == nil {
			release.PublishDate = at
		}
	}
	if release.PublishDate.IsZero() {
		release.PublishDate = now
	}

	if key := extractField(row, fields["category"]); key != "" {
		release.Categories = p.site.caps.Categories.MapSiteToStandard(key)
		if len(release.Categories) == 0 {
			release.Categories = p.site.caps.Categories.MapSiteDescriptionToStandard(key)
		}
	}

	if imdb := extractField(row, fields["imdbId"]); imdb != "" {
		release.ImdbID = parseutil.ParseImdbID(imdb)
	}

	var active []string
	for _, vs := range p.site.spec.Search.VolumeSignals {
		if row.Find(vs.Selector).Length() > 0 {
			active = append(active, vs.Marker)
		}
	}
	if len(active) > 0 {
		release.DownloadVolumeFactor = parseutil.ResolveVolumeFactor(active, order)
	}

	return release
}

// extractField pulls one value out of a row per the field definition.
func extractField(row *goquery.Selection, field Field) string {
	if field.Selector == "" {
		return field.Default
	}

	sel := row.Find(field.Selector).First()
	if sel.Length() == 0 {
		return field.Default
	}

	var value string
	if field.Attribute != "" {
		value, _ = sel.Attr(field.Attribute)
	} else {
		value = sel.Text()
	}
	value = strings.TrimSpace(value)

	if field.Pattern != "" && value != "" {
		re := regexp.MustCompile(field.Pattern)
		m := re.FindStringSubmatch(value)
		if len(m) < 2 {
			return field.Default
		}
		value = m[1]
	}

	if value == "" {
		return field.Default
	}
	return value
}

// resolveURL makes a possibly relative link absolute against the site's
// base URL. Magnet links pass through untouched.
func resolveURL(base *url.URL, link string) string {
	if link == "" || strings.HasPrefix(link, "magnet:") {
		return link
	}
	ref, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
