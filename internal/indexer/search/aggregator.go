// Package search merges, filters, and orders release batches produced
// by one search.
package search

import (
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/trawler/trawler/internal/indexer/types"
)

// Options control the post-filters applied after aggregation.
type Options struct {
	// TitleMatch drops releases whose title does not contain every word
	// of the search term.
	TitleMatch bool
	// FreeleechOnly drops releases that count against the download ratio.
	FreeleechOnly bool
	// PreserveOrder skips the final date sort and keeps request order.
	PreserveOrder bool
}

// Aggregate combines the per-request batches of one search into the
// final release list: concatenate in request order, deduplicate,
// post-filter, and sort by publish date descending. Batches must be
// passed in the order the requests were issued so tie-breaks between
// equal publish dates stay deterministic.
func Aggregate(batches [][]*types.ReleaseInfo, criteria types.SearchCriteria, opts Options, logger zerolog.Logger) []*types.ReleaseInfo {
	var all []*types.ReleaseInfo
	for _, batch := range batches {
		all = append(all, batch...)
	}
	totalRaw := len(all)

	releases := deduplicate(all)
	afterDedup := len(releases)

	releases = applyFilters(releases, criteria, opts)

	if !opts.PreserveOrder {
		sortByPublishDate(releases)
	}

	logger.Debug().
		Int("totalRaw", totalRaw).
		Int("afterDedup", afterDedup).
		Int("finalResults", len(releases)).
		Msg("Aggregation complete")

	return releases
}

// deduplicate removes duplicate releases. Torrents with an info hash
// dedupe on it since the same payload often hides behind several
// download URLs; everything else dedupes on GUID. The first occurrence
// wins, preserving request order.
func deduplicate(releases []*types.ReleaseInfo) []*types.ReleaseInfo {
	if len(releases) == 0 {
		return releases
	}

	seen := make(map[string]struct{}, len(releases))
	result := make([]*types.ReleaseInfo, 0, len(releases))

	for _, release := range releases {
		var identifier string
		if release.InfoHash != "" {
			identifier = "hash:" + strings.ToLower(release.InfoHash)
		} else {
			identifier = "guid:" + normalizeGUID(release.GUID)
		}

		if _, exists := seen[identifier]; exists {
			continue
		}
		seen[identifier] = struct{}{}
		result = append(result, release)
	}

	return result
}

func applyFilters(releases []*types.ReleaseInfo, criteria types.SearchCriteria, opts Options) []*types.ReleaseInfo {
	if !opts.TitleMatch && !opts.FreeleechOnly {
		return releases
	}

	term := ""
	if criteria != nil {
		term = criteria.Common().Term
	}

	filtered := make([]*types.ReleaseInfo, 0, len(releases))
	for _, release := range releases {
		if opts.FreeleechOnly && release.DownloadVolumeFactor != 0 {
			continue
		}
		if opts.TitleMatch && term != "" && !TitleContainsTerms(release.Title, term) {
			continue
		}
		filtered = append(filtered, release)
	}
	return filtered
}

// normalizeGUID normalizes a GUID for comparison.
func normalizeGUID(guid string) string {
	return strings.ToLower(strings.TrimSpace(guid))
}

// sortByPublishDate orders newest first. The stable sort keeps request
// order for equal dates, which together with the parser's synthetic
// same-second tie-break keeps repeated searches in the same order.
func sortByPublishDate(releases []*types.ReleaseInfo) {
	sort.SliceStable(releases, func(i, j int) bool {
		return releases[i].PublishDate.After(releases[j].PublishDate)
	})
}
