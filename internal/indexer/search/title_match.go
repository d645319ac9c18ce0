package search

import (
	"regexp"
	"strings"
)

var (
	apostropheRegex    = regexp.MustCompile(`[''\x60\x{2018}\x{2019}\x{02BC}]`)
	specialCharsRegex  = regexp.MustCompile(`[^a-zA-Z0-9\s]`)
	multipleSpaceRegex = regexp.MustCompile(`\s+`)
)

// NormalizeTitle converts a title to a normalized form for comparison.
// It converts to lowercase, strips apostrophes (within-word punctuation),
// replaces remaining special characters with spaces, and collapses multiple spaces.
// Apostrophes are stripped rather than replaced with spaces so that titles like
// "Schitt's Creek" and "Schitts Creek" both normalize to "schitts creek".
func NormalizeTitle(title string) string {
	normalized := strings.ToLower(title)
	normalized = apostropheRegex.ReplaceAllString(normalized, "")
	normalized = specialCharsRegex.ReplaceAllString(normalized, " ")
	normalized = multipleSpaceRegex.ReplaceAllString(normalized, " ")
	normalized = strings.TrimSpace(normalized)
	return normalized
}

// TitlesMatch performs strict matching of two titles after normalization.
// Returns true only if the normalized titles are exactly equal.
func TitlesMatch(parsedTitle, searchQuery string) bool {
	return NormalizeTitle(parsedTitle) == NormalizeTitle(searchQuery)
}

// TitleContainsTerms reports whether every word of the search term
// appears in the release title after normalization. Sites with sloppy
// full-text search return loosely related junk, and this is the
// post-filter that drops it without demanding an exact title match.
func TitleContainsTerms(releaseTitle, searchTerm string) bool {
	title := NormalizeTitle(releaseTitle)
	if title == "" {
		return false
	}

	words := strings.Fields(title)
	have := make(map[string]bool, len(words))
	for _, w := range words {
		have[w] = true
	}

	for _, term := range strings.Fields(NormalizeTitle(searchTerm)) {
		if !have[term] {
			return false
		}
	}
	return true
}
