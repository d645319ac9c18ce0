package indexer

import (
	"context"

	"github.com/trawler/trawler/internal/indexer/types"
)

// RequestGenerator builds the HTTP requests for a search against one
// site. Implementations translate typed criteria into the site's query
// shape, consulting the capabilities to drop unsupported parameters.
type RequestGenerator interface {
	// SearchRequests returns the request chain for the given criteria.
	// An empty chain means the indexer cannot serve this search and the
	// caller should treat it as zero results, not an error.
	SearchRequests(criteria types.SearchCriteria) (*RequestChain, error)
}

// ResponseParser converts one site response into release records. Parsers
// are pure functions of the response content and must not retain state
// between calls.
type ResponseParser interface {
	ParseResponse(resp *types.Response) ([]*types.ReleaseInfo, error)
}

// Downloader resolves a release's download URL to payload bytes. Sites
// that hand out tokens or intermediate detail pages implement the extra
// hop here; simple sites can rely on the engine's direct fetch.
type Downloader interface {
	Download(ctx context.Context, link string) ([]byte, error)
}

// Definition wires one site's concrete behavior into the shared engine.
type Definition interface {
	Name() string
	Capabilities() *types.Capabilities
	Protocol() types.Protocol
	Privacy() types.Privacy
	RequestGenerator() RequestGenerator
	Parser() ResponseParser
}

// KeywordSanitizer is an optional hook a definition can implement to
// rewrite search terms before request generation (strip characters a
// site chokes on, collapse whitespace, and so on).
type KeywordSanitizer interface {
	SanitizeKeywords(term string) string
}
