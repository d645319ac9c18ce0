package indexer

import "github.com/trawler/trawler/internal/indexer/types"

// RequestChain is an ordered collection of search requests arranged into
// tracks. Tracks are independent sub-searches (one per category for sites
// that only accept a single category per query, for example) and every
// track is executed. Within a track the requests are successive pages and
// execution stops early once a short page signals the end of results.
type RequestChain struct {
	tracks [][]*types.Request
}

// NewRequestChain creates an empty chain with one open track.
func NewRequestChain() *RequestChain {
	return &RequestChain{tracks: [][]*types.Request{{}}}
}

// AddTrack opens a new track. Subsequent Add calls append to it.
func (c *RequestChain) AddTrack() {
	c.tracks = append(c.tracks, []*types.Request{})
}

// Add appends a request page to the current track. Nil requests are
// ignored so generators can pass optional builders through unconditionally.
func (c *RequestChain) Add(req *types.Request) {
	if req == nil {
		return
	}
	last := len(c.tracks) - 1
	c.tracks[last] = append(c.tracks[last], req)
}

// AddRange appends several request pages to the current track.
func (c *RequestChain) AddRange(reqs []*types.Request) {
	for _, req := range reqs {
		c.Add(req)
	}
}

// Tracks returns the tracks that contain at least one request, in the
// order they were added.
func (c *RequestChain) Tracks() [][]*types.Request {
	out := make([][]*types.Request, 0, len(c.tracks))
	for _, track := range c.tracks {
		if len(track) > 0 {
			out = append(out, track)
		}
	}
	return out
}

// Empty reports whether the chain holds no requests at all.
func (c *RequestChain) Empty() bool {
	return len(c.Tracks()) == 0
}
