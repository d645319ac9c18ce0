package htmlsite

import (
	"bytes"
	"context"
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/trawler/trawler/internal/indexer"
	"github.com/trawler/trawler/internal/indexer/types"
)

// Download resolves a release link to payload bytes. Sites with a
// download block publish detail pages instead of direct links; the real
// payload URL is scraped off the page first. A missing link on the page
// is reported as an error, never as empty bytes.
func (s *Site) Download(ctx context.Context, link string) ([]byte, error) {
	if s.fetch == nil {
		return nil, indexer.NewConfigError(s.Name(), "definition has no fetcher wired for downloads")
	}

	target := link
	if s.spec.Download != nil && s.spec.Download.Selector != "" {
		resolved, err := s.resolveDownloadLink(ctx, link)
		if err != nil {
			return nil, err
		}
		target = resolved
	}

	req, err := types.NewRequest(target)
	if err != nil {
		return nil, indexer.NewDownloadError(s.Name(), "invalid download link", err)
	}
	req.Accept = types.AcceptBytes
	req.FollowRedirects = true

	resp, err := s.fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Body) == 0 {
		return nil, indexer.NewDownloadError(s.Name(), "empty download response", nil)
	}

	return resp.Body, nil
}

// resolveDownloadLink fetches the detail page and extracts the payload
// URL from it.
func (s *Site) resolveDownloadLink(ctx context.Context, link string) (string, error) {
	req, err := types.NewRequest(link)
	if err != nil {
		return "", indexer.NewDownloadError(s.Name(), "invalid detail page link", err)
	}
	req.Accept = types.AcceptHTML
	req.FollowRedirects = true

	resp, err := s.fetch(ctx, req)
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return "", indexer.NewParseError(s.Name(), "invalid detail page HTML", err)
	}

	attr := s.spec.Download.Attribute
	if attr == "" {
		attr = "href"
	}

	sel := doc.Find(s.spec.Download.Selector).First()
	value, ok := sel.Attr(attr)
	if !ok || value == "" {
		return "", indexer.NewDownloadError(s.Name(), "download link not found on detail page", nil)
	}

	base, err := url.Parse(s.spec.BaseURL)
	if err != nil {
		return "", indexer.NewParseError(s.Name(), "invalid base URL", err)
	}

	return resolveURL(base, value), nil
}
