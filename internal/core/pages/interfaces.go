package pages

import "context"

// Media is the metadata scraped from a live page.
type Media struct {
	Title        string
	FaviconURL   string
	ThumbnailURL string
}

// MediaFetcher retrieves display metadata for a URL. Implementations are
// expected to be slow and unreliable; the service only ever calls them
// from background work and treats every failure as non-fatal.
type MediaFetcher interface {
	Fetch(ctx context.Context, pageURL string) (Media, error)
}
