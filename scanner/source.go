// ABOUTME: This file declares the upstream source port for paged headline scans
// ABOUTME: Listing pages and fetching bodies are split so bodies fetch lazily
package scanner

import (
	"context"
	"time"
)

// Headline is one item from a source listing page. The body is fetched
// separately, and only for items not already ingested.
type Headline struct {
	SourceRef   string
	Title       string
	PublishedAt time.Time
}

// Source is a paged upstream. Pages are newest first, page numbers start
// at 1, and a page past the end returns an empty slice, not an error.
type Source interface {
	ScanPage(ctx context.Context, page int) ([]Headline, error)
	FetchBody(ctx context.Context, sourceRef string) (string, error)
}
