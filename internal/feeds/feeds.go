// Package feeds fetches and normalizes RSS articles for the
// sentiment pipeline.
package feeds

import (
	"context"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"github.com/ualgo/engine/internal/metrics"
)

const (
	fetchTimeout      = 10 * time.Second
	maxEntriesPerFeed = 15
	maxSummaryLength  = 500
)

// Article is one normalized feed entry
type Article struct {
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Link      string    `json:"link"`
	Published time.Time `json:"published"`
}

// Fetcher retrieves articles from one feed URL. Errors degrade to an
// empty list.
type Fetcher interface {
	Fetch(ctx context.Context, url string) []Article
}

// Provider parses RSS/Atom feeds over HTTP
type Provider struct {
	parser *gofeed.Parser
	logger zerolog.Logger
}

// NewProvider creates a feed provider. A nil client uses the default
// HTTP client.
func NewProvider(client *http.Client, logger zerolog.Logger) *Provider {
	parser := gofeed.NewParser()
	if client != nil {
		parser.Client = client
	}
	return &Provider{parser: parser, logger: logger}
}

// Fetch returns up to 15 entries from the feed, newest as ordered by
// the feed itself. Any error yields an empty slice.
func (p *Provider) Fetch(ctx context.Context, url string) []Article {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	feed, err := p.parser.ParseURLWithContext(url, fetchCtx)
	metrics.RecordFeedFetch(err == nil)
	if err != nil {
		p.logger.Warn().Err(err).Str("url", url).Msg("Feed fetch failed")
		return nil
	}

	items := feed.Items
	if len(items) > maxEntriesPerFeed {
		items = items[:maxEntriesPerFeed]
	}

	articles := make([]Article, 0, len(items))
	for _, item := range items {
		summary := item.Description
		if len(summary) > maxSummaryLength {
			summary = summary[:maxSummaryLength]
		}

		published := time.Time{}
		if item.PublishedParsed != nil {
			published = *item.PublishedParsed
		}

		articles = append(articles, Article{
			Title:     item.Title,
			Summary:   summary,
			Link:      item.Link,
			Published: published,
		})
	}

	return articles
}
