package rss

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"

	"forcible/internal/domain"
)

// Config holds feed fetcher configuration.
type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// Source retrieves and normalizes syndication feeds. Feeds are treated as
// untrusted input: a malformed entry is skipped, never fatal.
type Source struct {
	parser *gofeed.Parser
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Source {
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: cfg.Timeout}
	parser.UserAgent = cfg.UserAgent

	return &Source{
		parser: parser,
		logger: logger.With("component", "rss"),
	}
}

// Fetch retrieves the feed at feedURL and returns its normalized entries.
func (s *Source) Fetch(ctx context.Context, feedURL, sourceName string) ([]domain.FeedEntry, error) {
	feed, err := s.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", sourceName, err)
	}

	return s.transform(feed.Items, sourceName), nil
}

func (s *Source) transform(items []*gofeed.Item, sourceName string) []domain.FeedEntry {
	entries := make([]domain.FeedEntry, 0, len(items))

	for _, item := range items {
		if item.Link == "" {
			s.logger.Debug("skipping entry without link",
				"source", sourceName,
				"title", item.Title,
			)
			continue
		}

		headline := item.Title
		if headline == "" {
			headline = "Untitled"
		}

		entry := domain.FeedEntry{
			URL:       item.Link,
			Headline:  headline,
			Published: s.resolveDate(item, sourceName),
		}

		// Prefer the feed summary, then the first content block.
		if item.Description != "" {
			desc := item.Description
			entry.Summary = &desc
		} else if item.Content != "" {
			content := item.Content
			entry.Summary = &content
		}

		entries = append(entries, entry)
	}

	return entries
}

// resolveDate takes the structured publish date when the feed library parsed
// one, otherwise attempts the free-text date string. Failures leave the date
// absent.
func (s *Source) resolveDate(item *gofeed.Item, sourceName string) *time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed
	}
	if item.Published == "" {
		return nil
	}

	t, err := dateparse.ParseAny(item.Published)
	if err != nil {
		s.logger.Warn("failed to parse entry date",
			"source", sourceName,
			"date", item.Published,
			"error", err,
		)
		return nil
	}
	return &t
}
