package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"forcible/internal/domain"
)

// IngestService pulls configured feeds, deduplicates by URL and records new
// articles. Re-ingesting a feed is idempotent: already-seen URLs are benign
// skips.
type IngestService struct {
	source    FeedSource
	articles  ArticleStore
	tracking  TrackingStore
	publisher Publisher // optional, may be nil
	logger    *slog.Logger
	delay     time.Duration
}

func NewIngestService(
	source FeedSource,
	articles ArticleStore,
	tracking TrackingStore,
	publisher Publisher,
	logger *slog.Logger,
	delay time.Duration,
) *IngestService {
	return &IngestService{
		source:    source,
		articles:  articles,
		tracking:  tracking,
		publisher: publisher,
		logger:    logger.With("component", "ingest"),
		delay:     delay,
	}
}

// FetchFeed ingests a single feed. The returned stats count newly inserted
// articles; duplicates and linkless entries are skips, not errors.
func (s *IngestService) FetchFeed(ctx context.Context, sourceName, feedURL string) (*domain.IngestStats, error) {
	startTime := time.Now()
	s.logger.Info("fetching feed", "source", sourceName, "url", feedURL)

	stats := &domain.IngestStats{Source: sourceName}

	entries, err := s.source.Fetch(ctx, feedURL, sourceName)
	if err != nil {
		return stats, fmt.Errorf("fetch feed: %w", err)
	}
	stats.Fetched = len(entries)

	// Latest publication date among newly inserted entries only.
	var latest *time.Time

	for i := range entries {
		entry := &entries[i]

		exists, err := s.articles.Exists(ctx, entry.URL)
		if err != nil {
			stats.Errors++
			s.logger.Warn("existence check failed", "url", entry.URL, "error", err)
			continue
		}
		if exists {
			stats.Skipped++
			continue
		}

		article := &domain.Article{
			URL:           entry.URL,
			Source:        sourceName,
			Headline:      entry.Headline,
			PublishedDate: entry.Published,
			Content:       entry.Summary,
			Analysis: &domain.Analysis{
				RawEntry: &domain.RawEntry{
					Title:     entry.Headline,
					Link:      entry.URL,
					Published: entry.Published,
				},
			},
		}

		id, err := s.articles.Insert(ctx, article)
		if err != nil {
			if errors.Is(err, domain.ErrDuplicateURL) {
				// Raced with a concurrent or retried run.
				stats.Skipped++
				continue
			}
			stats.Errors++
			s.logger.Warn("insert failed", "url", entry.URL, "error", err)
			continue
		}
		article.ID = id
		stats.New++

		if entry.Published != nil && (latest == nil || entry.Published.After(*latest)) {
			latest = entry.Published
		}

		if s.publisher != nil {
			if err := s.publisher.Publish(ctx, article); err != nil {
				stats.Errors++
				s.logger.Warn("publish failed", "url", entry.URL, "error", err)
			} else {
				stats.Published++
			}
		}

		s.logger.Debug("added article", "headline", entry.Headline, "url", entry.URL)
	}

	if err := s.tracking.SetScrapeTime(ctx, sourceName, latest); err != nil {
		return stats, fmt.Errorf("update scrape time: %w", err)
	}

	stats.Duration = time.Since(startTime)

	s.logger.Info("feed complete",
		"source", sourceName,
		"fetched", stats.Fetched,
		"new", stats.New,
		"skipped", stats.Skipped,
		"errors", stats.Errors,
		"duration", stats.Duration,
	)

	return stats, nil
}

// FetchAll ingests every configured source whose name starts with the family
// prefix ("" or "all" matches everything). A failing feed is logged and the
// run continues; the politeness delay applies between consecutive feeds.
func (s *IngestService) FetchAll(ctx context.Context, sources map[string]string, family string) (map[string]int, error) {
	names := make([]string, 0, len(sources))
	for name := range sources {
		if family == "" || family == "all" || strings.HasPrefix(name, family) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	results := make(map[string]int, len(names))

	for i, name := range names {
		if i > 0 {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(s.delay):
			}
		}

		stats, err := s.FetchFeed(ctx, name, sources[name])
		if err != nil {
			s.logger.Warn("feed failed", "source", name, "error", err)
		}
		results[name] = stats.New
	}

	return results, nil
}
