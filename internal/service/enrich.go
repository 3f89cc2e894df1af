package service

import (
	"context"
	"fmt"
	"log/slog"
)

// EnrichService fetches and stores cleaned page content for articles that
// lack it.
type EnrichService struct {
	articles ArticleStore
	fetcher  ContentFetcher
	logger   *slog.Logger
}

func NewEnrichService(articles ArticleStore, fetcher ContentFetcher, logger *slog.Logger) *EnrichService {
	return &EnrichService{
		articles: articles,
		fetcher:  fetcher,
		logger:   logger.With("component", "enrich"),
	}
}

// EnrichArticle fetches content for one article and stores it. A fetch or
// store failure yields false; nothing propagates past this boundary.
func (s *EnrichService) EnrichArticle(ctx context.Context, id int64, url string) bool {
	content, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		s.logger.Warn("content fetch failed", "url", url, "error", err)
		return false
	}

	if err := s.articles.UpdateContent(ctx, id, content); err != nil {
		s.logger.Warn("content store failed", "article_id", id, "error", err)
		return false
	}

	return true
}

// EnrichMissing processes articles without content, up to limit (<= 0 means
// all), invoking progress per item. One bad URL does not abort the batch; the
// success count is returned.
func (s *EnrichService) EnrichMissing(ctx context.Context, limit int, progress ProgressFunc) (int, error) {
	articles, err := s.articles.ListWithoutContent(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list articles without content: %w", err)
	}

	success := 0
	total := len(articles)

	for i, article := range articles {
		if err := ctx.Err(); err != nil {
			return success, err
		}

		if progress != nil {
			progress(i+1, total, article.Headline)
		}

		if s.EnrichArticle(ctx, article.ID, article.URL) {
			success++
		}
	}

	s.logger.Info("enrichment complete", "total", total, "succeeded", success)
	return success, nil
}
