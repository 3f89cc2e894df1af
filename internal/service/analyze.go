package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"forcible/internal/domain"
)

// AnalyzeService runs unprocessed articles through the analysis engine and
// persists the results. The workflow is resumable: each article reaches a
// terminal status (analyzed or analysis_error) independently, so an
// interrupted batch picks up where it left off.
type AnalyzeService struct {
	articles ArticleStore
	analyzer Analyzer
	logger   *slog.Logger
}

func NewAnalyzeService(articles ArticleStore, analyzer Analyzer, logger *slog.Logger) *AnalyzeService {
	return &AnalyzeService{
		articles: articles,
		analyzer: analyzer,
		logger:   logger.With("component", "analyze"),
	}
}

// AnalyzeArticle analyzes one article, stamps the processing time and merges
// the result into the stored payload. The returned analysis carries an error
// marker when the engine degraded.
func (s *AnalyzeService) AnalyzeArticle(ctx context.Context, article *domain.Article) (domain.Analysis, error) {
	analysis := s.analyzer.Analyze(ctx, article.Headline, article.Content)

	now := time.Now().UTC()
	analysis.ProcessedAt = &now

	if err := s.articles.UpdateAnalysis(ctx, article.ID, analysis); err != nil {
		return analysis, fmt.Errorf("store analysis: %w", err)
	}

	return analysis, nil
}

// AnalyzeUnprocessed analyzes articles without a terminal status, up to limit
// (<= 0 means all), invoking progress per item. Per-article failures are
// captured in their own results; the batch never aborts on one of them.
func (s *AnalyzeService) AnalyzeUnprocessed(ctx context.Context, limit int, progress ProgressFunc) (map[int64]domain.Analysis, error) {
	articles, err := s.articles.ListUnanalyzed(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list unanalyzed: %w", err)
	}

	results := make(map[int64]domain.Analysis, len(articles))
	total := len(articles)
	failures := 0

	for i := range articles {
		article := &articles[i]

		if err := ctx.Err(); err != nil {
			return results, err
		}

		if progress != nil {
			progress(i+1, total, article.Headline)
		}

		analysis, err := s.AnalyzeArticle(ctx, article)
		if err != nil {
			failures++
			s.logger.Warn("failed to store analysis", "article_id", article.ID, "error", err)
		}
		results[article.ID] = analysis
	}

	s.logger.Info("analysis complete", "total", total, "store_failures", failures)
	return results, nil
}
