package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"forcible/internal/domain"
)

type ArticleStore interface {
	Exists(ctx context.Context, url string) (bool, error)
	Insert(ctx context.Context, article *domain.Article) (int64, error)
	UpdateContent(ctx context.Context, id int64, content string) error
	UpdateAnalysis(ctx context.Context, id int64, analysis domain.Analysis) error
	Get(ctx context.Context, id int64) (*domain.Article, error)
	ListWithoutContent(ctx context.Context, limit int) ([]domain.Article, error)
	ListUnanalyzed(ctx context.Context, limit int) ([]domain.Article, error)
}

type TrackingStore interface {
	SetScrapeTime(ctx context.Context, sourceName string, lastArticleDate *time.Time) error
	GetScrapeTime(ctx context.Context, sourceName string) (*time.Time, error)
}

type FeedSource interface {
	Fetch(ctx context.Context, feedURL, sourceName string) ([]domain.FeedEntry, error)
}

type ContentFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Analyzer produces a structured analysis. Implementations degrade failures
// to a default result with an error marker rather than returning an error.
type Analyzer interface {
	Analyze(ctx context.Context, headline string, content *string) domain.Analysis
}

type Publisher interface {
	Publish(ctx context.Context, article *domain.Article) error
	Close() error
}

// ProgressFunc is invoked once per item in batch operations.
type ProgressFunc func(current, total int, headline string)
