package domain

import (
	"errors"
	"time"
)

// ErrDuplicateURL is returned by the article store when an insert collides
// with an existing row. Callers treat it as a benign skip, not a failure.
var ErrDuplicateURL = errors.New("article url already exists")

// ErrNotFound is returned for point lookups and updates against missing rows.
var ErrNotFound = errors.New("article not found")

// Article is a stored news item. Content and Analysis start empty and grow
// richer as the enrichment and analysis passes run.
type Article struct {
	ID             int64
	URL            string
	Source         string // configured feed name, e.g. "rnz_national"
	Headline       string
	PublishedDate  *time.Time
	FetchedDate    time.Time
	Content        *string
	Analysis       *Analysis
	AnalysisStatus AnalysisStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FeedEntry is a normalized feed item before it becomes an Article.
type FeedEntry struct {
	URL       string
	Headline  string
	Published *time.Time
	Summary   *string
}

// SourceTracking records the last fetch attempt for a configured source.
// LastArticleDate is bookkeeping only; it is never used as a fetch cursor.
type SourceTracking struct {
	SourceName      string
	LastScraped     time.Time
	LastArticleDate *time.Time
}
