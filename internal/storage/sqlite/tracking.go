package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"forcible/internal/domain"
)

type TrackingStore struct {
	db *sqlx.DB
}

func NewTrackingStore(db *sqlx.DB) *TrackingStore {
	return &TrackingStore{db: db}
}

type trackingRow struct {
	SourceName      string  `db:"source_name"`
	LastScraped     string  `db:"last_scraped"`
	LastArticleDate *string `db:"last_article_date"`
}

func (r trackingRow) toDomain() domain.SourceTracking {
	return domain.SourceTracking{
		SourceName:      r.SourceName,
		LastScraped:     parseTime(r.LastScraped),
		LastArticleDate: parseTimePtr(r.LastArticleDate),
	}
}

// SetScrapeTime upserts the tracking row for a source, stamping last_scraped
// with the current time.
func (s *TrackingStore) SetScrapeTime(ctx context.Context, sourceName string, lastArticleDate *time.Time) error {
	var last *string
	if lastArticleDate != nil {
		v := formatTime(*lastArticleDate)
		last = &v
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO source_tracking (source_name, last_scraped, last_article_date)
		VALUES (?, ?, ?)
		ON CONFLICT (source_name) DO UPDATE SET
			last_scraped = excluded.last_scraped,
			last_article_date = excluded.last_article_date`,
		sourceName, formatTime(time.Now()), last,
	)
	return err
}

// GetScrapeTime returns when the source was last fetched, or nil if never.
func (s *TrackingStore) GetScrapeTime(ctx context.Context, sourceName string) (*time.Time, error) {
	var last string
	err := s.db.GetContext(ctx, &last,
		"SELECT last_scraped FROM source_tracking WHERE source_name = ?", sourceName,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := parseTime(last)
	return &t, nil
}
