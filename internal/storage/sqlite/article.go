package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"forcible/internal/domain"
)

type ArticleStore struct {
	db *sqlx.DB
}

func NewArticleStore(db *sqlx.DB) *ArticleStore {
	return &ArticleStore{db: db}
}

type articleRow struct {
	ID             int64   `db:"id"`
	URL            string  `db:"url"`
	Source         string  `db:"source"`
	Headline       string  `db:"headline"`
	PublishedDate  *string `db:"published_date"`
	FetchedDate    string  `db:"fetched_date"`
	Content        *string `db:"content"`
	Analysis       *string `db:"analysis"`
	AnalysisStatus string  `db:"analysis_status"`
	CreatedAt      string  `db:"created_at"`
	UpdatedAt      string  `db:"updated_at"`
}

func (r articleRow) toDomain() domain.Article {
	a := domain.Article{
		ID:             r.ID,
		URL:            r.URL,
		Source:         r.Source,
		Headline:       r.Headline,
		PublishedDate:  parseTimePtr(r.PublishedDate),
		FetchedDate:    parseTime(r.FetchedDate),
		Content:        r.Content,
		AnalysisStatus: domain.AnalysisStatus(r.AnalysisStatus),
		CreatedAt:      parseTime(r.CreatedAt),
		UpdatedAt:      parseTime(r.UpdatedAt),
	}
	if r.Analysis != nil && *r.Analysis != "" {
		var analysis domain.Analysis
		// An undecodable payload degrades to nil rather than failing the read.
		if err := json.Unmarshal([]byte(*r.Analysis), &analysis); err == nil {
			a.Analysis = &analysis
		}
	}
	return a
}

// Exists reports whether an article with the given URL is already stored.
func (s *ArticleStore) Exists(ctx context.Context, url string) (bool, error) {
	var one int
	err := s.db.GetContext(ctx, &one, "SELECT 1 FROM articles WHERE url = ?", url)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Insert stores a new article, stamping fetched_date with the current time.
// A URL collision returns domain.ErrDuplicateURL.
func (s *ArticleStore) Insert(ctx context.Context, article *domain.Article) (int64, error) {
	now := formatTime(time.Now())

	var published *string
	if article.PublishedDate != nil {
		p := formatTime(*article.PublishedDate)
		published = &p
	}

	var analysis *string
	status := domain.StatusUnanalyzed
	if article.Analysis != nil {
		data, err := json.Marshal(article.Analysis)
		if err != nil {
			return 0, fmt.Errorf("marshal analysis: %w", err)
		}
		text := string(data)
		analysis = &text
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO articles
			(url, source, headline, published_date, fetched_date, content, analysis, analysis_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		article.URL,
		article.Source,
		article.Headline,
		published,
		now,
		article.Content,
		analysis,
		status,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, domain.ErrDuplicateURL
		}
		return 0, err
	}

	return res.LastInsertId()
}

// UpdateAnalysis merges the payload into any previously stored analysis with
// field-wise last-write-wins semantics, so fields written by an earlier run
// (raw_entry, partial results) survive re-analysis. The terminal status is
// derived from the payload and updated_at is bumped.
func (s *ArticleStore) UpdateAnalysis(ctx context.Context, id int64, analysis domain.Analysis) error {
	var existing *string
	err := s.db.GetContext(ctx, &existing, "SELECT analysis FROM articles WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}

	merged, err := mergePayload(existing, analysis)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		"UPDATE articles SET analysis = ?, analysis_status = ?, updated_at = ? WHERE id = ?",
		merged, analysis.Status(), formatTime(time.Now()), id,
	)
	return err
}

// mergePayload overlays the incoming analysis onto the stored JSON at the
// field level: every key present in the incoming payload wins, keys only in
// the stored payload are kept.
func mergePayload(existing *string, incoming domain.Analysis) (string, error) {
	data, err := json.Marshal(incoming)
	if err != nil {
		return "", fmt.Errorf("marshal analysis: %w", err)
	}

	if existing == nil || *existing == "" {
		return string(data), nil
	}

	var base map[string]json.RawMessage
	if err := json.Unmarshal([]byte(*existing), &base); err != nil {
		// A corrupt stored payload is replaced wholesale.
		return string(data), nil
	}

	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(data, &overlay); err != nil {
		return "", fmt.Errorf("decode analysis payload: %w", err)
	}

	for k, v := range overlay {
		base[k] = v
	}

	merged, err := json.Marshal(base)
	if err != nil {
		return "", fmt.Errorf("marshal merged payload: %w", err)
	}
	return string(merged), nil
}

// UpdateContent sets or overwrites the enriched content for an article.
func (s *ArticleStore) UpdateContent(ctx context.Context, id int64, content string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE articles SET content = ?, updated_at = ? WHERE id = ?",
		content, formatTime(time.Now()), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Get returns a single article by ID, or domain.ErrNotFound.
func (s *ArticleStore) Get(ctx context.Context, id int64) (*domain.Article, error) {
	var row articleRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM articles WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a := row.toDomain()
	return &a, nil
}

// List returns articles ordered by published_date descending. SQLite sorts
// NULL lowest, so articles without a publication date come last. An empty
// source matches everything.
func (s *ArticleStore) List(ctx context.Context, source string, limit int) ([]domain.Article, error) {
	var rows []articleRow
	var err error
	if source != "" {
		err = s.db.SelectContext(ctx, &rows,
			"SELECT * FROM articles WHERE source = ? ORDER BY published_date DESC LIMIT ?",
			source, limit,
		)
	} else {
		err = s.db.SelectContext(ctx, &rows,
			"SELECT * FROM articles ORDER BY published_date DESC LIMIT ?",
			limit,
		)
	}
	if err != nil {
		return nil, err
	}
	return toDomainList(rows), nil
}

// ListWithoutContent returns articles missing enriched content, oldest
// publication first is not required; published_date descending matches List.
// limit <= 0 means no limit.
func (s *ArticleStore) ListWithoutContent(ctx context.Context, limit int) ([]domain.Article, error) {
	query := "SELECT * FROM articles WHERE content IS NULL OR content = '' ORDER BY published_date DESC"
	return s.selectLimited(ctx, query, limit)
}

// ListUnanalyzed returns articles whose analysis has not reached a terminal
// state. The check is on the status column, never on payload text, so an
// article whose content happens to contain marker strings is still returned.
func (s *ArticleStore) ListUnanalyzed(ctx context.Context, limit int) ([]domain.Article, error) {
	query := "SELECT * FROM articles WHERE analysis_status = 'unanalyzed' ORDER BY published_date DESC"
	return s.selectLimited(ctx, query, limit)
}

func (s *ArticleStore) selectLimited(ctx context.Context, query string, limit int) ([]domain.Article, error) {
	var rows []articleRow
	var err error
	if limit > 0 {
		err = s.db.SelectContext(ctx, &rows, query+" LIMIT ?", limit)
	} else {
		err = s.db.SelectContext(ctx, &rows, query)
	}
	if err != nil {
		return nil, err
	}
	return toDomainList(rows), nil
}

// Stats aggregates article counts and tracking rows for the stats command.
func (s *ArticleStore) Stats(ctx context.Context) (*domain.StoreStats, error) {
	stats := &domain.StoreStats{BySource: make(map[string]int)}

	if err := s.db.GetContext(ctx, &stats.TotalArticles, "SELECT COUNT(*) FROM articles"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT source, COUNT(*) FROM articles GROUP BY source ORDER BY COUNT(*) DESC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return nil, err
		}
		stats.BySource[source] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var tracking []trackingRow
	if err := s.db.SelectContext(ctx, &tracking,
		"SELECT source_name, last_scraped, last_article_date FROM source_tracking ORDER BY last_scraped DESC",
	); err != nil {
		return nil, err
	}
	for _, t := range tracking {
		stats.Tracking = append(stats.Tracking, t.toDomain())
	}

	return stats, nil
}

func toDomainList(rows []articleRow) []domain.Article {
	articles := make([]domain.Article, 0, len(rows))
	for _, r := range rows {
		articles = append(articles, r.toDomain())
	}
	return articles
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
