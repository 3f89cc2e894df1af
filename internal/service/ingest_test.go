package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"forcible/internal/domain"
	"forcible/internal/service/mocks"
)

type IngestServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	source   *mocks.MockFeedSource
	articles *mocks.MockArticleStore
	tracking *mocks.MockTrackingStore

	service *IngestService
	logger  *slog.Logger
}

func (s *IngestServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.source = mocks.NewMockFeedSource(s.ctrl)
	s.articles = mocks.NewMockArticleStore(s.ctrl)
	s.tracking = mocks.NewMockTrackingStore(s.ctrl)

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.service = NewIngestService(s.source, s.articles, s.tracking, nil, s.logger, time.Millisecond)
}

func (s *IngestServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestIngestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(IngestServiceTestSuite))
}

// One duplicate entry and one new entry: exactly one article is recorded and
// the tracking date equals the new entry's published date.
func (s *IngestServiceTestSuite) TestFetchFeed_DedupAndTracking() {
	ctx := context.Background()
	published := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	entries := []domain.FeedEntry{
		{URL: "https://example.com/known", Headline: "Old news"},
		{URL: "https://example.com/new", Headline: "Fresh news", Published: &published},
	}

	s.source.EXPECT().Fetch(ctx, "https://feeds.example.com/rss", "rnz_national").Return(entries, nil)

	s.articles.EXPECT().Exists(ctx, "https://example.com/known").Return(true, nil)
	s.articles.EXPECT().Exists(ctx, "https://example.com/new").Return(false, nil)

	s.articles.EXPECT().Insert(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, article *domain.Article) (int64, error) {
			s.Equal("https://example.com/new", article.URL)
			s.Equal("rnz_national", article.Source)
			s.Equal("Fresh news", article.Headline)
			s.Require().NotNil(article.Analysis)
			s.Require().NotNil(article.Analysis.RawEntry)
			s.Equal("https://example.com/new", article.Analysis.RawEntry.Link)
			return 42, nil
		},
	)

	s.tracking.EXPECT().SetScrapeTime(ctx, "rnz_national", gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, latest *time.Time) error {
			s.Require().NotNil(latest)
			s.True(latest.Equal(published))
			return nil
		},
	)

	stats, err := s.service.FetchFeed(ctx, "rnz_national", "https://feeds.example.com/rss")

	s.NoError(err)
	s.Equal(2, stats.Fetched)
	s.Equal(1, stats.New)
	s.Equal(1, stats.Skipped)
	s.Equal(0, stats.Errors)
}

// A duplicate-key race on insert is a benign skip, not a failure.
func (s *IngestServiceTestSuite) TestFetchFeed_DuplicateRace() {
	ctx := context.Background()

	entries := []domain.FeedEntry{
		{URL: "https://example.com/raced", Headline: "Raced"},
	}

	s.source.EXPECT().Fetch(ctx, "https://feeds.example.com/rss", "rnz_national").Return(entries, nil)
	s.articles.EXPECT().Exists(ctx, "https://example.com/raced").Return(false, nil)
	s.articles.EXPECT().Insert(ctx, gomock.Any()).Return(int64(0), domain.ErrDuplicateURL)
	s.tracking.EXPECT().SetScrapeTime(ctx, "rnz_national", nil).Return(nil)

	stats, err := s.service.FetchFeed(ctx, "rnz_national", "https://feeds.example.com/rss")

	s.NoError(err)
	s.Equal(0, stats.New)
	s.Equal(1, stats.Skipped)
	s.Equal(0, stats.Errors)
}

// The tracking date only considers newly inserted entries, not everything the
// feed contained.
func (s *IngestServiceTestSuite) TestFetchFeed_TracksOnlyInsertedDates() {
	ctx := context.Background()
	older := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	entries := []domain.FeedEntry{
		{URL: "https://example.com/seen", Headline: "Seen before", Published: &newer},
		{URL: "https://example.com/new", Headline: "New", Published: &older},
	}

	s.source.EXPECT().Fetch(ctx, gomock.Any(), gomock.Any()).Return(entries, nil)
	s.articles.EXPECT().Exists(ctx, "https://example.com/seen").Return(true, nil)
	s.articles.EXPECT().Exists(ctx, "https://example.com/new").Return(false, nil)
	s.articles.EXPECT().Insert(ctx, gomock.Any()).Return(int64(1), nil)

	s.tracking.EXPECT().SetScrapeTime(ctx, "rnz_national", gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, latest *time.Time) error {
			s.Require().NotNil(latest)
			s.True(latest.Equal(older))
			return nil
		},
	)

	_, err := s.service.FetchFeed(ctx, "rnz_national", "https://feeds.example.com/rss")
	s.NoError(err)
}

func (s *IngestServiceTestSuite) TestFetchFeed_SourceError() {
	ctx := context.Background()

	s.source.EXPECT().Fetch(ctx, gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused"))

	stats, err := s.service.FetchFeed(ctx, "rnz_national", "https://feeds.example.com/rss")

	s.Error(err)
	s.Equal(0, stats.New)
}

func (s *IngestServiceTestSuite) TestFetchFeed_InsertErrorContinues() {
	ctx := context.Background()

	entries := []domain.FeedEntry{
		{URL: "https://example.com/bad", Headline: "Bad"},
		{URL: "https://example.com/good", Headline: "Good"},
	}

	s.source.EXPECT().Fetch(ctx, gomock.Any(), gomock.Any()).Return(entries, nil)
	s.articles.EXPECT().Exists(ctx, gomock.Any()).Return(false, nil).Times(2)
	s.articles.EXPECT().Insert(ctx, gomock.Any()).Return(int64(0), errors.New("disk full"))
	s.articles.EXPECT().Insert(ctx, gomock.Any()).Return(int64(2), nil)
	s.tracking.EXPECT().SetScrapeTime(ctx, "rnz_national", nil).Return(nil)

	stats, err := s.service.FetchFeed(ctx, "rnz_national", "https://feeds.example.com/rss")

	s.NoError(err)
	s.Equal(1, stats.New)
	s.Equal(1, stats.Errors)
}

func (s *IngestServiceTestSuite) TestFetchFeed_PublishFailureCounted() {
	ctx := context.Background()
	pub := mocks.NewMockPublisher(s.ctrl)
	svc := NewIngestService(s.source, s.articles, s.tracking, pub, s.logger, time.Millisecond)

	entries := []domain.FeedEntry{
		{URL: "https://example.com/new", Headline: "New"},
	}

	s.source.EXPECT().Fetch(ctx, gomock.Any(), gomock.Any()).Return(entries, nil)
	s.articles.EXPECT().Exists(ctx, gomock.Any()).Return(false, nil)
	s.articles.EXPECT().Insert(ctx, gomock.Any()).Return(int64(7), nil)
	pub.EXPECT().Publish(ctx, gomock.Any()).Return(errors.New("broker down"))
	s.tracking.EXPECT().SetScrapeTime(ctx, "rnz_national", nil).Return(nil)

	stats, err := svc.FetchFeed(ctx, "rnz_national", "https://feeds.example.com/rss")

	s.NoError(err)
	s.Equal(1, stats.New)
	s.Equal(0, stats.Published)
	s.Equal(1, stats.Errors)
}

// One broken feed does not abort the run; the family prefix selects sources.
func (s *IngestServiceTestSuite) TestFetchAll_FamilyFilterAndFailureIsolation() {
	ctx := context.Background()

	sources := map[string]string{
		"rnz_national": "https://feeds.example.com/national",
		"rnz_world":    "https://feeds.example.com/world",
		"other_feed":   "https://feeds.example.com/other",
	}

	s.source.EXPECT().Fetch(ctx, "https://feeds.example.com/national", "rnz_national").
		Return(nil, errors.New("malformed feed"))

	s.source.EXPECT().Fetch(ctx, "https://feeds.example.com/world", "rnz_world").
		Return([]domain.FeedEntry{{URL: "https://example.com/w", Headline: "World"}}, nil)
	s.articles.EXPECT().Exists(ctx, "https://example.com/w").Return(false, nil)
	s.articles.EXPECT().Insert(ctx, gomock.Any()).Return(int64(1), nil)

	s.tracking.EXPECT().SetScrapeTime(ctx, "rnz_world", nil).Return(nil)

	results, err := s.service.FetchAll(ctx, sources, "rnz")

	s.NoError(err)
	s.Len(results, 2)
	s.Equal(0, results["rnz_national"])
	s.Equal(1, results["rnz_world"])
	s.NotContains(results, "other_feed")
}
