package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"forcible/internal/domain"
	"forcible/internal/service/mocks"
)

type EnrichServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	articles *mocks.MockArticleStore
	fetcher  *mocks.MockContentFetcher

	service *EnrichService
}

func (s *EnrichServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.articles = mocks.NewMockArticleStore(s.ctrl)
	s.fetcher = mocks.NewMockContentFetcher(s.ctrl)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.service = NewEnrichService(s.articles, s.fetcher, logger)
}

func (s *EnrichServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestEnrichServiceTestSuite(t *testing.T) {
	suite.Run(t, new(EnrichServiceTestSuite))
}

func (s *EnrichServiceTestSuite) TestEnrichArticle() {
	ctx := context.Background()

	s.fetcher.EXPECT().Fetch(ctx, "https://example.com/a").Return("# Title\n\nText", nil)
	s.articles.EXPECT().UpdateContent(ctx, int64(1), "# Title\n\nText").Return(nil)

	s.True(s.service.EnrichArticle(ctx, 1, "https://example.com/a"))
}

func (s *EnrichServiceTestSuite) TestEnrichArticle_FetchFailure() {
	ctx := context.Background()

	s.fetcher.EXPECT().Fetch(ctx, "https://example.com/a").Return("", errors.New("status 404"))

	s.False(s.service.EnrichArticle(ctx, 1, "https://example.com/a"))
}

// One bad URL does not abort the batch: the other articles are still
// enriched and counted.
func (s *EnrichServiceTestSuite) TestEnrichMissing_PartialFailure() {
	ctx := context.Background()

	articles := []domain.Article{
		{ID: 1, URL: "https://example.com/1", Headline: "One"},
		{ID: 2, URL: "https://example.com/2", Headline: "Two"},
		{ID: 3, URL: "https://example.com/3", Headline: "Three"},
	}

	s.articles.EXPECT().ListWithoutContent(ctx, 0).Return(articles, nil)

	s.fetcher.EXPECT().Fetch(ctx, "https://example.com/1").Return("content one", nil)
	s.fetcher.EXPECT().Fetch(ctx, "https://example.com/2").Return("", errors.New("timeout"))
	s.fetcher.EXPECT().Fetch(ctx, "https://example.com/3").Return("content three", nil)

	s.articles.EXPECT().UpdateContent(ctx, int64(1), "content one").Return(nil)
	s.articles.EXPECT().UpdateContent(ctx, int64(3), "content three").Return(nil)

	var progressed []string
	count, err := s.service.EnrichMissing(ctx, 0, func(current, total int, headline string) {
		s.Equal(3, total)
		progressed = append(progressed, headline)
	})

	s.NoError(err)
	s.Equal(2, count)
	s.Equal([]string{"One", "Two", "Three"}, progressed)
}

func (s *EnrichServiceTestSuite) TestEnrichMissing_Empty() {
	ctx := context.Background()

	s.articles.EXPECT().ListWithoutContent(ctx, 5).Return(nil, nil)

	count, err := s.service.EnrichMissing(ctx, 5, nil)
	s.NoError(err)
	s.Equal(0, count)
}
