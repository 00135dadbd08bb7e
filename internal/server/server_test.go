package server_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"feedsync/internal/domain"
	"feedsync/internal/server"
	"feedsync/internal/storage/memory"
)

type ServerSuite struct {
	suite.Suite
	store *memory.Store
	ts    *httptest.Server
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	s.store = memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.ts = httptest.NewServer(server.New(s.store, logger).Handler())
}

func (s *ServerSuite) TearDownTest() {
	s.ts.Close()
}

func (s *ServerSuite) seedFeed(feed *domain.Feed) {
	ctx := context.Background()
	s.store.AcquireWriteLock()
	defer s.store.ReleaseWriteLock()
	s.Require().NoError(s.store.PutFeed(ctx, feed))
}

func (s *ServerSuite) get(path string) (*http.Response, []byte) {
	resp, err := http.Get(s.ts.URL + path)
	s.Require().NoError(err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	return resp, body
}

func (s *ServerSuite) TestListFeedsEmpty() {
	resp, body := s.get("/feeds")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("application/json", resp.Header.Get("Content-Type"))
	s.JSONEq("[]", string(body))
}

func (s *ServerSuite) TestListFeeds() {
	interval := 30 * time.Minute
	refreshed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s.seedFeed(&domain.Feed{
		SourceName:     "rss",
		FeedURL:        "http://example.com/feed.xml",
		Title:          "Example",
		UpdateInterval: &interval,
		LastRefreshed:  &refreshed,
		Items: []domain.Item{
			{GUID: "g1"}, {GUID: "g2"},
		},
	})
	s.seedFeed(&domain.Feed{
		SourceName: "rss",
		FeedURL:    "http://example.com/dead.xml",
	})

	resp, body := s.get("/feeds")
	s.Equal(http.StatusOK, resp.StatusCode)

	var summaries []map[string]any
	s.Require().NoError(json.Unmarshal(body, &summaries))
	s.Require().Len(summaries, 2)

	s.Equal("Example", summaries[0]["title"])
	s.Equal(true, summaries[0]["active"])
	s.Equal(float64(2), summaries[0]["itemCount"])
	s.NotEmpty(summaries[0]["lastRefreshed"])

	s.Equal(false, summaries[1]["active"])
	s.NotContains(summaries[1], "lastRefreshed")
}

func (s *ServerSuite) TestGetFeedRendersRSS() {
	s.seedFeed(&domain.Feed{
		SourceName: "rss",
		FeedURL:    "http://example.com/feed.xml",
		Title:      "Example",
		WebsiteURL: "http://example.com",
		Items: []domain.Item{
			{GUID: "g1", Title: "An entry", ItemURL: "http://example.com/1"},
		},
	})

	resp, body := s.get("/feed/1")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("application/rss+xml", resp.Header.Get("Content-Type"))
	s.Contains(string(body), `<rss version="2.0">`)
	s.Contains(string(body), "<title>Example</title>")
	s.Contains(string(body), "<guid>g1</guid>")
}

func (s *ServerSuite) TestGetFeedUnknownID() {
	resp, _ := s.get("/feed/999")
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *ServerSuite) TestGetFeedNonNumericID() {
	resp, _ := s.get("/feed/abc")
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *ServerSuite) TestServerNeverTakesWriteLock() {
	s.seedFeed(&domain.Feed{SourceName: "rss", FeedURL: "http://example.com/feed.xml"})

	// Reads must work while a writer holds the lock.
	s.store.AcquireWriteLock()
	defer s.store.ReleaseWriteLock()

	resp, _ := s.get("/feeds")
	s.Equal(http.StatusOK, resp.StatusCode)

	resp, _ = s.get("/feed/1")
	s.Equal(http.StatusOK, resp.StatusCode)
}
