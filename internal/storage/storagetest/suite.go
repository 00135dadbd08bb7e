// Package storagetest holds the contract suite every storage
// implementation must pass.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"feedsync/internal/domain"
	"feedsync/internal/storage"
)

// Suite exercises the storage contract. Implementation test packages
// embed it and provide a Factory; EnforceWriteLock should be true for
// durable backends that reject unlocked mutation.
type Suite struct {
	suite.Suite

	Factory          func(t *testing.T) storage.Storage
	EnforceWriteLock bool

	ctx   context.Context
	store storage.Storage
}

func (s *Suite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.Factory(s.T())
}

func (s *Suite) TearDownTest() {
	s.NoError(s.store.Close())
}

func (s *Suite) TestEmptyStorage() {
	feeds, err := s.store.GetFeeds(s.ctx)
	s.NoError(err)
	s.Empty(feeds)

	feed, err := s.store.GetFeedByID(s.ctx, 1)
	s.NoError(err)
	s.Nil(feed)

	items, err := s.store.GetItemsByFeedID(s.ctx, 1)
	s.NoError(err)
	s.Empty(items)
}

func (s *Suite) TestPutFeedIsolation() {
	feed := &domain.Feed{
		ID:         123,
		SourceName: "test",
		FeedURL:    "uri://test",
		Title:      "original feed title",
		Items: []domain.Item{
			{ID: 456, FeedID: 123, Title: "original item title"},
		},
	}

	s.putFeed(feed)

	// Mutating the caller's objects must not leak into storage.
	feed.Title = "lalala"
	feed.Items[0].Title = "meh"
	feed.Items = append(feed.Items, domain.Item{Title: "sneaky"})

	stored, err := s.store.GetFeedByID(s.ctx, 123)
	s.Require().NoError(err)
	s.Require().NotNil(stored)
	s.Equal(int64(123), stored.ID)
	s.Equal("original feed title", stored.Title)
	s.Require().Len(stored.Items, 1)
	s.Equal(int64(456), stored.Items[0].ID)
	s.Equal("original item title", stored.Items[0].Title)
}

func (s *Suite) TestPutFeedAssignsIDs() {
	feed := &domain.Feed{
		SourceName: "test",
		FeedURL:    "uri://test",
		Items: []domain.Item{
			{Title: "item 1"},
			{Title: "item 2"},
		},
	}

	s.putFeed(feed)

	// IDs are written back into the caller's value.
	s.NotZero(feed.ID)
	s.NotZero(feed.Items[0].ID)
	s.NotZero(feed.Items[1].ID)
	s.NotEqual(feed.Items[0].ID, feed.Items[1].ID)
	s.Equal(feed.ID, feed.Items[0].FeedID)
	s.Equal(feed.ID, feed.Items[1].FeedID)

	stored, err := s.store.GetFeedByID(s.ctx, feed.ID)
	s.Require().NoError(err)
	s.Require().NotNil(stored)
	s.Len(stored.Items, 2)
}

func (s *Suite) TestPutFeedUpsertIdempotent() {
	feed := &domain.Feed{
		SourceName: "test",
		FeedURL:    "uri://test",
		Title:      "a feed",
		Items: []domain.Item{
			{Title: "item 1"},
		},
	}

	s.putFeed(feed)
	itemID := feed.Items[0].ID
	s.putFeed(feed)

	feeds, err := s.store.GetFeeds(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(feeds, 1)
	s.Require().Len(feeds[0].Items, 1)
	s.Equal(itemID, feeds[0].Items[0].ID)
}

func (s *Suite) TestPutFeedReplacesContent() {
	feed := &domain.Feed{
		SourceName: "test",
		FeedURL:    "uri://test",
		Title:      "before",
	}
	s.putFeed(feed)

	feed.Title = "after"
	s.putFeed(feed)

	stored, err := s.store.GetFeedByID(s.ctx, feed.ID)
	s.Require().NoError(err)
	s.Require().NotNil(stored)
	s.Equal("after", stored.Title)
}

func (s *Suite) TestPutItem() {
	feed := &domain.Feed{
		ID:         9,
		SourceName: "test",
		FeedURL:    "uri://test",
		Items: []domain.Item{
			{ID: 11, FeedID: 9},
		},
	}
	s.putFeed(feed)

	item := &domain.Item{ID: 12, FeedID: 9}
	s.putItem(item)

	stored, err := s.store.GetFeedByID(s.ctx, 9)
	s.Require().NoError(err)
	s.Require().NotNil(stored)
	s.Require().Len(stored.Items, 2)
	s.Equal(int64(11), stored.Items[0].ID)
	s.Equal(int64(12), stored.Items[1].ID)
}

func (s *Suite) TestPutItemOrphanIsNoop() {
	item := &domain.Item{FeedID: 42, Title: "nobody's item"}
	s.putItem(item)

	feeds, err := s.store.GetFeeds(s.ctx)
	s.NoError(err)
	s.Empty(feeds)
}

func (s *Suite) TestFieldsRoundTrip() {
	interval := 12*time.Minute + 37*time.Second
	lastRefreshed := time.Date(2018, 10, 6, 16, 17, 18, 192021000, time.UTC)
	lastChanged := time.Date(2017, 6, 15, 14, 13, 12, 111009000, time.FixedZone("", 4*3600+30*60))
	published := time.Date(2016, 1, 2, 3, 4, 5, 60708000, time.UTC)

	feed := &domain.Feed{
		SourceName:     "test",
		FeedURL:        "uri://bleh",
		UpdateInterval: &interval,
		Title:          "a title",
		Description:    "a description",
		WebsiteURL:     "http://web",
		LastRefreshed:  &lastRefreshed,
		LastChanged:    &lastChanged,
		Items: []domain.Item{
			{
				GUID:            "g1",
				Title:           "item",
				Description:     "item description",
				ItemURL:         "http://web/item",
				PublicationDate: &published,
			},
		},
	}
	s.putFeed(feed)

	stored, err := s.store.GetFeedByID(s.ctx, feed.ID)
	s.Require().NoError(err)
	s.Require().NotNil(stored)

	s.Require().NotNil(stored.UpdateInterval)
	s.Equal(interval, *stored.UpdateInterval)
	s.Require().NotNil(stored.LastRefreshed)
	s.True(stored.LastRefreshed.Equal(lastRefreshed))
	s.Require().NotNil(stored.LastChanged)
	s.True(stored.LastChanged.Equal(lastChanged))

	s.Require().Len(stored.Items, 1)
	s.Equal("g1", stored.Items[0].GUID)
	s.Require().NotNil(stored.Items[0].PublicationDate)
	s.True(stored.Items[0].PublicationDate.Equal(published))
}

func (s *Suite) TestInactiveFeedRoundTrip() {
	feed := &domain.Feed{SourceName: "test", FeedURL: "uri://inactive"}
	s.putFeed(feed)

	stored, err := s.store.GetFeedByID(s.ctx, feed.ID)
	s.Require().NoError(err)
	s.Require().NotNil(stored)
	s.Nil(stored.UpdateInterval)
	s.Nil(stored.LastRefreshed)
	s.Nil(stored.LastChanged)
	s.False(stored.Active())
}

func (s *Suite) TestWriteLockRequired() {
	if !s.EnforceWriteLock {
		s.T().Skip("backend does not enforce the write lock precondition")
	}

	feed := &domain.Feed{SourceName: "test", FeedURL: "uri://test"}
	err := s.store.PutFeed(s.ctx, feed)
	s.ErrorIs(err, storage.ErrWriteLockRequired)

	item := &domain.Item{FeedID: 1}
	err = s.store.PutItem(s.ctx, item)
	s.ErrorIs(err, storage.ErrWriteLockRequired)
}

func (s *Suite) TestIsWriteLocked() {
	s.False(s.store.IsWriteLocked())
	s.store.AcquireWriteLock()
	s.True(s.store.IsWriteLocked())
	s.store.ReleaseWriteLock()
	s.False(s.store.IsWriteLocked())
}

func (s *Suite) TestWriteLockSerialization() {
	data := []*domain.Feed{
		{Title: "feed 1", SourceName: "test", FeedURL: "1"},
		{Title: "feed 2", SourceName: "test", FeedURL: "2"},
		{Title: "feed 3", SourceName: "test", FeedURL: "3"},
	}

	done := make(chan struct{})
	timer := time.AfterFunc(100*time.Millisecond, func() {
		defer close(done)
		s.store.AcquireWriteLock()
		defer s.store.ReleaseWriteLock()
		s.NoError(s.store.PutFeed(s.ctx, data[2]))
	})
	defer timer.Stop()

	s.store.AcquireWriteLock()
	s.NoError(s.store.PutFeed(s.ctx, data[0]))

	// The timer fires during this sleep; if locking works it has to
	// wait until our release below before inserting its feed.
	time.Sleep(300 * time.Millisecond)

	s.NoError(s.store.PutFeed(s.ctx, data[1]))
	s.store.ReleaseWriteLock()

	<-done

	feeds, err := s.store.GetFeeds(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(feeds, 3)
	s.Equal("feed 1", feeds[0].Title)
	s.Equal("feed 2", feeds[1].Title, "held lock should have kept this in second place")
	s.Equal("feed 3", feeds[2].Title, "delayed writer should have appended last")
}

func (s *Suite) putFeed(feed *domain.Feed) {
	s.T().Helper()
	s.store.AcquireWriteLock()
	defer s.store.ReleaseWriteLock()
	s.Require().NoError(s.store.PutFeed(s.ctx, feed))
}

func (s *Suite) putItem(item *domain.Item) {
	s.T().Helper()
	s.store.AcquireWriteLock()
	defer s.store.ReleaseWriteLock()
	s.Require().NoError(s.store.PutItem(s.ctx, item))
}
