// Package dummy implements a synthetic source that needs no network.
// It is used by demos and for exercising the scheduler.
package dummy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"feedsync/internal/domain"
)

const SourceName = "dummy"

// Source generates deterministic feed content. Every second fetch
// across the instance emits one new entry, so fed feeds grow slowly
// over repeated refreshes. All state is per instance.
type Source struct {
	mu          sync.Mutex
	feedURLs    []string
	updateCount int
	nextItemID  int
	now         func() time.Time
}

func New() *Source {
	return &Source{
		nextItemID: 1,
		now:        time.Now,
	}
}

func (s *Source) Name() string {
	return SourceName
}

func (s *Source) Fetch(ctx context.Context, feed *domain.Feed) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.feedIndex(feed.FeedURL)

	interval := time.Duration(3*n) * time.Second
	feed.UpdateInterval = &interval
	feed.Title = fmt.Sprintf("feed %d title", n)
	feed.Description = fmt.Sprintf("description for feed %d", n)
	feed.WebsiteURL = fmt.Sprintf("http://does.not.exist/%d/blah", n)

	feed.Items = nil
	if s.updateCount%2 == 0 {
		feed.Items = []domain.Item{s.newEntry(feed, n)}
	}
	s.updateCount++
	return nil
}

func (s *Source) newEntry(feed *domain.Feed, n int) domain.Item {
	id := s.nextItemID
	s.nextItemID++
	published := s.now()
	return domain.Item{
		FeedID:          feed.ID,
		GUID:            fmt.Sprintf("urn:feedsync:%d:%d", n, id),
		Title:           fmt.Sprintf("item %d title", id),
		Description:     fmt.Sprintf("description for item %d", id),
		ItemURL:         fmt.Sprintf("http://does.not.exist/%d/item/%d", n, id),
		PublicationDate: &published,
	}
}

// feedIndex returns the 1-based position of the URL among all URLs this
// instance has seen, registering it on first use.
func (s *Source) feedIndex(url string) int {
	for i, known := range s.feedURLs {
		if known == url {
			return i + 1
		}
	}
	s.feedURLs = append(s.feedURLs, url)
	return len(s.feedURLs)
}
