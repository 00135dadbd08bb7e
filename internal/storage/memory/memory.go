// Package memory provides a volatile in-process storage implementation.
package memory

import (
	"context"
	"sync"

	"feedsync/internal/domain"
	"feedsync/internal/storage"
)

// Store keeps all feeds in process memory, in insertion order.
//
// Unlike the durable implementations, Store does not fail mutating
// calls made without the write lock; an internal mutex keeps the data
// consistent either way. Callers must still take the write lock, the
// leniency is not part of the contract.
type Store struct {
	writeLock storage.WriteLock

	mu         sync.RWMutex
	feeds      []*domain.Feed
	nextFeedID int64
	nextItemID int64
}

var _ storage.Storage = (*Store)(nil)

func New() *Store {
	return &Store{
		nextFeedID: 1,
		nextItemID: 1,
	}
}

func (s *Store) GetFeeds(ctx context.Context) ([]domain.Feed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	feeds := make([]domain.Feed, 0, len(s.feeds))
	for _, f := range s.feeds {
		feeds = append(feeds, *f.Clone())
	}
	return feeds, nil
}

func (s *Store) GetFeedByID(ctx context.Context, id int64) (*domain.Feed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if f := s.findFeed(id); f != nil {
		return f.Clone(), nil
	}
	return nil, nil
}

func (s *Store) GetItemsByFeedID(ctx context.Context, feedID int64) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f := s.findFeed(feedID)
	if f == nil {
		return []domain.Item{}, nil
	}
	items := make([]domain.Item, 0, len(f.Items))
	for i := range f.Items {
		items = append(items, *f.Items[i].Clone())
	}
	return items, nil
}

func (s *Store) PutFeed(ctx context.Context, feed *domain.Feed) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if feed.ID == 0 {
		feed.ID = s.nextFeedID
		s.nextFeedID++
	} else if feed.ID >= s.nextFeedID {
		s.nextFeedID = feed.ID + 1
	}

	for i := range feed.Items {
		item := &feed.Items[i]
		item.FeedID = feed.ID
		s.assignItemID(item)
	}

	cp := feed.Clone()
	for i, existing := range s.feeds {
		if existing.ID == cp.ID {
			s.feeds[i] = cp
			return nil
		}
	}
	s.feeds = append(s.feeds, cp)
	return nil
}

func (s *Store) PutItem(ctx context.Context, item *domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.findFeed(item.FeedID)
	if f == nil {
		// Orphaned item, soft no-op per contract.
		return nil
	}

	s.assignItemID(item)
	cp := item.Clone()
	for i := range f.Items {
		if f.Items[i].ID == cp.ID {
			f.Items[i] = *cp
			return nil
		}
	}
	f.Items = append(f.Items, *cp)
	return nil
}

func (s *Store) AcquireWriteLock() { s.writeLock.Acquire() }

func (s *Store) ReleaseWriteLock() { s.writeLock.Release() }

func (s *Store) IsWriteLocked() bool { return s.writeLock.IsLocked() }

func (s *Store) Close() error { return nil }

// findFeed assumes s.mu is held.
func (s *Store) findFeed(id int64) *domain.Feed {
	for _, f := range s.feeds {
		if f.ID == id {
			return f
		}
	}
	return nil
}

// assignItemID assumes s.mu is held.
func (s *Store) assignItemID(item *domain.Item) {
	if item.ID == 0 {
		item.ID = s.nextItemID
		s.nextItemID++
	} else if item.ID >= s.nextItemID {
		s.nextItemID = item.ID + 1
	}
}
