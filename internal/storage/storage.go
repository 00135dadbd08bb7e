// Package storage defines the persistence contract for feeds and items.
//
// Every implementation returns independent deep copies from its read
// methods: mutating a returned feed or item never affects stored state.
// All mutation happens through PutFeed/PutItem while holding the
// storage's single write lock. Durable implementations enforce the lock
// as a precondition; the in-memory implementation does not, and callers
// must not rely on that.
package storage

import (
	"context"
	"errors"

	"feedsync/internal/domain"
)

// ErrWriteLockRequired is returned by durable implementations when a
// mutating call is made without holding the write lock. It signals a
// bug at the call site, not a runtime condition.
var ErrWriteLockRequired = errors.New("storage: write lock not held")

type Storage interface {
	// GetFeeds returns a deep copy of every stored feed, including
	// items, in storage order.
	GetFeeds(ctx context.Context) ([]domain.Feed, error)

	// GetFeedByID returns a deep copy of the feed with the given ID,
	// or nil if no such feed exists.
	GetFeedByID(ctx context.Context, id int64) (*domain.Feed, error)

	// GetItemsByFeedID returns copies of the feed's items. Unknown
	// feed IDs yield an empty slice, not an error.
	GetItemsByFeedID(ctx context.Context, feedID int64) ([]domain.Item, error)

	// PutFeed upserts the feed by ID. A zero ID gets a fresh one
	// assigned and written back into the caller's value, as do the IDs
	// of any attached items. The stored record is a copy; later
	// mutation of the argument does not affect it.
	PutFeed(ctx context.Context, feed *domain.Feed) error

	// PutItem upserts a single item into the feed referenced by its
	// FeedID. If that feed is unknown the item is silently discarded.
	PutItem(ctx context.Context, item *domain.Item) error

	// AcquireWriteLock blocks until the caller holds the storage-wide
	// write lock. At most one holder at a time.
	AcquireWriteLock()

	// ReleaseWriteLock releases the write lock.
	ReleaseWriteLock()

	// IsWriteLocked reports, without blocking, whether the write lock
	// is currently held.
	IsWriteLocked() bool

	Close() error
}
