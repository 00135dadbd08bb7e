package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"feedsync/internal/domain"
	"feedsync/internal/merge"
	"feedsync/internal/storage"
)

// ErrUnknownSource means a feed references a source name nobody
// registered. That is a configuration mistake, not a runtime condition,
// and callers should treat it as fatal.
var ErrUnknownSource = errors.New("no source registered")

// RefreshService performs a single feed refresh: dispatch to the
// matching source, merge the fetched entries against the stored items,
// and write the result back under the storage write lock.
type RefreshService struct {
	sources   map[string]Source
	storage   storage.Storage
	publisher Publisher // nil disables publishing
	logger    *slog.Logger
	now       func() time.Time
}

func NewRefreshService(sources []Source, st storage.Storage, publisher Publisher, logger *slog.Logger) *RefreshService {
	registry := make(map[string]Source, len(sources))
	for _, src := range sources {
		registry[src.Name()] = src
	}
	return &RefreshService{
		sources:   registry,
		storage:   st,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// RefreshFeed refreshes one feed. The passed feed is not modified; the
// updated state is persisted and picked up by the caller on its next
// storage read.
func (s *RefreshService) RefreshFeed(ctx context.Context, feed *domain.Feed) (*domain.RefreshStats, error) {
	start := s.now()

	src, ok := s.sources[feed.SourceName]
	if !ok {
		return nil, fmt.Errorf("%w: %q (feed %d)", ErrUnknownSource, feed.SourceName, feed.ID)
	}

	working := feed.Clone()
	working.Items = nil
	if err := src.Fetch(ctx, working); err != nil {
		return nil, fmt.Errorf("fetch feed %d: %w", feed.ID, err)
	}
	fetched := working.Items

	stats := &domain.RefreshStats{
		FeedID:     feed.ID,
		SourceName: feed.SourceName,
		Fetched:    len(fetched),
	}

	items := feed.Clone().Items
	for _, entry := range fetched {
		entry.FeedID = feed.ID
		var updated bool
		items, updated = merge.Item(items, entry)
		if updated {
			stats.Updated++
		} else {
			stats.New++
		}
	}
	working.Items = items

	refreshedAt := s.now()
	working.LastRefreshed = &refreshedAt
	merge.RecomputeLastChanged(working)

	s.storage.AcquireWriteLock()
	err := s.storage.PutFeed(ctx, working)
	s.storage.ReleaseWriteLock()
	if err != nil {
		return nil, fmt.Errorf("store feed %d: %w", feed.ID, err)
	}

	stats.RefreshedAt = refreshedAt
	stats.Duration = s.now().Sub(start)
	if working.UpdateInterval != nil {
		interval := *working.UpdateInterval
		stats.UpdateInterval = &interval
	}

	if s.publisher != nil {
		if err := s.publisher.PublishRefresh(ctx, stats); err != nil {
			s.logger.Warn("publish refresh failed", "feed_id", feed.ID, "error", err)
		}
	}

	s.logger.Info("feed refreshed",
		"feed_id", feed.ID,
		"source", feed.SourceName,
		"fetched", stats.Fetched,
		"new", stats.New,
		"updated", stats.Updated,
		"duration", stats.Duration,
	)
	return stats, nil
}
