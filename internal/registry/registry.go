// Package registry reconciles the configured feed-spec list against
// the feeds already in storage.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"feedsync/internal/domain"
	"feedsync/internal/storage"
)

// FeedSpec names one desired active feed: which source reads it and
// from where.
type FeedSpec struct {
	SourceName string
	FeedURL    string
}

// Config holds the intervals applied when a feed enters the active set.
type Config struct {
	// NewFeedInterval is given to feeds created for a spec never seen
	// before.
	NewFeedInterval time.Duration
	// ReactivateInterval is given to known but deactivated feeds whose
	// spec reappeared.
	ReactivateInterval time.Duration
}

// Reconcile diffs the desired specs against stored feeds and writes the
// differences back: known active feeds keep their interval, withdrawn
// feeds are deactivated by clearing it (the record is never deleted),
// reappearing feeds are reactivated, and unseen specs become new feeds.
// The scheduler picks the result up on its next storage read.
func Reconcile(ctx context.Context, st storage.Storage, specs []FeedSpec, cfg Config, logger *slog.Logger) error {
	stored, err := st.GetFeeds(ctx)
	if err != nil {
		return fmt.Errorf("read feeds: %w", err)
	}

	desired := make(map[FeedSpec]bool, len(specs))
	for _, spec := range specs {
		desired[spec] = true
	}

	handled := make(map[FeedSpec]bool, len(stored))
	for i := range stored {
		feed := &stored[i]
		spec := FeedSpec{SourceName: feed.SourceName, FeedURL: feed.FeedURL}
		handled[spec] = true

		switch {
		case desired[spec] && feed.Active():
			logger.Debug("keeping feed active", "source", spec.SourceName, "url", spec.FeedURL)
			continue
		case desired[spec]:
			logger.Debug("reactivating feed", "source", spec.SourceName, "url", spec.FeedURL)
			interval := cfg.ReactivateInterval
			feed.UpdateInterval = &interval
		case feed.Active():
			logger.Debug("deactivating feed", "source", spec.SourceName, "url", spec.FeedURL)
			feed.UpdateInterval = nil
		default:
			logger.Debug("keeping feed inactive", "source", spec.SourceName, "url", spec.FeedURL)
			continue
		}

		if err := putFeed(ctx, st, feed); err != nil {
			return err
		}
	}

	for _, spec := range specs {
		if handled[spec] {
			continue
		}
		handled[spec] = true
		logger.Info("registering new feed", "source", spec.SourceName, "url", spec.FeedURL)
		interval := cfg.NewFeedInterval
		feed := &domain.Feed{
			SourceName:     spec.SourceName,
			FeedURL:        spec.FeedURL,
			UpdateInterval: &interval,
		}
		if err := putFeed(ctx, st, feed); err != nil {
			return err
		}
	}

	return nil
}

func putFeed(ctx context.Context, st storage.Storage, feed *domain.Feed) error {
	st.AcquireWriteLock()
	defer st.ReleaseWriteLock()
	if err := st.PutFeed(ctx, feed); err != nil {
		return fmt.Errorf("store feed %s %s: %w", feed.SourceName, feed.FeedURL, err)
	}
	return nil
}
