// Package scheduler drives the periodic refresh of all active feeds.
package scheduler

//go:generate mockgen -source=scheduler.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"feedsync/internal/domain"
	"feedsync/internal/service"
)

// Refresher refreshes a single feed from its upstream source.
type Refresher interface {
	RefreshFeed(ctx context.Context, feed *domain.Feed) (*domain.RefreshStats, error)
}

// FeedReader is the storage read side the scheduler polls for due-ness.
type FeedReader interface {
	GetFeeds(ctx context.Context) ([]domain.Feed, error)
}

// Scheduler repeatedly reads all feeds, refreshes the ones whose next
// update time has arrived, and sleeps until the earliest next due time.
// Feeds are processed one at a time in storage order.
type Scheduler struct {
	feeds     FeedReader
	refresher Refresher
	logger    *slog.Logger

	// maxIterations stops the loop after that many cycles; 0 means
	// run until no active feeds remain or the context is cancelled.
	maxIterations int
	now           func() time.Time
}

type Option func(*Scheduler)

// WithMaxIterations caps the number of scheduling cycles.
func WithMaxIterations(n int) Option {
	return func(s *Scheduler) { s.maxIterations = n }
}

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func New(feeds FeedReader, refresher Refresher, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		feeds:     feeds,
		refresher: refresher,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes scheduling cycles until the context is cancelled, the
// iteration cap is reached, or no active feed is left to schedule.
// Configuration errors (a feed naming an unregistered source) abort the
// loop; fetch failures are logged and the feed retried when the loop
// next wakes.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started")

	for iteration := 0; s.maxIterations == 0 || iteration < s.maxIterations; iteration++ {
		wait, active, err := s.checkAll(ctx)
		if err != nil {
			return err
		}
		if !active {
			s.logger.Info("no active feeds, scheduler exiting")
			return nil
		}

		s.logger.Debug("scheduler waiting", "wait", wait)
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	s.logger.Info("iteration cap reached, scheduler exiting")
	return nil
}

// checkAll performs one cycle and returns how long to sleep before the
// next one. A refreshed feed contributes its post-refresh interval
// (the fetch may have changed it), a pending feed its remaining delta;
// inactive feeds contribute nothing. The second return value is false
// when no feed contributed at all.
func (s *Scheduler) checkAll(ctx context.Context) (time.Duration, bool, error) {
	feeds, err := s.feeds.GetFeeds(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("read feeds: %w", err)
	}

	now := s.now()
	var wait time.Duration
	contributed := false

	for i := range feeds {
		feed := &feeds[i]
		if !feed.Active() {
			continue
		}
		interval := *feed.UpdateInterval

		// A feed that was never refreshed is due immediately.
		var delta time.Duration
		if feed.LastRefreshed != nil {
			delta = feed.LastRefreshed.Add(interval).Sub(now)
		}

		if delta <= 0 {
			select {
			case <-ctx.Done():
				return 0, false, ctx.Err()
			default:
			}
			stats, refreshErr := s.refreshFeed(ctx, feed)
			if refreshErr != nil {
				return 0, false, refreshErr
			}
			switch {
			case stats == nil:
				// Contained failure, retry one previous interval later.
				delta = interval
			case stats.UpdateInterval == nil:
				// The refresh deactivated the feed.
				continue
			default:
				delta = *stats.UpdateInterval
			}
		}

		if !contributed || delta < wait {
			wait = delta
		}
		contributed = true
	}

	return wait, contributed, nil
}

// refreshFeed dispatches one refresh. Nil stats with nil error marks a
// contained failure: the feed keeps its old lastRefreshed and the
// caller schedules the retry.
func (s *Scheduler) refreshFeed(ctx context.Context, feed *domain.Feed) (*domain.RefreshStats, error) {
	stats, err := s.refresher.RefreshFeed(ctx, feed)
	if err == nil {
		return stats, nil
	}
	if errors.Is(err, service.ErrUnknownSource) {
		s.logger.Error("feed references unregistered source",
			"feed_id", feed.ID,
			"source", feed.SourceName,
		)
		return nil, err
	}
	s.logger.Error("refresh failed", "feed_id", feed.ID, "error", err)
	return nil, nil
}
