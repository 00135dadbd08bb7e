// Package rss implements a syndication source on top of gofeed, which
// handles RSS 1.0/2.0 and Atom transparently.
package rss

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"feedsync/internal/domain"
)

const SourceName = "rss"

// Config holds RSS source configuration.
type Config struct {
	// Timeout bounds a single fetch-and-parse round trip.
	Timeout time.Duration
	// DefaultInterval is applied to feeds that have no update interval
	// yet. An interval already present on the feed is never overridden.
	DefaultInterval time.Duration
	UserAgent       string
}

type Source struct {
	parser          *gofeed.Parser
	defaultInterval time.Duration
	logger          *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Source {
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: cfg.Timeout}
	if cfg.UserAgent != "" {
		parser.UserAgent = cfg.UserAgent
	}
	return &Source{
		parser:          parser,
		defaultInterval: cfg.DefaultInterval,
		logger:          logger.With("source", SourceName),
	}
}

func (s *Source) Name() string {
	return SourceName
}

// Fetch reads the feed's upstream URL and fills the passed feed with
// the parsed metadata and the raw, pre-merge item entries.
func (s *Source) Fetch(ctx context.Context, feed *domain.Feed) error {
	parsed, err := s.parser.ParseURLWithContext(feed.FeedURL, ctx)
	if err != nil {
		return fmt.Errorf("parse %s: %w", feed.FeedURL, err)
	}

	feed.Title = parsed.Title
	if parsed.Description != "" {
		feed.Description = parsed.Description
	}
	feed.WebsiteURL = parsed.Link
	if feed.UpdateInterval == nil {
		interval := s.defaultInterval
		feed.UpdateInterval = &interval
	}
	if t := pickTime(parsed.UpdatedParsed, parsed.PublishedParsed); t != nil {
		feed.LastChanged = t
	}

	items := make([]domain.Item, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		items = append(items, domain.Item{
			FeedID:          feed.ID,
			GUID:            entry.GUID,
			Title:           entry.Title,
			Description:     entry.Description,
			ItemURL:         entry.Link,
			PublicationDate: pickTime(entry.UpdatedParsed, entry.PublishedParsed),
		})
	}
	feed.Items = items

	s.logger.Debug("fetched feed",
		"url", feed.FeedURL,
		"title", feed.Title,
		"entries", len(items),
	)
	return nil
}

// pickTime prefers the updated timestamp over the published one and
// returns an independent copy.
func pickTime(candidates ...*time.Time) *time.Time {
	for _, t := range candidates {
		if t != nil {
			cp := *t
			return &cp
		}
	}
	return nil
}
