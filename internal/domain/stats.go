package domain

import "time"

// RefreshStats holds statistics about a single feed refresh.
type RefreshStats struct {
	FeedID      int64
	SourceName  string
	Fetched     int
	New         int
	Updated     int
	RefreshedAt time.Time
	Duration    time.Duration

	// UpdateInterval is the feed's interval after the refresh; the
	// fetch may have changed it. Nil means the refresh left the feed
	// inactive.
	UpdateInterval *time.Duration
}
