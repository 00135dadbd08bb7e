package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"feedsync/internal/domain"
)

// Source is a named capability that knows how to fetch one upstream
// feed format. Fetch mutates the passed feed in place: metadata fields
// plus Items as the raw, pre-merge entries found upstream.
type Source interface {
	Name() string
	Fetch(ctx context.Context, feed *domain.Feed) error
}

// Publisher fans out per-refresh statistics. Feed content itself is
// never pushed; consumers read it from storage.
type Publisher interface {
	PublishRefresh(ctx context.Context, stats *domain.RefreshStats) error
	Close() error
}
