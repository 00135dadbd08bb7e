// Package merge reconciles freshly fetched feed entries against the
// previously stored item list without losing item identity.
package merge

import (
	"time"

	"feedsync/internal/domain"
)

// Item merges one fetched entry into the stored item list and reports
// whether an existing item was updated in place.
//
// Matching scans items in stored order and accepts the first hit. An
// entry that carries a guid is decided by guid alone: it either replaces
// the item with the same guid or is appended, it never falls back to URL
// matching. A guid-less entry matches on itemURL. An entry with neither
// can never match and is always appended; repeated fetches of such
// entries produce duplicates, which is accepted rather than guessed
// around.
//
// A replaced item keeps its ID and FeedID. An appended entry has its ID
// cleared so storage assigns one on persistence.
func Item(items []domain.Item, fresh domain.Item) ([]domain.Item, bool) {
	if fresh.GUID != "" {
		for i := range items {
			if items[i].GUID == fresh.GUID {
				replaceInPlace(&items[i], fresh)
				return items, true
			}
		}
		return appendNew(items, fresh), false
	}

	if fresh.ItemURL != "" {
		for i := range items {
			if items[i].ItemURL == fresh.ItemURL {
				replaceInPlace(&items[i], fresh)
				return items, true
			}
		}
	}

	return appendNew(items, fresh), false
}

func replaceInPlace(existing *domain.Item, fresh domain.Item) {
	existing.GUID = fresh.GUID
	existing.Title = fresh.Title
	existing.Description = fresh.Description
	existing.ItemURL = fresh.ItemURL
	existing.PublicationDate = fresh.PublicationDate
}

func appendNew(items []domain.Item, fresh domain.Item) []domain.Item {
	fresh.ID = 0
	return append(items, fresh)
}

// RecomputeLastChanged derives the feed's lastChanged timestamp after a
// refresh. With more than one item it is the maximum publication date
// across all items; absent dates never contribute. With zero or one
// items a previously absent lastChanged falls back to lastRefreshed.
func RecomputeLastChanged(feed *domain.Feed) {
	if len(feed.Items) > 1 {
		var max *time.Time
		for i := range feed.Items {
			d := feed.Items[i].PublicationDate
			if d == nil {
				continue
			}
			if max == nil || d.After(*max) {
				max = d
			}
		}
		if max != nil {
			cp := *max
			feed.LastChanged = &cp
		}
		return
	}

	if feed.LastChanged == nil && feed.LastRefreshed != nil {
		cp := *feed.LastRefreshed
		feed.LastChanged = &cp
	}
}
