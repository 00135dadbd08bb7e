package domain

import "time"

// Feed is a named, polled upstream source and its accumulated items.
//
// An ID of 0 means the feed has not been persisted yet; storage assigns
// one on the first PutFeed. A nil UpdateInterval marks the feed inactive:
// it is kept forever but never scheduled.
type Feed struct {
	ID             int64
	SourceName     string
	FeedURL        string
	UpdateInterval *time.Duration

	Title       string
	Description string
	WebsiteURL  string

	LastRefreshed *time.Time
	LastChanged   *time.Time

	Items []Item
}

// Item is a single entry belonging to a feed. GUID and ItemURL are
// optional upstream identifiers; empty means absent.
type Item struct {
	ID              int64
	FeedID          int64
	GUID            string
	Title           string
	Description     string
	ItemURL         string
	PublicationDate *time.Time
}

// Clone returns an independent deep copy of the feed including its items.
func (f *Feed) Clone() *Feed {
	cp := *f
	cp.UpdateInterval = cloneDuration(f.UpdateInterval)
	cp.LastRefreshed = cloneTime(f.LastRefreshed)
	cp.LastChanged = cloneTime(f.LastChanged)
	if f.Items != nil {
		cp.Items = make([]Item, len(f.Items))
		for i := range f.Items {
			cp.Items[i] = *f.Items[i].Clone()
		}
	}
	return &cp
}

// Clone returns an independent copy of the item.
func (i *Item) Clone() *Item {
	cp := *i
	cp.PublicationDate = cloneTime(i.PublicationDate)
	return &cp
}

// Active reports whether the feed is eligible for scheduling.
func (f *Feed) Active() bool {
	return f.UpdateInterval != nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func cloneDuration(d *time.Duration) *time.Duration {
	if d == nil {
		return nil
	}
	cp := *d
	return &cp
}
