package render_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedsync/internal/domain"
	"feedsync/internal/render"
)

func TestFeed(t *testing.T) {
	refreshed := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	published := time.Date(2024, 4, 30, 8, 0, 0, 0, time.UTC)

	feed := &domain.Feed{
		ID:            1,
		Title:         "Example Feed",
		Description:   "An example",
		WebsiteURL:    "http://example.com",
		LastRefreshed: &refreshed,
		Items: []domain.Item{
			{
				GUID:            "g1",
				Title:           "First <entry>",
				Description:     "Body text",
				ItemURL:         "http://example.com/1",
				PublicationDate: &published,
			},
			{
				Title: "Dateless entry",
			},
		},
	}

	out, err := render.Feed(feed)
	require.NoError(t, err)

	body := string(out)
	assert.Contains(t, body, `<?xml version="1.0" encoding="UTF-8"?>`)
	assert.Contains(t, body, `<rss version="2.0">`)
	assert.Contains(t, body, "<title>Example Feed</title>")
	assert.Contains(t, body, "<link>http://example.com</link>")
	assert.Contains(t, body, "<lastBuildDate>Wed, 01 May 2024 10:30:00 +0000</lastBuildDate>")
	assert.Contains(t, body, "<guid>g1</guid>")
	assert.Contains(t, body, "<pubDate>Tue, 30 Apr 2024 08:00:00 +0000</pubDate>")
	assert.Contains(t, body, "<title>First &lt;entry&gt;</title>", "markup in titles must be escaped")
	assert.Contains(t, body, "<title>Dateless entry</title>")
	assert.NotContains(t, body, "<pubDate></pubDate>", "absent dates render no element at all")
}

func TestFeedWithoutItems(t *testing.T) {
	feed := &domain.Feed{Title: "Empty"}

	out, err := render.Feed(feed)
	require.NoError(t, err)

	body := string(out)
	assert.Contains(t, body, "<title>Empty</title>")
	assert.NotContains(t, body, "<item>")
	assert.NotContains(t, body, "<lastBuildDate>")
}
