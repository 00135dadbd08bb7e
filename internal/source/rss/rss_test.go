package rss_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedsync/internal/domain"
	"feedsync/internal/source/rss"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example Feed</title>
    <link>http://example.com</link>
    <description>An example feed</description>
    <pubDate>Wed, 01 May 2024 10:00:00 +0000</pubDate>
    <item>
      <guid>urn:example:1</guid>
      <title>First entry</title>
      <link>http://example.com/1</link>
      <description>Body one</description>
      <pubDate>Tue, 30 Apr 2024 08:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Dateless, guidless entry</title>
      <link>http://example.com/2</link>
    </item>
  </channel>
</rss>`

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serveXML(t *testing.T, body string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestFetch(t *testing.T) {
	ts := serveXML(t, sampleRSS)

	src := rss.New(rss.Config{
		Timeout:         5 * time.Second,
		DefaultInterval: 45 * time.Minute,
	}, discard())
	require.Equal(t, "rss", src.Name())

	feed := &domain.Feed{ID: 7, SourceName: "rss", FeedURL: ts.URL}
	require.NoError(t, src.Fetch(context.Background(), feed))

	assert.Equal(t, "Example Feed", feed.Title)
	assert.Equal(t, "An example feed", feed.Description)
	assert.Equal(t, "http://example.com", feed.WebsiteURL)

	require.NotNil(t, feed.UpdateInterval)
	assert.Equal(t, 45*time.Minute, *feed.UpdateInterval)

	require.NotNil(t, feed.LastChanged)
	assert.True(t, feed.LastChanged.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))

	require.Len(t, feed.Items, 2)
	first := feed.Items[0]
	assert.Equal(t, int64(7), first.FeedID)
	assert.Equal(t, "urn:example:1", first.GUID)
	assert.Equal(t, "First entry", first.Title)
	assert.Equal(t, "http://example.com/1", first.ItemURL)
	require.NotNil(t, first.PublicationDate)
	assert.True(t, first.PublicationDate.Equal(time.Date(2024, 4, 30, 8, 0, 0, 0, time.UTC)))

	second := feed.Items[1]
	assert.Empty(t, second.GUID)
	assert.Nil(t, second.PublicationDate)
}

func TestFetchKeepsExistingInterval(t *testing.T) {
	ts := serveXML(t, sampleRSS)

	src := rss.New(rss.Config{DefaultInterval: 45 * time.Minute}, discard())

	existing := 10 * time.Minute
	feed := &domain.Feed{FeedURL: ts.URL, UpdateInterval: &existing}
	require.NoError(t, src.Fetch(context.Background(), feed))

	require.NotNil(t, feed.UpdateInterval)
	assert.Equal(t, existing, *feed.UpdateInterval)
}

func TestFetchUpstreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusInternalServerError)
	}))
	defer ts.Close()

	src := rss.New(rss.Config{}, discard())
	feed := &domain.Feed{FeedURL: ts.URL}

	err := src.Fetch(context.Background(), feed)
	assert.Error(t, err)
}

func TestFetchMalformedDocument(t *testing.T) {
	ts := serveXML(t, "this is not xml")

	src := rss.New(rss.Config{}, discard())
	feed := &domain.Feed{FeedURL: ts.URL}

	err := src.Fetch(context.Background(), feed)
	assert.Error(t, err)
}
