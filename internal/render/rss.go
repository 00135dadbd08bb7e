// Package render turns stored feeds back into RSS 2.0 XML.
package render

import (
	"encoding/xml"
	"fmt"
	"time"

	"feedsync/internal/domain"
)

type rss struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	Channel channel  `xml:"channel"`
}

type channel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	LastBuildDate string    `xml:"lastBuildDate,omitempty"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title,omitempty"`
	Link        string `xml:"link,omitempty"`
	Description string `xml:"description,omitempty"`
	GUID        string `xml:"guid,omitempty"`
	PubDate     string `xml:"pubDate,omitempty"`
}

// Feed renders the feed and its items as an RSS 2.0 document.
func Feed(feed *domain.Feed) ([]byte, error) {
	doc := rss{
		Version: "2.0",
		Channel: channel{
			Title:         feed.Title,
			Link:          feed.WebsiteURL,
			Description:   feed.Description,
			LastBuildDate: formatTime(feed.LastRefreshed),
		},
	}
	for i := range feed.Items {
		item := &feed.Items[i]
		doc.Channel.Items = append(doc.Channel.Items, rssItem{
			Title:       item.Title,
			Link:        item.ItemURL,
			Description: item.Description,
			GUID:        item.GUID,
			PubDate:     formatTime(item.PublicationDate),
		})
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal rss: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC1123Z)
}
