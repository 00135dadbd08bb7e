// Package server exposes stored feeds over HTTP. It only ever reads
// from storage and never takes the write lock.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"feedsync/internal/render"
	"feedsync/internal/storage"
)

type Server struct {
	storage storage.Storage
	logger  *slog.Logger
	router  chi.Router
}

func New(st storage.Storage, logger *slog.Logger) *Server {
	s := &Server{
		storage: st,
		logger:  logger.With("component", "server"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/feeds", s.handleListFeeds)
	r.Get("/feed/{feedID}", s.handleFeed)
	s.router = r

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// feedSummary is the JSON index entry for one stored feed.
type feedSummary struct {
	ID            int64      `json:"id"`
	SourceName    string     `json:"sourceName"`
	FeedURL       string     `json:"feedUrl"`
	Title         string     `json:"title"`
	Active        bool       `json:"active"`
	ItemCount     int        `json:"itemCount"`
	LastRefreshed *time.Time `json:"lastRefreshed,omitempty"`
	LastChanged   *time.Time `json:"lastChanged,omitempty"`
}

func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.storage.GetFeeds(r.Context())
	if err != nil {
		s.logger.Error("list feeds failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	summaries := make([]feedSummary, 0, len(feeds))
	for i := range feeds {
		feed := &feeds[i]
		summaries = append(summaries, feedSummary{
			ID:            feed.ID,
			SourceName:    feed.SourceName,
			FeedURL:       feed.FeedURL,
			Title:         feed.Title,
			Active:        feed.Active(),
			ItemCount:     len(feed.Items),
			LastRefreshed: feed.LastRefreshed,
			LastChanged:   feed.LastChanged,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summaries); err != nil {
		s.logger.Error("encode feed list failed", "error", err)
	}
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "feedID")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "feed id must be numeric", http.StatusBadRequest)
		return
	}

	feed, err := s.storage.GetFeedByID(r.Context(), id)
	if err != nil {
		s.logger.Error("read feed failed", "feed_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if feed == nil {
		http.Error(w, "feed not found", http.StatusNotFound)
		return
	}

	body, err := render.Feed(feed)
	if err != nil {
		s.logger.Error("render feed failed", "feed_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml")
	w.Write(body)
}
