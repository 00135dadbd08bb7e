// Package sqlite provides the durable storage implementation backed by
// an SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"feedsync/internal/domain"
	"feedsync/internal/storage"
)

// Timestamps are persisted as ISO-8601-like text including the UTC
// offset, intervals as seconds.
const timeLayout = "2006-01-02 15:04:05.999999999-07:00"

var timeLayouts = []string{
	timeLayout,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

type Store struct {
	db        *sqlx.DB
	writeLock storage.WriteLock
}

var _ storage.Storage = (*Store)(nil)

// Open opens or creates the database file and sets up the schema. A
// single connection is kept; SQLite serializes writers anyway and this
// avoids SQLITE_BUSY under concurrent readers.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.setupSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setup schema: %w", err)
	}
	return s, nil
}

func (s *Store) setupSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS feeds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_name TEXT NOT NULL,
		feed_url TEXT NOT NULL,
		update_interval REAL,
		title TEXT,
		description TEXT,
		website_url TEXT,
		last_refreshed TEXT,
		last_changed TEXT
	);
	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		feed_id INTEGER NOT NULL REFERENCES feeds(id),
		guid TEXT,
		title TEXT,
		description TEXT,
		item_url TEXT,
		publication_date TEXT
	);`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) GetFeeds(ctx context.Context) ([]domain.Feed, error) {
	var rows []feedRow
	query := `SELECT id, source_name, feed_url, update_interval, title, description,
	                 website_url, last_refreshed, last_changed
	          FROM feeds ORDER BY id`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("select feeds: %w", err)
	}

	feeds := make([]domain.Feed, 0, len(rows))
	for _, row := range rows {
		feed, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		items, err := s.GetItemsByFeedID(ctx, feed.ID)
		if err != nil {
			return nil, err
		}
		feed.Items = items
		feeds = append(feeds, *feed)
	}
	return feeds, nil
}

func (s *Store) GetFeedByID(ctx context.Context, id int64) (*domain.Feed, error) {
	var row feedRow
	query := `SELECT id, source_name, feed_url, update_interval, title, description,
	                 website_url, last_refreshed, last_changed
	          FROM feeds WHERE id = ?`
	err := s.db.GetContext(ctx, &row, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select feed %d: %w", id, err)
	}

	feed, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	items, err := s.GetItemsByFeedID(ctx, feed.ID)
	if err != nil {
		return nil, err
	}
	feed.Items = items
	return feed, nil
}

func (s *Store) GetItemsByFeedID(ctx context.Context, feedID int64) ([]domain.Item, error) {
	var rows []itemRow
	query := `SELECT id, feed_id, guid, title, description, item_url, publication_date
	          FROM items WHERE feed_id = ? ORDER BY id`
	if err := s.db.SelectContext(ctx, &rows, query, feedID); err != nil {
		return nil, fmt.Errorf("select items for feed %d: %w", feedID, err)
	}

	items := make([]domain.Item, 0, len(rows))
	for _, row := range rows {
		item, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, nil
}

func (s *Store) PutFeed(ctx context.Context, feed *domain.Feed) error {
	if !s.writeLock.IsLocked() {
		return storage.ErrWriteLockRequired
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := putFeedTx(ctx, tx, feed); err != nil {
		_ = tx.Rollback()
		return err
	}
	for i := range feed.Items {
		item := &feed.Items[i]
		item.FeedID = feed.ID
		if err := putItemTx(ctx, tx, item); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) PutItem(ctx context.Context, item *domain.Item) error {
	if !s.writeLock.IsLocked() {
		return storage.ErrWriteLockRequired
	}

	var exists bool
	err := s.db.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM feeds WHERE id = ?)", item.FeedID)
	if err != nil {
		return fmt.Errorf("check feed %d: %w", item.FeedID, err)
	}
	if !exists {
		// Orphaned item, soft no-op per contract.
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := putItemTx(ctx, tx, item); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func putFeedTx(ctx context.Context, tx *sqlx.Tx, feed *domain.Feed) error {
	if feed.ID == 0 {
		query := `INSERT INTO feeds (source_name, feed_url, update_interval, title,
		                             description, website_url, last_refreshed, last_changed)
		          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
		res, err := tx.ExecContext(ctx, query,
			feed.SourceName,
			feed.FeedURL,
			durationToSQL(feed.UpdateInterval),
			feed.Title,
			feed.Description,
			feed.WebsiteURL,
			timeToSQL(feed.LastRefreshed),
			timeToSQL(feed.LastChanged),
		)
		if err != nil {
			return fmt.Errorf("insert feed: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("feed insert id: %w", err)
		}
		feed.ID = id
		return nil
	}

	query := `INSERT OR REPLACE INTO feeds (id, source_name, feed_url, update_interval, title,
	                                        description, website_url, last_refreshed, last_changed)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, query,
		feed.ID,
		feed.SourceName,
		feed.FeedURL,
		durationToSQL(feed.UpdateInterval),
		feed.Title,
		feed.Description,
		feed.WebsiteURL,
		timeToSQL(feed.LastRefreshed),
		timeToSQL(feed.LastChanged),
	)
	if err != nil {
		return fmt.Errorf("replace feed %d: %w", feed.ID, err)
	}
	return nil
}

func putItemTx(ctx context.Context, tx *sqlx.Tx, item *domain.Item) error {
	if item.ID == 0 {
		query := `INSERT INTO items (feed_id, guid, title, description, item_url, publication_date)
		          VALUES (?, ?, ?, ?, ?, ?)`
		res, err := tx.ExecContext(ctx, query,
			item.FeedID,
			nullIfEmpty(item.GUID),
			item.Title,
			item.Description,
			nullIfEmpty(item.ItemURL),
			timeToSQL(item.PublicationDate),
		)
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("item insert id: %w", err)
		}
		item.ID = id
		return nil
	}

	query := `INSERT OR REPLACE INTO items (id, feed_id, guid, title, description, item_url, publication_date)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, query,
		item.ID,
		item.FeedID,
		nullIfEmpty(item.GUID),
		item.Title,
		item.Description,
		nullIfEmpty(item.ItemURL),
		timeToSQL(item.PublicationDate),
	)
	if err != nil {
		return fmt.Errorf("replace item %d: %w", item.ID, err)
	}
	return nil
}

func (s *Store) AcquireWriteLock() { s.writeLock.Acquire() }

func (s *Store) ReleaseWriteLock() { s.writeLock.Release() }

func (s *Store) IsWriteLocked() bool { return s.writeLock.IsLocked() }

func (s *Store) Close() error { return s.db.Close() }

type feedRow struct {
	ID             int64           `db:"id"`
	SourceName     string          `db:"source_name"`
	FeedURL        string          `db:"feed_url"`
	UpdateInterval sql.NullFloat64 `db:"update_interval"`
	Title          sql.NullString  `db:"title"`
	Description    sql.NullString  `db:"description"`
	WebsiteURL     sql.NullString  `db:"website_url"`
	LastRefreshed  sql.NullString  `db:"last_refreshed"`
	LastChanged    sql.NullString  `db:"last_changed"`
}

func (r feedRow) toDomain() (*domain.Feed, error) {
	lastRefreshed, err := sqlToTime(r.LastRefreshed)
	if err != nil {
		return nil, fmt.Errorf("feed %d last_refreshed: %w", r.ID, err)
	}
	lastChanged, err := sqlToTime(r.LastChanged)
	if err != nil {
		return nil, fmt.Errorf("feed %d last_changed: %w", r.ID, err)
	}
	return &domain.Feed{
		ID:             r.ID,
		SourceName:     r.SourceName,
		FeedURL:        r.FeedURL,
		UpdateInterval: sqlToDuration(r.UpdateInterval),
		Title:          r.Title.String,
		Description:    r.Description.String,
		WebsiteURL:     r.WebsiteURL.String,
		LastRefreshed:  lastRefreshed,
		LastChanged:    lastChanged,
	}, nil
}

type itemRow struct {
	ID              int64          `db:"id"`
	FeedID          int64          `db:"feed_id"`
	GUID            sql.NullString `db:"guid"`
	Title           sql.NullString `db:"title"`
	Description     sql.NullString `db:"description"`
	ItemURL         sql.NullString `db:"item_url"`
	PublicationDate sql.NullString `db:"publication_date"`
}

func (r itemRow) toDomain() (*domain.Item, error) {
	publicationDate, err := sqlToTime(r.PublicationDate)
	if err != nil {
		return nil, fmt.Errorf("item %d publication_date: %w", r.ID, err)
	}
	return &domain.Item{
		ID:              r.ID,
		FeedID:          r.FeedID,
		GUID:            r.GUID.String,
		Title:           r.Title.String,
		Description:     r.Description.String,
		ItemURL:         r.ItemURL.String,
		PublicationDate: publicationDate,
	}, nil
}

func timeToSQL(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(timeLayout)
}

func sqlToTime(raw sql.NullString) (*time.Time, error) {
	if !raw.Valid {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw.String); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unparseable timestamp %q", raw.String)
}

func durationToSQL(d *time.Duration) interface{} {
	if d == nil {
		return nil
	}
	return d.Seconds()
}

func sqlToDuration(raw sql.NullFloat64) *time.Duration {
	if !raw.Valid {
		return nil
	}
	d := time.Duration(raw.Float64 * float64(time.Second))
	return &d
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

