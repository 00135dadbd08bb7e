// Package postgres provides a durable storage implementation backed by
// PostgreSQL, for deployments where the feed set is shared by separate
// read-side processes. It satisfies the same contract as the sqlite
// implementation.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"feedsync/internal/domain"
	"feedsync/internal/storage"
)

type Store struct {
	db        *sqlx.DB
	writeLock storage.WriteLock
}

var _ storage.Storage = (*Store)(nil)

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Ensure creates the schema if it does not exist yet.
func (s *Store) Ensure(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS feeds (
		id BIGSERIAL PRIMARY KEY,
		source_name TEXT NOT NULL,
		feed_url TEXT NOT NULL,
		update_interval DOUBLE PRECISION,
		title TEXT,
		description TEXT,
		website_url TEXT,
		last_refreshed TIMESTAMPTZ,
		last_changed TIMESTAMPTZ
	);
	CREATE TABLE IF NOT EXISTS items (
		id BIGSERIAL PRIMARY KEY,
		feed_id BIGINT NOT NULL REFERENCES feeds(id),
		guid TEXT,
		title TEXT,
		description TEXT,
		item_url TEXT,
		publication_date TIMESTAMPTZ
	);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
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
		feed := row.toDomain()
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
	          FROM feeds WHERE id = $1`
	err := s.db.GetContext(ctx, &row, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select feed %d: %w", id, err)
	}

	feed := row.toDomain()
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
	          FROM items WHERE feed_id = $1 ORDER BY id`
	if err := s.db.SelectContext(ctx, &rows, query, feedID); err != nil {
		return nil, fmt.Errorf("select items for feed %d: %w", feedID, err)
	}

	items := make([]domain.Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, *row.toDomain())
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
	err := s.db.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM feeds WHERE id = $1)", item.FeedID)
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
		          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		          RETURNING id`
		err := tx.QueryRowContext(ctx, query,
			feed.SourceName,
			feed.FeedURL,
			durationToSQL(feed.UpdateInterval),
			feed.Title,
			feed.Description,
			feed.WebsiteURL,
			timeToSQL(feed.LastRefreshed),
			timeToSQL(feed.LastChanged),
		).Scan(&feed.ID)
		if err != nil {
			return fmt.Errorf("insert feed: %w", err)
		}
		return nil
	}

	query := `INSERT INTO feeds (id, source_name, feed_url, update_interval, title,
	                             description, website_url, last_refreshed, last_changed)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	          ON CONFLICT (id) DO UPDATE SET
	              source_name = EXCLUDED.source_name,
	              feed_url = EXCLUDED.feed_url,
	              update_interval = EXCLUDED.update_interval,
	              title = EXCLUDED.title,
	              description = EXCLUDED.description,
	              website_url = EXCLUDED.website_url,
	              last_refreshed = EXCLUDED.last_refreshed,
	              last_changed = EXCLUDED.last_changed`
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
		return fmt.Errorf("upsert feed %d: %w", feed.ID, err)
	}
	// Keep the sequence ahead of explicitly inserted ids.
	_, err = tx.ExecContext(ctx,
		`SELECT setval(pg_get_serial_sequence('feeds', 'id'), (SELECT MAX(id) FROM feeds))`)
	if err != nil {
		return fmt.Errorf("bump feeds sequence: %w", err)
	}
	return nil
}

func putItemTx(ctx context.Context, tx *sqlx.Tx, item *domain.Item) error {
	if item.ID == 0 {
		query := `INSERT INTO items (feed_id, guid, title, description, item_url, publication_date)
		          VALUES ($1, $2, $3, $4, $5, $6)
		          RETURNING id`
		err := tx.QueryRowContext(ctx, query,
			item.FeedID,
			nullIfEmpty(item.GUID),
			item.Title,
			item.Description,
			nullIfEmpty(item.ItemURL),
			timeToSQL(item.PublicationDate),
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		return nil
	}

	query := `INSERT INTO items (id, feed_id, guid, title, description, item_url, publication_date)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          ON CONFLICT (id) DO UPDATE SET
	              feed_id = EXCLUDED.feed_id,
	              guid = EXCLUDED.guid,
	              title = EXCLUDED.title,
	              description = EXCLUDED.description,
	              item_url = EXCLUDED.item_url,
	              publication_date = EXCLUDED.publication_date`
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
		return fmt.Errorf("upsert item %d: %w", item.ID, err)
	}
	_, err = tx.ExecContext(ctx,
		`SELECT setval(pg_get_serial_sequence('items', 'id'), (SELECT MAX(id) FROM items))`)
	if err != nil {
		return fmt.Errorf("bump items sequence: %w", err)
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
	LastRefreshed  sql.NullTime    `db:"last_refreshed"`
	LastChanged    sql.NullTime    `db:"last_changed"`
}

func (r feedRow) toDomain() *domain.Feed {
	return &domain.Feed{
		ID:             r.ID,
		SourceName:     r.SourceName,
		FeedURL:        r.FeedURL,
		UpdateInterval: sqlToDuration(r.UpdateInterval),
		Title:          r.Title.String,
		Description:    r.Description.String,
		WebsiteURL:     r.WebsiteURL.String,
		LastRefreshed:  sqlToTime(r.LastRefreshed),
		LastChanged:    sqlToTime(r.LastChanged),
	}
}

type itemRow struct {
	ID              int64          `db:"id"`
	FeedID          int64          `db:"feed_id"`
	GUID            sql.NullString `db:"guid"`
	Title           sql.NullString `db:"title"`
	Description     sql.NullString `db:"description"`
	ItemURL         sql.NullString `db:"item_url"`
	PublicationDate sql.NullTime   `db:"publication_date"`
}

func (r itemRow) toDomain() *domain.Item {
	return &domain.Item{
		ID:              r.ID,
		FeedID:          r.FeedID,
		GUID:            r.GUID.String,
		Title:           r.Title.String,
		Description:     r.Description.String,
		ItemURL:         r.ItemURL.String,
		PublicationDate: sqlToTime(r.PublicationDate),
	}
}

func timeToSQL(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func sqlToTime(raw sql.NullTime) *time.Time {
	if !raw.Valid {
		return nil
	}
	t := raw.Time
	return &t
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
