package database

import (
	"context"
	"time"
)

// SearchRecord is one row of search history.
type SearchRecord struct {
	IndexerName string
	Kind        string
	Term        string
	Results     int
	Successful  bool
	Elapsed     time.Duration
}

// GrabRecord is one row of grab history.
type GrabRecord struct {
	IndexerName string
	Title       string
	DownloadURL string
	Successful  bool
}

// RecordSearch appends a search to the history.
func (db *DB) RecordSearch(ctx context.Context, rec SearchRecord) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO search_history (indexer_name, kind, term, results, successful, elapsed_ms)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.IndexerName, rec.Kind, rec.Term, rec.Results, rec.Successful, rec.Elapsed.Milliseconds())
	return err
}

// RecordGrab appends a grab to the history.
func (db *DB) RecordGrab(ctx context.Context, rec GrabRecord) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO grab_history (indexer_name, title, download_url, successful)
		 VALUES (?, ?, ?, ?)`,
		rec.IndexerName, rec.Title, rec.DownloadURL, rec.Successful)
	return err
}

// CountSearchesSince returns how many searches an indexer has served
// since the given time.
func (db *DB) CountSearchesSince(ctx context.Context, indexerName string, since time.Time) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM search_history WHERE indexer_name = ? AND created_at >= ?`,
		indexerName, since).Scan(&n)
	return n, err
}
