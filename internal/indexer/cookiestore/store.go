// Package cookiestore persists indexer session cookies in SQLite so
// logins survive restarts.
package cookiestore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Store reads and writes the indexer_cookies table. It implements the
// session package's Store interface.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// New creates a store over an open database connection.
func New(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "cookie-store").Logger(),
	}
}

// GetCookies returns the persisted cookies for an indexer. A missing or
// expired row yields empty cookies, not an error.
func (s *Store) GetCookies(ctx context.Context, indexerName string) (string, time.Time, error) {
	var cookies string
	var expiresAt time.Time

	err := s.db.QueryRowContext(ctx,
		`SELECT cookies, expires_at FROM indexer_cookies WHERE indexer_name = ?`,
		indexerName).Scan(&cookies, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", time.Time{}, nil
		}
		return "", time.Time{}, err
	}

	if !time.Now().Before(expiresAt) {
		// Stale rows are cleaned lazily.
		if err := s.ClearCookies(ctx, indexerName); err != nil {
			s.logger.Warn().Err(err).Str("indexer", indexerName).Msg("Failed to clear expired cookies")
		}
		return "", time.Time{}, nil
	}

	return cookies, expiresAt, nil
}

// SaveCookies upserts the cookies for an indexer.
func (s *Store) SaveCookies(ctx context.Context, indexerName string, cookies string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO indexer_cookies (indexer_name, cookies, expires_at, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(indexer_name) DO UPDATE SET
		   cookies = excluded.cookies,
		   expires_at = excluded.expires_at,
		   updated_at = CURRENT_TIMESTAMP`,
		indexerName, cookies, expiresAt)
	return err
}

// ClearCookies removes the persisted cookies for an indexer.
func (s *Store) ClearCookies(ctx context.Context, indexerName string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM indexer_cookies WHERE indexer_name = ?`, indexerName)
	return err
}
