package store

import (
	"context"
	"errors"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS query_cache (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL,
		query_hash TEXT NOT NULL,
		query TEXT NOT NULL,
		result_json TEXT NOT NULL,
		cached_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		UNIQUE(account_id, query_hash)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_query_cache_expires ON query_cache(expires_at);`,
	`CREATE TABLE IF NOT EXISTS keyset_cache (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		keyset_json TEXT NOT NULL,
		cached_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		UNIQUE(account_id, event_type)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_keyset_cache_expires ON keyset_cache(expires_at);`,
}

// Migrate ensures the required cache tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	return nil
}
