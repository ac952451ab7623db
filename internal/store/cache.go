package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// QueryHash produces the cache key for an NRQL query. Queries are hashed
// after whitespace normalization so formatting differences share an entry.
func QueryHash(query string) string {
	normalized := strings.Join(strings.Fields(query), " ")
	sum := sha256.Sum256([]byte(strings.ToLower(normalized)))
	return hex.EncodeToString(sum[:])
}

// GetCachedQueryResult returns a cached NRQL result if it is still valid.
// A nil result with a nil error means a cache miss.
func (s *Store) GetCachedQueryResult(ctx context.Context, accountID int, query string) (json.RawMessage, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var resultJSON string
	row := s.DB.QueryRowContext(ctx, `
		SELECT result_json
		FROM query_cache
		WHERE account_id = ? AND query_hash = ? AND expires_at > ?
	`, accountID, QueryHash(query), time.Now().UTC().Unix())

	if err := row.Scan(&resultJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch cached query result: %w", err)
	}

	return json.RawMessage(resultJSON), nil
}

// SetCachedQueryResult stores an NRQL result with a TTL.
func (s *Store) SetCachedQueryResult(ctx context.Context, accountID int, query string, result json.RawMessage, ttl time.Duration) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if ttl <= 0 {
		return errors.New("cache ttl must be positive")
	}

	now := time.Now().UTC()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO query_cache (account_id, query_hash, query, result_json, cached_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, query_hash) DO UPDATE SET
			query = excluded.query,
			result_json = excluded.result_json,
			cached_at = excluded.cached_at,
			expires_at = excluded.expires_at
	`, accountID, QueryHash(query), query, string(result), now.Unix(), now.Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("store cached query result: %w", err)
	}

	return nil
}

// GetCachedKeyset returns the cached attribute keyset for an event type.
// A nil slice with a nil error means a cache miss.
func (s *Store) GetCachedKeyset(ctx context.Context, accountID int, eventType string) ([]string, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return nil, errors.New("event type is required")
	}

	var keysetJSON string
	row := s.DB.QueryRowContext(ctx, `
		SELECT keyset_json
		FROM keyset_cache
		WHERE account_id = ? AND event_type = ? AND expires_at > ?
	`, accountID, eventType, time.Now().UTC().Unix())

	if err := row.Scan(&keysetJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch cached keyset: %w", err)
	}

	var keys []string
	if err := json.Unmarshal([]byte(keysetJSON), &keys); err != nil {
		return nil, fmt.Errorf("decode cached keyset: %w", err)
	}

	return keys, nil
}

// SetCachedKeyset stores the attribute keyset for an event type with a TTL.
func (s *Store) SetCachedKeyset(ctx context.Context, accountID int, eventType string, keys []string, ttl time.Duration) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return errors.New("event type is required")
	}

	if ttl <= 0 {
		return errors.New("cache ttl must be positive")
	}

	keysetJSON, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("encode keyset: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO keyset_cache (account_id, event_type, keyset_json, cached_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id, event_type) DO UPDATE SET
			keyset_json = excluded.keyset_json,
			cached_at = excluded.cached_at,
			expires_at = excluded.expires_at
	`, accountID, eventType, string(keysetJSON), now.Unix(), now.Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("store cached keyset: %w", err)
	}

	return nil
}

// PruneExpired removes cache entries whose TTL has elapsed.
func (s *Store) PruneExpired(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	cutoff := time.Now().UTC().Unix()
	for _, table := range []string{"query_cache", "keyset_cache"} {
		if _, err := s.DB.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE expires_at <= ?", table), cutoff); err != nil {
			return fmt.Errorf("prune %s: %w", table, err)
		}
	}

	return nil
}
