// Package cache provides the persistent derived-data cache (trade plans and
// screener rows) plus the process-local in-flight registry that deduplicates
// concurrent refreshes. Entries are stored as JSON blobs with freshness
// metadata; writes are idempotent full-replace upserts keyed by symbol key.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/swingscan/swingscan/internal/clock"
)

// Source tags record which code path produced a write.
const (
	SourceUser      = "user"
	SourceScheduled = "scheduled"
	SourcePageView  = "page_view"
)

// Key prefixes separate the two payload families sharing the table.
const (
	PlanPrefix     = "plan:"
	ScreenerPrefix = "screener:"
)

// PlanKey returns the cache key for a symbol's trade plan.
func PlanKey(symbol string) string { return PlanPrefix + symbol }

// ScreenerKey returns the cache key for a symbol's screener row.
func ScreenerKey(symbol string) string { return ScreenerPrefix + symbol }

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key               TEXT PRIMARY KEY,
	payload           TEXT NOT NULL,
	base_price        REAL NOT NULL DEFAULT 0,
	last_price_update INTEGER NOT NULL DEFAULT 0,
	generation_count  INTEGER NOT NULL DEFAULT 1,
	expires_at        INTEGER NOT NULL,
	last_accessed     INTEGER NOT NULL DEFAULT 0,
	source            TEXT NOT NULL DEFAULT '',
	updated_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries(expires_at);
CREATE INDEX IF NOT EXISTS idx_cache_entries_updated ON cache_entries(updated_at);
`

// Entry is one cached derived-data row.
type Entry struct {
	Key             string          `json:"key"`
	Payload         json.RawMessage `json:"payload"`
	BasePrice       float64         `json:"base_price"`
	LastPriceUpdate time.Time       `json:"last_price_update"`
	GenerationCount int64           `json:"generation_count"`
	ExpiresAt       time.Time       `json:"expires_at"`
	LastAccessed    time.Time       `json:"last_accessed"`
	Source          string          `json:"source"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// WriteMeta carries the metadata recorded alongside a payload write.
type WriteMeta struct {
	BasePrice float64
	Source    string
	TTL       time.Duration
}

// Store provides cache entry persistence.
type Store struct {
	db    *sql.DB
	clock clock.Clock
	log   zerolog.Logger
}

// NewStore creates a cache store and ensures its schema exists.
func NewStore(db *sql.DB, clk clock.Clock, log zerolog.Logger) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}
	return &Store{
		db:    db,
		clock: clk,
		log:   log.With().Str("service", "cache").Logger(),
	}, nil
}

// Write upserts the full entry for a key, replacing any previous payload and
// incrementing the generation counter. Writes are idempotent by key.
func (s *Store) Write(key string, payload interface{}, meta WriteMeta) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", key, err)
	}

	now := s.clock.Now().Unix()
	expiresAt := s.clock.Now().Add(meta.TTL).Unix()

	_, err = s.db.Exec(`
		INSERT INTO cache_entries
			(key, payload, base_price, last_price_update, generation_count,
			 expires_at, last_accessed, source, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload           = excluded.payload,
			base_price        = excluded.base_price,
			last_price_update = excluded.last_price_update,
			generation_count  = cache_entries.generation_count + 1,
			expires_at        = excluded.expires_at,
			source            = excluded.source,
			updated_at        = excluded.updated_at`,
		key, string(data), meta.BasePrice, now, expiresAt, now, meta.Source, now,
	)
	if err != nil {
		return fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}

	return nil
}

// Get returns the entry for a key regardless of freshness, or nil if the key
// does not exist. Stale data is better than no data: callers serving reads
// fall back to this when a refresh cannot produce fresh data.
func (s *Store) Get(key string) (*Entry, error) {
	row := s.db.QueryRow(`
		SELECT key, payload, base_price, last_price_update, generation_count,
		       expires_at, last_accessed, source, updated_at
		FROM cache_entries WHERE key = ?`, key)

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry %s: %w", key, err)
	}

	// Best-effort access tracking; a failure here never fails the read.
	if _, err := s.db.Exec(
		`UPDATE cache_entries SET last_accessed = ? WHERE key = ?`,
		s.clock.Now().Unix(), key,
	); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to update last_accessed")
	}

	return entry, nil
}

// IsStale reports whether a key needs refreshing: no entry exists, the entry
// is older than maxAge, or its expiry has passed.
func (s *Store) IsStale(key string, maxAge time.Duration) (bool, error) {
	row := s.db.QueryRow(
		`SELECT updated_at, expires_at FROM cache_entries WHERE key = ?`, key)

	var updatedAt, expiresAt int64
	err := row.Scan(&updatedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check staleness of %s: %w", key, err)
	}

	now := s.clock.Now()
	if now.Sub(time.Unix(updatedAt, 0)) > maxAge {
		return true, nil
	}
	if now.After(time.Unix(expiresAt, 0)) {
		return true, nil
	}
	return false, nil
}

// ListByPrefix returns all entries whose key starts with prefix, ordered by
// key for deterministic output.
func (s *Store) ListByPrefix(prefix string) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT key, payload, base_price, last_price_update, generation_count,
		       expires_at, last_accessed, source, updated_at
		FROM cache_entries
		WHERE key LIKE ? ESCAPE '\'
		ORDER BY key`, likePattern(prefix))
	if err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// TopKeysByGeneration returns the most frequently rewritten keys under a
// prefix. The generation counter doubles as a popularity signal, so this is
// the cache-warming priority order.
func (s *Store) TopKeysByGeneration(prefix string, limit int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT key FROM cache_entries
		WHERE key LIKE ? ESCAPE '\'
		ORDER BY generation_count DESC, key
		LIMIT ?`, likePattern(prefix), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to rank cache entries: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// SweepOlderThan deletes entries last updated more than retention ago while
// always preserving entries written today. The same-day guard keeps a
// concurrent repopulation job's output from being wiped mid-cycle.
// Returns the number of rows deleted.
func (s *Store) SweepOlderThan(retention time.Duration) (int64, error) {
	now := s.clock.Now()
	cutoff := now.Add(-retention).Unix()

	result, err := s.db.Exec(`
		DELETE FROM cache_entries
		WHERE updated_at < ?
		  AND date(updated_at, 'unixepoch') <> date(?, 'unixepoch')`,
		cutoff, now.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep cache entries: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// likePattern escapes LIKE metacharacters in the prefix.
func likePattern(prefix string) string {
	escaped := ""
	for _, r := range prefix {
		if r == '%' || r == '_' || r == '\\' {
			escaped += `\`
		}
		escaped += string(r)
	}
	return escaped + "%"
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scannable) (*Entry, error) {
	var e Entry
	var payload string
	var lastPriceUpdate, expiresAt, lastAccessed, updatedAt int64

	err := row.Scan(&e.Key, &payload, &e.BasePrice, &lastPriceUpdate,
		&e.GenerationCount, &expiresAt, &lastAccessed, &e.Source, &updatedAt)
	if err != nil {
		return nil, err
	}

	e.Payload = json.RawMessage(payload)
	e.LastPriceUpdate = time.Unix(lastPriceUpdate, 0)
	e.ExpiresAt = time.Unix(expiresAt, 0)
	e.LastAccessed = time.Unix(lastAccessed, 0)
	e.UpdatedAt = time.Unix(updatedAt, 0)
	return &e, nil
}
