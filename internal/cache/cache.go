// Package cache provides a SQLite-backed response cache for the external
// catalog clients, with per-entry TTLs and shorter "negative" TTLs for
// not-found responses.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/viper"
	_ "modernc.org/sqlite"
)

const (
	// DefaultTTL is the time-to-live for cached provider responses (30 days).
	DefaultTTL = 720 * time.Hour
	// NegativeTTL is the TTL for "not found" responses (7 days). Books do
	// get added to catalogs, so misses expire sooner than hits.
	NegativeTTL = 168 * time.Hour
)

// FetchFunc fetches a value from an external source on cache miss.
type FetchFunc[T any] func() (T, error)

// DB manages the SQLite connection backing the cache tables.
type DB struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

var (
	global     *DB
	globalOnce sync.Once
)

// Reset closes the global cache and resets the singleton so the next call
// to Global creates a fresh instance. Intended for tests.
func Reset() error {
	if global != nil {
		if err := global.Close(); err != nil {
			return err
		}
	}
	global = nil
	globalOnce = sync.Once{}
	return nil
}

// Global returns the singleton cache database, opening it on first use at
// the configured path and creating all provider tables.
func Global() (*DB, error) {
	var initErr error
	globalOnce.Do(func() {
		dbPath := viper.GetString("cache.dbfile")
		if dbPath == "" {
			dbPath = "./cache.db"
		}
		global, initErr = Open(dbPath)
		if initErr != nil {
			return
		}
		for _, schema := range AllCacheSchemas {
			if err := global.createTable(schema); err != nil {
				initErr = fmt.Errorf("failed to create cache table: %w", err)
				return
			}
		}
	})
	if initErr != nil {
		return nil, initErr
	}
	return global, nil
}

// Open opens (or creates) a cache database at the given path.
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to connect to cache database: %w", err), closeErr)
	}

	return &DB{db: db, path: dbPath}, nil
}

func (c *DB) createTable(schema string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (c *DB) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func validateTableName(tableName string) error {
	if !ValidCacheTableNames[tableName] {
		return fmt.Errorf("invalid cache table name: %s", tableName)
	}
	return nil
}

// Get retrieves a cached value from the specified table. Returns the cached
// payload, whether it was found and fresh, and any error. An entry stored
// with its own TTL (see SetWithTTL) expires by that TTL; the ttl argument
// applies only to entries without one.
func (c *DB) Get(tableName, key string, ttl time.Duration) (string, bool, error) {
	if err := validateTableName(tableName); err != nil {
		return "", false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	query := fmt.Sprintf(`SELECT data, cached_at, ttl_seconds FROM %s WHERE cache_key = ?`, tableName)

	var data string
	var cachedAt time.Time
	var ttlSeconds int64
	err := c.db.QueryRow(query, key).Scan(&data, &cachedAt, &ttlSeconds)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query cache: %w", err)
	}

	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}

	age := time.Now().UTC().Sub(cachedAt)
	if age > ttl {
		slog.Debug("Cache expired", "table", tableName, "key", key, "age", age, "ttl", ttl)
		return "", false, nil
	}

	return data, true, nil
}

// Set stores a value in the cache, replacing any existing entry. The entry
// carries no TTL of its own and expires by whatever TTL readers pass to Get.
func (c *DB) Set(tableName, key, data string) error {
	return c.SetWithTTL(tableName, key, data, 0)
}

// SetWithTTL stores a value together with its own TTL. Entries with a TTL
// expire by it regardless of what readers pass to Get; not-found responses
// use this to expire sooner than hits.
func (c *DB) SetWithTTL(tableName, key, data string, ttl time.Duration) error {
	if err := validateTableName(tableName); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	query := fmt.Sprintf(`
		INSERT OR REPLACE INTO %s (cache_key, data, cached_at, ttl_seconds)
		VALUES (?, ?, CURRENT_TIMESTAMP, ?)
	`, tableName)

	if _, err := c.db.Exec(query, key, data, int64(ttl/time.Second)); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

// ClearAll removes all cache entries from the specified table and returns
// the number of rows deleted.
func (c *DB) ClearAll(tableName string) (int64, error) {
	if err := validateTableName(tableName); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	result, err := c.db.Exec(fmt.Sprintf("DELETE FROM %s", tableName))
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	slog.Debug("Cache table cleared", "table", tableName, "rows_deleted", rows)
	return rows, nil
}

// GetOrFetch retrieves data from cache or fetches it with fetchFunc,
// caching the result with the configured default TTL.
func GetOrFetch[T any](tableName, cacheKey string, fetchFunc FetchFunc[T]) (T, bool, error) {
	return getOrFetch(tableName, cacheKey, fetchFunc, nil)
}

// GetOrFetchWithTTL is GetOrFetch with per-result TTL selection; use it
// with SelectNegativeTTL to cache "not found" responses for a shorter time.
func GetOrFetchWithTTL[T any](tableName, cacheKey string, fetchFunc FetchFunc[T], ttlSelector func(T) time.Duration) (T, bool, error) {
	return getOrFetch(tableName, cacheKey, fetchFunc, ttlSelector)
}

// SelectNegativeTTL returns a TTL selector that applies NegativeTTL when
// isNotFound reports true for the fetched value, and the default otherwise.
func SelectNegativeTTL[T any](isNotFound func(T) bool) func(T) time.Duration {
	return func(result T) time.Duration {
		if isNotFound(result) {
			return NegativeTTL
		}
		return configuredTTL()
	}
}

func configuredTTL() time.Duration {
	ttlStr := viper.GetString("cache.ttl")
	if ttlStr == "" {
		return DefaultTTL
	}
	ttl, err := time.ParseDuration(ttlStr)
	if err != nil {
		slog.Warn("Invalid cache TTL, using default", "ttl", ttlStr, "error", err)
		return DefaultTTL
	}
	return ttl
}

func getOrFetch[T any](tableName, cacheKey string, fetchFunc FetchFunc[T], ttlSelector func(T) time.Duration) (T, bool, error) {
	var zero T

	db, err := Global()
	if err != nil {
		// Cache trouble must not block lookups; fall through to the source.
		slog.Warn("Failed to initialize cache, fetching directly", "error", err)
		data, fetchErr := fetchFunc()
		return data, false, fetchErr
	}

	ttl := configuredTTL()

	cached, fromCache, err := db.Get(tableName, cacheKey, ttl)
	if err == nil && fromCache {
		var result T
		if err := json.Unmarshal([]byte(cached), &result); err == nil {
			slog.Debug("Cache hit", "table", tableName, "key", cacheKey)
			return result, true, nil
		}
		slog.Warn("Failed to unmarshal cached data, will refetch", "table", tableName, "key", cacheKey, "error", err)
	}

	slog.Debug("Cache miss, fetching data", "table", tableName, "key", cacheKey)
	data, err := fetchFunc()
	if err != nil {
		return zero, false, fmt.Errorf("failed to fetch data: %w", err)
	}

	selectedTTL := ttl
	if ttlSelector != nil {
		selectedTTL = ttlSelector(data)
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		slog.Warn("Failed to marshal data for caching", "table", tableName, "key", cacheKey, "error", err)
		return data, false, nil
	}

	if err := db.SetWithTTL(tableName, cacheKey, string(jsonData), selectedTTL); err != nil {
		// Caching failure shouldn't stop the lookup.
		slog.Warn("Failed to cache data", "table", tableName, "key", cacheKey, "error", err)
	} else {
		slog.Debug("Data cached", "table", tableName, "key", cacheKey, "ttl", selectedTTL)
	}

	return data, false, nil
}
