package cache

// SQL schemas for provider response caches.
// All tables use "cache_key" as the primary key column for consistency.

// OpenLibraryCacheSchema caches Open Library book lookups keyed by ISBN.
const OpenLibraryCacheSchema = `
CREATE TABLE IF NOT EXISTS openlibrary_cache (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	ttl_seconds INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_openlibrary_cached_at ON openlibrary_cache(cached_at);
`

// NationalLibraryCacheSchema caches national-library catalog lookups keyed by ISBN.
const NationalLibraryCacheSchema = `
CREATE TABLE IF NOT EXISTS national_library_cache (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	ttl_seconds INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_national_library_cached_at ON national_library_cache(cached_at);
`

// BookcoverCacheSchema caches premium cover lookups keyed by ISBN or title/author.
const BookcoverCacheSchema = `
CREATE TABLE IF NOT EXISTS bookcover_cache (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	ttl_seconds INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_bookcover_cached_at ON bookcover_cache(cached_at);
`

// AllCacheSchemas contains all cache table schemas for initialization.
var AllCacheSchemas = []string{
	OpenLibraryCacheSchema,
	NationalLibraryCacheSchema,
	BookcoverCacheSchema,
}

// CacheTableNames lists every provider cache table.
var CacheTableNames = []string{
	"openlibrary_cache",
	"national_library_cache",
	"bookcover_cache",
}

// ValidCacheTableNames is the whitelist of allowed cache table names,
// used to prevent SQL injection when interpolating table names.
var ValidCacheTableNames = map[string]bool{
	"openlibrary_cache":      true,
	"national_library_cache": true,
	"bookcover_cache":        true,
}
