// Package tenant persists per-tenant feature flags. The store is the
// authoritative flag source for the feature gate; reads always hit the
// database so an administrative toggle is visible on the next request.
package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

const flagsSchema = `
CREATE TABLE IF NOT EXISTS tenant_features (
	tenant_id INTEGER NOT NULL,
	feature_id TEXT NOT NULL,
	enabled INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (tenant_id, feature_id)
);
`

// Store is a SQLite-backed feature flag store.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (or creates) the flag store at the given path.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open tenant database: %w", err)
	}

	if err := db.Ping(); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to connect to tenant database: %w", err), closeErr)
	}

	if _, err := db.Exec(flagsSchema); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to create tenant_features table: %w", err), closeErr)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Flags returns the explicit flags stored for one tenant. Features with no
// row are absent from the map; the gate falls back to the process-wide
// environment default for those.
func (s *Store) Flags(ctx context.Context, tenantID int64) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT feature_id, enabled FROM tenant_features WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tenant flags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	flags := map[string]bool{}
	for rows.Next() {
		var featureID string
		var enabled int
		if err := rows.Scan(&featureID, &enabled); err != nil {
			return nil, fmt.Errorf("failed to scan tenant flag: %w", err)
		}
		flags[featureID] = enabled != 0
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tenant flags: %w", err)
	}

	return flags, nil
}

// SetFlag stores an explicit per-tenant flag, replacing any previous value.
func (s *Store) SetFlag(ctx context.Context, tenantID int64, featureID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	value := 0
	if enabled {
		value = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenant_features (tenant_id, feature_id, enabled, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (tenant_id, feature_id)
		DO UPDATE SET enabled = excluded.enabled, updated_at = CURRENT_TIMESTAMP
	`, tenantID, featureID, value)
	if err != nil {
		return fmt.Errorf("failed to set tenant flag: %w", err)
	}
	return nil
}

// ClearFlag removes the explicit flag so the feature reverts to the
// process-wide environment default.
func (s *Store) ClearFlag(ctx context.Context, tenantID int64, featureID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM tenant_features WHERE tenant_id = ? AND feature_id = ?`, tenantID, featureID)
	if err != nil {
		return fmt.Errorf("failed to clear tenant flag: %w", err)
	}
	return nil
}
