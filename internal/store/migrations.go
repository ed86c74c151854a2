package store

import "fmt"

// Per-dialect schema for the api_keys table. The compound UNIQUE on
// (digest, owner_id) is the serialization point that guarantees no two
// records ever share a valid digest, even under concurrent issuance.
var schemas = map[string][]string{
	driverSQLite: {
		`CREATE TABLE IF NOT EXISTS api_keys (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			digest TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			last_used_at DATETIME,
			expires_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE (digest, owner_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_api_keys_owner ON api_keys(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_api_keys_created ON api_keys(created_at)`,
	},
	driverPostgres: {
		`CREATE TABLE IF NOT EXISTS api_keys (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			digest TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			last_used_at TIMESTAMPTZ,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (digest, owner_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_api_keys_owner ON api_keys(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_api_keys_created ON api_keys(created_at)`,
	},
	driverMySQL: {
		`CREATE TABLE IF NOT EXISTS api_keys (
			id VARCHAR(36) PRIMARY KEY,
			owner_id VARCHAR(128) NOT NULL,
			digest VARCHAR(64) NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			last_used_at DATETIME(6),
			expires_at DATETIME(6) NOT NULL,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL,
			UNIQUE KEY uniq_digest_owner (digest, owner_id),
			KEY idx_api_keys_owner (owner_id),
			KEY idx_api_keys_created (created_at)
		)`,
	},
}

func (s *Store) migrate() error {
	stmts, ok := schemas[s.db.DriverName()]
	if !ok {
		return fmt.Errorf("no schema for driver %q", s.db.DriverName())
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate api_keys: %w", err)
		}
	}
	return nil
}
