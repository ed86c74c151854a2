// Package store persists API key records. It is the sole source of truth and
// the sole serialization point: single-row UPDATE statements give regenerate
// and activate their atomicity, and the compound uniqueness constraint backs
// digest uniqueness. SQLite is the default backend; PostgreSQL and MySQL DSNs
// are detected and handled through the same sqlx surface.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/flavien-hugs/apikey-hub/internal/model"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "pgx"
	driverMySQL    = "mysql"
)

// Store manages the api_keys table.
type Store struct {
	db *sqlx.DB
}

// Open connects to the store selected by the DSN and runs migrations.
// An empty DSN opens an in-memory SQLite database, used by tests and the
// zero-config default.
func Open(dsn string) (*Store, error) {
	driver, dsn := resolveDSN(dsn)

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if driver == driverSQLite {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return s, nil
}

// resolveDSN infers the driver from the DSN shape.
func resolveDSN(dsn string) (driver, resolved string) {
	trimmed := strings.TrimSpace(dsn)
	lower := strings.ToLower(trimmed)
	switch {
	case trimmed == "":
		return driverSQLite, ":memory:"
	case strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://"):
		return driverPostgres, trimmed
	case strings.HasPrefix(lower, "mysql://"):
		return driverMySQL, strings.TrimPrefix(trimmed, "mysql://")
	case strings.Contains(trimmed, "@tcp("):
		return driverMySQL, trimmed
	default:
		// Treat anything else as a SQLite file path.
		if !strings.Contains(trimmed, "?") {
			trimmed += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		}
		return driverSQLite, trimmed
	}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports store reachability for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Create inserts a new record, assigning its id and timestamps. The owner id
// and digest are fixed at insert; a (digest, owner_id) collision returns
// ErrDuplicate.
func (s *Store) Create(ctx context.Context, key *model.APIKey) error {
	now := time.Now().UTC()
	key.ID = uuid.Must(uuid.NewV7()).String()
	key.CreatedAt = now
	key.UpdatedAt = now
	if key.ExpiresAt.IsZero() {
		key.ExpiresAt = now.Add(model.DefaultKeyTTL)
	}

	const q = `INSERT INTO api_keys
		(id, owner_id, digest, is_active, last_used_at, expires_at, created_at, updated_at)
		VALUES
		(:id, :owner_id, :digest, :is_active, :last_used_at, :expires_at, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, q, key); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// GetByID fetches one record by id.
func (s *Store) GetByID(ctx context.Context, id string) (*model.APIKey, error) {
	var key model.APIKey
	q := s.db.Rebind("SELECT * FROM api_keys WHERE id = ?")
	if err := s.db.GetContext(ctx, &key, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return &key, nil
}

// GetByOwner fetches the record for an owner, used by verification after the
// owner hint is extracted from a presented key.
func (s *Store) GetByOwner(ctx context.Context, ownerID string) (*model.APIKey, error) {
	var key model.APIKey
	q := s.db.Rebind("SELECT * FROM api_keys WHERE owner_id = ? ORDER BY created_at DESC LIMIT 1")
	if err := s.db.GetContext(ctx, &key, q, ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key by owner: %w", err)
	}
	return &key, nil
}

// List returns records matching the filter plus the unpaginated total.
func (s *Store) List(ctx context.Context, filter model.APIKeyFilter) ([]model.APIKey, int64, error) {
	where := make([]string, 0, 5)
	args := make([]interface{}, 0, 5)
	if filter.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.IsActive != nil {
		where = append(where, "is_active = ?")
		args = append(args, *filter.IsActive)
	}
	if filter.LastUsedAt != nil {
		where = append(where, "last_used_at = ?")
		args = append(args, filter.LastUsedAt.UTC())
	}
	if filter.ExpiresAt != nil {
		where = append(where, "expires_at = ?")
		args = append(args, filter.ExpiresAt.UTC())
	}
	if filter.CreatedAt != nil {
		where = append(where, "created_at = ?")
		args = append(args, filter.CreatedAt.UTC())
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	countQ := s.db.Rebind("SELECT COUNT(*) FROM api_keys" + clause)
	if err := s.db.GetContext(ctx, &total, countQ, args...); err != nil {
		return nil, 0, fmt.Errorf("count api keys: %w", err)
	}

	order := " ORDER BY created_at DESC"
	if filter.Sort == model.SortAsc {
		order = " ORDER BY created_at ASC"
	}

	q := "SELECT * FROM api_keys" + clause + order
	if filter.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, filter.Offset)
	}

	keys := []model.APIKey{}
	if err := s.db.SelectContext(ctx, &keys, s.db.Rebind(q), args...); err != nil {
		return nil, 0, fmt.Errorf("list api keys: %w", err)
	}
	return keys, total, nil
}

// ReplaceDigest atomically swaps the stored digest, invalidating whatever
// raw key matched the previous one. Returns ErrNotFound when id is absent.
func (s *Store) ReplaceDigest(ctx context.Context, id, digest string) error {
	q := s.db.Rebind("UPDATE api_keys SET digest = ?, updated_at = ? WHERE id = ?")
	return s.mustAffect(ctx, q, digest, time.Now().UTC(), id)
}

// SetActive flips the active flag. Returns ErrNotFound when id is absent.
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	q := s.db.Rebind("UPDATE api_keys SET is_active = ?, updated_at = ? WHERE id = ?")
	return s.mustAffect(ctx, q, active, time.Now().UTC(), id)
}

// TouchLastUsed records a successful verification against the key.
func (s *Store) TouchLastUsed(ctx context.Context, id string) error {
	q := s.db.Rebind("UPDATE api_keys SET last_used_at = ? WHERE id = ?")
	return s.mustAffect(ctx, q, time.Now().UTC(), id)
}

// Delete removes a record. Deleting an absent id is a success with no
// observable effect.
func (s *Store) Delete(ctx context.Context, id string) error {
	q := s.db.Rebind("DELETE FROM api_keys WHERE id = ?")
	if _, err := s.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	return nil
}

func (s *Store) mustAffect(ctx context.Context, q string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update api key rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation matches unique-constraint errors across the supported
// drivers by message, the same way request handlers classify them.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "duplicate key") ||
		strings.Contains(lower, "duplicate entry")
}
