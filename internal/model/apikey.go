package model

import "time"

// DefaultKeyTTL is how long a freshly issued key remains valid.
const DefaultKeyTTL = 365 * 24 * time.Hour

// APIKey is one issued API key record. The raw key is never stored; only a
// keyed digest of its secret payload is persisted, and that digest is never
// serialized in API responses.
type APIKey struct {
	ID         string     `json:"id" db:"id"`                           // Store-assigned opaque id, immutable.
	OwnerID    string     `json:"owner_id" db:"owner_id"`               // Owning principal, immutable after creation.
	Digest     string     `json:"-" db:"digest"`                        // HMAC digest, never expose.
	IsActive   bool       `json:"is_active" db:"is_active"`             // Gates verification.
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	ExpiresAt  time.Time  `json:"expires_at" db:"expires_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// Expired reports whether the key is past its expiry at the given instant.
func (k *APIKey) Expired(now time.Time) bool {
	return now.After(k.ExpiresAt)
}

// SortOrder selects list ordering by creation time.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// APIKeyFilter narrows List results. Nil/zero fields are ignored.
type APIKeyFilter struct {
	OwnerID    string
	IsActive   *bool
	LastUsedAt *time.Time
	ExpiresAt  *time.Time
	CreatedAt  *time.Time
	Sort       SortOrder
	Limit      int
	Offset     int
}
