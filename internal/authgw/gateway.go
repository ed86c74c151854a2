// Package authgw talks to the access-control gateway that owns bearer-token
// validation and permission checks. The production implementation is a plain
// HTTP client; a JWT-backed local implementation serves development and
// tests.
package authgw

import (
	"context"
	"errors"
	"strings"
)

// ErrAccessDenied is raised for missing or placeholder bearer tokens and for
// tokens the gateway rejects outright.
var ErrAccessDenied = errors.New("access denied")

// Role is the caller's role as reported by the gateway.
type Role struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// UserInfo identifies the authenticated principal.
type UserInfo struct {
	ID   string `json:"_id"`
	Role Role   `json:"role"`
}

// TokenInfo is the gateway's answer to a bearer-token verification.
type TokenInfo struct {
	Active   bool     `json:"active"`
	UserInfo UserInfo `json:"user_info"`
}

// Gateway is the access-control collaborator consumed by the key service.
type Gateway interface {
	// CheckAccess reports whether the bearer token holds every permission
	// in the set.
	CheckAccess(ctx context.Context, bearerToken string, permissions []string) (bool, error)
	// VerifyToken validates the bearer token and returns the caller's
	// identity. Inactive or unknown tokens yield ErrAccessDenied.
	VerifyToken(ctx context.Context, bearerToken string) (TokenInfo, error)
}

// IsPlaceholder reports whether a bearer token is absent or one of the
// literal placeholder strings some clients send instead of a token.
func IsPlaceholder(token string) bool {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "", "null", "undefined", "none":
		return true
	}
	return false
}

// Slugify normalizes a role name for comparison: lowercase, runs of
// non-alphanumerics collapsed to single hyphens.
func Slugify(name string) string {
	var b strings.Builder
	prevHyphen := true // trims leading separators
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevHyphen = false
		default:
			if !prevHyphen {
				b.WriteByte('-')
				prevHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
