package authgw

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LocalGateway verifies HS256 bearer tokens in-process instead of calling
// the remote gateway. It exists for development deployments and tests; the
// token carries the identity and permission set the remote gateway would
// otherwise resolve.
type LocalGateway struct {
	secret []byte
}

// NewLocalGateway builds a gateway around the shared HS256 secret.
func NewLocalGateway(secret string) *LocalGateway {
	return &LocalGateway{secret: []byte(secret)}
}

type localClaims struct {
	RoleName    string   `json:"role_name"`
	RoleSlug    string   `json:"role_slug"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

func (g *LocalGateway) parse(tokenStr string) (*localClaims, error) {
	claims := &localClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return g.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrAccessDenied
	}
	return claims, nil
}

// CheckAccess reports whether the token's permission claim covers the set.
func (g *LocalGateway) CheckAccess(_ context.Context, bearerToken string, permissions []string) (bool, error) {
	if IsPlaceholder(bearerToken) {
		return false, ErrAccessDenied
	}
	claims, err := g.parse(bearerToken)
	if err != nil {
		return false, err
	}
	granted := make(map[string]struct{}, len(claims.Permissions))
	for _, p := range claims.Permissions {
		granted[p] = struct{}{}
	}
	for _, p := range permissions {
		if _, ok := granted[p]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// VerifyToken returns the identity carried in the token claims.
func (g *LocalGateway) VerifyToken(_ context.Context, bearerToken string) (TokenInfo, error) {
	if IsPlaceholder(bearerToken) {
		return TokenInfo{}, ErrAccessDenied
	}
	claims, err := g.parse(bearerToken)
	if err != nil {
		return TokenInfo{}, err
	}
	return TokenInfo{
		Active: true,
		UserInfo: UserInfo{
			ID: claims.Subject,
			Role: Role{
				Name: claims.RoleName,
				Slug: claims.RoleSlug,
			},
		},
	}, nil
}

// IssueToken signs a local bearer token for the given identity. Used by the
// local deployment mode and by tests.
func (g *LocalGateway) IssueToken(userID, roleName string, permissions []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := localClaims{
		RoleName:    roleName,
		RoleSlug:    Slugify(roleName),
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "apikey-hub",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(g.secret)
}
