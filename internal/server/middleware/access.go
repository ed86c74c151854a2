package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/flavien-hugs/apikey-hub/internal/authgw"
	"github.com/flavien-hugs/apikey-hub/internal/model"
)

type contextKeyAuth string

// CallerKey is the context key for the verified caller identity.
const CallerKey contextKeyAuth = "caller"

// Access returns a middleware that enforces the given permission set
// against the access-control gateway and attaches the verified caller
// identity to the request context. Requests without a usable bearer token
// are rejected with 403 before the gateway is consulted.
func Access(gw authgw.Gateway, permissions ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if authgw.IsPlaceholder(token) {
				writeAccessError(w, http.StatusForbidden, model.CodeAccessDenied, "Access denied")
				return
			}

			allowed, err := gw.CheckAccess(r.Context(), token, permissions)
			if err != nil {
				if errors.Is(err, authgw.ErrAccessDenied) {
					writeAccessError(w, http.StatusForbidden, model.CodeAccessDenied, "Access denied")
					return
				}
				writeAccessError(w, http.StatusInternalServerError, model.CodeInternalError, "Access check failed")
				return
			}
			if !allowed {
				writeAccessError(w, http.StatusForbidden, model.CodeAccessDenied, "Access denied")
				return
			}

			info, err := gw.VerifyToken(r.Context(), token)
			if err != nil {
				if errors.Is(err, authgw.ErrAccessDenied) {
					writeAccessError(w, http.StatusForbidden, model.CodeAccessDenied, "Access denied")
					return
				}
				writeAccessError(w, http.StatusInternalServerError, model.CodeInternalError, "Token verification failed")
				return
			}

			ctx := context.WithValue(r.Context(), CallerKey, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCaller extracts the verified caller from the context. The zero value
// is returned for unauthenticated requests.
func GetCaller(ctx context.Context) authgw.TokenInfo {
	if info, ok := ctx.Value(CallerKey).(authgw.TokenInfo); ok {
		return info
	}
	return authgw.TokenInfo{}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

func writeAccessError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.ErrorResponse{
		CodeError:    code,
		MessageError: message,
	})
}
