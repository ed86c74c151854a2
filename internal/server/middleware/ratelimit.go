package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// VerifyRateLimit limits verification attempts per presented key value
// (falling back to the remote IP when the header is absent), closing the
// brute-force window on the unauthenticated verify endpoint.
func VerifyRateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if key := r.Header.Get("X-API-Key"); key != "" {
				return key, nil
			}
			return httprate.KeyByIP(r)
		}),
	)
}
