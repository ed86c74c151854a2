package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/flavien-hugs/apikey-hub/internal/model"
)

// writeJSON serializes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error envelope with a stable machine code
// and a human message.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, model.ErrorResponse{
		CodeError:    code,
		MessageError: message,
	})
}

// queryInt extracts an integer query parameter, returning defaultVal when the
// parameter is missing or unparseable.
func queryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// queryBoolPtr extracts an optional boolean query parameter. A missing
// parameter yields (nil, true); an unparseable one yields ok=false.
func queryBoolPtr(r *http.Request, key string) (*bool, bool) {
	val := r.URL.Query().Get(key)
	if val == "" {
		return nil, true
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return nil, false
	}
	return &b, true
}

// queryTimePtr extracts an optional RFC 3339 timestamp query parameter. A
// bare date (2006-01-02) is also accepted.
func queryTimePtr(r *http.Request, key string) (*time.Time, bool) {
	val := r.URL.Query().Get(key)
	if val == "" {
		return nil, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, val); err == nil {
			return &ts, true
		}
	}
	return nil, false
}

// clampInt constrains val to [min, max].
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
