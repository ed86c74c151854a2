package handler

import (
	"log/slog"
	"net/http"

	"github.com/flavien-hugs/apikey-hub/internal/keys"
	"github.com/flavien-hugs/apikey-hub/internal/model"
)

// HeaderAPIKey carries the presented key on verification requests.
const HeaderAPIKey = "X-API-Key"

// VerifyHandler serves presented-key verification.
type VerifyHandler struct {
	svc    *keys.Service
	logger *slog.Logger
}

// NewVerifyHandler creates a VerifyHandler.
func NewVerifyHandler(svc *keys.Service, logger *slog.Logger) *VerifyHandler {
	return &VerifyHandler{svc: svc, logger: logger}
}

// Verify answers whether the key in the X-API-Key header is valid. A missing
// header is a request-shape error (422); every other input, malformed keys
// included, gets a 200 with a boolean verdict so the endpoint leaks nothing
// about why a key failed.
// GET /verify-api-key
func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	values, present := r.Header[http.CanonicalHeaderKey(HeaderAPIKey)]
	if !present || len(values) == 0 {
		writeError(w, http.StatusUnprocessableEntity, model.CodeValidationError,
			"Missing required header X-API-Key")
		return
	}

	result := h.svc.Verify(r.Context(), values[0])
	writeJSON(w, http.StatusOK, result)
}
