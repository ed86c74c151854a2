package handler

import (
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/flavien-hugs/apikey-hub/internal/model"
)

// OpenAPIHandler serves the service's OpenAPI document. The surface is
// static, so the document is marshalled once and cached.
type OpenAPIHandler struct {
	doc *openapi3.T

	once   sync.Once
	cached []byte
	err    error
}

// NewOpenAPIHandler creates an OpenAPIHandler around a prebuilt document.
func NewOpenAPIHandler(doc *openapi3.T) *OpenAPIHandler {
	return &OpenAPIHandler{doc: doc}
}

// ServeSpec returns the OpenAPI document as JSON.
// GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	h.once.Do(func() {
		h.cached, h.err = h.doc.MarshalJSON()
	})
	if h.err != nil {
		writeError(w, http.StatusInternalServerError, model.CodeInternalError,
			"Could not serialize the OpenAPI document")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(h.cached)
}
