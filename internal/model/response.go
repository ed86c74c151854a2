package model

// ListResponse is the envelope for list endpoints, wrapping results in a
// "resource" array with pagination metadata.
type ListResponse struct {
	Resource []APIKey     `json:"resource"`
	Meta     ResponseMeta `json:"meta"`
}

// ResponseMeta carries pagination information for list responses.
type ResponseMeta struct {
	Count  int   `json:"count"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// VerificationResult is the body of the verify endpoint, returned for every
// input including malformed ones.
type VerificationResult struct {
	Verified bool `json:"verified"`
}

// ErrorResponse is the structured error body returned by the API.
type ErrorResponse struct {
	CodeError    string `json:"code_error"`
	MessageError string `json:"message_error"`
}

// Stable machine-readable error codes.
const (
	CodeDocumentNotFound     = "app/document-not-found"
	CodeCannotAccessResource = "apikey/cannot-access-resource"
	CodeValidationError      = "app/validation-error"
	CodeAccessDenied         = "auth/access-denied"
	CodeInternalError        = "app/internal-error"
)
