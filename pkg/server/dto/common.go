package dto

// Result represents a generic API result
type Result struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// Error codes carried in ErrorResponse.Error.
const (
	ErrInvalidRequest = "invalid_request"
	ErrNotFound       = "not_found"
	ErrNotReady       = "not_ready"
	ErrInternal       = "internal_error"
)
