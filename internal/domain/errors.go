package domain

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorCode represents a specific error condition.
type ErrorCode string

const (
	ErrInvalidAPIKey     ErrorCode = "InvalidAPIKey"       // HTTP 401
	ErrInvalidToken      ErrorCode = "InvalidToken"        // HTTP 403, WS Close 4403
	ErrForbidden         ErrorCode = "Forbidden"           // HTTP 403, tenant outside the operator's scope
	ErrBadRequest        ErrorCode = "BadRequest"          // HTTP 400
	ErrInvalidFilterCode ErrorCode = "InvalidFilter"       // HTTP 400, unknown platform/status label
	ErrNotFound          ErrorCode = "NotFound"            // HTTP 404
	ErrMethodNotAllowed  ErrorCode = "MethodNotAllowed"    // HTTP 405
	ErrFetchFailed       ErrorCode = "FetchFailed"         // backend fetch failed; panel keeps its last state
	ErrInternal          ErrorCode = "InternalServerError" // HTTP 500, WS Close 1011
)

var (
	ErrContactNotFound = errors.New("contact not found")
	ErrPanelStopped    = errors.New("panel is stopped")
	ErrForbiddenTenant = errors.New("tenant is outside the operator's scope")
	ErrInvalidFilter   = errors.New("invalid filter")
	ErrSessionExpired  = errors.New("session token expired")
)

// ErrorResponse is the error body returned to clients via HTTP JSON or inside a WebSocket "error" message.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// NewErrorResponse creates a new ErrorResponse struct.
func NewErrorResponse(code ErrorCode, message string, details string) ErrorResponse {
	return ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// WriteJSON sends an ErrorResponse as JSON with the given HTTP status code.
func (er ErrorResponse) WriteJSON(w http.ResponseWriter, httpStatusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	json.NewEncoder(w).Encode(er) // Best effort.
}
