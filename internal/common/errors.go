package common

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Engine error taxonomy. Services wrap these with context via %w; handlers
// map them to HTTP statuses with errors.Is.
var (
	// ErrNotFound: a movement, session, or item reference does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState: an operation was attempted outside its valid
	// session/movement status, e.g. scanning a finalized session.
	ErrInvalidState = errors.New("invalid state")

	// ErrConflict: a second concurrent session was attempted for a movement
	// that already has one in progress. The lifecycle manager normally
	// resolves this by resuming the existing session instead of surfacing it.
	ErrConflict = errors.New("conflict")
)

// ErrorResponse is the standardized error envelope returned to clients.
type ErrorResponse struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details,omitempty"`
	} `json:"error"`
}

// CreateErrorResponse creates a standardized error response
func CreateErrorResponse(code string, message string, details map[string]string) *ErrorResponse {
	var resp ErrorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	resp.Error.Details = details
	return &resp
}

// SendValidationError sends a validation error response
func SendValidationError(c echo.Context, field, message string) error {
	details := map[string]string{
		field: message,
	}
	return c.JSON(http.StatusBadRequest, CreateErrorResponse("VALIDATION_ERROR", "Validation failed", details))
}

// SendClientError sends a client error response
func SendClientError(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, CreateErrorResponse("CLIENT_ERROR", message, nil))
}

// SendServerError sends a server error response
func SendServerError(c echo.Context, message string) error {
	return c.JSON(http.StatusInternalServerError, CreateErrorResponse("SERVER_ERROR", message, nil))
}

// SendDomainError maps an engine error to its HTTP response. Unrecognized
// errors are reported as generic server errors so internals never leak.
func SendDomainError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return c.JSON(http.StatusNotFound, CreateErrorResponse("NOT_FOUND", err.Error(), nil))
	case errors.Is(err, ErrInvalidState):
		return c.JSON(http.StatusConflict, CreateErrorResponse("INVALID_STATE", err.Error(), nil))
	case errors.Is(err, ErrConflict):
		return c.JSON(http.StatusConflict, CreateErrorResponse("CONFLICT", err.Error(), nil))
	default:
		return SendServerError(c, "operation could not be completed")
	}
}
