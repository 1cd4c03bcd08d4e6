package shared

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

var (
	ErrNotFound = errors.New("not found")

	ErrPoolNotOpen            = errors.New("pool not open for admission")
	ErrNotEligible            = errors.New("user not eligible")
	ErrNotAParticipant        = errors.New("not a participant")
	ErrTemporarilyUnavailable = errors.New("temporarily unavailable")
)

// APIError is the body of every non-2xx response.
type APIError struct {
	Code    string `json:"code" example:"pool_not_open"`
	Message string `json:"message" example:"this pool is not open right now"`
	Details any    `json:"details,omitempty" swaggertype:"object"`
}

func NewAPIError(code, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

func (e *APIError) WithDetails(details any) *APIError {
	e.Details = details
	return e
}

func (e *APIError) ToHTTP(status int) *echo.HTTPError {
	return echo.NewHTTPError(status, e)
}

func BadRequest(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusBadRequest)
}

func Unauthorized(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusUnauthorized)
}

func NotFound(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusNotFound)
}

func Conflict(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusConflict)
}

func TooManyRequests(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusTooManyRequests)
}

// Unavailable is returned for storage or broker failures the client should
// retry later. The message stays generic and never carries the underlying error.
func Unavailable(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusServiceUnavailable)
}

// Mapping ties a domain error to the response a handler should send for it.
type Mapping struct {
	Target  error
	Status  int
	Code    string
	Message string
}

// MapError returns the response for the first mapping whose Target matches
// err. ok is false when nothing matches and the caller should treat err as
// an unexpected failure.
func MapError(err error, mappings ...Mapping) (httpErr *echo.HTTPError, ok bool) {
	for _, m := range mappings {
		if errors.Is(err, m.Target) {
			return NewAPIError(m.Code, m.Message).ToHTTP(m.Status), true
		}
	}
	return nil, false
}
