package errors

import (
	"errors"
	"net/http"
)

// HTTPStatus maps a pinger error to the status code returned by the HTTP API.
// Unknown errors are reported as 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidIdentity), errors.Is(err, ErrInvalidTarget):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenAlreadyConsumed),
		errors.Is(err, ErrMissingToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUnknownSelfIdentity):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

var public = []error{
	ErrInvalidIdentity,
	ErrInvalidTarget,
	ErrInvalidToken,
	ErrTokenExpired,
	ErrTokenAlreadyConsumed,
	ErrMissingToken,
	ErrUnknownSelfIdentity,
	ErrRateLimited,
}

// Message returns the text exposed to clients: the matching sentinel only,
// never the wrapped details.
func Message(err error) string {
	for _, target := range public {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return "internal error"
}
