// Package apierror maps classified errors to HTTP status codes and the uniform error envelope.
package apierror

import (
	"net/http"

	"auth_backend/internal/api"
	"auth_backend/internal/shared/apperr"
)

// Status returns the HTTP status code for kind.
func Status(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthorized, apperr.KindInvalidCredentials:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case apperr.KindDuplicateHandle:
		return http.StatusConflict
	case apperr.KindTooManyRequests:
		return http.StatusTooManyRequests
	case apperr.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromError converts err into a status code and envelope.
// Unclassified errors become UnexpectedError with a generic message; their text never reaches the body.
func FromError(err error, correlationID string) (int, api.ErrorResponse) {
	kind := apperr.KindOf(err)
	if kind == "" {
		kind = apperr.KindUnexpected
	}
	message := apperr.DefaultMessage(kind)
	if kind != apperr.KindUnexpected {
		message = apperr.PublicMessage(err)
	}
	return Status(kind), api.ErrorResponse{
		ErrorKind:     string(kind),
		Message:       message,
		CorrelationID: correlationID,
	}
}
