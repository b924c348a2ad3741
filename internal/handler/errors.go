package handler

import (
	"errors"
	"net/http"

	"sheetnotes/internal/domain"
	"sheetnotes/internal/envelope"
	"sheetnotes/pkg/response"
)

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrOwnership), errors.Is(err, domain.ErrDoneNoteMove):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStorage):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)

	msg := err.Error()
	var se *domain.StorageError
	switch {
	case errors.As(err, &se) && se.Message != "":
		msg = se.Message
	case errors.Is(err, envelope.ErrEncryption):
		msg = "Failed to encrypt note"
	case status == http.StatusInternalServerError:
		msg = "Internal server error"
	}

	response.Error(w, status, msg)
}
