package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sheetline-inc/sheetline-engine/pkg/apperrors"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// DecodeJSON reads and decodes a JSON request body into dst.
func DecodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

// domainError maps workflow errors onto HTTP responses. Unmapped errors
// fall through to 500.
func domainError(w http.ResponseWriter, err error) error {
	switch {
	case errors.Is(err, apperrors.ErrSheetNotFound),
		errors.Is(err, apperrors.ErrColumnNotFound),
		errors.Is(err, apperrors.ErrNotFound):
		return ErrorResponse(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, apperrors.ErrInvalidTransition),
		errors.Is(err, apperrors.ErrStaleGeneration),
		errors.Is(err, apperrors.ErrCommitInProgress),
		errors.Is(err, apperrors.ErrConflict):
		return ErrorResponse(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, apperrors.ErrPendingColumns),
		errors.Is(err, apperrors.ErrNoApprovedSheets),
		errors.Is(err, apperrors.ErrNoActiveSession):
		return ErrorResponse(w, http.StatusBadRequest, "invalid_state", err.Error())
	default:
		return ErrorResponse(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
